package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"gitea.kood.tech/roomie/backend/compat"
)

// SurveyQuestion describes one lifestyle question for the client.
type SurveyQuestion struct {
	Key    string   `json:"key"`
	Prompt string   `json:"prompt"`
	Type   string   `json:"type"` // "scale" | "boolean"
	Labels []string `json:"labels,omitempty"`
}

var surveyQuestions = []SurveyQuestion{
	{Key: "sleepSchedule", Prompt: "When do you usually go to bed?", Type: "scale",
		Labels: []string{"Very early", "Early", "Around midnight", "Late", "Very late"}},
	{Key: "cleanliness", Prompt: "How tidy do you keep shared spaces?", Type: "scale",
		Labels: []string{"Relaxed", "Casual", "Average", "Tidy", "Spotless"}},
	{Key: "socialLevel", Prompt: "How social are you at home?", Type: "scale",
		Labels: []string{"Very private", "Reserved", "Balanced", "Outgoing", "Very social"}},
	{Key: "guestFrequency", Prompt: "How often do you have guests over?", Type: "scale",
		Labels: []string{"Never", "Rarely", "Sometimes", "Often", "All the time"}},
	{Key: "smoking", Prompt: "Do you smoke?", Type: "boolean"},
	{Key: "drinking", Prompt: "Do you drink at home?", Type: "boolean"},
	{Key: "pets", Prompt: "Do you have or want pets?", Type: "boolean"},
}

// GET /survey
func surveyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]SurveyQuestion{"questions": surveyQuestions})
}

// PUT /me/survey stores lifestyle answers. Unanswered questions are sent as null.
func meSurveyHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		var answers compat.Lifestyle
		if err := json.NewDecoder(r.Body).Decode(&answers); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		probe := compat.UserProfile{Lifestyle: answers}
		if err := probe.Validate(); err != nil {
			var inv *compat.InvalidInputError
			if errors.As(err, &inv) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid_answer", "field": inv.Field})
				return
			}
			writeError(w, http.StatusUnprocessableEntity, "invalid_answer")
			return
		}

		userID := currentUserID(r)
		if err := saveSurvey(r.Context(), db, userID, answers); err != nil {
			logger.Errorw("save survey", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "survey_save_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "ok",
			"surveyComplete": answers.SurveyComplete(),
			"traits":         compat.DeriveTraits(&probe),
		})
	})
}
