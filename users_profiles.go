package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gitea.kood.tech/roomie/backend/compat"
)

// profileView is what the profile surfaces render: the profile plus derived traits.
type profileView struct {
	compat.UserProfile
	Traits         []string `json:"traits"`
	SurveyComplete bool     `json:"surveyComplete"`
	IsOnline       *bool    `json:"isOnline,omitempty"`
}

func newProfileView(p *compat.UserProfile) profileView {
	return profileView{
		UserProfile:    *p,
		Traits:         compat.DeriveTraits(p),
		SurveyComplete: p.Lifestyle.SurveyComplete(),
	}
}

// Dispatcher for /users/* (only /users/{id}/profile today)
func usersDispatcher(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r)
		if len(parts) == 3 && parts[0] == "users" && parts[2] == "profile" {
			userProfileHandler(db).ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	}
}

// GET /users/{id}/profile
func userProfileHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		targetID, ok := pathID(pathParts(r), 1)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		me := currentUserID(r)

		blocked, err := isBlockedEitherWay(r.Context(), db, me, targetID)
		if err != nil {
			logger.Errorw("check block", "user_id", me, "target_id", targetID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if blocked {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		p, err := loadProfile(r.Context(), db, targetID)
		if errors.Is(err, errProfileNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		} else if err != nil {
			logger.Errorw("load profile", "target_id", targetID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		p.Email = ""

		view := newProfileView(p)
		online := isOnline(r, targetID)
		view.IsOnline = &online
		writeJSON(w, http.StatusOK, view)
	})
}

type profileUpdateRequest struct {
	DisplayName string             `json:"displayName"`
	Bio         string             `json:"bio"`
	Hometown    string             `json:"hometown"`
	Socials     compat.Socials     `json:"socials"`
	Interests   []string           `json:"interests"`
	Preferences compat.Preferences `json:"preferences"`
}

// GET /me/profile returns the caller's profile with traits.
// PUT /me/profile replaces its descriptive fields.
func meProfileHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)
		switch r.Method {
		case http.MethodGet:
			p, err := loadProfile(r.Context(), db, userID)
			if errors.Is(err, errProfileNotFound) {
				writeError(w, http.StatusNotFound, "profile_not_found")
				return
			} else if err != nil {
				logger.Errorw("load own profile", "user_id", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "database_error")
				return
			}
			writeJSON(w, http.StatusOK, newProfileView(p))

		case http.MethodPut, http.MethodPatch:
			var req profileUpdateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json")
				return
			}
			req.DisplayName = strings.TrimSpace(req.DisplayName)
			if req.DisplayName == "" {
				writeError(w, http.StatusBadRequest, "missing_display_name")
				return
			}
			if err := req.Preferences.Validate(); err != nil {
				writeError(w, http.StatusUnprocessableEntity, "invalid_preferences")
				return
			}
			p := &compat.UserProfile{
				ID:          userID,
				DisplayName: req.DisplayName,
				Bio:         strings.TrimSpace(req.Bio),
				Hometown:    strings.TrimSpace(req.Hometown),
				Socials:     req.Socials,
				Interests:   req.Interests,
				Preferences: req.Preferences,
			}
			if err := saveProfileDetails(r.Context(), db, p); err != nil {
				logger.Errorw("save profile", "user_id", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "profile_save_error")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

		default:
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		}
	})
}

// GET /me returns the caller's account basics.
func meHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := currentUserID(r)
		var me struct {
			ID          int    `json:"id"`
			Email       string `json:"email"`
			Role        string `json:"role"`
			DisplayName string `json:"displayName"`
		}
		err := db.QueryRowContext(r.Context(), `
			SELECT u.id, u.email, u.role, COALESCE(p.display_name, '')
			FROM users u
			LEFT JOIN profiles p ON p.user_id = u.id
			WHERE u.id = $1
		`, userID).Scan(&me.ID, &me.Email, &me.Role, &me.DisplayName)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		} else if err != nil {
			logger.Errorw("load account", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		writeJSON(w, http.StatusOK, me)
	})
}
