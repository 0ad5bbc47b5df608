package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/roomie/backend/compat"
)

func TestUserProfileHandler(t *testing.T) {
	t.Run("public view hides email", func(t *testing.T) {
		conn, mock := newMockDB(t)
		online := useMemPresence(t)
		require.NoError(t, online.Touch(context.Background(), 2))

		mock.ExpectQuery(`FROM blocks`).WithArgs(1, 2).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`WHERE p.user_id = \$1`).WithArgs(2).
			WillReturnRows(profileRows(2, "sam", samLifestyle, "{hiking,gaming}"))

		w := serve(usersDispatcher(conn), authedRequest(t, http.MethodGet, "/users/2/profile", nil, 1))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body map[string]interface{}
		decodeBody(t, w, &body)
		assert.NotContains(t, body, "email")
		assert.Equal(t, "sam", body["displayName"])
		assert.Equal(t, true, body["isOnline"])
		assert.Equal(t, true, body["surveyComplete"])
		assert.ElementsMatch(t, []interface{}{compat.TraitSocialButterfly, compat.TraitNightOwl}, body["traits"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("blocked profile is hidden", func(t *testing.T) {
		conn, mock := newMockDB(t)
		useMemPresence(t)
		mock.ExpectQuery(`FROM blocks`).WithArgs(1, 2).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		w := serve(usersDispatcher(conn), authedRequest(t, http.MethodGet, "/users/2/profile", nil, 1))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing profile", func(t *testing.T) {
		conn, mock := newMockDB(t)
		useMemPresence(t)
		mock.ExpectQuery(`FROM blocks`).WithArgs(1, 5).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`WHERE p.user_id = \$1`).WithArgs(5).WillReturnRows(sqlmock.NewRows(profileColumns))

		w := serve(usersDispatcher(conn), authedRequest(t, http.MethodGet, "/users/5/profile", nil, 1))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown users route", func(t *testing.T) {
		conn, _ := newMockDB(t)
		w := serve(usersDispatcher(conn), authedRequest(t, http.MethodGet, "/users/2/bio", nil, 1))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMeProfileHandler(t *testing.T) {
	t.Run("get own profile keeps email", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`WHERE p.user_id = \$1`).WithArgs(1).
			WillReturnRows(profileRows(1, "alex", alexLifestyle, "{hiking}"))

		w := serve(meProfileHandler(conn), authedRequest(t, http.MethodGet, "/me/profile", nil, 1))
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		decodeBody(t, w, &body)
		assert.Equal(t, "alex@test.local", body["email"])
		assert.Contains(t, body["traits"], compat.TraitCleanTidy)
	})

	t.Run("update normalizes interests", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectExec(`UPDATE profiles`).
			WithArgs(1, "Alex", "hi", "Tallinn", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body := map[string]interface{}{
			"displayName": " Alex ",
			"bio":         "hi",
			"hometown":    "Tallinn",
			"interests":   []string{"Hiking", "hiking", " "},
			"preferences": map[string]int{"budgetMin": 400, "budgetMax": 700, "leaseMonths": 12},
		}
		w := serve(meProfileHandler(conn), authedRequest(t, http.MethodPut, "/me/profile", body, 1))
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inverted budget is rejected", func(t *testing.T) {
		conn, _ := newMockDB(t)
		body := map[string]interface{}{
			"displayName": "Alex",
			"preferences": map[string]int{"budgetMin": 900, "budgetMax": 700},
		}
		w := serve(meProfileHandler(conn), authedRequest(t, http.MethodPut, "/me/profile", body, 1))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "invalid_preferences", errorCode(t, w))
	})

	t.Run("display name required", func(t *testing.T) {
		conn, _ := newMockDB(t)
		w := serve(meProfileHandler(conn), authedRequest(t, http.MethodPut, "/me/profile", map[string]string{"displayName": "  "}, 1))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMeHandler(t *testing.T) {
	conn, mock := newMockDB(t)
	mock.ExpectQuery(`FROM users u`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "display_name"}).AddRow(4, "kim@test.local", roleUser, "Kim"))

	w := serve(meHandler(conn), authedRequest(t, http.MethodGet, "/me", nil, 4))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decodeBody(t, w, &body)
	assert.Equal(t, "kim@test.local", body["email"])
	assert.Equal(t, "Kim", body["displayName"])
}

func TestSurveyHandlers(t *testing.T) {
	t.Run("catalog lists every question", func(t *testing.T) {
		w := serve(http.HandlerFunc(surveyHandler), jsonRequest(t, http.MethodGet, "/survey", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string][]SurveyQuestion
		decodeBody(t, w, &body)
		assert.Len(t, body["questions"], 7)
	})

	t.Run("complete answers stamp completion", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectExec(`UPDATE profiles`).
			WithArgs(1, 5, 2, 4, 1, false, false, true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		answers := map[string]interface{}{
			"cleanliness": 5, "socialLevel": 2, "sleepSchedule": 4, "guestFrequency": 1,
			"smoking": false, "drinking": false, "pets": true,
		}
		w := serve(meSurveyHandler(conn), authedRequest(t, http.MethodPut, "/me/survey", answers, 1))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body map[string]interface{}
		decodeBody(t, w, &body)
		assert.Equal(t, true, body["surveyComplete"])
		assert.ElementsMatch(t,
			[]interface{}{compat.TraitCleanTidy, compat.TraitIntrovert, compat.TraitNightOwl},
			body["traits"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("partial answers are allowed", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectExec(`UPDATE profiles`).
			WithArgs(1, nil, 3, nil, nil, nil, true, nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := serve(meSurveyHandler(conn), authedRequest(t, http.MethodPut, "/me/survey",
			map[string]interface{}{"socialLevel": 3, "drinking": true}, 1))
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		decodeBody(t, w, &body)
		assert.Equal(t, false, body["surveyComplete"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("out of range answer names the field", func(t *testing.T) {
		conn, _ := newMockDB(t)
		w := serve(meSurveyHandler(conn), authedRequest(t, http.MethodPut, "/me/survey",
			map[string]interface{}{"guestFrequency": 6}, 1))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var body map[string]string
		decodeBody(t, w, &body)
		assert.Equal(t, "invalid_answer", body["error"])
		assert.Equal(t, "guestFrequency", body["field"])
	})
}

func TestSaveSurveyKeepsFirstCompletion(t *testing.T) {
	conn, mock := newMockDB(t)
	// completion stays put on a repeat save, and clears when the arg is NULL
	mock.ExpectExec(`survey_completed_at = CASE WHEN \$9::timestamptz IS NULL THEN NULL ELSE COALESCE\(survey_completed_at, \$9\) END`).
		WithArgs(1, 5, 2, 4, 1, false, false, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	l := compat.Lifestyle{
		Cleanliness: intp(5), SocialLevel: intp(2), SleepSchedule: intp(4), GuestFrequency: intp(1),
		Smoking: boolp(false), Drinking: boolp(false), Pets: boolp(true),
	}
	require.NoError(t, saveSurvey(context.Background(), conn, 1, l))
	assert.NoError(t, mock.ExpectationsWereMet())
}
