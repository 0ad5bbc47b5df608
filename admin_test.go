package main

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flagColumns = []string{
	"id", "reporter_id", "target_user_id", "message_id", "reason", "details", "status",
	"resolution_note", "resolved_by", "created_at", "resolved_at",
}

func adminRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return roleRequest(t, method, path, body, 100, roleAdmin)
}

func TestAdminRouterRequiresAdmin(t *testing.T) {
	conn, _ := newMockDB(t)
	w := serve(adminRouter(conn), authedRequest(t, http.MethodGet, "/admin/stats", nil, 1))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminListFlags(t *testing.T) {
	t.Run("filters by status", func(t *testing.T) {
		conn, mock := newMockDB(t)
		created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`FROM flags`).WithArgs(flagOpen, 10, 0).
			WillReturnRows(sqlmock.NewRows(flagColumns).
				AddRow(1, 2, 3, nil, "spam", "", flagOpen, "", nil, created, nil).
				AddRow(2, 4, 3, int64(77), "harassment", "late night", flagOpen, "", nil, created, nil))

		w := serve(adminRouter(conn), adminRequest(t, http.MethodGet, "/admin/flags?status=open&limit=10", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body map[string][]Flag
		decodeBody(t, w, &body)
		require.Len(t, body["flags"], 2)
		assert.Nil(t, body["flags"][0].MessageID)
		require.NotNil(t, body["flags"][1].MessageID)
		assert.Equal(t, int64(77), *body["flags"][1].MessageID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bad status", func(t *testing.T) {
		conn, _ := newMockDB(t)
		w := serve(adminRouter(conn), adminRequest(t, http.MethodGet, "/admin/flags?status=closed", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminResolveFlag(t *testing.T) {
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	resolved := created.Add(time.Hour)

	t.Run("resolves open flag", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`UPDATE flags`).WithArgs(5, flagReviewed, "warned", 100, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(flagColumns).
				AddRow(5, 2, 3, nil, "spam", "", flagReviewed, "warned", 100, created, resolved))

		w := serve(adminRouter(conn), adminRequest(t, http.MethodPost, "/admin/flags/5/resolve",
			map[string]string{"status": flagReviewed, "note": " warned "}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var f Flag
		decodeBody(t, w, &f)
		assert.Equal(t, flagReviewed, f.Status)
		require.NotNil(t, f.ResolvedBy)
		assert.Equal(t, 100, *f.ResolvedBy)
		assert.NotNil(t, f.ResolvedAt)
	})

	t.Run("already resolved", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`UPDATE flags`).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM flags`).WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		w := serve(adminRouter(conn), adminRequest(t, http.MethodPost, "/admin/flags/5/resolve",
			map[string]string{"status": flagDismissed}))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "already_resolved", errorCode(t, w))
	})

	t.Run("missing flag", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`UPDATE flags`).WillReturnRows(sqlmock.NewRows(flagColumns))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(6).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		w := serve(adminRouter(conn), adminRequest(t, http.MethodPost, "/admin/flags/6/resolve",
			map[string]string{"status": flagDismissed}))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("cannot reopen", func(t *testing.T) {
		conn, _ := newMockDB(t)
		w := serve(adminRouter(conn), adminRequest(t, http.MethodPost, "/admin/flags/5/resolve",
			map[string]string{"status": flagOpen}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminStats(t *testing.T) {
	conn, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"users", "survey", "accepted", "pending", "flags"}).AddRow(40, 31, 6, 9, 2))

	w := serve(adminRouter(conn), adminRequest(t, http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var s adminStatsResponse
	decodeBody(t, w, &s)
	assert.Equal(t, adminStatsResponse{Users: 40, CompletedSurvey: 31, AcceptedMatches: 6, PendingMatches: 9, OpenFlags: 2}, s)
}

func TestAdminListUsers(t *testing.T) {
	conn, mock := newMockDB(t)
	joined := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM users u`).WithArgs(2, 4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "role", "status", "survey", "created_at"}).
			AddRow(5, "kim@test.local", "Kim", roleUser, statusActive, true, joined))

	w := serve(adminRouter(conn), adminRequest(t, http.MethodGet, "/admin/users?limit=2&offset=4", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Users  []adminUser `json:"users"`
		Limit  int         `json:"limit"`
		Offset int         `json:"offset"`
	}
	decodeBody(t, w, &body)
	require.Len(t, body.Users, 1)
	assert.True(t, body.Users[0].SurveyComplete)
	assert.Equal(t, 2, body.Limit)
	assert.Equal(t, 4, body.Offset)
}
