package main

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFlagHandler(t *testing.T) {
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	t.Run("flag a user", func(t *testing.T) {
		conn, mock := newMockDB(t)
		events := useMockPublisher(t)
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`INSERT INTO flags`).WithArgs(1, 2, nil, "spam", "keeps sending links").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, created))

		w := serve(createFlagHandler(conn), authedRequest(t, http.MethodPost, "/flags",
			map[string]interface{}{"targetUserId": 2, "reason": " Spam ", "details": "keeps sending links"}, 1))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var f Flag
		decodeBody(t, w, &f)
		assert.Equal(t, 11, f.ID)
		assert.Equal(t, flagOpen, f.Status)
		assert.Equal(t, "spam", f.Reason)
		assert.Equal(t, []string{EventFlagCreated}, events.Types())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("flag a message targets its sender", func(t *testing.T) {
		conn, mock := newMockDB(t)
		useMockPublisher(t)
		mock.ExpectQuery(`FROM messages m`).WithArgs(int64(40), 1).
			WillReturnRows(sqlmock.NewRows([]string{"sender_id"}).AddRow(3))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`INSERT INTO flags`).WithArgs(1, 3, int64(40), "harassment", "").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(12, created))

		w := serve(createFlagHandler(conn), authedRequest(t, http.MethodPost, "/flags",
			map[string]interface{}{"targetUserId": 9, "messageId": 40, "reason": "harassment"}, 1))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var f Flag
		decodeBody(t, w, &f)
		assert.Equal(t, 3, f.TargetUserID)
		require.NotNil(t, f.MessageID)
		assert.Equal(t, int64(40), *f.MessageID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("message outside reporter chats", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`FROM messages m`).WithArgs(int64(41), 1).
			WillReturnRows(sqlmock.NewRows([]string{"sender_id"}))

		w := serve(createFlagHandler(conn), authedRequest(t, http.MethodPost, "/flags",
			map[string]interface{}{"messageId": 41, "reason": "spam"}, 1))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "message_not_found", errorCode(t, w))
	})

	t.Run("target lookup failure is a server error", func(t *testing.T) {
		conn, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(2).WillReturnError(assert.AnError)
		w := serve(createFlagHandler(conn), authedRequest(t, http.MethodPost, "/flags",
			map[string]interface{}{"targetUserId": 2, "reason": "spam"}, 1))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "db_error", errorCode(t, w))
	})

	tests := []struct {
		name string
		body map[string]interface{}
		code string
	}{
		{"unknown reason", map[string]interface{}{"targetUserId": 2, "reason": "rude"}, "invalid_reason"},
		{"details too long", map[string]interface{}{"targetUserId": 2, "reason": "other", "details": strings.Repeat("x", maxFlagDetails+1)}, "details_too_long"},
		{"self flag", map[string]interface{}{"targetUserId": 1, "reason": "other"}, "invalid_target"},
		{"no target", map[string]interface{}{"reason": "other"}, "invalid_target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _ := newMockDB(t)
			w := serve(createFlagHandler(conn), authedRequest(t, http.MethodPost, "/flags", tt.body, 1))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}
