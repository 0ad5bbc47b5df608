package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	flagOpen      = "open"
	flagReviewed  = "reviewed"
	flagDismissed = "dismissed"

	maxFlagDetails = 1000
)

// flagReasons is the fixed list a reporter can pick from.
var flagReasons = map[string]struct{}{
	"harassment":    {},
	"spam":          {},
	"fake_profile":  {},
	"inappropriate": {},
	"safety":        {},
	"other":         {},
}

// Flag is a moderation report about a user or one of their messages.
type Flag struct {
	ID             int        `json:"id"`
	ReporterID     int        `json:"reporterId"`
	TargetUserID   int        `json:"targetUserId"`
	MessageID      *int64     `json:"messageId,omitempty"`
	Reason         string     `json:"reason"`
	Details        string     `json:"details"`
	Status         string     `json:"status"`
	ResolutionNote string     `json:"resolutionNote,omitempty"`
	ResolvedBy     *int       `json:"resolvedBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

type flagRequest struct {
	TargetUserID int    `json:"targetUserId"`
	MessageID    *int64 `json:"messageId"`
	Reason       string `json:"reason"`
	Details      string `json:"details"`
}

// POST /flags
// When messageId is given the message must belong to a chat the reporter
// is part of, and its sender becomes the target.
func createFlagHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		var req flagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		req.Reason = strings.ToLower(strings.TrimSpace(req.Reason))
		req.Details = strings.TrimSpace(req.Details)
		if _, ok := flagReasons[req.Reason]; !ok {
			writeError(w, http.StatusBadRequest, "invalid_reason")
			return
		}
		if len(req.Details) > maxFlagDetails {
			writeError(w, http.StatusBadRequest, "details_too_long")
			return
		}
		me := currentUserID(r)

		if req.MessageID != nil {
			var sender int
			err := db.QueryRowContext(r.Context(), `
				SELECT m.sender_id
				FROM messages m
				JOIN chats c ON c.id = m.chat_id
				WHERE m.id = $1 AND (c.user1_id = $2 OR c.user2_id = $2)
			`, *req.MessageID, me).Scan(&sender)
			if err == sql.ErrNoRows {
				writeError(w, http.StatusNotFound, "message_not_found")
				return
			} else if err != nil {
				logger.Errorw("resolve flagged message", "message_id", *req.MessageID, "error", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			req.TargetUserID = sender
		}
		if req.TargetUserID <= 0 || req.TargetUserID == me {
			writeError(w, http.StatusBadRequest, "invalid_target")
			return
		}

		exists, err := userExists(r.Context(), db, req.TargetUserID)
		if err != nil {
			logger.Errorw("check flag target", "reporter_id", me, "target_id", req.TargetUserID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		f := Flag{
			ReporterID:   me,
			TargetUserID: req.TargetUserID,
			MessageID:    req.MessageID,
			Reason:       req.Reason,
			Details:      req.Details,
			Status:       flagOpen,
		}
		err = db.QueryRowContext(r.Context(), `
			INSERT INTO flags (reporter_id, target_user_id, message_id, reason, details)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, me, f.TargetUserID, f.MessageID, f.Reason, f.Details).Scan(&f.ID, &f.CreatedAt)
		if err != nil {
			logger.Errorw("create flag", "reporter_id", me, "target_id", f.TargetUserID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		publishEvent(Event{
			Type:    EventFlagCreated,
			ActorID: me,
			Payload: map[string]interface{}{"flagId": f.ID, "targetUserId": f.TargetUserID, "reason": f.Reason},
		})
		writeJSON(w, http.StatusCreated, f)
	})
}

const flagSelect = `
	SELECT id, reporter_id, target_user_id, message_id, reason, details, status,
	       resolution_note, resolved_by, created_at, resolved_at
	FROM flags`

func scanFlag(row rowScanner) (Flag, error) {
	var f Flag
	var msgID sql.NullInt64
	var resolvedBy sql.NullInt64
	var resolvedAt sql.NullTime
	err := row.Scan(&f.ID, &f.ReporterID, &f.TargetUserID, &msgID, &f.Reason, &f.Details, &f.Status,
		&f.ResolutionNote, &resolvedBy, &f.CreatedAt, &resolvedAt)
	if err != nil {
		return f, err
	}
	if msgID.Valid {
		f.MessageID = &msgID.Int64
	}
	if resolvedBy.Valid {
		id := int(resolvedBy.Int64)
		f.ResolvedBy = &id
	}
	if resolvedAt.Valid {
		f.ResolvedAt = &resolvedAt.Time
	}
	return f, nil
}
