package main

import (
	"database/sql"
	"net/http"
	"time"
)

type blockedUser struct {
	UserID      int       `json:"userId"`
	DisplayName string    `json:"displayName"`
	BlockedAt   time.Time `json:"blockedAt"`
}

// blocksRouter handles /blocks and /blocks/{userId}.
func blocksRouter(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r)
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			listBlocks(db, w, r)
		case len(parts) == 2 && r.Method == http.MethodPost:
			blockUser(db, w, r, parts)
		case len(parts) == 2 && r.Method == http.MethodDelete:
			unblockUser(db, w, r, parts)
		case len(parts) <= 2:
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		default:
			http.NotFound(w, r)
		}
	})
}

// blockUser records the block and closes any open match between the two users.
func blockUser(db *sql.DB, w http.ResponseWriter, r *http.Request, parts []string) {
	me := currentUserID(r)
	target, ok := pathID(parts, 1)
	if !ok || target == me {
		writeError(w, http.StatusBadRequest, "invalid_target")
		return
	}
	exists, err := userExists(r.Context(), db, target)
	if err != nil {
		logger.Errorw("check block target", "user_id", me, "target_id", target, "error", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	err = withTx(r.Context(), db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(r.Context(), `
			INSERT INTO blocks (blocker_id, blocked_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, me, target); err != nil {
			return err
		}
		lo, hi := orderedPair(me, target)
		_, err := tx.ExecContext(r.Context(), `
			UPDATE matches
			SET status = CASE status WHEN 'accepted' THEN 'unmatched' ELSE 'cancelled' END,
			    updated_at = NOW()
			WHERE user1_id = $1 AND user2_id = $2 AND status IN ('pending', 'accepted')
		`, lo, hi)
		return err
	})
	if err != nil {
		logger.Errorw("block user", "user_id", me, "target_id", target, "error", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"blocked": true})
}

func unblockUser(db *sql.DB, w http.ResponseWriter, r *http.Request, parts []string) {
	me := currentUserID(r)
	target, ok := pathID(parts, 1)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	res, err := db.ExecContext(r.Context(), `DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`, me, target)
	if err != nil {
		logger.Errorw("unblock user", "user_id", me, "target_id", target, "error", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listBlocks(db *sql.DB, w http.ResponseWriter, r *http.Request) {
	me := currentUserID(r)
	rows, err := db.QueryContext(r.Context(), `
		SELECT b.blocked_id, COALESCE(p.display_name, ''), b.created_at
		FROM blocks b
		LEFT JOIN profiles p ON p.user_id = b.blocked_id
		WHERE b.blocker_id = $1
		ORDER BY b.created_at DESC, b.blocked_id
	`, me)
	if err != nil {
		logger.Errorw("list blocks", "user_id", me, "error", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	blocked := make([]blockedUser, 0)
	for rows.Next() {
		var b blockedUser
		if err := rows.Scan(&b.UserID, &b.DisplayName, &b.BlockedAt); err != nil {
			logger.Errorw("scan block", "user_id", me, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		blocked = append(blocked, b)
	}
	writeJSON(w, http.StatusOK, map[string][]blockedUser{"blocked": blocked})
}
