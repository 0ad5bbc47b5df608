package main

import (
	"database/sql"
	"net/http"
	"time"
)

// ChatPeerSummary represents a summary of a chat peer with recent activity
type ChatPeerSummary struct {
	UserID         int        `json:"userId"`
	UserName       string     `json:"userName"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	UnreadMessages int        `json:"unreadMessages"`
	IsOnline       bool       `json:"isOnline"`
}

// GET /chats/summary
// One entry per accepted match with the latest message time and unread count,
// most recently active first.
func chatSummaryHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)

		// 1) accepted = peer ids of accepted, unblocked matches
		// 2) chat_pairs = the chat row for each peer (NULL before the first message)
		// 3) unreads = unread messages the peer sent me
		const q = `
WITH accepted AS (
  SELECT CASE WHEN m.user1_id = $1 THEN m.user2_id ELSE m.user1_id END AS peer_id
  FROM matches m
  WHERE m.status = 'accepted' AND (m.user1_id = $1 OR m.user2_id = $1)
),
visible AS (
  SELECT a.peer_id FROM accepted a
  WHERE NOT EXISTS (
    SELECT 1 FROM blocks b
    WHERE (b.blocker_id = $1 AND b.blocked_id = a.peer_id)
       OR (b.blocker_id = a.peer_id AND b.blocked_id = $1)
  )
),
chat_pairs AS (
  SELECT v.peer_id, ch.id AS chat_id, ch.last_message_at
  FROM visible v
  LEFT JOIN chats ch
    ON ch.user1_id = LEAST($1::int, v.peer_id)
   AND ch.user2_id = GREATEST($1::int, v.peer_id)
),
unreads AS (
  SELECT cp.peer_id,
         COALESCE(SUM(CASE WHEN m.is_read = FALSE AND m.sender_id = cp.peer_id THEN 1 ELSE 0 END), 0) AS unread_count
  FROM chat_pairs cp
  LEFT JOIN messages m ON m.chat_id = cp.chat_id
  GROUP BY cp.peer_id
)
SELECT
  u.id,
  COALESCE(NULLIF(p.display_name, ''), CONCAT('User ', u.id::text)),
  cp.last_message_at,
  COALESCE(ur.unread_count, 0)
FROM visible v
JOIN users u            ON u.id = v.peer_id
LEFT JOIN profiles p    ON p.user_id = u.id
LEFT JOIN chat_pairs cp ON cp.peer_id = v.peer_id
LEFT JOIN unreads ur    ON ur.peer_id = v.peer_id
ORDER BY COALESCE(cp.last_message_at, to_timestamp(0)) DESC, u.id ASC`

		rows, err := db.QueryContext(r.Context(), q, userID)
		if err != nil {
			logger.Errorw("query chat summary", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		defer rows.Close()

		summaries := make([]ChatPeerSummary, 0, 32)
		for rows.Next() {
			var s ChatPeerSummary
			if err := rows.Scan(&s.UserID, &s.UserName, &s.LastMessageAt, &s.UnreadMessages); err != nil {
				logger.Errorw("scan chat summary", "user_id", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			summaries = append(summaries, s)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		for i := range summaries {
			summaries[i].IsOnline = isOnline(r, summaries[i].UserID)
		}
		writeJSON(w, http.StatusOK, summaries)
	})
}

// POST /chats/read?peer_id=123
func chatsMarkReadHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := currentUserID(r)
		peerID := queryInt(r, "peer_id", 0, 1, int(^uint32(0)>>1))
		if peerID == 0 {
			writeError(w, http.StatusBadRequest, "invalid_peer_id")
			return
		}

		lo, hi := orderedPair(userID, peerID)
		var chatID int
		err := db.QueryRowContext(r.Context(), `SELECT id FROM chats WHERE user1_id = $1 AND user2_id = $2`, lo, hi).Scan(&chatID)
		if err == sql.ErrNoRows {
			// No chat -> nothing to mark
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			logger.Errorw("resolve chat", "user_id", userID, "peer_id", peerID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if err := markChatRead(r.Context(), db, chatID, userID); err != nil {
			logger.Errorw("mark chat read", "chat_id", chatID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// isOnline asks the presence store, falling back to the local websocket hub.
func isOnline(r *http.Request, userID int) bool {
	if chatHub.connected(userID) {
		return true
	}
	if presence == nil {
		return false
	}
	online, err := presence.IsOnline(r.Context(), userID)
	if err != nil {
		logger.Warnw("presence lookup", "user_id", userID, "error", err)
		return false
	}
	return online
}
