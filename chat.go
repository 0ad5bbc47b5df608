package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageLength = 2000
	wsReadTimeout    = 60 * time.Second
	wsWriteTimeout   = 10 * time.Second
	wsPingInterval   = 30 * time.Second
)

var (
	errNotMatched = errors.New("no accepted match")
	errBlocked    = errors.New("users blocked")
)

// ChatMessage is both the inbound frame ("message" or "typing") and a stored message.
type ChatMessage struct {
	ID     int64     `json:"id"`
	Type   string    `json:"type"`
	ChatID int       `json:"chatId"`
	From   int       `json:"from"`
	To     int       `json:"to,omitempty"`
	Body   string    `json:"body,omitempty"`
	SentAt time.Time `json:"sentAt"`
}

// ServerEvent is every frame the server writes: message, typing, info or error.
type ServerEvent struct {
	Type string `json:"type"`
	From int    `json:"from,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Client is one open socket.
type Client struct {
	userID int
	conn   *websocket.Conn
	send   chan ServerEvent
	db     *sql.DB
}

// Hub fans events out to every open connection of a user.
type Hub struct {
	clientsByUser map[int]map[*Client]bool
	mu            sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clientsByUser: make(map[int]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*Client]bool)
	}
	h.clientsByUser[c.userID][c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
}

func (h *Hub) sendToUser(userID int, evt ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByUser[userID] {
		select {
		case c.send <- evt:
		default:
			// slow reader, drop
		}
	}
}

// connected reports whether userID has at least one open socket.
func (h *Hub) connected(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userID]) > 0
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return originAllowed(appConfig.CORSOrigins, r.Header.Get("Origin")) },
}

// global hub
var chatHub = newHub()

// GET /ws/chat?token=...
func wsChatHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot set headers on the upgrade request, so the token may come in the query.
		userID, _, ok := getUserIDFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warnw("websocket upgrade", "user_id", userID, "error", err)
			return
		}

		client := &Client{
			userID: userID,
			conn:   conn,
			send:   make(chan ServerEvent, 16),
			db:     db,
		}
		chatHub.register(client)
		if presence != nil {
			_ = presence.Touch(r.Context(), userID)
		}

		client.send <- ServerEvent{Type: "info", Data: "connected"}

		go clientWriter(client)
		clientReader(client)
	}
}

func clientReader(c *Client) {
	defer func() {
		chatHub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.send <- ServerEvent{Type: "error", Data: "invalid message format"}
			continue
		}

		switch msg.Type {
		case "message":
			c.handleMessage(msg)
		case "typing":
			// Typing is relayed only between matched users
			if err := canMessage(context.Background(), c.db, c.userID, msg.To); err == nil {
				chatHub.sendToUser(msg.To, ServerEvent{Type: "typing", From: c.userID})
			}
		default:
			logger.Debugw("unknown chat message type", "user_id", c.userID, "type", msg.Type)
			c.send <- ServerEvent{Type: "error", Data: "unknown message type"}
		}
	}
}

func (c *Client) handleMessage(msg ChatMessage) {
	body := strings.TrimSpace(msg.Body)
	if body == "" || len(body) > maxMessageLength {
		c.send <- ServerEvent{Type: "error", Data: "invalid message body"}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, chatID, ts, err := saveChatMsg(ctx, c.db, c.userID, msg.To, body)
	if err != nil {
		if !errors.Is(err, errNotMatched) && !errors.Is(err, errBlocked) {
			logger.Errorw("save chat message", "from", c.userID, "to", msg.To, "error", err)
		}
		c.send <- ServerEvent{Type: "error", Data: "cannot send message"}
		return
	}

	out := ServerEvent{
		Type: "message",
		From: c.userID,
		Data: ChatMessage{
			ID:     id,
			Type:   "message",
			ChatID: chatID,
			From:   c.userID,
			To:     msg.To,
			Body:   body,
			SentAt: ts,
		},
	}
	chatHub.sendToUser(msg.To, out)
	chatHub.sendToUser(c.userID, out)
}

func clientWriter(c *Client) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// canMessage returns nil when from and to share an accepted match and neither blocked the other.
func canMessage(ctx context.Context, db *sql.DB, from, to int) error {
	if from == to || to <= 0 {
		return errNotMatched
	}
	lo, hi := orderedPair(from, to)
	var matched, blocked bool
	err := db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM matches WHERE user1_id = $1 AND user2_id = $2 AND status = 'accepted'),
			EXISTS (SELECT 1 FROM blocks
			        WHERE (blocker_id = $1 AND blocked_id = $2) OR (blocker_id = $2 AND blocked_id = $1))
	`, lo, hi).Scan(&matched, &blocked)
	if err != nil {
		return err
	}
	if blocked {
		return errBlocked
	}
	if !matched {
		return errNotMatched
	}
	return nil
}

// saveChatMsg persists a message between matched users and bumps the chat's unread state.
func saveChatMsg(ctx context.Context, db *sql.DB, fromUserID, toUserID int, content string) (int64, int, time.Time, error) {
	if err := canMessage(ctx, db, fromUserID, toUserID); err != nil {
		return 0, 0, time.Time{}, err
	}

	var (
		msgID     int64
		chatID    int
		createdAt time.Time
	)
	lo, hi := orderedPair(fromUserID, toUserID)
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		// Upsert keeps concurrent first messages on one chat row
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO chats (user1_id, user2_id)
			VALUES ($1, $2)
			ON CONFLICT (user1_id, user2_id) DO UPDATE SET user1_id = EXCLUDED.user1_id
			RETURNING id
		`, lo, hi).Scan(&chatID); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO messages (chat_id, sender_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		`, chatID, fromUserID, content).Scan(&msgID, &createdAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE chats c
			SET last_message_at = $3,
				unread_for_user1 = CASE WHEN $2 = c.user2_id THEN TRUE ELSE unread_for_user1 END,
				unread_for_user2 = CASE WHEN $2 = c.user1_id THEN TRUE ELSE unread_for_user2 END
			WHERE c.id = $1
		`, chatID, fromUserID, createdAt)
		return err
	})
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	return msgID, chatID, createdAt, nil
}

func getChatMessages(ctx context.Context, db *sql.DB, userID, otherUserID, limit int, before *time.Time) ([]ChatMessage, error) {
	lo, hi := orderedPair(userID, otherUserID)
	var chatID int
	err := db.QueryRowContext(ctx, `SELECT id FROM chats WHERE user1_id = $1 AND user2_id = $2`, lo, hi).Scan(&chatID)
	if err == sql.ErrNoRows {
		return []ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	var beforeArg interface{}
	if before != nil {
		beforeArg = *before
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, sender_id, content, created_at
		FROM messages
		WHERE chat_id = $1
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, chatID, beforeArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]ChatMessage, 0, limit)
	for rows.Next() {
		m := ChatMessage{Type: "message", ChatID: chatID}
		if err := rows.Scan(&m.ID, &m.From, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		if m.From == userID {
			m.To = otherUserID
		} else {
			m.To = userID
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := markChatRead(ctx, db, chatID, userID); err != nil {
		logger.Warnw("mark chat read", "chat_id", chatID, "user_id", userID, "error", err)
	}
	return msgs, nil
}

// markChatRead marks the peer's messages as read and clears the caller's unread flag.
func markChatRead(ctx context.Context, db *sql.DB, chatID, userID int) error {
	if _, err := db.ExecContext(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE chat_id = $1 AND sender_id <> $2 AND is_read IS FALSE
	`, chatID, userID); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		UPDATE chats c
		SET unread_for_user1 = CASE WHEN $2 = c.user1_id THEN FALSE ELSE unread_for_user1 END,
			unread_for_user2 = CASE WHEN $2 = c.user2_id THEN FALSE ELSE unread_for_user2 END
		WHERE c.id = $1
	`, chatID, userID)
	return err
}

// GET /chats/{peerId}/messages?limit=50&before=<RFC3339>
// Newest first. Reading the history marks the peer's messages read.
func getChatHistoryHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r)
		if len(parts) != 3 || parts[0] != "chats" || parts[2] != "messages" {
			http.NotFound(w, r)
			return
		}
		otherID, ok := pathID(parts, 1)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_user_id")
			return
		}
		userID := currentUserID(r)

		blocked, err := isBlockedEitherWay(r.Context(), db, userID, otherID)
		if err != nil {
			logger.Errorw("check block", "user_id", userID, "peer_id", otherID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if blocked {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		limit := queryInt(r, "limit", 50, 1, 200)
		var beforePtr *time.Time
		if s := r.URL.Query().Get("before"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_before")
				return
			}
			beforePtr = &t
		}

		msgs, err := getChatMessages(r.Context(), db, userID, otherID, limit, beforePtr)
		if err != nil {
			logger.Errorw("fetch chat messages", "user_id", userID, "peer_id", otherID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	})
}
