package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineTTL = 90 * time.Second

// PresenceStore records and answers "is this user online right now".
type PresenceStore interface {
	Touch(ctx context.Context, userID int) error
	IsOnline(ctx context.Context, userID int) (bool, error)
}

var presence PresenceStore

// redisPresence keeps one expiring key per online user.
type redisPresence struct {
	client *redis.Client
}

func newRedisPresence(url string) (*redisPresence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &redisPresence{client: client}, nil
}

func presenceKey(userID int) string {
	return "presence:" + strconv.Itoa(userID)
}

func (p *redisPresence) Touch(ctx context.Context, userID int) error {
	return p.client.Set(ctx, presenceKey(userID), time.Now().Unix(), onlineTTL).Err()
}

func (p *redisPresence) IsOnline(ctx context.Context, userID int) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *redisPresence) Close() error {
	return p.client.Close()
}

// dbPresence uses users.last_online when Redis is not configured.
type dbPresence struct {
	db *sql.DB
}

func (p *dbPresence) Touch(ctx context.Context, userID int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE users SET last_online = NOW() WHERE id = $1`, userID)
	return err
}

func (p *dbPresence) IsOnline(ctx context.Context, userID int) (bool, error) {
	var online bool
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_online > NOW() - INTERVAL '90 seconds', FALSE) AS online
		FROM users
		WHERE id = $1
	`, userID).Scan(&online)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return online, err
}

// POST /me/ping marks the caller online.
func mePingHandler() http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := currentUserID(r)
		if err := presence.Touch(r.Context(), userID); err != nil {
			logger.Warnw("presence touch", "user_id", userID, "error", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
