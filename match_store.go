package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gitea.kood.tech/roomie/backend/compat"
	"github.com/lib/pq"
)

var errMatchNotFound = errors.New("match not found")

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const matchSelect = `
	SELECT id, user1_id, user2_id, status, requested_by, ai_report, icebreakers, created_at, updated_at
	FROM matches`

func scanMatch(row rowScanner) (compat.Match, error) {
	var m compat.Match
	var report sql.NullString
	var icebreakers pq.StringArray
	err := row.Scan(&m.ID, &m.User1ID, &m.User2ID, &m.Status, &m.RequestedBy,
		&report, &icebreakers, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	if report.Valid {
		m.AIReport = &report.String
	}
	m.Icebreakers = []string(icebreakers)
	return m, nil
}

// loadMatch fetches a match by id. With forUpdate it takes a row lock,
// so q must then be a transaction.
func loadMatch(ctx context.Context, q queryRower, matchID int, forUpdate bool) (compat.Match, error) {
	query := matchSelect + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMatch(q.QueryRowContext(ctx, query, matchID))
	if err == sql.ErrNoRows {
		return m, errMatchNotFound
	}
	if err != nil {
		return m, fmt.Errorf("load match %d: %w", matchID, err)
	}
	return m, nil
}

// loadPairForUpdate returns the match row between two users (stored with
// user1_id < user2_id) and locks it. Returns (nil, nil) when none exists.
func loadPairForUpdate(ctx context.Context, tx *sql.Tx, a, b int) (*compat.Match, error) {
	lo, hi := orderedPair(a, b)
	m, err := scanMatch(tx.QueryRowContext(ctx, matchSelect+`
		WHERE user1_id = $1 AND user2_id = $2
		FOR UPDATE`, lo, hi))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func orderedPair(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}
