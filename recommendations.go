package main

import (
	"context"
	"database/sql"
	"net/http"
	"sort"

	"gitea.kood.tech/roomie/backend/compat"
)

const (
	recommendationThreshold = 40
	recommendationLimit     = 20
	candidatePoolSize       = 500
)

// RecommendationResult is one scored candidate.
type RecommendationResult struct {
	UserID       int         `json:"userId"`
	OverallScore int         `json:"overallScore"`
	Peer         peerSummary `json:"peer"`
}

func recommendationsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := currentUserID(r)
		// Gate by survey completion
		var complete bool
		err := db.QueryRowContext(r.Context(),
			"SELECT survey_completed_at IS NOT NULL FROM profiles WHERE user_id = $1", userID).Scan(&complete)
		if err == sql.ErrNoRows || (err == nil && !complete) {
			writeError(w, http.StatusForbidden, "incomplete_survey")
			return
		} else if err != nil {
			logger.Errorw("check survey completion", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		results, err := getRecommendations(r.Context(), db, userID)
		if err != nil {
			logger.Errorw("build recommendations", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "recommendation_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string][]RecommendationResult{"recommendations": results})
	})
}

// candidateIDs lists users the caller could still be recommended: survey done,
// active, not the caller, no match row in any state, not dismissed, not blocked.
func candidateIDs(ctx context.Context, db *sql.DB, me int) ([]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.user_id
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id <> $1
		  AND u.status = 'active'
		  AND p.survey_completed_at IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM matches m
			WHERE (m.user1_id = $1 AND m.user2_id = p.user_id)
			   OR (m.user2_id = $1 AND m.user1_id = p.user_id)
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM dismissed_recommendations d
			WHERE d.user_id = $1 AND d.dismissed_user_id = p.user_id
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM blocks b
			WHERE (b.blocker_id = $1 AND b.blocked_id = p.user_id)
			   OR (b.blocker_id = p.user_id AND b.blocked_id = $1)
		  )
		ORDER BY p.survey_completed_at DESC, p.user_id
		LIMIT $2
	`, me, candidatePoolSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// getRecommendations scores every candidate against the caller and keeps the
// best ones above the threshold.
func getRecommendations(ctx context.Context, db *sql.DB, me int) ([]RecommendationResult, error) {
	ids, err := candidateIDs(ctx, db, me)
	if err != nil {
		return nil, err
	}
	profiles, err := profilesFor(ctx, db, append([]int{me}, ids...))
	if err != nil {
		return nil, err
	}
	mine, ok := profiles[me]
	if !ok {
		return nil, errProfileNotFound
	}
	return rankCandidates(mine, ids, profiles), nil
}

func rankCandidates(mine *compat.UserProfile, ids []int, profiles map[int]*compat.UserProfile) []RecommendationResult {
	results := make([]RecommendationResult, 0, len(ids))
	for _, id := range ids {
		peer, ok := profiles[id]
		if !ok {
			continue
		}
		score, err := scoringEngine.Score(mine, peer)
		if err != nil {
			logger.Warnw("skip candidate with invalid profile", "candidate_id", id, "error", err)
			continue
		}
		if score < recommendationThreshold {
			continue
		}
		results = append(results, RecommendationResult{
			UserID:       id,
			OverallScore: score,
			Peer:         newPeerSummary(peer),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].OverallScore != results[j].OverallScore {
			return results[i].OverallScore > results[j].OverallScore
		}
		return results[i].UserID < results[j].UserID
	})
	if len(results) > recommendationLimit {
		results = results[:recommendationLimit]
	}
	return results
}

// POST /recommendations/{id}/dismiss
func dismissRecommendationHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		parts := pathParts(r)
		if len(parts) != 3 || parts[0] != "recommendations" || parts[2] != "dismiss" {
			http.NotFound(w, r)
			return
		}
		id, ok := pathID(parts, 1)
		userID := currentUserID(r)
		if !ok || id == userID {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		exists, err := userExists(r.Context(), db, id)
		if err != nil {
			logger.Errorw("check dismiss target", "user_id", userID, "target_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		// Insert dismissal (ignore duplicates)
		_, err = db.ExecContext(r.Context(),
			`INSERT INTO dismissed_recommendations (user_id, dismissed_user_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, userID, id)
		if err != nil {
			logger.Errorw("dismiss recommendation", "user_id", userID, "dismissed_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "dismiss_error")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]bool{"dismissed": true})
	})
}
