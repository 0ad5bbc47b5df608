package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"gitea.kood.tech/roomie/backend/compat"
	"golang.org/x/sync/errgroup"
)

// scoringEngine is swapped in main when SCORING_WEIGHTS_FILE is set.
var scoringEngine = compat.DefaultEngine

// TERMINOLOGY
// request: create pending (or auto-accept if the other side already asked).
// accept (by addressee): pending → accepted.
// decline (by addressee): pending → declined.
// cancel (by requester): pending → cancelled.
// unmatch (either party): accepted → unmatched.
type transition struct {
	name  string
	from  string
	to    string
	actor string // "requester" | "addressee" | "either"
}

var (
	acceptTransition  = transition{name: "accept", from: compat.MatchPending, to: compat.MatchAccepted, actor: "addressee"}
	declineTransition = transition{name: "decline", from: compat.MatchPending, to: compat.MatchDeclined, actor: "addressee"}
	cancelTransition  = transition{name: "cancel", from: compat.MatchPending, to: compat.MatchCancelled, actor: "requester"}
	unmatchTransition = transition{name: "unmatch", from: compat.MatchAccepted, to: compat.MatchUnmatched, actor: "either"}
)

func (t transition) allows(m compat.Match, me int) bool {
	switch t.actor {
	case "requester":
		return m.RequestedBy == me
	case "addressee":
		return m.RequestedBy != me
	}
	return true
}

// matchesRouter dispatches everything under /matches.
//
//	GET    /matches                 accepted matches with scores
//	POST   /matches                 {"userId": n} request a match
//	GET    /matches/requests        incoming pending requests
//	POST   /matches/{id}/accept|decline|cancel
//	DELETE /matches/{id}            unmatch
//	GET    /matches/{id}/comparison
//	POST   /matches/{id}/report
func matchesRouter(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r)
		if len(parts) == 0 || parts[0] != "matches" {
			http.NotFound(w, r)
			return
		}
		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			listMatchesHandler(db).ServeHTTP(w, r)
		case len(parts) == 1 && r.Method == http.MethodPost:
			requestMatchHandler(db).ServeHTTP(w, r)
		case len(parts) == 2 && parts[1] == "requests" && r.Method == http.MethodGet:
			matchRequestsHandler(db).ServeHTTP(w, r)
		case len(parts) == 2 && r.Method == http.MethodDelete:
			transitionHandler(db, unmatchTransition).ServeHTTP(w, r)
		case len(parts) == 3 && r.Method == http.MethodPost:
			switch parts[2] {
			case "accept":
				transitionHandler(db, acceptTransition).ServeHTTP(w, r)
			case "decline":
				transitionHandler(db, declineTransition).ServeHTTP(w, r)
			case "cancel":
				transitionHandler(db, cancelTransition).ServeHTTP(w, r)
			case "report":
				matchReportHandler(db).ServeHTTP(w, r)
			default:
				http.NotFound(w, r)
			}
		case len(parts) == 3 && parts[2] == "comparison" && r.Method == http.MethodGet:
			comparisonHandler(db).ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}

// POST /matches {"userId": n}
// Creates a pending request from the caller to userId. If userId already
// asked the caller, the match is accepted instead.
func requestMatchHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID int `json:"userId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		me := currentUserID(r)
		targetID := req.UserID
		if targetID <= 0 || targetID == me {
			writeError(w, http.StatusBadRequest, "invalid_target")
			return
		}

		var exists bool
		if err := db.QueryRowContext(r.Context(), `
			SELECT EXISTS (
				SELECT 1 FROM users u
				JOIN profiles p ON p.user_id = u.id
				WHERE u.id = $1 AND u.status = 'active'
			)
		`, targetID).Scan(&exists); err != nil {
			logger.Errorw("check match target", "user_id", me, "target_id", targetID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		blocked, err := isBlockedEitherWay(r.Context(), db, me, targetID)
		if err != nil {
			logger.Errorw("check block", "user_id", me, "target_id", targetID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if blocked {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		var result compat.Match
		conflict := false
		err = withTx(r.Context(), db, func(tx *sql.Tx) error {
			row, err := loadPairForUpdate(r.Context(), tx, me, targetID)
			if err != nil {
				return err
			}
			if row == nil {
				lo, hi := orderedPair(me, targetID)
				result, err = scanMatch(tx.QueryRowContext(r.Context(), `
					INSERT INTO matches (user1_id, user2_id, status, requested_by)
					VALUES ($1, $2, 'pending', $3)
					RETURNING id, user1_id, user2_id, status, requested_by, ai_report, icebreakers, created_at, updated_at
				`, lo, hi, me))
				return err
			}

			switch {
			case row.Status == compat.MatchPending && row.RequestedBy == targetID:
				// They asked first: mutual interest accepts the match
				result, err = scanMatch(tx.QueryRowContext(r.Context(), `
					UPDATE matches SET status = 'accepted', updated_at = NOW()
					WHERE id = $1
					RETURNING id, user1_id, user2_id, status, requested_by, ai_report, icebreakers, created_at, updated_at
				`, row.ID))
				return err
			case row.Status == compat.MatchPending, row.Status == compat.MatchAccepted:
				result = *row
				return nil
			default:
				conflict = true
				return nil
			}
		})
		if err != nil {
			logger.Errorw("request match", "user_id", me, "target_id", targetID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if conflict {
			writeError(w, http.StatusConflict, "invalid_state")
			return
		}
		if result.Status == compat.MatchAccepted {
			publishEvent(Event{Type: EventMatchAccepted, ActorID: me, Payload: map[string]int{"matchId": result.ID}})
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// transitionHandler applies one state change to /matches/{id}.
func transitionHandler(db *sql.DB, t transition) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		matchID, ok := pathID(pathParts(r), 1)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		me := currentUserID(r)

		var result compat.Match
		status, code := 0, ""
		err := withTx(r.Context(), db, func(tx *sql.Tx) error {
			m, err := loadMatch(r.Context(), tx, matchID, true)
			if errors.Is(err, errMatchNotFound) {
				status, code = http.StatusNotFound, "not_found"
				return nil
			}
			if err != nil {
				return err
			}
			if !m.Involves(me) || !t.allows(m, me) {
				status, code = http.StatusNotFound, "not_found"
				return nil
			}
			if m.Status == t.to {
				result = m
				return nil
			}
			if m.Status != t.from {
				status, code = http.StatusConflict, "invalid_state"
				return nil
			}
			result, err = scanMatch(tx.QueryRowContext(r.Context(), `
				UPDATE matches SET status = $2, updated_at = NOW()
				WHERE id = $1
				RETURNING id, user1_id, user2_id, status, requested_by, ai_report, icebreakers, created_at, updated_at
			`, m.ID, t.to))
			return err
		})
		if err != nil {
			logger.Errorw("match transition", "transition", t.name, "match_id", matchID, "user_id", me, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if code != "" {
			writeError(w, status, code)
			return
		}
		if t == acceptTransition {
			publishEvent(Event{Type: EventMatchAccepted, ActorID: me, Payload: map[string]int{"matchId": result.ID}})
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// GET /matches/requests lists pending requests addressed to the caller.
func matchRequestsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me := currentUserID(r)
		rows, err := db.QueryContext(r.Context(), matchSelect+`
			WHERE status = 'pending' AND requested_by <> $1 AND (user1_id = $1 OR user2_id = $1)
			ORDER BY created_at DESC, id DESC
		`, me)
		if err != nil {
			logger.Errorw("list match requests", "user_id", me, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		defer rows.Close()

		requests := make([]compat.Match, 0)
		for rows.Next() {
			m, err := scanMatch(rows)
			if err != nil {
				logger.Errorw("scan match request", "user_id", me, "error", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			requests = append(requests, m)
		}
		writeJSON(w, http.StatusOK, map[string][]compat.Match{"requests": requests})
	})
}

// matchSummary is one entry of the match list.
type matchSummary struct {
	Match        compat.Match `json:"match"`
	Peer         peerSummary  `json:"peer"`
	OverallScore int          `json:"overallScore"`
}

type peerSummary struct {
	ID          int      `json:"id"`
	DisplayName string   `json:"displayName"`
	Traits      []string `json:"traits"`
	Interests   []string `json:"interests"`
}

// GET /matches lists accepted matches with their overall score.
func listMatchesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me := currentUserID(r)
		rows, err := db.QueryContext(r.Context(), matchSelect+`
			WHERE status = 'accepted' AND (user1_id = $1 OR user2_id = $1)
			ORDER BY updated_at DESC, id DESC
		`, me)
		if err != nil {
			logger.Errorw("list matches", "user_id", me, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		var matches []compat.Match
		for rows.Next() {
			m, err := scanMatch(rows)
			if err != nil {
				rows.Close()
				logger.Errorw("scan match", "user_id", me, "error", err)
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			matches = append(matches, m)
		}
		rows.Close()

		ids := []int{me}
		for _, m := range matches {
			ids = append(ids, m.Peer(me))
		}
		profiles, err := profilesFor(r.Context(), db, ids)
		if err != nil {
			logger.Errorw("load match profiles", "user_id", me, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		mine, ok := profiles[me]
		if !ok {
			writeError(w, http.StatusNotFound, "profile_not_found")
			return
		}

		out := make([]matchSummary, 0, len(matches))
		for _, m := range matches {
			peer, ok := profiles[m.Peer(me)]
			if !ok {
				continue
			}
			score, err := scoringEngine.Score(mine, peer)
			if err != nil {
				logger.Warnw("score match", "match_id", m.ID, "error", err)
				continue
			}
			out = append(out, matchSummary{
				Match:        m,
				Peer:         newPeerSummary(peer),
				OverallScore: score,
			})
		}
		writeJSON(w, http.StatusOK, map[string][]matchSummary{"matches": out})
	})
}

func newPeerSummary(p *compat.UserProfile) peerSummary {
	return peerSummary{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Traits:      compat.DeriveTraits(p),
		Interests:   compat.NormalizeInterests(p.Interests),
	}
}

// loadComparison resolves the match and both profiles for the caller and
// builds the comparison. The returned status/code are set when the caller
// should get a client error instead.
func loadComparison(ctx context.Context, db *sql.DB, matchID, me int) (*compat.ComparisonData, int, string, error) {
	var (
		match compat.Match
		mine  *compat.UserProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		match, err = loadMatch(gctx, db, matchID, false)
		return err
	})
	g.Go(func() error {
		var err error
		mine, err = loadProfile(gctx, db, me)
		return err
	})
	if err := g.Wait(); err != nil {
		if isNotFound(err) {
			return nil, http.StatusNotFound, "not_found", nil
		}
		return nil, 0, "", err
	}
	if !match.Involves(me) {
		return nil, http.StatusNotFound, "not_found", nil
	}

	peerID := match.Peer(me)
	blocked, err := isBlockedEitherWay(ctx, db, me, peerID)
	if err != nil {
		return nil, 0, "", err
	}
	if blocked {
		return nil, http.StatusNotFound, "not_found", nil
	}
	peer, err := loadProfile(ctx, db, peerID)
	if errors.Is(err, errProfileNotFound) {
		return nil, http.StatusNotFound, "not_found", nil
	} else if err != nil {
		return nil, 0, "", err
	}

	mine.Email = ""
	peer.Email = ""
	cmp, err := scoringEngine.BuildComparison(mine, peer, match)
	if err != nil {
		var inv *compat.InvalidInputError
		if errors.As(err, &inv) {
			return nil, http.StatusUnprocessableEntity, "invalid_profile", nil
		}
		return nil, 0, "", err
	}
	return cmp, 0, "", nil
}

// GET /matches/{id}/comparison
func comparisonHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		matchID, ok := pathID(pathParts(r), 1)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		me := currentUserID(r)
		cmp, status, code, err := loadComparison(r.Context(), db, matchID, me)
		if err != nil {
			logger.Errorw("build comparison", "match_id", matchID, "user_id", me, "error", err)
			writeError(w, http.StatusInternalServerError, "comparison_error")
			return
		}
		if code != "" {
			writeError(w, status, code)
			return
		}
		writeJSON(w, http.StatusOK, cmp)
	})
}

func publishEvent(evt Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(evt); err != nil {
		logger.Warnw("publish event", "type", evt.Type, "error", err)
	}
}
