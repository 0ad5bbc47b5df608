package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gitea.kood.tech/roomie/backend/compat"
	"github.com/lib/pq"
)

const maxIcebreakers = 3

// reportResponse is returned by POST /matches/{id}/report.
type reportResponse struct {
	MatchID      int      `json:"matchId"`
	Report       string   `json:"report"`
	Icebreakers  []string `json:"icebreakers"`
	OverallScore int      `json:"overallScore"`
}

// POST /matches/{id}/report
// Stores a summary of the comparison on the match and announces the request
// so a report generator can pick it up.
func matchReportHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		matchID, ok := pathID(pathParts(r), 1)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		me := currentUserID(r)
		cmp, status, code, err := loadComparison(r.Context(), db, matchID, me)
		if err != nil {
			logger.Errorw("build comparison for report", "match_id", matchID, "user_id", me, "error", err)
			writeError(w, http.StatusInternalServerError, "comparison_error")
			return
		}
		if code != "" {
			writeError(w, status, code)
			return
		}
		if cmp.Match.Status != compat.MatchAccepted {
			writeError(w, http.StatusConflict, "invalid_state")
			return
		}

		report := summarizeComparison(cmp)
		icebreakers := suggestIcebreakers(cmp)
		if _, err := db.ExecContext(r.Context(), `
			UPDATE matches SET ai_report = $2, icebreakers = $3, updated_at = NOW()
			WHERE id = $1
		`, matchID, report, pq.Array(icebreakers)); err != nil {
			logger.Errorw("store match report", "match_id", matchID, "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		publishEvent(Event{
			Type:    EventReportRequested,
			ActorID: me,
			Payload: map[string]int{"matchId": matchID, "overallScore": cmp.OverallScore},
		})
		writeJSON(w, http.StatusOK, reportResponse{
			MatchID:      matchID,
			Report:       report,
			Icebreakers:  icebreakers,
			OverallScore: cmp.OverallScore,
		})
	})
}

// rankedCategories returns the breakdown sorted by compatibility, best first.
// Ties keep the fixed category order.
func rankedCategories(cmp *compat.ComparisonData) []compat.CategoryBreakdown {
	rows := append([]compat.CategoryBreakdown(nil), cmp.CategoryBreakdown...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Compatibility > rows[j].Compatibility
	})
	return rows
}

func summarizeComparison(cmp *compat.ComparisonData) string {
	rows := rankedCategories(cmp)
	if len(rows) == 0 {
		return fmt.Sprintf("Overall compatibility: %d%%.", cmp.OverallScore)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Overall compatibility: %d%%.", cmp.OverallScore)

	var strong []string
	for _, row := range rows {
		if row.Compatibility >= 80 && len(strong) < 3 {
			strong = append(strong, strings.ToLower(row.Category))
		}
	}
	if len(strong) > 0 {
		fmt.Fprintf(&b, " You line up well on %s.", strings.Join(strong, ", "))
	}

	weakest := rows[len(rows)-1]
	if weakest.Compatibility < 60 {
		fmt.Fprintf(&b, " Talk about %s early (%d%%).", strings.ToLower(weakest.Category), weakest.Compatibility)
	}
	return b.String()
}

func suggestIcebreakers(cmp *compat.ComparisonData) []string {
	out := make([]string, 0, maxIcebreakers)
	if cmp.CurrentUser != nil && cmp.MatchUser != nil {
		for _, interest := range compat.SharedInterests(cmp.CurrentUser.Interests, cmp.MatchUser.Interests) {
			if len(out) == maxIcebreakers {
				return out
			}
			out = append(out, fmt.Sprintf("You both like %s. What got you into it?", interest))
		}
	}
	for _, row := range rankedCategories(cmp) {
		if len(out) == maxIcebreakers {
			break
		}
		if row.Category == "Interests" {
			continue
		}
		out = append(out, fmt.Sprintf("How do you usually handle %s at home?", strings.ToLower(row.Category)))
	}
	return out
}
