package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// adminRouter serves /admin/*. Every route requires the admin role.
func adminRouter(db *sql.DB) http.HandlerFunc {
	return requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r)
		switch {
		case len(parts) == 2 && parts[1] == "flags" && r.Method == http.MethodGet:
			adminListFlags(db, w, r)
		case len(parts) == 4 && parts[1] == "flags" && parts[3] == "resolve" && r.Method == http.MethodPost:
			adminResolveFlag(db, w, r, parts)
		case len(parts) == 2 && parts[1] == "stats" && r.Method == http.MethodGet:
			adminStats(db, w, r)
		case len(parts) == 2 && parts[1] == "users" && r.Method == http.MethodGet:
			adminListUsers(db, w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// GET /admin/flags?status=open&limit=50&offset=0
func adminListFlags(db *sql.DB, w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", flagOpen, flagReviewed, flagDismissed:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	limit := queryInt(r, "limit", 50, 1, 200)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	rows, err := db.QueryContext(r.Context(), flagSelect+`
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		logger.Errorw("list flags", "error", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	flags := make([]Flag, 0)
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			logger.Errorw("scan flag", "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		flags = append(flags, f)
	}
	writeJSON(w, http.StatusOK, map[string][]Flag{"flags": flags})
}

type resolveRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// POST /admin/flags/{id}/resolve {"status":"reviewed|dismissed","note":"..."}
func adminResolveFlag(db *sql.DB, w http.ResponseWriter, r *http.Request, parts []string) {
	flagID, ok := pathID(parts, 2)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Status != flagReviewed && req.Status != flagDismissed {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	admin := currentUserID(r)

	f, err := scanFlag(db.QueryRowContext(r.Context(), `
		UPDATE flags
		SET status = $2, resolution_note = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $1 AND status = 'open'
		RETURNING id, reporter_id, target_user_id, message_id, reason, details, status,
		          resolution_note, resolved_by, created_at, resolved_at
	`, flagID, req.Status, strings.TrimSpace(req.Note), admin, time.Now().UTC()))
	if err == sql.ErrNoRows {
		// Either missing or already resolved
		var exists bool
		if qerr := db.QueryRowContext(r.Context(), "SELECT EXISTS (SELECT 1 FROM flags WHERE id = $1)", flagID).Scan(&exists); qerr == nil && exists {
			writeError(w, http.StatusConflict, "already_resolved")
			return
		}
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		logger.Errorw("resolve flag", "flag_id", flagID, "admin_id", admin, "error", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	logger.Infow("flag resolved", "flag_id", flagID, "admin_id", admin, "status", req.Status)
	writeJSON(w, http.StatusOK, f)
}

type adminStatsResponse struct {
	Users           int `json:"users"`
	CompletedSurvey int `json:"completedSurvey"`
	AcceptedMatches int `json:"acceptedMatches"`
	PendingMatches  int `json:"pendingMatches"`
	OpenFlags       int `json:"openFlags"`
}

// GET /admin/stats
func adminStats(db *sql.DB, w http.ResponseWriter, r *http.Request) {
	var s adminStatsResponse
	err := db.QueryRowContext(r.Context(), `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM profiles WHERE survey_completed_at IS NOT NULL),
			(SELECT COUNT(*) FROM matches WHERE status = 'accepted'),
			(SELECT COUNT(*) FROM matches WHERE status = 'pending'),
			(SELECT COUNT(*) FROM flags WHERE status = 'open')
	`).Scan(&s.Users, &s.CompletedSurvey, &s.AcceptedMatches, &s.PendingMatches, &s.OpenFlags)
	if err != nil {
		logger.Errorw("admin stats", "error", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type adminUser struct {
	ID             int       `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"displayName"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	SurveyComplete bool      `json:"surveyComplete"`
	CreatedAt      time.Time `json:"createdAt"`
}

// GET /admin/users?limit=50&offset=0
func adminListUsers(db *sql.DB, w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 200)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	rows, err := db.QueryContext(r.Context(), `
		SELECT u.id, u.email, COALESCE(p.display_name, ''), u.role, u.status,
		       COALESCE(p.survey_completed_at IS NOT NULL, FALSE), u.created_at
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		ORDER BY u.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		logger.Errorw("admin list users", "error", err)
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	defer rows.Close()

	users := make([]adminUser, 0, limit)
	for rows.Next() {
		var u adminUser
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Status, &u.SurveyComplete, &u.CreatedAt); err != nil {
			logger.Errorw("scan admin user", "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		users = append(users, u)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "limit": limit, "offset": offset})
}
