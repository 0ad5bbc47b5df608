package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ctxKey is the key type for values stored in the request context
type ctxKey string

const (
	userIDKey   ctxKey = "userID"
	userRoleKey ctxKey = "userRole"
)

const (
	roleUser  = "user"
	roleAdmin = "admin"

	statusActive    = "active"
	statusSuspended = "suspended"

	tokenTTL = 24 * time.Hour
)

var jwtSecret []byte

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeCredentials(r *http.Request) (credentials, string) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "invalid_json"
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Password = strings.TrimSpace(req.Password)
	if req.Email == "" || req.Password == "" {
		return req, "missing_fields"
	}
	return req, ""
}

func registerHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		req, code := decodeCredentials(r)
		if code != "" {
			writeError(w, http.StatusBadRequest, code)
			return
		}
		if len(req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "weak_password")
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "hash_error")
			logger.Errorw("hash password", "error", err)
			return
		}

		role := roleUser
		if appConfig.isAdminEmail(req.Email) {
			role = roleAdmin
		}

		var newID int
		err = withTx(r.Context(), db, func(tx *sql.Tx) error {
			if err := tx.QueryRowContext(r.Context(),
				`INSERT INTO users (email, password_hash, role, last_online) VALUES ($1, $2, $3, NOW()) RETURNING id`,
				req.Email, string(hashedPassword), role,
			).Scan(&newID); err != nil {
				return err
			}
			_, err := tx.ExecContext(r.Context(),
				`INSERT INTO profiles (user_id, display_name) VALUES ($1, $2)`,
				newID, defaultDisplayName(req.Email),
			)
			return err
		})
		if err != nil {
			if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
				writeError(w, http.StatusConflict, "email_exists")
				return
			}
			writeError(w, http.StatusInternalServerError, "register_error")
			logger.Errorw("register user", "error", err)
			return
		}

		tokenString, err := issueToken(newID, role)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token_generation_error")
			logger.Errorw("sign token", "user_id", newID, "error", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"token": tokenString, "id": newID})
	}
}

func loginHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		req, code := decodeCredentials(r)
		if code != "" {
			writeError(w, http.StatusBadRequest, code)
			return
		}

		var userID int
		var passwordHash, role, status string
		err := db.QueryRowContext(r.Context(),
			`SELECT id, password_hash, role, status FROM users WHERE email = $1`, req.Email,
		).Scan(&userID, &passwordHash, &role, &status)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		} else if err != nil {
			logger.Errorw("query user", "error", err)
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		if status == statusSuspended {
			writeError(w, http.StatusForbidden, "account_suspended")
			return
		}

		tokenString, err := issueToken(userID, role)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token_generation_error")
			logger.Errorw("sign token", "user_id", userID, "error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenString, "id": userID})
	}
}

func issueToken(userID int, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(jwtSecret)
}

// parseToken validates an HS256 token and returns its user id and role.
func parseToken(tokenStr string) (int, string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, "", fmt.Errorf("invalid token: %w", err)
	}
	// jwt.MapClaims stores numbers as float64
	fv, ok := claims["user_id"].(float64)
	if !ok || fv <= 0 {
		return 0, "", fmt.Errorf("invalid user id in token")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = roleUser
	}
	return int(fv), role, nil
}

// getUserIDFromRequest reads the bearer token, falling back to the `token`
// query parameter for websocket clients that cannot set headers.
func getUserIDFromRequest(r *http.Request) (int, string, bool) {
	tokenStr := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		tokenStr = strings.TrimPrefix(auth, "Bearer ")
	} else if q := r.URL.Query().Get("token"); q != "" {
		tokenStr = q
	}
	if tokenStr == "" {
		return 0, "", false
	}
	id, role, err := parseToken(tokenStr)
	if err != nil {
		return 0, "", false
	}
	return id, role, true
}

func authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, role, ok := getUserIDFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, userRoleKey, role)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin authenticates and then rejects non-admin callers.
func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if role, _ := r.Context().Value(userRoleKey).(string); role != roleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	})
}

func currentUserID(r *http.Request) int {
	id, _ := r.Context().Value(userIDKey).(int)
	return id
}

func defaultDisplayName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
