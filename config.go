package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is everything main needs to wire the server.
type Config struct {
	Port               string
	DatabaseURL        string
	JWTSecret          []byte
	Env                string
	CORSOrigins        []string
	RedisURL           string
	AMQPURL            string
	ScoringWeightsFile string
	AdminEmails        map[string]struct{}
	AutoMigrate        bool
}

const (
	defaultDatabaseURL = "user=admin password=password dbname=roomiedb sslmode=disable"
	devJWTSecret       = "your_secret_key_please_change_in_production"
)

// loadConfig reads an optional .env file and then the process environment.
// The returned warnings are logged by the caller once the logger exists.
func loadConfig() (Config, []string) {
	var warnings []string
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		warnings = append(warnings, "could not read .env: "+err.Error())
	}

	cfg := Config{
		Port:               envOr("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Env:                envOr("GO_ENV", "development"),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		AMQPURL:            strings.TrimSpace(os.Getenv("AMQP_URL")),
		ScoringWeightsFile: strings.TrimSpace(os.Getenv("SCORING_WEIGHTS_FILE")),
		AutoMigrate:        envBool("AUTO_MIGRATE", false),
		AdminEmails:        make(map[string]struct{}),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
		warnings = append(warnings, "DATABASE_URL not set, using default connection string")
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = []byte(secret)
	} else {
		cfg.JWTSecret = []byte(devJWTSecret)
		warnings = append(warnings, "JWT_SECRET not set, using development secret")
	}

	cfg.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{
			"http://localhost:5173", "http://127.0.0.1:5173",
			"http://localhost:3001", "http://127.0.0.1:3001",
		}
	}

	for _, email := range splitList(os.Getenv("ADMIN_EMAILS")) {
		cfg.AdminEmails[strings.ToLower(email)] = struct{}{}
	}
	return cfg, warnings
}

func (c Config) isProduction() bool {
	return c.Env == "production"
}

func (c Config) isAdminEmail(email string) bool {
	_, ok := c.AdminEmails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
