package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, name := range []string{"PORT", "DATABASE_URL", "JWT_SECRET", "GO_ENV", "CORS_ORIGINS",
		"ADMIN_EMAILS", "REDIS_URL", "AMQP_URL", "SCORING_WEIGHTS_FILE", "AUTO_MIGRATE"} {
		t.Setenv(name, "")
	}

	cfg, warnings := loadConfig()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, []byte(devJWTSecret), cfg.JWTSecret)
	assert.Equal(t, "development", cfg.Env)
	assert.Contains(t, cfg.CORSOrigins, "http://localhost:5173")
	assert.False(t, cfg.AutoMigrate)
	assert.False(t, cfg.isProduction())
	assert.Len(t, warnings, 2)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://db/roomie")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("GO_ENV", "production")
	t.Setenv("CORS_ORIGINS", "https://roomie.example, https://admin.roomie.example ,")
	t.Setenv("ADMIN_EMAILS", "Boss@Roomie.example")
	t.Setenv("AUTO_MIGRATE", "true")

	cfg, warnings := loadConfig()
	assert.Empty(t, warnings)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
	assert.True(t, cfg.isProduction())
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, []string{"https://roomie.example", "https://admin.roomie.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.isAdminEmail(" boss@roomie.example"))
	assert.False(t, cfg.isAdminEmail("someone@roomie.example"))
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG_X", "nope")
	assert.True(t, envBool("FLAG_X", true))
	t.Setenv("FLAG_X", "0")
	assert.False(t, envBool("FLAG_X", true))
}
