package authcore_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := ac.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "authcore", cfg.AppName)
	assert.Equal(t, "authcore-Issuer", cfg.JWTIssuer)
	assert.NotEmpty(t, cfg.JWTSecretKey)
	assert.Equal(t, 30*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, time.Hour, cfg.ResetCodeTTL)
	assert.Equal(t, "fs", cfg.StoreBackend)
	assert.Equal(t, []string{"admin", "member"}, cfg.SeedRoles)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("AUTHCORE_APP_NAME", "myapp")
	t.Setenv("AUTHCORE_JWT_SECRET_KEY", "s3cr3t")
	t.Setenv("AUTHCORE_RESET_CODE_TTL", "15m")
	t.Setenv("AUTHCORE_STORE", "SQLite")
	t.Setenv("AUTHCORE_SEED_ROLES", "admin,editor,viewer")
	t.Setenv("AUTHCORE_LOG_LEVEL", "debug")

	cfg, err := ac.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "myapp-Issuer", cfg.JWTIssuer)
	assert.Equal(t, "s3cr3t", cfg.JWTSecretKey)
	assert.Equal(t, 15*time.Minute, cfg.ResetCodeTTL)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, []string{"admin", "editor", "viewer"}, cfg.SeedRoles)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadConfig_BadDuration(t *testing.T) {
	t.Setenv("AUTHCORE_TOKEN_TTL", "forever")
	_, err := ac.LoadConfig()
	assert.Error(t, err)
}
