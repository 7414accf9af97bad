package authcore

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const devSecretKey = "MyTestJWTSecretKey123456"

// Config holds everything the auth components need at construction time.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"authcore"`

	JWTSecretKey string        `env:"JWT_SECRET_KEY"`
	JWTIssuer    string        `env:"JWT_ISSUER"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"720h"`

	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	ResetURL    string `env:"RESET_URL" envDefault:"http://localhost:3000/reset-password"`

	DefaultLocale   string `env:"DEFAULT_LOCALE" envDefault:"en_US"`
	DefaultTemplate string `env:"DEFAULT_TEMPLATE" envDefault:"standard"`
	BcryptCost      int    `env:"BCRYPT_COST" envDefault:"10"`

	ResetCodeTTL    time.Duration `env:"RESET_CODE_TTL" envDefault:"1h"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	EmailTimeout    time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`

	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"false"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	GRPCAddr   string `env:"GRPC_ADDR"`

	// one of fs, sqlite, postgres, datastore
	StoreBackend       string   `env:"STORE" envDefault:"fs"`
	StoragePath        string   `env:"STORAGE_PATH" envDefault:"./data"`
	DatabaseDSN        string   `env:"DATABASE_DSN"`
	DatastoreProject   string   `env:"DATASTORE_PROJECT"`
	DatastoreNamespace string   `env:"DATASTORE_NAMESPACE"`
	RedisAddr          string   `env:"REDIS_ADDR"`
	SeedRoles          []string `env:"SEED_ROLES" envSeparator:"," envDefault:"admin,member"`

	GithubUserInfoURL string `env:"GITHUB_USERINFO_URL"`
	GoogleUserInfoURL string `env:"GOOGLE_USERINFO_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadConfig reads Config from AUTHCORE_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "AUTHCORE_"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg.EnsureDefaults(), nil
}

// EnsureDefaults fills fields left empty by programmatic construction.
func (c *Config) EnsureDefaults() *Config {
	if c.AppName == "" {
		c.AppName = "authcore"
	}
	if c.JWTIssuer == "" {
		c.JWTIssuer = fmt.Sprintf("%s-Issuer", c.AppName)
	}
	if c.JWTSecretKey == "" {
		slog.Warn("no JWT secret configured, using development key")
		c.JWTSecretKey = devSecretKey
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.DefaultLocale == "" {
		c.DefaultLocale = DefaultLocale
	}
	if c.DefaultTemplate == "" {
		c.DefaultTemplate = DefaultTemplate
	}
	if c.SessionLifetime <= 0 {
		c.SessionLifetime = 24 * time.Hour
	}
	c.StoreBackend = strings.ToLower(c.StoreBackend)
	return c
}

// SlogLevel maps LogLevel onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
