package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Database driver constants
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// MinPasswordHashCost is the lowest bcrypt work factor accepted at startup.
const MinPasswordHashCost = 12

// DefaultSessionSecret is the development session key. Production refuses it.
const DefaultSessionSecret = "session-secret-change-in-production"

// ErrMissingSigningSecret is returned by Validate when a JWT signing secret is absent
// or both token families share one secret. Bootstrap treats it as fatal.
var ErrMissingSigningSecret = errors.New("signing secrets misconfigured")

type Config struct {
	// Server settings
	ServerAddr   string `env:"SERVER_ADDR"   envDefault:":8080"`
	BaseURL      string `env:"BASE_URL"      envDefault:"http://localhost:8080"`
	IsProduction bool   `env:"ENVIRONMENT_PRODUCTION" envDefault:"false"`
	LogLevel     string `env:"LOG_LEVEL"     envDefault:"info"`

	// JWT settings
	AccessTokenSecret  string        `env:"JWT_ACCESS_SECRET"`
	RefreshTokenSecret string        `env:"JWT_REFRESH_SECRET"`
	TokenIssuer        string        `env:"JWT_ISSUER"         envDefault:"budgetgate"`
	TokenAudience      string        `env:"JWT_AUDIENCE"       envDefault:"budgetgate-api"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL"   envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL"  envDefault:"720h"`
	TokenLeeway        time.Duration `env:"TOKEN_LEEWAY"       envDefault:"0s"`

	// OAuth2 authorization code settings
	AuthCodeTTL time.Duration `env:"AUTH_CODE_TTL" envDefault:"10m"`

	// Database
	DatabaseDriver string        `env:"DATABASE_DRIVER"  envDefault:"sqlite"`
	DatabaseDSN    string        `env:"DATABASE_DSN"     envDefault:"budgetgate.db"`
	DBInitTimeout  time.Duration `env:"DB_INIT_TIMEOUT"  envDefault:"30s"`

	// Credentials
	PasswordHashCost int    `env:"PASSWORD_HASH_COST" envDefault:"12"`
	AdminUsername    string `env:"ADMIN_USERNAME"     envDefault:"admin"`
	AdminPassword    string `env:"ADMIN_PASSWORD"`

	// Session settings
	SessionSecret string `env:"SESSION_SECRET"  envDefault:"session-secret-change-in-production"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" envDefault:"86400"` // seconds

	// Ledger maintenance
	PruneInterval time.Duration `env:"PRUNE_INTERVAL" envDefault:"1h"`

	// Rate limiting
	EnableRateLimit bool   `env:"ENABLE_RATE_LIMIT" envDefault:"true"`
	RateLimitStore  string `env:"RATE_LIMIT_STORE"  envDefault:"memory"`
	RedisAddr       string `env:"REDIS_ADDR"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB"          envDefault:"0"`
	LoginRateLimit  int    `env:"LOGIN_RATE_LIMIT"  envDefault:"10"` // requests per minute
	TokenRateLimit  int    `env:"TOKEN_RATE_LIMIT"  envDefault:"30"` // requests per minute

	RedisConnTimeout         time.Duration `env:"REDIS_CONN_TIMEOUT"          envDefault:"5s"`
	RateLimitCleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`

	// Metrics
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsToken   string `env:"METRICS_TOKEN"` // optional Bearer token guarding /metrics

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads configuration from the environment, after applying an optional .env file.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ValidateSecrets checks the signing key material. It is the only fatal-on-load check.
func (c *Config) ValidateSecrets() error {
	if c.AccessTokenSecret == "" {
		return fmt.Errorf("%w: JWT_ACCESS_SECRET is required", ErrMissingSigningSecret)
	}
	if c.RefreshTokenSecret == "" {
		return fmt.Errorf("%w: JWT_REFRESH_SECRET is required", ErrMissingSigningSecret)
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf(
			"%w: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ",
			ErrMissingSigningSecret,
		)
	}
	return nil
}

// Validate checks the whole configuration for consistency.
func (c *Config) Validate() error {
	if err := c.ValidateSecrets(); err != nil {
		return err
	}

	switch c.DatabaseDriver {
	case DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		return fmt.Errorf(
			"invalid DATABASE_DRIVER value: %q (must be %q or %q)",
			c.DatabaseDriver, DatabaseDriverSQLite, DatabaseDriverPostgres,
		)
	}

	if c.PasswordHashCost < MinPasswordHashCost || c.PasswordHashCost > bcrypt.MaxCost {
		return fmt.Errorf(
			"PASSWORD_HASH_COST must be between %d and %d, got %d",
			MinPasswordHashCost, bcrypt.MaxCost, c.PasswordHashCost,
		)
	}

	// A known cookie key lets anyone forge a session for any user id
	if c.IsProduction && (c.SessionSecret == "" || c.SessionSecret == DefaultSessionSecret) {
		return errors.New("SESSION_SECRET must be set to a private value in production")
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.AuthCodeTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL, REFRESH_TOKEN_TTL and AUTH_CODE_TTL must be positive")
	}

	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		return fmt.Errorf(
			"invalid RATE_LIMIT_STORE value: %q (must be %q or %q)",
			c.RateLimitStore, RateLimitStoreMemory, RateLimitStoreRedis,
		)
	}
	if c.EnableRateLimit && c.RateLimitStore == RateLimitStoreRedis && c.RedisAddr == "" {
		return errors.New(`RATE_LIMIT_STORE="redis" requires REDIS_ADDR`)
	}

	return nil
}
