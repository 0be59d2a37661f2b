// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required for server, migrate, and worker.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port used for the token blacklist and rate-limit counters.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the Redis AUTH password; empty for no auth.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis logical database number.
	RedisDB int `mapstructure:"REDIS_DB"`
	// JWTSecret is the symmetric HS256 signing secret. Required; the server refuses to start without it.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim (e.g. "photo-platform-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RateLimitLogin is the login endpoint limit in "count/period" form (e.g. "5/minute").
	RateLimitLogin string `mapstructure:"RATE_LIMIT_LOGIN"`
	// RateLimitRegister is the register endpoint limit in "count/period" form.
	RateLimitRegister string `mapstructure:"RATE_LIMIT_REGISTER"`
	// RateLimitAPI is the default limit for authenticated endpoints in "count/period" form.
	RateLimitAPI string `mapstructure:"RATE_LIMIT_API"`

	// TokenSweepInterval is how often the worker purges expired refresh tokens (e.g. "1h").
	TokenSweepInterval string `mapstructure:"TOKEN_SWEEP_INTERVAL"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint (e.g. http://localhost:4317); empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "photo-platform-auth")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RATE_LIMIT_LOGIN", "5/minute")
	v.SetDefault("RATE_LIMIT_REGISTER", "3/minute")
	v.SetDefault("RATE_LIMIT_API", "100/minute")
	v.SetDefault("TOKEN_SWEEP_INTERVAL", "1h")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// RequireJWTSecret returns the signing secret or an error when unset.
// A missing secret is a startup failure, never a runtime fallback.
func (c *Config) RequireJWTSecret() ([]byte, error) {
	if c.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	return []byte(c.JWTSecret), nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// SweepInterval parses TokenSweepInterval as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	d, err := time.ParseDuration(c.TokenSweepInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}
