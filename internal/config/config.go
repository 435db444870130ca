// Package config provides environment-aware configuration management for
// the Kudos backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all application configuration, loaded once at process
// start and treated as immutable thereafter.
type Config struct {
	Env Environment

	// Database
	DatabaseURL      string        `env:"DATABASE_URL,required"`
	DBMaxConnections int           `env:"DB_MAX_CONNECTIONS,default=20"`
	DBIdleTimeout    time.Duration `env:"DB_IDLE_TIMEOUT,default=5m"`

	// Redis (dictionary cache + used-one-time-token blacklist)
	RedisURL string `env:"REDIS_URL,default=redis://localhost:6379/0"`

	// JWT
	JWTSecretKey string `env:"JWT_SECRET_KEY,required"`
	JWTAlgorithm string `env:"JWT_ALGORITHM,default=HS256"`
	JWTIssuer    string `env:"JWT_ISSUER,default=kudos"`
	JWTAudience  string `env:"JWT_AUDIENCE,default=kudos-clients"`

	AccessTokenExpireMinutes          int `env:"ACCESS_TOKEN_EXPIRE_MINUTES,default=15"`
	RefreshTokenExpireDays            int `env:"REFRESH_TOKEN_EXPIRE_DAYS,default=30"`
	EmailVerificationTokenExpireHours int `env:"EMAIL_VERIFICATION_TOKEN_EXPIRE_HOURS,default=48"`
	PasswordResetTokenExpireMinutes   int `env:"PASSWORD_RESET_TOKEN_EXPIRE_MINUTES,default=30"`

	// Bootstrap
	SuperuserEmail    string `env:"SUPERUSER_EMAIL"`
	SuperuserPassword string `env:"SUPERUSER_PASSWORD"`

	// HTTP
	HTTPPort          int           `env:"HTTP_PORT,default=8080"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED,default=true"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS,default=100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	CORSOrigins       string        `env:"CORS_ALLOWED_ORIGINS,default=*"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	// Scheduler
	SchedulerTickInterval time.Duration `env:"SCHEDULER_TICK_INTERVAL,default=60s"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED,default=true"`
	MetricsPort    int  `env:"METRICS_PORT,default=9090"`
}

// Load reads KUDOS_ENV (falling back to "development"), loads the
// matching optional .env file, then decodes process environment into a
// Config via envdecode, the same two-stage pattern the teacher's
// internal/config.Load uses for MARBLE_ENV and config/<env>.env.
func Load() (*Config, error) {
	envStr := os.Getenv("KUDOS_ENV")
	if envStr == "" {
		envStr = string(Development)
	}
	env, ok := parseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid KUDOS_ENV: %s (must be development, testing, or production)", envStr)
	}

	envFile := fmt.Sprintf("config/%s.env", env)
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("warning: could not load %s: %v\n", envFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := envdecode.StrictDecode(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.normalizeDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeDurations lets a duration variable be set as a bare number of
// seconds instead of a Go duration literal: when the variable is set and
// parses as an integer, the field becomes that many seconds. Unset
// variables and Go duration literals leave the decoded value untouched.
func (c *Config) normalizeDurations() error {
	for _, kv := range []struct {
		env string
		dst *time.Duration
	}{
		{"DB_IDLE_TIMEOUT", &c.DBIdleTimeout},
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
		{"RATE_LIMIT_WINDOW", &c.RateLimitWindow},
		{"SCHEDULER_TICK_INTERVAL", &c.SchedulerTickInterval},
	} {
		raw := os.Getenv(kv.env)
		if raw == "" {
			continue
		}
		if secs, err := strconv.Atoi(raw); err == nil {
			*kv.dst = time.Duration(secs) * time.Second
		}
	}
	return nil
}

func parseEnvironment(s string) (Environment, bool) {
	switch Environment(strings.ToLower(s)) {
	case Development:
		return Development, true
	case Testing:
		return Testing, true
	case Production:
		return Production, true
	default:
		return "", false
	}
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

// CORSOriginList splits the configured comma-separated origin list.
func (c *Config) CORSOriginList() []string {
	return strings.Split(c.CORSOrigins, ",")
}

// Validate checks HTTP_PORT and the token expiry settings in every
// environment, and additionally requires a JWT secret and rate limiting
// in production, mirroring the teacher's Config.Validate.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWTSecretKey == "" {
			return fmt.Errorf("JWT_SECRET_KEY must be set in production")
		}
		if !c.RateLimitEnabled {
			return fmt.Errorf("RATE_LIMIT_ENABLED must be true in production")
		}
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.RefreshTokenExpireDays <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRE_DAYS must be positive")
	}
	return nil
}
