// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string `env:"PORT" envDefault:"8080"`
	Env       string `env:"ENV" envDefault:"development"` // "development", "staging", "production"
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Ledger API
	LedgerAPIURL   string        `env:"LEDGER_API_URL"`
	LedgerAPIToken string        `env:"LEDGER_API_TOKEN"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Calling account
	CallerUserID int64 `env:"CALLER_USER_ID"`
	CallerIsBot  bool  `env:"CALLER_IS_BOT"`

	// Database (optional, uses in-memory if not set)
	DatabaseURL string `env:"DATABASE_URL"`

	// Resilience
	RetryMaxAttempts    int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay      time.Duration `env:"RETRY_BASE_DELAY" envDefault:"200ms"`
	BreakerThreshold    int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerOpenDuration time.Duration `env:"BREAKER_OPEN_DURATION" envDefault:"30s"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Security
	RateLimitRPM       int      `env:"RATE_LIMIT_RPM" envDefault:"600"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	APIKeys            []string `env:"API_KEYS" envSeparator:","`

	// Password proof fallback iteration count
	PasswordKDFIterations int `env:"PASSWORD_KDF_ITERATIONS" envDefault:"100000"`
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	var errs []error
	if c.LedgerAPIURL == "" {
		errs = append(errs, errors.New("LEDGER_API_URL is required"))
	} else if u, err := url.Parse(c.LedgerAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("LEDGER_API_URL must be an absolute URL"))
	}
	if c.CallerUserID <= 0 {
		errs = append(errs, errors.New("CALLER_USER_ID is required"))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.RateLimitRPM < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPM must be non-negative"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
