// Package config builds adapter configuration from the environment.
//
// Every variable is namespaced by venue, so one process can hold keys for
// several exchanges:
//
//	PERPGATE_OKX_API_KEY=...
//	PERPGATE_OKX_SECRET_KEY=...
//	PERPGATE_OKX_PASSPHRASE=...
//	PERPGATE_OKX_SANDBOX=true
//
// The bare name (LOG_LEVEL, TIMEOUT, ...) is used when the venue-prefixed
// one is absent. A .env file in the working directory is read first when present.
// Variables already set in the environment win over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"perpgate/pkg/core"
)

// Prefix starts every variable name.
const Prefix = "PERPGATE"

// Env is the environment view of one adapter's settings.
type Env struct {
	APIKey     string `envconfig:"API_KEY"`
	SecretKey  string `envconfig:"SECRET_KEY"`
	Passphrase string `envconfig:"PASSPHRASE"`
	AccountID  string `envconfig:"ACCOUNT_ID"`

	Sandbox   bool   `envconfig:"SANDBOX" default:"false"`
	BrokerTag string `envconfig:"BROKER_TAG"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	Timeout        time.Duration `envconfig:"TIMEOUT" default:"10s"`
	RecvWindow     time.Duration `envconfig:"RECV_WINDOW" default:"5s"`
	CancelInterval time.Duration `envconfig:"CANCEL_INTERVAL" default:"35ms"`

	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"1200"`
	RateLimitPeriod   time.Duration `envconfig:"RATE_LIMIT_PERIOD" default:"1m"`
	CircuitBreaker    bool          `envconfig:"CIRCUIT_BREAKER" default:"true"`
}

// EnvPrefix returns the variable prefix used for exchange, e.g. PERPGATE_GATEIO.
func EnvPrefix(exchange string) string {
	return Prefix + "_" + strings.ToUpper(exchange)
}

// Load reads the settings of exchange from envFiles (".env" when none are
// given) and the process environment, and returns a validated config.
// Credentials are attached only when an API key or secret is present.
func Load(exchange string, envFiles ...string) (*core.Config, error) {
	// Missing env files are fine; the process environment may carry everything.
	_ = godotenv.Load(envFiles...)

	var env Env
	if err := envconfig.Process(EnvPrefix(exchange), &env); err != nil {
		return nil, fmt.Errorf("config %s: %w", exchange, err)
	}

	cfg, err := env.Config(exchange)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", exchange, err)
	}
	return cfg, nil
}

// Config applies env on top of core.DefaultConfig(exchange) and validates
// the result.
func (e *Env) Config(exchange string) (*core.Config, error) {
	cfg := core.DefaultConfig(exchange).
		WithSandbox(e.Sandbox).
		WithTimeout(e.Timeout).
		WithRateLimit(e.RateLimitRequests, e.RateLimitPeriod).
		WithBrokerTag(e.BrokerTag)
	cfg.RecvWindow = e.RecvWindow
	cfg.CancelInterval = e.CancelInterval
	cfg.CircuitBreakerEnabled = e.CircuitBreaker
	cfg.LogLevel = e.LogLevel

	if e.APIKey != "" || e.SecretKey != "" {
		cfg.WithCredentials(&core.Credentials{
			APIKey:     e.APIKey,
			SecretKey:  e.SecretKey,
			Passphrase: e.Passphrase,
			AccountID:  e.AccountID,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
