package core

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Exchange identifiers accepted by Config.Exchange.
const (
	ExchangeBinance = "binance"
	ExchangeBybit   = "bybit"
	ExchangeOKX     = "okx"
	ExchangeBitget  = "bitget"
	ExchangeGateIO  = "gateio"
	ExchangeOrderly = "orderly"
)

// Credentials holds API authentication credentials for an exchange.
type Credentials struct {
	// APIKey is the public API key identifier.
	APIKey string `json:"api_key"`
	// SecretKey is the private key used for signing requests.
	SecretKey string `json:"secret_key"`
	// Passphrase is required by OKX and Bitget.
	Passphrase string `json:"passphrase,omitempty"`
	// AccountID is required by Orderly.
	AccountID string `json:"account_id,omitempty"`
}

// Config contains all configuration options for one adapter instance.
// One Config carries one set of credentials for one account.
type Config struct {
	Exchange    string       `json:"exchange" validate:"required,oneof=binance bybit okx bitget gateio orderly"`
	Sandbox     bool         `json:"sandbox"`
	Credentials *Credentials `json:"credentials,omitempty"`

	// Timeout is the maximum duration for HTTP requests.
	Timeout time.Duration `json:"timeout" validate:"min=1ms"`

	RateLimitRequests int           `json:"rate_limit_requests" validate:"min=1"`
	RateLimitPeriod   time.Duration `json:"rate_limit_period" validate:"min=1ms"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout"`

	// RecvWindow bounds how long a signed request stays valid (Binance, Bybit).
	RecvWindow time.Duration `json:"recv_window" validate:"min=0"`
	// CancelInterval is the pause between sequential cancels on venues without bulk cancel.
	CancelInterval time.Duration `json:"cancel_interval" validate:"min=0"`
	// BrokerTag overrides the venue's default broker or channel identifier.
	BrokerTag string `json:"broker_tag,omitempty"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with sensible defaults for the specified exchange.
// Default values: 10s timeout, 1200 req/min rate limit, 5s recv window, 35ms cancel pacing,
// circuit breaker with 5 failures/2 successes/30s timeout.
func DefaultConfig(exchange string) *Config {
	return &Config{
		Exchange: exchange,
		Sandbox:  false,
		Timeout:  10 * time.Second,

		RateLimitRequests: 1200,
		RateLimitPeriod:   time.Minute,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		RecvWindow:     5 * time.Second,
		CancelInterval: 35 * time.Millisecond,

		LogLevel: "info",
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithSandbox enables or disables sandbox mode and returns the config for chaining.
func (c *Config) WithSandbox(sandbox bool) *Config {
	c.Sandbox = sandbox
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRateLimit sets the rate limiting parameters and returns the config for chaining.
func (c *Config) WithRateLimit(requests int, period time.Duration) *Config {
	c.RateLimitRequests = requests
	c.RateLimitPeriod = period
	return c
}

// WithBrokerTag overrides the venue default broker tag and returns the config for chaining.
func (c *Config) WithBrokerTag(tag string) *Config {
	c.BrokerTag = tag
	return c
}
