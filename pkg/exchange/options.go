package exchange

import (
	"time"

	"github.com/rs/zerolog"

	"perpgate/internal/keyring"
	"perpgate/internal/metrics"
)

type Option func(*Options)

type Options struct {
	Logger  zerolog.Logger
	Clock   func() time.Time
	BaseURL string
	KeyRing *keyring.KeyRing
	Metrics *metrics.Recorder
}

// WithLogger sets the adapter logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithClock replaces time.Now for request timestamps and the circuit breaker.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Clock = now
	}
}

// WithBaseURL overrides the venue base URL, for proxies and test servers.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithKeyRing supplies credentials from kr instead of Config.Credentials.
func WithKeyRing(kr *keyring.KeyRing) Option {
	return func(o *Options) {
		o.KeyRing = kr
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Options) {
		o.Metrics = r
	}
}

func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		Logger: zerolog.Nop(),
		Clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
