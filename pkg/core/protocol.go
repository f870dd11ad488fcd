package core

import "time"

// RateLimitConfig defines the venue's published request budget.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum general requests per second.
	RequestsPerSecond int `json:"requests_per_second"`
	// Burst allows temporary exceeding of rate limits.
	Burst int `json:"burst"`
}

// Traits is the declarative part of a venue: quirks expressed as data.
type Traits struct {
	// BulkCancel is false when the venue has no cancel-all endpoint and
	// the adapter must cancel pending orders one by one.
	BulkCancel bool
	// RefreshOnList makes ListSymbols always reload metadata.
	RefreshOnList bool
	// RequiresPassphrase marks venues whose signature carries a passphrase.
	RequiresPassphrase bool
	// RequiresAccountID marks venues that authenticate by account id.
	RequiresAccountID bool
	// HistoryNeedsSymbol marks venues whose history endpoints reject account-wide queries.
	HistoryNeedsSymbol bool
}

// Protocol is one exchange's signer, request builder and response normalizer.
// Implementations are stateless apart from constructor-injected settings.
type Protocol interface {
	// Name returns the exchange identifier (e.g., "binance", "okx").
	Name() string

	// BaseURL returns the API base URL for the given environment.
	BaseURL(sandbox bool) string

	// Traits describes the venue quirks the generic adapter must honour.
	Traits() Traits

	// BuildRequest constructs the exchange-specific call for op.
	BuildRequest(op Operation, params Params) (*Request, error)

	// SignRequest adds authentication material. The single timestamp now is
	// used for both the signed message and the transmitted value.
	SignRequest(req *Request, creds Credentials, now time.Time) error

	// ParseResponse checks the transport status and the application envelope,
	// then normalizes the payload into the canonical type for op.
	ParseResponse(op Operation, params Params, resp *Response) (any, error)

	// RateLimits returns the rate limiting configuration for this exchange.
	RateLimits() RateLimitConfig
}
