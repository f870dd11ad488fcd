package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		name      string
		errorType ErrorType
		want      string
	}{
		{"unknown", ErrorTypeUnknown, "UNKNOWN"},
		{"network", ErrorTypeNetwork, "NETWORK"},
		{"timeout", ErrorTypeTimeout, "TIMEOUT"},
		{"rate_limit", ErrorTypeRateLimit, "RATE_LIMIT"},
		{"authentication", ErrorTypeAuthentication, "AUTHENTICATION"},
		{"bad_request", ErrorTypeBadRequest, "BAD_REQUEST"},
		{"not_found", ErrorTypeNotFound, "NOT_FOUND"},
		{"server_error", ErrorTypeServerError, "SERVER_ERROR"},
		{"insufficient_funds", ErrorTypeInsufficientFunds, "INSUFFICIENT_FUNDS"},
		{"invalid_order", ErrorTypeInvalidOrder, "INVALID_ORDER"},
		{"malformed", ErrorTypeMalformedResponse, "MALFORMED_RESPONSE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.errorType.String())
		})
	}
}

func TestExchangeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ExchangeError
		want string
	}{
		{
			name: "without_code",
			err: &ExchangeError{
				Exchange:   "gateio",
				Type:       ErrorTypeRateLimit,
				StatusCode: 429,
				Message:    "too many requests",
			},
			want: "[gateio] RATE_LIMIT (429): too many requests",
		},
		{
			name: "with_code",
			err: &ExchangeError{
				Exchange:   "binance",
				Type:       ErrorTypeInvalidOrder,
				StatusCode: 400,
				Code:       "-1111",
				Message:    "Precision is over the maximum defined for this asset.",
			},
			want: "[binance] INVALID_ORDER (400/-1111): Precision is over the maximum defined for this asset.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestNewExchangeErrorWithCode(t *testing.T) {
	err := NewExchangeErrorWithCode("okx", ErrorTypeAuthentication, 401, "50111", "Invalid OK-ACCESS-KEY")

	assert.Equal(t, "okx", err.Exchange)
	assert.Equal(t, ErrorTypeAuthentication, err.Type)
	assert.Equal(t, 401, err.StatusCode)
	assert.Equal(t, "50111", err.Code)
	assert.Equal(t, "Invalid OK-ACCESS-KEY", err.Message)
	assert.False(t, err.Timestamp.IsZero())
}

func TestNewMalformedError(t *testing.T) {
	err := NewMalformedError("bybit", 200, errors.New("price: empty decimal"))

	assert.Equal(t, ErrorTypeMalformedResponse, err.Type)
	assert.Equal(t, 200, err.StatusCode)
	assert.Equal(t, "price: empty decimal", err.Message)
	assert.True(t, IsExchangeError(err))
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := NewTransportError("bitget", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "[bitget] transport: connection refused", wrapped.Error())

	status := NewHTTPStatusError("gateio", 502, []byte(strings.Repeat("x", 300)))
	assert.Equal(t, 502, status.StatusCode)
	assert.Contains(t, status.Error(), "HTTP 502")
	assert.True(t, strings.HasSuffix(status.Error(), "..."))
	assert.True(t, IsTransportError(fmt.Errorf("call: %w", status)))
	assert.False(t, IsExchangeError(status))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError(ParamSymbol, "is required")
	assert.Equal(t, "validation: symbol is required", err.Error())

	bare := &ValidationError{Message: "quantity below minimum"}
	assert.Equal(t, "validation: quantity below minimum", bare.Error())

	assert.True(t, IsValidationError(fmt.Errorf("place: %w", err)))
	assert.False(t, IsTransportError(err))
}

func TestWrapValidationError(t *testing.T) {
	err := fmt.Errorf("binance: %w", WrapValidationError("credentials", fmt.Errorf("okx: %w", ErrNoCredentials)))

	assert.True(t, IsValidationError(err))
	assert.True(t, errors.Is(err, ErrNoCredentials))
	assert.Contains(t, err.Error(), "validation: credentials okx: no credentials configured")
}

func TestIsErrorCode(t *testing.T) {
	err := fmt.Errorf("cancel: %w",
		NewExchangeErrorWithCode("okx", ErrorTypeNotFound, 200, "51400", "Order does not exist"))

	assert.True(t, IsErrorCode(err, "51400"))
	assert.False(t, IsErrorCode(err, "51401"))
	assert.False(t, IsErrorCode(errors.New("plain"), "51400"))
}

func TestIsRateLimitError(t *testing.T) {
	rateLimitErr := NewExchangeError("test", ErrorTypeRateLimit, 429, "rate limited")
	networkErr := NewExchangeError("test", ErrorTypeNetwork, 500, "network error")

	assert.True(t, IsRateLimitError(rateLimitErr))
	assert.False(t, IsRateLimitError(networkErr))
	assert.False(t, IsRateLimitError(nil))
}

func TestIsAuthenticationError(t *testing.T) {
	authErr := NewExchangeError("test", ErrorTypeAuthentication, 401, "unauthorized")
	networkErr := NewExchangeError("test", ErrorTypeNetwork, 500, "network error")

	assert.True(t, IsAuthenticationError(authErr))
	assert.False(t, IsAuthenticationError(networkErr))
	assert.False(t, IsAuthenticationError(nil))
}

func TestIsTerminalError(t *testing.T) {
	tests := []struct {
		name     string
		errType  ErrorType
		terminal bool
	}{
		{"insufficient_funds", ErrorTypeInsufficientFunds, true},
		{"invalid_order", ErrorTypeInvalidOrder, true},
		{"not_found", ErrorTypeNotFound, true},
		{"network", ErrorTypeNetwork, false},
		{"timeout", ErrorTypeTimeout, false},
		{"rate_limit", ErrorTypeRateLimit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewExchangeError("test", tt.errType, 500, "message")
			assert.Equal(t, tt.terminal, IsTerminalError(err))
		})
	}

	assert.True(t, IsTerminalError(NewValidationError("side", "is invalid")))
	assert.False(t, IsTerminalError(nil))
}

func TestErrorTypeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{200, ErrorTypeUnknown},
		{400, ErrorTypeBadRequest},
		{401, ErrorTypeAuthentication},
		{403, ErrorTypeAuthentication},
		{404, ErrorTypeNotFound},
		{418, ErrorTypeRateLimit},
		{429, ErrorTypeRateLimit},
		{503, ErrorTypeServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorTypeForStatus(tt.status))
		})
	}
}
