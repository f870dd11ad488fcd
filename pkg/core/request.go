package core

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
)

// Params carries the logical arguments of one operation into a venue's request builder.
type Params map[string]any

// Parameter keys shared by the adapter and every request builder.
const (
	ParamSymbol    = "symbol"
	ParamAsset     = "asset"
	ParamOrder     = "order"
	ParamOrderID   = "order_id"
	ParamLimit     = "limit"
	ParamTimeframe = "timeframe"
	ParamLeverage  = "leverage"
)

// String returns the string stored under key, or "" when absent.
func (p Params) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// RequiredString returns the non-empty string stored under key.
func (p Params) RequiredString(key string) (string, error) {
	val, ok := p[key]
	if !ok {
		return "", NewValidationError(key, "is required")
	}
	str, ok := val.(string)
	if !ok {
		return "", NewValidationError(key, "must be a string")
	}
	if str == "" {
		return "", NewValidationError(key, "cannot be empty")
	}
	return str, nil
}

// StringOr returns the string under key, or def when it is absent or empty.
func (p Params) StringOr(key, def string) string {
	if s := p.String(key); s != "" {
		return s
	}
	return def
}

// IntOr returns the integer under key, or def when absent or not positive.
func (p Params) IntOr(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case string:
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

// Order returns the order request stored under "order".
func (p Params) Order() (*OrderRequest, error) {
	o, ok := p[ParamOrder].(*OrderRequest)
	if !ok || o == nil {
		return nil, NewValidationError(ParamOrder, "is required")
	}
	return o, nil
}

// Request is a venue-specific HTTP call produced by a request builder.
type Request struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  url.Values
	// RawQuery, when set by a signer, is sent verbatim instead of Query.
	RawQuery string `json:"raw_query,omitempty"`
	// Body is the JSON body before encoding; Payload holds the exact bytes sent and signed.
	Body        any               `json:"body,omitempty"`
	Payload     []byte            `json:"-"`
	Headers     map[string]string `json:"headers,omitempty"`
	Weight      int               `json:"weight"`
	RequireAuth bool              `json:"require_auth"`
}

func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Query:   make(url.Values),
		Headers: make(map[string]string),
		Weight:  1,
	}
}

func (r *Request) SetQuery(key string, value any) *Request {
	if r.Query == nil {
		r.Query = make(url.Values)
	}
	r.Query.Set(key, fmt.Sprint(value))
	return r
}

// SetQueryIf sets key only when value is non-empty.
func (r *Request) SetQueryIf(key, value string) *Request {
	if value == "" {
		return r
	}
	return r.SetQuery(key, value)
}

func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetWeight(weight int) *Request {
	r.Weight = weight
	return r
}

func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	return r
}

// QueryString returns the canonical query: RawQuery when a signer fixed it,
// otherwise Query encoded with keys in sorted order.
func (r *Request) QueryString() string {
	if r.RawQuery != "" {
		return r.RawQuery
	}
	return r.Query.Encode()
}

// URL returns the path plus query exactly as it is transmitted and signed.
func (r *Request) URL() string {
	if qs := r.QueryString(); qs != "" {
		return r.Path + "?" + qs
	}
	return r.Path
}

// EncodeBody serializes Body into Payload once, so the signer and the
// transport see identical bytes.
func (r *Request) EncodeBody() error {
	if r.Body == nil || r.Payload != nil {
		return nil
	}
	data, err := sonic.Marshal(r.Body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	r.Payload = data
	return nil
}

// Response is the raw result handed back by the transport.
type Response struct {
	StatusCode int
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
