// Package bybit implements the Bybit v5 protocol for USDT linear contracts.
// Signed calls put an HMAC-SHA256 of timestamp, key, recv window, query and
// body in X-BAPI-SIGN.
package bybit
