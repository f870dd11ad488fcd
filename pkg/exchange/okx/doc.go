// Package okx implements the OKX v5 protocol for USDT perpetual swaps.
//
// Requests are signed with HMAC-SHA256 over an ISO-8601 timestamp, method,
// request path and body, and carry the account passphrase. OKX has no
// cancel-all endpoint for swaps, so CancelAllOrders lists the pending
// orders of a symbol and cancels them one at a time.
package okx
