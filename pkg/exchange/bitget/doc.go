// Package bitget implements the Bitget v2 mix protocol for USDT-margined
// futures.
package bitget
