// Package orderly implements the Orderly Network EVM protocol.
//
// Private calls are signed with the account's Ed25519 key, supplied as an
// "ed25519:"-prefixed base58 secret, and carry the account id. Balance and
// equity both report the account's total collateral value.
package orderly
