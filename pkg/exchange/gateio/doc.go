// Package gateio implements the Gate.io v4 futures protocol for USDT-settled
// contracts.
//
// Gate.io has no success envelope: a 2xx status is success and failures
// carry a {label, message} body. Order sizes are signed whole contract
// counts, negative for sells.
package gateio
