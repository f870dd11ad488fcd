// Package binance implements the Binance USDⓈ-M futures protocol.
//
// Signed calls carry timestamp and recvWindow in the query string, an
// HMAC-SHA256 signature appended last and the key in X-MBX-APIKEY. Market
// data endpoints are called unsigned.
//
// Example usage:
//
//	cfg := core.DefaultConfig(core.ExchangeBinance).WithCredentials(&core.Credentials{
//		APIKey:    key,
//		SecretKey: secret,
//	})
//	ex, err := binance.New(cfg, exchange.WithLogger(logger))
//	book, err := ex.GetOrderBook(ctx, "BTCUSDT", 10)
package binance
