package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpgate/pkg/core"
	"perpgate/pkg/exchange"
)

type recorder struct {
	mu      sync.Mutex
	queries []url.Values
	raw     []string
	headers []http.Header
}

func newTestServer(t *testing.T, routes map[string]string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.queries = append(rec.queries, r.URL.Query())
		rec.raw = append(rec.raw, r.URL.RawQuery)
		rec.headers = append(rec.headers, r.Header.Clone())
		rec.mu.Unlock()

		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":-1,"msg":"no route"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestAdapter(t *testing.T, baseURL string) *exchange.Adapter {
	t.Helper()
	config := core.DefaultConfig(core.ExchangeBinance).WithCredentials(&core.Credentials{
		APIKey:    "test-key",
		SecretKey: "test-secret",
	})
	ex, err := New(config, exchange.WithBaseURL(baseURL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

func TestNew_Defaults(t *testing.T) {
	ex, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, core.ExchangeBinance, ex.Name())
	assert.True(t, ex.Traits().BulkCancel)
}

func TestNew_WrongExchange(t *testing.T) {
	_, err := New(core.DefaultConfig(core.ExchangeOKX))
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	c := exchange.NewContainer()
	require.NoError(t, Register(c, "binance-main", core.DefaultConfig(core.ExchangeBinance)))

	ex, err := c.Get("binance-main")
	require.NoError(t, err)
	assert.Equal(t, core.ExchangeBinance, ex.Name())
}

func TestExchange_GetOrderBookSortsAndTruncates(t *testing.T) {
	srv, rec := newTestServer(t, map[string]string{
		"GET /fapi/v1/depth": `{"lastUpdateId":1,"asks":[["100.5","2"],["100.2","1"]],"bids":[["100.1","3"],["100.4","1"]]}`,
	})
	ex := newTestAdapter(t, srv.URL)

	book, err := ex.GetOrderBook(context.Background(), "BTCUSDT", 2)
	require.NoError(t, err)

	require.Len(t, book.Asks, 2)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, "100.2", book.Asks[0].Price.String())
	assert.Equal(t, "1", book.Asks[0].Quantity.String())
	assert.Equal(t, "100.5", book.Asks[1].Price.String())
	assert.Equal(t, "100.4", book.Bids[0].Price.String())
	assert.Equal(t, "100.1", book.Bids[1].Price.String())

	require.Len(t, rec.queries, 1)
	assert.Equal(t, "5", rec.queries[0].Get("limit"))
	assert.Empty(t, rec.headers[0].Get("X-MBX-APIKEY"))
	assert.False(t, rec.queries[0].Has("signature"))
}

func TestExchange_PlaceOrderGeneratesUniqueTags(t *testing.T) {
	srv, rec := newTestServer(t, map[string]string{
		"POST /fapi/v1/order": `{"orderId":123,"symbol":"BTCUSDT","status":"NEW"}`,
	})
	ex := newTestAdapter(t, srv.URL)

	order := &core.OrderRequest{
		Symbol:   "BTCUSDT",
		Kind:     core.OrderKindLimit,
		Side:     core.SideBuy,
		Quantity: core.MustDecimal("0.01"),
		Price:    core.MustDecimal("42000"),
	}
	for range 2 {
		id, err := ex.PlaceOrder(context.Background(), order)
		require.NoError(t, err)
		assert.Equal(t, "123", id)
	}

	require.Len(t, rec.queries, 2)
	first := rec.queries[0].Get("newClientOrderId")
	second := rec.queries[1].Get("newClientOrderId")
	assert.NotEqual(t, first, second)
	for _, id := range []string{first, second} {
		assert.LessOrEqual(t, len(id), 36)
		assert.NotEmpty(t, id)
	}
	assert.Equal(t, "test-key", rec.headers[0].Get("X-MBX-APIKEY"))
	assert.NotEmpty(t, rec.queries[0].Get("signature"))
	assert.Equal(t, "5000", rec.queries[0].Get("recvWindow"))
}

func TestExchange_ApplicationErrorOn200(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"DELETE /fapi/v1/allOpenOrders": `{"code":-1121,"msg":"Invalid symbol."}`,
	})
	ex := newTestAdapter(t, srv.URL)

	_, err := ex.CancelAllOrders(context.Background(), "NOPE")

	var exErr *core.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "-1121", exErr.Code)
	assert.Equal(t, "Invalid symbol.", exErr.Message)
}

func TestExchange_HistoryWithoutSymbol(t *testing.T) {
	srv, rec := newTestServer(t, nil)
	ex := newTestAdapter(t, srv.URL)

	_, err := ex.ListTradeHistory(context.Background(), "", 10)
	assert.True(t, core.IsValidationError(err))
	assert.Empty(t, rec.queries)
}

func TestExchange_GetPositionAndBalance(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		"GET /fapi/v3/positionRisk": `[{"symbol":"BTCUSDT","positionAmt":"-0.250","entryPrice":"43000.0","unRealizedProfit":"-5.1"}]`,
		"GET /fapi/v3/account":      `{"totalWalletBalance":"2500.00","assets":[{"asset":"USDT","walletBalance":"2400.00"}]}`,
	})
	ex := newTestAdapter(t, srv.URL)
	ctx := context.Background()

	pos, err := ex.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "-0.250", pos.Amount.String())

	bal, err := ex.GetBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, "2400.00", bal.String())

	equity, err := ex.GetTotalEquity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2500.00", equity.String())
}

func TestExchange_SignedCallUsesKeyRingSecret(t *testing.T) {
	srv, rec := newTestServer(t, map[string]string{
		"GET /fapi/v3/account": `{"totalWalletBalance":"10","assets":[{"asset":"USDT","walletBalance":"7.5"}]}`,
	})
	config := core.DefaultConfig(core.ExchangeBinance).WithCredentials(&core.Credentials{
		APIKey:    "test-key",
		SecretKey: "topsecret",
	})
	ex, err := New(config,
		exchange.WithBaseURL(srv.URL),
		exchange.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		bal, err := ex.GetBalance(ctx, "USDT")
		require.NoError(t, err)
		assert.Equal(t, "7.5", bal.String())
	}

	require.Len(t, rec.raw, 2)
	for i, raw := range rec.raw {
		payload, sig, ok := strings.Cut(raw, "&signature=")
		require.True(t, ok, raw)
		mac := hmac.New(sha256.New, []byte("topsecret"))
		mac.Write([]byte(payload))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
		assert.Equal(t, "test-key", rec.headers[i].Get("X-MBX-APIKEY"))
	}
}
