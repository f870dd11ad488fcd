package bybit

import (
	"net/http"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpgate/pkg/core"
)

var (
	testNow   = time.UnixMilli(1700000000000)
	testCreds = core.Credentials{APIKey: "test-key", SecretKey: "test-secret"}
)

func TestProtocol_Basics(t *testing.T) {
	p := NewProtocol(nil)
	assert.Equal(t, core.ExchangeBybit, p.Name())
	assert.Equal(t, "https://api.bybit.com", p.BaseURL(false))
	assert.Equal(t, "https://api-testnet.bybit.com", p.BaseURL(true))
	assert.True(t, p.Traits().BulkCancel)
	assert.False(t, p.Traits().HistoryNeedsSymbol)
}

func TestInterval(t *testing.T) {
	tests := map[string]string{
		"1d":  "D",
		"12h": "720",
		"6h":  "360",
		"4h":  "240",
		"2h":  "120",
		"1h":  "60",
		"15m": "15",
		"1m":  "1",
	}
	for in, want := range tests {
		assert.Equal(t, want, Interval(in), in)
	}
}

func TestProtocol_PlaceOrderBody(t *testing.T) {
	p := NewProtocol(nil)
	order := &core.OrderRequest{
		Symbol:     "BTCUSDT",
		Kind:       core.OrderKindLimit,
		Side:       core.SideSell,
		Quantity:   core.MustDecimal("0.5"),
		Price:      core.MustDecimal("43000"),
		ReduceOnly: true,
		ClientTag:  "tag-1",
	}

	req, err := p.BuildRequest(core.OpPlaceOrder, core.Params{core.ParamOrder: order})
	require.NoError(t, err)
	require.NoError(t, req.EncodeBody())

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v5/order/create", req.Path)

	var body map[string]any
	require.NoError(t, sonic.Unmarshal(req.Payload, &body))
	assert.Equal(t, "linear", body["category"])
	assert.Equal(t, "Limit", body["orderType"])
	assert.Equal(t, "Sell", body["side"])
	assert.Equal(t, "0.5", body["qty"])
	assert.Equal(t, "43000", body["price"])
	assert.Equal(t, "GTC", body["timeInForce"])
	assert.Equal(t, true, body["reduceOnly"])
	assert.Equal(t, true, body["closeOnTrigger"])
	assert.Equal(t, "tag-1", body["orderLinkId"])
}

func TestProtocol_PlaceMarketOrderGeneratesLinkID(t *testing.T) {
	p := NewProtocol(nil)
	order := &core.OrderRequest{
		Symbol:   "BTCUSDT",
		Kind:     core.OrderKindMarket,
		Side:     core.SideBuy,
		Quantity: core.MustDecimal("1"),
	}

	req, err := p.BuildRequest(core.OpPlaceOrder, core.Params{core.ParamOrder: order})
	require.NoError(t, err)

	body := req.Body.(map[string]any)
	assert.Equal(t, "Market", body["orderType"])
	assert.NotContains(t, body, "price")
	id := body["orderLinkId"].(string)
	assert.Len(t, id, 32)
}

func TestProtocol_SignGet(t *testing.T) {
	p := NewProtocol(nil)
	req, err := p.BuildRequest(core.OpGetPosition, core.Params{core.ParamSymbol: "BTCUSDT"})
	require.NoError(t, err)

	require.NoError(t, p.SignRequest(req, testCreds, testNow))

	assert.Equal(t, "/v5/position/list?category=linear&symbol=BTCUSDT", req.URL())
	assert.Equal(t, "9a7c8cfd6ba1a7c498aa4dd5a7f9cfbba01fcb6eebae734ffe0d775870a1a3fb", req.Headers["X-BAPI-SIGN"])
	assert.Equal(t, "test-key", req.Headers["X-BAPI-API-KEY"])
	assert.Equal(t, "1700000000000", req.Headers["X-BAPI-TIMESTAMP"])
	assert.Equal(t, "5000", req.Headers["X-BAPI-RECV-WINDOW"])
	assert.Equal(t, DefaultReferer, req.Headers["X-Referer"])
}

func TestProtocol_SignPostBody(t *testing.T) {
	p := NewProtocol(nil)
	req := core.NewRequest(http.MethodPost, "/v5/order/cancel-all")
	req.Payload = []byte(`{"category":"linear","symbol":"BTCUSDT"}`)

	require.NoError(t, p.SignRequest(req, testCreds, testNow))

	assert.Equal(t, "16378a8ca3caa3c068e2e74ef209dad5c036fec4047c7582ddcfcf13323a8275", req.Headers["X-BAPI-SIGN"])
}

func TestProtocol_BrokerAndRecvWindowOverride(t *testing.T) {
	config := core.DefaultConfig(core.ExchangeBybit).WithBrokerTag("ref-2")
	config.RecvWindow = 20 * time.Second
	p := NewProtocol(config)

	req := core.NewRequest(http.MethodGet, "/v5/order/realtime")
	require.NoError(t, p.SignRequest(req, testCreds, testNow))

	assert.Equal(t, "ref-2", req.Headers["X-Referer"])
	assert.Equal(t, "20000", req.Headers["X-BAPI-RECV-WINDOW"])
}

func TestProtocol_PendingOrdersScope(t *testing.T) {
	p := NewProtocol(nil)

	all, err := p.BuildRequest(core.OpListPendingOrders, core.Params{})
	require.NoError(t, err)
	assert.Equal(t, "USDT", all.Query.Get("settleCoin"))

	one, err := p.BuildRequest(core.OpListPendingOrders, core.Params{core.ParamSymbol: "ETHUSDT"})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", one.Query.Get("symbol"))
	assert.False(t, one.Query.Has("settleCoin"))
}

func TestProtocol_ParseResponse(t *testing.T) {
	p := NewProtocol(nil)

	t.Run("retCode error", func(t *testing.T) {
		_, err := p.ParseResponse(core.OpCancelOrder, core.Params{}, &core.Response{
			StatusCode: 200,
			Body:       []byte(`{"retCode":110001,"retMsg":"order not exists or too late to cancel","result":{}}`),
		})
		var exErr *core.ExchangeError
		require.ErrorAs(t, err, &exErr)
		assert.Equal(t, "110001", exErr.Code)
		assert.Equal(t, "order not exists or too late to cancel", exErr.Message)
		assert.Equal(t, core.ErrorTypeNotFound, exErr.Type)
	})

	t.Run("leverage not modified is success", func(t *testing.T) {
		ok, err := p.ParseResponse(core.OpSetLeverage, core.Params{}, &core.Response{
			StatusCode: 200,
			Body:       []byte(`{"retCode":110043,"retMsg":"leverage not modified","result":{}}`),
		})
		require.NoError(t, err)
		assert.Equal(t, true, ok)
	})

	t.Run("110043 elsewhere is an error", func(t *testing.T) {
		_, err := p.ParseResponse(core.OpPlaceOrder, core.Params{}, &core.Response{
			StatusCode: 200,
			Body:       []byte(`{"retCode":110043,"retMsg":"leverage not modified","result":{}}`),
		})
		assert.True(t, core.IsExchangeError(err))
	})

	t.Run("gateway error", func(t *testing.T) {
		_, err := p.ParseResponse(core.OpGetTotalEquity, core.Params{}, &core.Response{
			StatusCode: 502,
			Body:       []byte(`Bad Gateway`),
		})
		assert.True(t, core.IsTransportError(err))
	})

	t.Run("place order", func(t *testing.T) {
		id, err := p.ParseResponse(core.OpPlaceOrder, core.Params{}, &core.Response{
			StatusCode: 200,
			Body:       []byte(`{"retCode":0,"retMsg":"OK","result":{"orderId":"1321003749386327552","orderLinkId":"x"}}`),
		})
		require.NoError(t, err)
		assert.Equal(t, "1321003749386327552", id)
	})
}
