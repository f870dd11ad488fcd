package gateio

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON[T any](t *testing.T, raw string) T {
	t.Helper()
	var out T
	require.NoError(t, sonic.Unmarshal([]byte(raw), &out))
	return out
}

func TestNormalizer_Symbols(t *testing.T) {
	contracts := decodeJSON[[]gateContract](t, `[{"name":"BTC_USDT","order_size_min":1,"order_size_max":1000000,
		"order_price_round":"0.1","quanto_multiplier":"0.0001"}]`)

	meta, err := NewNormalizer().NormalizeSymbols(contracts)
	require.NoError(t, err)

	btc := meta["BTC_USDT"]
	assert.Equal(t, "1", btc.AmountTick.String())
	assert.Equal(t, "0.1", btc.PriceTick.String())
	assert.Equal(t, "1", btc.MinNotionalValue.String())
	assert.Equal(t, "1000000", btc.MaxOrderSize.String())
	assert.Equal(t, "0.0001", btc.ContractValue.String())
}

func TestNormalizer_Positions(t *testing.T) {
	rows := decodeJSON[[]gatePosition](t, `[
		{"contract":"BTC_USDT","size":-12,"entry_price":"42000.1","unrealised_pnl":"-3.5"},
		{"contract":"ETH_USDT","size":0,"entry_price":"0","unrealised_pnl":""},
		{"contract":"SOL_USDT","size":5,"entry_price":"60","unrealised_pnl":""}]`)

	all, err := NewNormalizer().NormalizePositions(rows)
	require.NoError(t, err)
	require.Len(t, all, 2)
	btc, sol := all["BTC_USDT"], all["SOL_USDT"]
	assert.Equal(t, "-12", btc.Amount.String())
	assert.Equal(t, "-3.5", btc.UnrealisedPnl.String())
	assert.True(t, sol.UnrealisedPnl.IsZero())
}

func TestNormalizer_PendingOrders(t *testing.T) {
	orders := decodeJSON[[]gateOrder](t, `[
		{"id":101,"contract":"BTC_USDT","size":-2,"price":"45000","create_time":1700000000.5}]`)

	out, err := NewNormalizer().NormalizePendingOrders(orders)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "101", out[0].OrderID)
	assert.Equal(t, "-2", out[0].Amount.String())
	assert.Equal(t, int64(1700000000500), out[0].CreatedAt.UnixMilli())
}

func TestNormalizer_TradeHistory(t *testing.T) {
	trades := decodeJSON[[]gateTrade](t, `[
		{"id":9,"order_id":"55","contract":"BTC_USDT","size":-1,"price":"43000","create_time":1700000001},
		{"id":10,"contract":"BTC_USDT","size":2,"price":"43100","create_time":1700000002}]`)

	out, err := NewNormalizer().NormalizeTradeHistory(trades)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "55", out[0].ID)
	assert.Equal(t, "-1", out[0].Amount.String())
	assert.Equal(t, "10", out[1].ID)
}

func TestNormalizer_PositionHistory(t *testing.T) {
	rows := decodeJSON[[]gatePositionClose](t, `[
		{"time":1700000100,"contract":"BTC_USDT","side":"short","pnl":"12.5","accum_size":"3",
			"long_price":"0","short_price":"44000","first_open_time":1699990000},
		{"time":1700000200,"contract":"BTC_USDT","side":"long","pnl":"-1","accum_size":"2",
			"long_price":"42000","short_price":"0","first_open_time":1699990100}]`)

	out, err := NewNormalizer().NormalizePositionHistory(rows)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "-3", out[0].Amount.String())
	assert.Equal(t, "44000", out[0].Price.String())
	assert.Equal(t, "1699990000", out[0].ID)

	assert.Equal(t, "2", out[1].Amount.String())
	assert.Equal(t, "42000", out[1].Price.String())
	assert.Equal(t, "-1", out[1].Pnl.String())
}

func TestNormalizer_OrderBookAndCandles(t *testing.T) {
	n := NewNormalizer()

	book := decodeJSON[gateOrderBook](t, `{"asks":[{"p":"43001","s":5}],"bids":[{"p":"42999","s":7}]}`)
	ob, err := n.NormalizeOrderBook(&book)
	require.NoError(t, err)
	assert.Equal(t, "43001", ob.Asks[0].Price.String())
	assert.Equal(t, "7", ob.Bids[0].Quantity.String())

	candles := decodeJSON[[]gateCandle](t, `[{"t":1700000000,"o":"1","h":"2","l":"0.5","c":"1.5","v":120}]`)
	out, err := n.NormalizeCandles(candles)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1700000000), out[0].Timestamp.Unix())
	assert.Equal(t, "120", out[0].Volume.String())
}
