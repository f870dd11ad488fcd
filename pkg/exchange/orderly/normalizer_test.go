package orderly

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

const positionsPayload = `{"total_collateral_value":1523.75,"rows":[
	{"symbol":"PERP_BTC_USDC","position_qty":-0.25,"average_open_price":42000.5,"unsettled_pnl":12.5},
	{"symbol":"PERP_ETH_USDC","position_qty":0,"average_open_price":0,"unsettled_pnl":0},
	{"symbol":"PERP_SOL_USDC","position_qty":4,"average_open_price":61.2,"unsettled_pnl":null}]}`

func TestNormalizer_Symbols(t *testing.T) {
	rows := decodeJSON[[]orderlyInfo](t, `[
		{"symbol":"PERP_BTC_USDC","base_tick":0.00001,"quote_tick":0.1,"min_notional":10,"base_max":20}]`)

	meta, err := NewNormalizer().NormalizeSymbols(rows)
	require.NoError(t, err)

	btc := meta["PERP_BTC_USDC"]
	assert.Equal(t, "0.00001", btc.AmountTick.String())
	assert.Equal(t, "0.1", btc.PriceTick.String())
	assert.Equal(t, "10", btc.MinNotionalValue.String())
	assert.Equal(t, "20", btc.MaxOrderSize.String())
	assert.Equal(t, "1", btc.ContractValue.String())
}

func TestNormalizer_Collateral(t *testing.T) {
	data := decodeJSON[orderlyPositions](t, positionsPayload)
	value, err := NewNormalizer().NormalizeCollateral(&data)
	require.NoError(t, err)
	assert.Equal(t, "1523.75", value.String())
}

func TestNormalizer_Positions(t *testing.T) {
	data := decodeJSON[orderlyPositions](t, positionsPayload)
	n := NewNormalizer()

	all, err := n.NormalizePositions(&data)
	require.NoError(t, err)
	require.Len(t, all, 2)
	btcPos, solPos := all["PERP_BTC_USDC"], all["PERP_SOL_USDC"]
	assert.Equal(t, "-0.25", btcPos.Amount.String())
	assert.True(t, solPos.UnrealisedPnl.IsZero())

	btc, err := n.NormalizePosition(&data, "PERP_BTC_USDC")
	require.NoError(t, err)
	assert.Equal(t, "42000.5", btc.AverageEntryPrice.String())

	missing, err := n.NormalizePosition(&data, "PERP_DOGE_USDC")
	require.NoError(t, err)
	assert.True(t, missing.IsFlat())
}

func TestNormalizer_PendingOrders(t *testing.T) {
	orders := decodeJSON[[]orderlyOrder](t, `[
		{"order_id":77,"symbol":"PERP_BTC_USDC","side":"SELL","price":45000,"quantity":0.1,"created_time":1700000000000},
		{"order_id":78,"symbol":"PERP_BTC_USDC","side":"BUY","price":41000,"quantity":0.2,"created_time":1700000000100}]`)

	out, err := NewNormalizer().NormalizePendingOrders(orders)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "77", out[0].OrderID)
	assert.Equal(t, "-0.1", out[0].Amount.String())
	assert.Equal(t, "0.2", out[1].Amount.String())
	assert.Equal(t, int64(1700000000100), out[1].CreatedAt.UnixMilli())
}

func TestNormalizer_TradeHistory(t *testing.T) {
	trades := decodeJSON[[]orderlyTrade](t, `[
		{"order_id":5,"symbol":"PERP_ETH_USDC","side":"SELL","executed_price":2200.5,"executed_quantity":1.5,"executed_timestamp":1700000000555}]`)

	out, err := NewNormalizer().NormalizeTradeHistory(trades)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "5", out[0].ID)
	assert.Equal(t, "-1.5", out[0].Amount.String())
	assert.Equal(t, "2200.5", out[0].Price.String())
}

func TestNormalizer_PositionHistory(t *testing.T) {
	rows := decodeJSON[[]orderlyClosedPosition](t, `[
		{"position_id":1,"symbol":"PERP_BTC_USDC","side":"SHORT","avg_open_price":43000,"closed_position_qty":0.5,
			"realized_pnl":-20.5,"close_timestamp":1700000001000,"last_update_time":1700000001000},
		{"position_id":2,"symbol":"PERP_BTC_USDC","side":"LONG","avg_open_price":42000,"closed_position_qty":0.1,
			"realized_pnl":3,"close_timestamp":null,"last_update_time":1700000002000}]`)

	out, err := NewNormalizer().NormalizePositionHistory(rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "-0.5", out[0].Amount.String())
	assert.Equal(t, "-20.5", out[0].Pnl.String())
	assert.Equal(t, "0.1", out[1].Amount.String())
	assert.Equal(t, int64(1700000002000), out[1].ExecutedAt.UnixMilli())
}

func TestNormalizer_OrderBookAndKlines(t *testing.T) {
	n := NewNormalizer()

	book := decodeJSON[orderlyBook](t, `{"asks":[{"price":43001,"quantity":1.2}],"bids":[{"price":42999,"quantity":0.8}]}`)
	ob, err := n.NormalizeOrderBook(&book)
	require.NoError(t, err)
	assert.Equal(t, "43001", ob.Asks[0].Price.String())
	assert.Equal(t, "0.8", ob.Bids[0].Quantity.String())

	klines := decodeJSON[[]orderlyKline](t, `[
		{"open":1,"high":2,"low":0.5,"close":1.5,"volume":100,"start_timestamp":1700000000000,"end_timestamp":1700000060000}]`)
	candles, err := n.NormalizeCandles(klines)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, "1.5", candles[0].Close.String())
	assert.Equal(t, int64(1700000000000), candles[0].Timestamp.UnixMilli())
}
