package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func level(price, qty string) OrderBookLevel {
	return OrderBookLevel{Price: MustDecimal(price), Quantity: MustDecimal(qty)}
}

func TestOrderBook_Normalize(t *testing.T) {
	book := &OrderBook{
		Asks: []OrderBookLevel{level("101", "1"), level("100.5", "2"), level("102", "3")},
		Bids: []OrderBookLevel{level("99", "1"), level("99.5", "2"), level("98", "3")},
	}

	book.Normalize(2)

	require.Len(t, book.Asks, 2)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, "100.5", book.Asks[0].Price.String())
	assert.Equal(t, "101", book.Asks[1].Price.String())
	assert.Equal(t, "99.5", book.Bids[0].Price.String())
	assert.Equal(t, "99", book.Bids[1].Price.String())
}

func TestOrderBook_NormalizeKeepsAllWithoutLimit(t *testing.T) {
	book := &OrderBook{Asks: []OrderBookLevel{level("2", "1"), level("1", "1")}}

	book.Normalize(0)

	assert.Len(t, book.Asks, 2)
	assert.NotNil(t, book.Bids)
	assert.Empty(t, book.Bids)
}

func TestSortCandles(t *testing.T) {
	base := time.UnixMilli(1700000000000).UTC()
	candles := []Candle{
		{Timestamp: base, Close: MustDecimal("1")},
		{Timestamp: base.Add(2 * time.Minute), Close: MustDecimal("3")},
		{Timestamp: base.Add(time.Minute), Close: MustDecimal("2")},
	}

	sorted := SortCandles(candles, 2)

	require.Len(t, sorted, 2)
	assert.Equal(t, "3", sorted[0].Close.String())
	assert.Equal(t, "2", sorted[1].Close.String())
}

func TestSortedKeys(t *testing.T) {
	meta := map[string]SymbolMeta{"ETHUSDT": {}, "BTCUSDT": {}, "SOLUSDT": {}}
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, SortedKeys(meta))
}
