package core

import (
	"slices"
	"sort"
)

// Normalize sorts asks ascending and bids descending by price, then truncates
// both sides to limit. A non-positive limit keeps every level. Venue ordering
// is never trusted.
func (b *OrderBook) Normalize(limit int) {
	slices.SortStableFunc(b.Asks, func(x, y OrderBookLevel) int {
		return x.Price.Cmp(&y.Price)
	})
	slices.SortStableFunc(b.Bids, func(x, y OrderBookLevel) int {
		return y.Price.Cmp(&x.Price)
	})
	if limit > 0 {
		if len(b.Asks) > limit {
			b.Asks = b.Asks[:limit]
		}
		if len(b.Bids) > limit {
			b.Bids = b.Bids[:limit]
		}
	}
	if b.Asks == nil {
		b.Asks = []OrderBookLevel{}
	}
	if b.Bids == nil {
		b.Bids = []OrderBookLevel{}
	}
}

// SortCandles orders candles most recent first and truncates to limit.
func SortCandles(candles []Candle, limit int) []Candle {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.After(candles[j].Timestamp)
	})
	if limit > 0 && len(candles) > limit {
		candles = candles[:limit]
	}
	return candles
}

// SortedKeys returns the symbols of a metadata map in ascending order.
func SortedKeys(meta map[string]SymbolMeta) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
