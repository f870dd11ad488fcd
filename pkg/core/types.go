package core

import (
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// OrderSide represents the direction of an order (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
const (
	// SideBuy indicates an order to purchase a contract.
	SideBuy OrderSide = iota
	// SideSell indicates an order to sell a contract.
	SideSell
)

// String returns the string representation of the order side ("BUY" or "SELL").
func (s OrderSide) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	}
	return "UNKNOWN"
}

// Valid reports whether s is one of the defined sides.
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
// It accepts both uppercase and lowercase formats.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	str := string(data)
	switch str {
	case `"BUY"`, `"buy"`:
		*s = SideBuy
	case `"SELL"`, `"sell"`:
		*s = SideSell
	}
	return nil
}

// ParseOrderSide converts "buy"/"sell" in any casing into an OrderSide.
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToLower(s) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return SideBuy, NewValidationError("side", "must be buy or sell, got %q", s)
}

// IsSellSide reports whether a venue side or direction string means sell or
// short, in any casing.
func IsSellSide(s string) bool {
	return strings.EqualFold(s, "sell") || strings.EqualFold(s, "short")
}

// OrderKind is the execution style of an order.
type OrderKind int

const (
	// OrderKindLimit rests on the book at a fixed price.
	OrderKindLimit OrderKind = iota
	// OrderKindMarket executes immediately against the book.
	OrderKindMarket
)

// String returns "LIMIT" or "MARKET".
func (k OrderKind) String() string {
	switch k {
	case OrderKindLimit:
		return "LIMIT"
	case OrderKindMarket:
		return "MARKET"
	}
	return "UNKNOWN"
}

// Valid reports whether k is one of the defined kinds.
func (k OrderKind) Valid() bool {
	return k == OrderKindLimit || k == OrderKindMarket
}

// MarshalJSON implements json.Marshaler for OrderKind.
func (k OrderKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderKind.
func (k *OrderKind) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"LIMIT"`, `"limit"`:
		*k = OrderKindLimit
	case `"MARKET"`, `"market"`:
		*k = OrderKindMarket
	}
	return nil
}

// ParseOrderKind converts "limit"/"market" in any casing into an OrderKind.
func ParseOrderKind(s string) (OrderKind, error) {
	switch strings.ToLower(s) {
	case "limit":
		return OrderKindLimit, nil
	case "market":
		return OrderKindMarket, nil
	}
	return OrderKindLimit, NewValidationError("kind", "must be limit or market, got %q", s)
}

// SymbolMeta holds the trading constraints of one contract.
type SymbolMeta struct {
	// AmountTick is the minimum quantity increment.
	AmountTick apd.Decimal `json:"amount_tick"`
	// PriceTick is the minimum price increment.
	PriceTick apd.Decimal `json:"price_tick"`
	// MinNotionalValue is the smallest order the exchange accepts.
	MinNotionalValue apd.Decimal `json:"min_notional_value"`
	// MaxOrderSize is the largest quantity accepted in one order. Zero means unknown.
	MaxOrderSize apd.Decimal `json:"max_order_size"`
	// ContractValue is the notional represented by one contract unit.
	ContractValue apd.Decimal `json:"contract_value"`
}

// Position is an open position in one symbol.
// Amount is positive for long and negative for short.
type Position struct {
	Amount            apd.Decimal `json:"amount"`
	AverageEntryPrice apd.Decimal `json:"average_entry_price"`
	UnrealisedPnl     apd.Decimal `json:"unrealised_pnl"`
}

// IsFlat reports whether the position holds no contracts.
func (p Position) IsFlat() bool {
	return p.Amount.IsZero()
}

// PositionSet maps symbol to its open position. Flat positions are never stored.
type PositionSet map[string]Position

// Add stores p under symbol unless it is flat.
func (s PositionSet) Add(symbol string, p Position) {
	if p.IsFlat() {
		return
	}
	s[symbol] = p
}

// PendingOrder is a resting order. Amount is negative for sell orders.
type PendingOrder struct {
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol,omitempty"`
	Price     apd.Decimal `json:"price"`
	Amount    apd.Decimal `json:"amount"`
	CreatedAt time.Time   `json:"created_at"`
}

// TradeRecord is one executed order or fill. Amount is negative for sells.
type TradeRecord struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol,omitempty"`
	Price      apd.Decimal `json:"price"`
	Amount     apd.Decimal `json:"amount"`
	ExecutedAt time.Time   `json:"executed_at"`
}

// PositionHistoryRecord is a closed or reduced position with its realised PnL.
// Amount is negative for short positions.
type PositionHistoryRecord struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol,omitempty"`
	Price      apd.Decimal `json:"price"`
	Pnl        apd.Decimal `json:"pnl"`
	Amount     apd.Decimal `json:"amount"`
	ExecutedAt time.Time   `json:"executed_at"`
}

// OrderBookLevel represents a single price level in the order book.
type OrderBookLevel struct {
	// Price is the limit price for this level.
	Price apd.Decimal `json:"price"`
	// Quantity is the total quantity available at this price.
	Quantity apd.Decimal `json:"qty"`
}

// OrderBook is a depth snapshot with both sides ordered nearest-to-mid first.
type OrderBook struct {
	// Asks are sell levels sorted by price ascending.
	Asks []OrderBookLevel `json:"asks"`
	// Bids are buy levels sorted by price descending.
	Bids []OrderBookLevel `json:"bids"`
}

// Candle represents one OHLCV bar.
type Candle struct {
	Open      apd.Decimal `json:"open"`
	High      apd.Decimal `json:"high"`
	Low       apd.Decimal `json:"low"`
	Close     apd.Decimal `json:"close"`
	Volume    apd.Decimal `json:"volume"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderRequest contains the parameters required to place a new order.
type OrderRequest struct {
	Symbol   string
	Kind     OrderKind
	Side     OrderSide
	Quantity apd.Decimal
	// Price is required for limit orders and ignored for market orders.
	Price      apd.Decimal
	ReduceOnly bool
	// ClientTag correlates the order with caller records. When empty the
	// adapter generates a unique client order id.
	ClientTag string
}

// Validate checks the request before any network call is made.
func (r *OrderRequest) Validate() error {
	if r.Symbol == "" {
		return NewValidationError("symbol", "is required")
	}
	if !r.Side.Valid() {
		return NewValidationError("side", "unknown order side %d", int(r.Side))
	}
	if !r.Kind.Valid() {
		return NewValidationError("kind", "unknown order kind %d", int(r.Kind))
	}
	if r.Quantity.Sign() <= 0 {
		return NewValidationError("quantity", "must be positive, got %s", r.Quantity.String())
	}
	if r.Kind == OrderKindLimit && r.Price.Sign() <= 0 {
		return NewValidationError("price", "limit order requires a positive price")
	}
	return nil
}
