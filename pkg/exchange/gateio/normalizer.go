package gateio

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"perpgate/pkg/core"
)

// gateError is the body of every non-2xx response.
type gateError struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

type gateContract struct {
	Name             string      `json:"name"`
	OrderSizeMin     core.Scalar `json:"order_size_min"`
	OrderSizeMax     core.Scalar `json:"order_size_max"`
	OrderPriceRound  core.Scalar `json:"order_price_round"`
	QuantoMultiplier core.Scalar `json:"quanto_multiplier"`
}

type gateAccount struct {
	Total    core.Scalar `json:"total"`
	Currency string      `json:"currency"`
}

type gateTrade struct {
	ID         core.Scalar `json:"id"`
	OrderID    core.Scalar `json:"order_id"`
	Contract   string      `json:"contract"`
	Size       core.Scalar `json:"size"`
	Price      core.Scalar `json:"price"`
	CreateTime core.Scalar `json:"create_time"`
}

type gatePosition struct {
	Contract      string      `json:"contract"`
	Size          core.Scalar `json:"size"`
	EntryPrice    core.Scalar `json:"entry_price"`
	UnrealisedPnl core.Scalar `json:"unrealised_pnl"`
}

type gateOrder struct {
	ID         core.Scalar `json:"id"`
	Contract   string      `json:"contract"`
	Size       core.Scalar `json:"size"`
	Price      core.Scalar `json:"price"`
	CreateTime core.Scalar `json:"create_time"`
}

type gatePositionClose struct {
	Time          core.Scalar `json:"time"`
	Contract      string      `json:"contract"`
	Side          string      `json:"side"`
	Pnl           core.Scalar `json:"pnl"`
	AccumSize     core.Scalar `json:"accum_size"`
	LongPrice     core.Scalar `json:"long_price"`
	ShortPrice    core.Scalar `json:"short_price"`
	FirstOpenTime core.Scalar `json:"first_open_time"`
}

type gateBookLevel struct {
	P core.Scalar `json:"p"`
	S core.Scalar `json:"s"`
}

type gateOrderBook struct {
	Asks []gateBookLevel `json:"asks"`
	Bids []gateBookLevel `json:"bids"`
}

type gateCandle struct {
	T core.Scalar `json:"t"`
	O core.Scalar `json:"o"`
	H core.Scalar `json:"h"`
	L core.Scalar `json:"l"`
	C core.Scalar `json:"c"`
	V core.Scalar `json:"v"`
}

// Normalizer converts Gate.io v4 futures payloads into canonical types.
// Sizes are signed contract counts and times are epoch seconds.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeSymbols uses order_size_min both as the amount tick and as the
// minimum order value, since Gate.io sizes orders in whole contracts.
func (n *Normalizer) NormalizeSymbols(contracts []gateContract) (map[string]core.SymbolMeta, error) {
	out := make(map[string]core.SymbolMeta, len(contracts))
	for _, c := range contracts {
		var p core.FieldParser
		out[c.Name] = core.SymbolMeta{
			AmountTick:       p.Decimal("order_size_min", c.OrderSizeMin.String()),
			PriceTick:        p.Decimal("order_price_round", c.OrderPriceRound.String()),
			MinNotionalValue: p.Decimal("order_size_min", c.OrderSizeMin.String()),
			MaxOrderSize:     p.DecimalOrZero("order_size_max", c.OrderSizeMax.String()),
			ContractValue:    p.Decimal("quanto_multiplier", c.QuantoMultiplier.String()),
		}
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.Name, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeBalance(account *gateAccount) (apd.Decimal, error) {
	var p core.FieldParser
	total := p.DecimalOrZero("total", account.Total.String())
	return total, p.Err()
}

func (n *Normalizer) NormalizeLastPrice(trades []gateTrade) (apd.Decimal, error) {
	if len(trades) == 0 {
		return apd.Decimal{}, fmt.Errorf("no trades returned")
	}
	var p core.FieldParser
	price := p.Decimal("price", trades[0].Price.String())
	return price, p.Err()
}

func (n *Normalizer) NormalizePosition(data *gatePosition) (core.Position, error) {
	var p core.FieldParser
	pos := core.Position{
		Amount:            p.Decimal("size", data.Size.String()),
		AverageEntryPrice: p.DecimalOrZero("entry_price", data.EntryPrice.String()),
		UnrealisedPnl:     p.DecimalOrZero("unrealised_pnl", data.UnrealisedPnl.String()),
	}
	return pos, p.Err()
}

func (n *Normalizer) NormalizePositions(rows []gatePosition) (core.PositionSet, error) {
	out := make(core.PositionSet)
	for i := range rows {
		pos, err := n.NormalizePosition(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", rows[i].Contract, err)
		}
		out.Add(rows[i].Contract, pos)
	}
	return out, nil
}

func (n *Normalizer) NormalizePendingOrders(orders []gateOrder) ([]core.PendingOrder, error) {
	out := make([]core.PendingOrder, 0, len(orders))
	for _, o := range orders {
		var p core.FieldParser
		out = append(out, core.PendingOrder{
			OrderID:   o.ID.String(),
			Symbol:    o.Contract,
			Price:     p.Decimal("price", o.Price.String()),
			Amount:    p.Decimal("size", o.Size.String()),
			CreatedAt: p.Seconds("create_time", o.CreateTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
	}
	return out, nil
}

// NormalizeTradeHistory identifies each fill by its order id, falling back
// to the trade id.
func (n *Normalizer) NormalizeTradeHistory(trades []gateTrade) ([]core.TradeRecord, error) {
	out := make([]core.TradeRecord, 0, len(trades))
	for _, t := range trades {
		id := t.OrderID
		if id.IsEmpty() {
			id = t.ID
		}
		var p core.FieldParser
		out = append(out, core.TradeRecord{
			ID:         id.String(),
			Symbol:     t.Contract,
			Price:      p.Decimal("price", t.Price.String()),
			Amount:     p.Decimal("size", t.Size.String()),
			ExecutedAt: p.Seconds("create_time", t.CreateTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("trade %s: %w", t.ID, err)
		}
	}
	return out, nil
}

// NormalizePositionHistory reports the long entry price for long closes and
// the short entry price for short ones.
func (n *Normalizer) NormalizePositionHistory(rows []gatePositionClose) ([]core.PositionHistoryRecord, error) {
	out := make([]core.PositionHistoryRecord, 0, len(rows))
	for _, r := range rows {
		short := r.Side == "short" || strings.HasPrefix(r.AccumSize.String(), "-")
		price := r.LongPrice
		if short {
			price = r.ShortPrice
		}
		var p core.FieldParser
		out = append(out, core.PositionHistoryRecord{
			ID:         r.FirstOpenTime.String(),
			Symbol:     r.Contract,
			Price:      p.DecimalOrZero("price", price.String()),
			Pnl:        p.DecimalOrZero("pnl", r.Pnl.String()),
			Amount:     p.Signed("accum_size", r.AccumSize.String(), short),
			ExecutedAt: p.Seconds("time", r.Time.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("position %s: %w", r.Contract, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeOrderBook(data *gateOrderBook) (*core.OrderBook, error) {
	asks, err := core.ParseLevels(levelPairs(data.Asks))
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	bids, err := core.ParseLevels(levelPairs(data.Bids))
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	return &core.OrderBook{Asks: asks, Bids: bids}, nil
}

func levelPairs(levels []gateBookLevel) [][]core.Scalar {
	out := make([][]core.Scalar, len(levels))
	for i, l := range levels {
		out[i] = []core.Scalar{l.P, l.S}
	}
	return out
}

func (n *Normalizer) NormalizeCandles(rows []gateCandle) ([]core.Candle, error) {
	out := make([]core.Candle, 0, len(rows))
	for i, k := range rows {
		var p core.FieldParser
		out = append(out, core.Candle{
			Timestamp: p.Seconds("t", k.T.String()),
			Open:      p.Decimal("o", k.O.String()),
			High:      p.Decimal("h", k.H.String()),
			Low:       p.Decimal("l", k.L.String()),
			Close:     p.Decimal("c", k.C.String()),
			Volume:    p.DecimalOrZero("v", k.V.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
	}
	return out, nil
}
