package bybit

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"perpgate/pkg/core"
)

// bybitStatus is the part of every v5 envelope that decides success.
type bybitStatus struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
}

type bybitEnvelope[T any] struct {
	bybitStatus
	Result T `json:"result"`
}

type bybitList[T any] struct {
	List []T `json:"list"`
}

type bybitInstrument struct {
	Symbol        string `json:"symbol"`
	LotSizeFilter struct {
		QtyStep          core.Scalar `json:"qtyStep"`
		MinOrderQty      core.Scalar `json:"minOrderQty"`
		MinNotionalValue core.Scalar `json:"minNotionalValue"`
		MaxMktOrderQty   core.Scalar `json:"maxMktOrderQty"`
	} `json:"lotSizeFilter"`
	PriceFilter struct {
		TickSize core.Scalar `json:"tickSize"`
	} `json:"priceFilter"`
}

type bybitWallet struct {
	TotalEquity core.Scalar `json:"totalEquity"`
	Coin        []struct {
		Coin          string      `json:"coin"`
		WalletBalance core.Scalar `json:"walletBalance"`
	} `json:"coin"`
}

type bybitTicker struct {
	Symbol    string      `json:"symbol"`
	LastPrice core.Scalar `json:"lastPrice"`
}

type bybitPosition struct {
	Symbol        string      `json:"symbol"`
	Side          string      `json:"side"`
	Size          core.Scalar `json:"size"`
	AvgPrice      core.Scalar `json:"avgPrice"`
	UnrealisedPnl core.Scalar `json:"unrealisedPnl"`
}

type bybitOrder struct {
	OrderID     string      `json:"orderId"`
	OrderLinkID string      `json:"orderLinkId"`
	Symbol      string      `json:"symbol"`
	Side        string      `json:"side"`
	Price       core.Scalar `json:"price"`
	Qty         core.Scalar `json:"qty"`
	CreatedTime core.Scalar `json:"createdTime"`
}

type bybitExecution struct {
	OrderID   string      `json:"orderId"`
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	ExecPrice core.Scalar `json:"execPrice"`
	ExecQty   core.Scalar `json:"execQty"`
	ExecTime  core.Scalar `json:"execTime"`
}

type bybitClosedPnl struct {
	OrderID     string      `json:"orderId"`
	Symbol      string      `json:"symbol"`
	Side        string      `json:"side"`
	Qty         core.Scalar `json:"qty"`
	OrderPrice  core.Scalar `json:"orderPrice"`
	ClosedPnl   core.Scalar `json:"closedPnl"`
	UpdatedTime core.Scalar `json:"updatedTime"`
}

type bybitOrderBook struct {
	Symbol string          `json:"s"`
	Asks   [][]core.Scalar `json:"a"`
	Bids   [][]core.Scalar `json:"b"`
}

// bybitKline is [startTime, open, high, low, close, volume, turnover].
type bybitKline []core.Scalar

// Normalizer converts Bybit v5 linear payloads into canonical types.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeSymbols prefers the published minimum notional and falls back
// to the minimum order quantity on instruments that lack one.
func (n *Normalizer) NormalizeSymbols(instruments []bybitInstrument) (map[string]core.SymbolMeta, error) {
	out := make(map[string]core.SymbolMeta, len(instruments))
	for _, inst := range instruments {
		var p core.FieldParser
		lot := inst.LotSizeFilter
		minNotional := lot.MinNotionalValue
		if minNotional.IsEmpty() {
			minNotional = lot.MinOrderQty
		}
		out[inst.Symbol] = core.SymbolMeta{
			AmountTick:       p.Decimal("qtyStep", lot.QtyStep.String()),
			PriceTick:        p.Decimal("tickSize", inst.PriceFilter.TickSize.String()),
			MinNotionalValue: p.DecimalOrZero("minNotionalValue", minNotional.String()),
			MaxOrderSize:     p.DecimalOrZero("maxMktOrderQty", lot.MaxMktOrderQty.String()),
			ContractValue:    *apd.New(1, 0),
		}
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("instrument %s: %w", inst.Symbol, err)
		}
	}
	return out, nil
}

// NormalizeBalance reads the first coin row of the first unified account.
// An account that holds none of the asset reports zero.
func (n *Normalizer) NormalizeBalance(wallets []bybitWallet, asset string) (apd.Decimal, error) {
	if len(wallets) == 0 {
		return apd.Decimal{}, nil
	}
	for _, c := range wallets[0].Coin {
		if c.Coin == asset {
			var p core.FieldParser
			balance := p.DecimalOrZero("walletBalance", c.WalletBalance.String())
			return balance, p.Err()
		}
	}
	return apd.Decimal{}, nil
}

func (n *Normalizer) NormalizeEquity(wallets []bybitWallet) (apd.Decimal, error) {
	if len(wallets) == 0 {
		return apd.Decimal{}, fmt.Errorf("no unified account returned")
	}
	var p core.FieldParser
	equity := p.Decimal("totalEquity", wallets[0].TotalEquity.String())
	return equity, p.Err()
}

func (n *Normalizer) NormalizeLastPrice(tickers []bybitTicker) (apd.Decimal, error) {
	if len(tickers) == 0 {
		return apd.Decimal{}, fmt.Errorf("no ticker returned")
	}
	var p core.FieldParser
	price := p.Decimal("lastPrice", tickers[0].LastPrice.String())
	return price, p.Err()
}

// normalizePosition folds the unsigned size and the Buy/Sell side into a
// signed amount.
func (n *Normalizer) normalizePosition(data *bybitPosition) (core.Position, error) {
	var p core.FieldParser
	pos := core.Position{
		Amount:            p.Signed("size", data.Size.String(), core.IsSellSide(data.Side)),
		AverageEntryPrice: p.DecimalOrZero("avgPrice", data.AvgPrice.String()),
		UnrealisedPnl:     p.DecimalOrZero("unrealisedPnl", data.UnrealisedPnl.String()),
	}
	return pos, p.Err()
}

// NormalizePosition nets the hedge-mode legs of one symbol.
func (n *Normalizer) NormalizePosition(rows []bybitPosition) (core.Position, error) {
	var out core.Position
	for i := range rows {
		pos, err := n.normalizePosition(&rows[i])
		if err != nil {
			return core.Position{}, err
		}
		if pos.IsFlat() {
			continue
		}
		if _, err := apd.BaseContext.Add(&out.Amount, &out.Amount, &pos.Amount); err != nil {
			return core.Position{}, err
		}
		out.AverageEntryPrice = pos.AverageEntryPrice
		out.UnrealisedPnl = pos.UnrealisedPnl
	}
	return out, nil
}

func (n *Normalizer) NormalizePositions(rows []bybitPosition) (core.PositionSet, error) {
	out := make(core.PositionSet)
	for i := range rows {
		pos, err := n.normalizePosition(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", rows[i].Symbol, err)
		}
		out.Add(rows[i].Symbol, pos)
	}
	return out, nil
}

func (n *Normalizer) NormalizePendingOrders(orders []bybitOrder) ([]core.PendingOrder, error) {
	out := make([]core.PendingOrder, 0, len(orders))
	for _, o := range orders {
		var p core.FieldParser
		out = append(out, core.PendingOrder{
			OrderID:   o.OrderID,
			Symbol:    o.Symbol,
			Price:     p.DecimalOrZero("price", o.Price.String()),
			Amount:    p.Signed("qty", o.Qty.String(), core.IsSellSide(o.Side)),
			CreatedAt: p.Millis("createdTime", o.CreatedTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeTradeHistory(executions []bybitExecution) ([]core.TradeRecord, error) {
	out := make([]core.TradeRecord, 0, len(executions))
	for _, e := range executions {
		var p core.FieldParser
		out = append(out, core.TradeRecord{
			ID:         e.OrderID,
			Symbol:     e.Symbol,
			Price:      p.Decimal("execPrice", e.ExecPrice.String()),
			Amount:     p.Signed("execQty", e.ExecQty.String(), core.IsSellSide(e.Side)),
			ExecutedAt: p.Millis("execTime", e.ExecTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("execution %s: %w", e.OrderID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizePositionHistory(rows []bybitClosedPnl) ([]core.PositionHistoryRecord, error) {
	out := make([]core.PositionHistoryRecord, 0, len(rows))
	for _, r := range rows {
		var p core.FieldParser
		out = append(out, core.PositionHistoryRecord{
			ID:         r.OrderID,
			Symbol:     r.Symbol,
			Price:      p.DecimalOrZero("orderPrice", r.OrderPrice.String()),
			Pnl:        p.Decimal("closedPnl", r.ClosedPnl.String()),
			Amount:     p.Signed("qty", r.Qty.String(), core.IsSellSide(r.Side)),
			ExecutedAt: p.Millis("updatedTime", r.UpdatedTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("closed pnl %s: %w", r.OrderID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeOrderBook(data *bybitOrderBook) (*core.OrderBook, error) {
	asks, err := core.ParseLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	bids, err := core.ParseLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	return &core.OrderBook{Asks: asks, Bids: bids}, nil
}

func (n *Normalizer) NormalizeCandles(klines []bybitKline) ([]core.Candle, error) {
	out := make([]core.Candle, 0, len(klines))
	for i, k := range klines {
		if len(k) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(k))
		}
		var p core.FieldParser
		out = append(out, core.Candle{
			Timestamp: p.Millis("startTime", k[0].String()),
			Open:      p.Decimal("open", k[1].String()),
			High:      p.Decimal("high", k[2].String()),
			Low:       p.Decimal("low", k[3].String()),
			Close:     p.Decimal("close", k[4].String()),
			Volume:    p.Decimal("volume", k[5].String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
	}
	return out, nil
}
