package bitget

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"perpgate/pkg/core"
)

type bitgetStatus struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type bitgetEnvelope[T any] struct {
	bitgetStatus
	Data T `json:"data"`
}

type bitgetContract struct {
	Symbol         string      `json:"symbol"`
	SizeMultiplier core.Scalar `json:"sizeMultiplier"`
	PricePlace     core.Scalar `json:"pricePlace"`
	MinTradeUSDT   core.Scalar `json:"minTradeUSDT"`
	MaxPositionNum core.Scalar `json:"maxPositionNum"`
}

type bitgetAccount struct {
	MarginCoin string      `json:"marginCoin"`
	UsdtEquity core.Scalar `json:"usdtEquity"`
}

type bitgetFill struct {
	OrderID    string      `json:"orderId"`
	Symbol     string      `json:"symbol"`
	Side       string      `json:"side"`
	Price      core.Scalar `json:"price"`
	BaseVolume core.Scalar `json:"baseVolume"`
	Profit     core.Scalar `json:"profit"`
	CTime      core.Scalar `json:"cTime"`
}

type bitgetFillList struct {
	FillList []bitgetFill `json:"fillList"`
}

type bitgetPosition struct {
	Symbol       string      `json:"symbol"`
	HoldSide     string      `json:"holdSide"`
	Total        core.Scalar `json:"total"`
	OpenPriceAvg core.Scalar `json:"openPriceAvg"`
	UnrealizedPL core.Scalar `json:"unrealizedPL"`
}

type bitgetOrder struct {
	OrderID string      `json:"orderId"`
	Symbol  string      `json:"symbol"`
	Side    string      `json:"side"`
	Price   core.Scalar `json:"price"`
	Size    core.Scalar `json:"size"`
	CTime   core.Scalar `json:"cTime"`
	UTime   core.Scalar `json:"uTime"`
}

type bitgetOrderList struct {
	EntrustedList []bitgetOrder `json:"entrustedList"`
}

type bitgetPlaced struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

type bitgetDepth struct {
	Asks [][]core.Scalar `json:"asks"`
	Bids [][]core.Scalar `json:"bids"`
}

// bitgetCandle is [ts, open, high, low, close, baseVolume, quoteVolume].
type bitgetCandle []core.Scalar

// Normalizer converts Bitget v2 mix payloads into canonical types.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeSymbols derives the price tick from pricePlace, the number of
// decimal places a price may carry.
func (n *Normalizer) NormalizeSymbols(contracts []bitgetContract) (map[string]core.SymbolMeta, error) {
	out := make(map[string]core.SymbolMeta, len(contracts))
	for _, c := range contracts {
		places, err := strconv.ParseInt(c.PricePlace.String(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("contract %s: pricePlace: %w", c.Symbol, err)
		}
		var p core.FieldParser
		out[c.Symbol] = core.SymbolMeta{
			AmountTick:       p.Decimal("sizeMultiplier", c.SizeMultiplier.String()),
			PriceTick:        core.PowTen(int32(places)),
			MinNotionalValue: p.DecimalOrZero("minTradeUSDT", c.MinTradeUSDT.String()),
			MaxOrderSize:     p.DecimalOrZero("maxPositionNum", c.MaxPositionNum.String()),
			ContractValue:    *apd.New(1, 0),
		}
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.Symbol, err)
		}
	}
	return out, nil
}

// NormalizeBalance returns usdtEquity of the account margined in asset.
func (n *Normalizer) NormalizeBalance(accounts []bitgetAccount, asset string) (apd.Decimal, error) {
	for _, a := range accounts {
		if a.MarginCoin == asset {
			var p core.FieldParser
			equity := p.DecimalOrZero("usdtEquity", a.UsdtEquity.String())
			return equity, p.Err()
		}
	}
	return apd.Decimal{}, nil
}

func (n *Normalizer) NormalizeLastPrice(fills []bitgetFill) (apd.Decimal, error) {
	if len(fills) == 0 {
		return apd.Decimal{}, fmt.Errorf("no fills returned")
	}
	var p core.FieldParser
	price := p.Decimal("price", fills[0].Price.String())
	return price, p.Err()
}

func (n *Normalizer) normalizePosition(data *bitgetPosition) (core.Position, error) {
	var p core.FieldParser
	pos := core.Position{
		Amount:            p.Signed("total", data.Total.String(), data.HoldSide == "short"),
		AverageEntryPrice: p.DecimalOrZero("openPriceAvg", data.OpenPriceAvg.String()),
		UnrealisedPnl:     p.DecimalOrZero("unrealizedPL", data.UnrealizedPL.String()),
	}
	return pos, p.Err()
}

// NormalizePosition nets the long and short legs of one symbol.
func (n *Normalizer) NormalizePosition(rows []bitgetPosition) (core.Position, error) {
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

func (n *Normalizer) NormalizePositions(rows []bitgetPosition) (core.PositionSet, error) {
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

// NormalizePendingOrders reads cTime as the creation time and falls back to
// uTime when the venue leaves it out.
func (n *Normalizer) NormalizePendingOrders(list *bitgetOrderList) ([]core.PendingOrder, error) {
	out := make([]core.PendingOrder, 0, len(list.EntrustedList))
	for _, o := range list.EntrustedList {
		created := o.CTime
		if created.IsEmpty() {
			created = o.UTime
		}
		var p core.FieldParser
		out = append(out, core.PendingOrder{
			OrderID:   o.OrderID,
			Symbol:    o.Symbol,
			Price:     p.Decimal("price", o.Price.String()),
			Amount:    p.Signed("size", o.Size.String(), core.IsSellSide(o.Side)),
			CreatedAt: p.Millis("cTime", created.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeTradeHistory(list *bitgetFillList) ([]core.TradeRecord, error) {
	out := make([]core.TradeRecord, 0, len(list.FillList))
	for _, f := range list.FillList {
		var p core.FieldParser
		out = append(out, core.TradeRecord{
			ID:         f.OrderID,
			Symbol:     f.Symbol,
			Price:      p.Decimal("price", f.Price.String()),
			Amount:     p.Signed("baseVolume", f.BaseVolume.String(), core.IsSellSide(f.Side)),
			ExecutedAt: p.Millis("cTime", f.CTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("fill %s: %w", f.OrderID, err)
		}
	}
	return out, nil
}

// NormalizePositionHistory reads the same fill list as the trade history,
// adding the realised profit of each fill.
func (n *Normalizer) NormalizePositionHistory(list *bitgetFillList) ([]core.PositionHistoryRecord, error) {
	out := make([]core.PositionHistoryRecord, 0, len(list.FillList))
	for _, f := range list.FillList {
		var p core.FieldParser
		out = append(out, core.PositionHistoryRecord{
			ID:         f.OrderID,
			Symbol:     f.Symbol,
			Price:      p.Decimal("price", f.Price.String()),
			Pnl:        p.DecimalOrZero("profit", f.Profit.String()),
			Amount:     p.Signed("baseVolume", f.BaseVolume.String(), core.IsSellSide(f.Side)),
			ExecutedAt: p.Millis("cTime", f.CTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("fill %s: %w", f.OrderID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeOrderBook(data *bitgetDepth) (*core.OrderBook, error) {
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

func (n *Normalizer) NormalizeCandles(rows []bitgetCandle) ([]core.Candle, error) {
	out := make([]core.Candle, 0, len(rows))
	for i, k := range rows {
		if len(k) < 6 {
			return nil, fmt.Errorf("candle %d: expected at least 6 fields, got %d", i, len(k))
		}
		var p core.FieldParser
		out = append(out, core.Candle{
			Timestamp: p.Millis("ts", k[0].String()),
			Open:      p.Decimal("open", k[1].String()),
			High:      p.Decimal("high", k[2].String()),
			Low:       p.Decimal("low", k[3].String()),
			Close:     p.Decimal("close", k[4].String()),
			Volume:    p.Decimal("baseVolume", k[5].String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
	}
	return out, nil
}
