package okx

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"perpgate/pkg/core"
)

// okxStatus decides success for every v5 envelope: code must be "0".
type okxStatus struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type okxEnvelope[T any] struct {
	okxStatus
	Data []T `json:"data"`
}

// okxItemError carries the per-item result of trade endpoints.
type okxItemError struct {
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

type okxInstrument struct {
	InstID   string      `json:"instId"`
	LotSz    core.Scalar `json:"lotSz"`
	TickSz   core.Scalar `json:"tickSz"`
	MinSz    core.Scalar `json:"minSz"`
	MaxMktSz core.Scalar `json:"maxMktSz"`
	CtVal    core.Scalar `json:"ctVal"`
}

type okxBalance struct {
	TotalEq core.Scalar `json:"totalEq"`
	Details []struct {
		Ccy string      `json:"ccy"`
		Eq  core.Scalar `json:"eq"`
	} `json:"details"`
}

type okxTrade struct {
	Px core.Scalar `json:"px"`
}

type okxPosition struct {
	InstID  string      `json:"instId"`
	PosSide string      `json:"posSide"`
	Pos     core.Scalar `json:"pos"`
	AvgPx   core.Scalar `json:"avgPx"`
	Upl     core.Scalar `json:"upl"`
}

type okxOrder struct {
	okxItemError
	OrdID     string      `json:"ordId"`
	InstID    string      `json:"instId"`
	Side      string      `json:"side"`
	Px        core.Scalar `json:"px"`
	AvgPx     core.Scalar `json:"avgPx"`
	Sz        core.Scalar `json:"sz"`
	AccFillSz core.Scalar `json:"accFillSz"`
	CTime     core.Scalar `json:"cTime"`
	UTime     core.Scalar `json:"uTime"`
}

type okxClosedPosition struct {
	PosID         string      `json:"posId"`
	InstID        string      `json:"instId"`
	Direction     string      `json:"direction"`
	CloseTotalPos core.Scalar `json:"closeTotalPos"`
	OpenAvgPx     core.Scalar `json:"openAvgPx"`
	Pnl           core.Scalar `json:"pnl"`
	UTime         core.Scalar `json:"uTime"`
}

type okxBook struct {
	Asks [][]core.Scalar `json:"asks"`
	Bids [][]core.Scalar `json:"bids"`
}

// okxCandle is [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
type okxCandle []core.Scalar

// Normalizer converts OKX v5 SWAP payloads into canonical types.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) NormalizeSymbols(instruments []okxInstrument) (map[string]core.SymbolMeta, error) {
	out := make(map[string]core.SymbolMeta, len(instruments))
	for _, inst := range instruments {
		var p core.FieldParser
		out[inst.InstID] = core.SymbolMeta{
			AmountTick:       p.Decimal("lotSz", inst.LotSz.String()),
			PriceTick:        p.Decimal("tickSz", inst.TickSz.String()),
			MinNotionalValue: p.DecimalOrZero("minSz", inst.MinSz.String()),
			MaxOrderSize:     p.DecimalOrZero("maxMktSz", inst.MaxMktSz.String()),
			ContractValue:    p.Decimal("ctVal", inst.CtVal.String()),
		}
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("instrument %s: %w", inst.InstID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeBalance(balances []okxBalance, asset string) (apd.Decimal, error) {
	if len(balances) == 0 {
		return apd.Decimal{}, nil
	}
	for _, d := range balances[0].Details {
		if d.Ccy == asset {
			var p core.FieldParser
			eq := p.DecimalOrZero("eq", d.Eq.String())
			return eq, p.Err()
		}
	}
	return apd.Decimal{}, nil
}

func (n *Normalizer) NormalizeEquity(balances []okxBalance) (apd.Decimal, error) {
	if len(balances) == 0 {
		return apd.Decimal{}, fmt.Errorf("no account returned")
	}
	var p core.FieldParser
	eq := p.Decimal("totalEq", balances[0].TotalEq.String())
	return eq, p.Err()
}

func (n *Normalizer) NormalizeLastPrice(trades []okxTrade) (apd.Decimal, error) {
	if len(trades) == 0 {
		return apd.Decimal{}, fmt.Errorf("no trades returned")
	}
	var p core.FieldParser
	px := p.Decimal("px", trades[0].Px.String())
	return px, p.Err()
}

// normalizePosition keeps pos as signed in net mode; a short leg in
// long/short mode is negated.
func (n *Normalizer) normalizePosition(data *okxPosition) (core.Position, error) {
	var p core.FieldParser
	amount := p.Decimal("pos", data.Pos.String())
	if data.PosSide == "short" {
		amount = core.SignedAmount(amount, true)
	}
	pos := core.Position{
		Amount:            amount,
		AverageEntryPrice: p.DecimalOrZero("avgPx", data.AvgPx.String()),
		UnrealisedPnl:     p.DecimalOrZero("upl", data.Upl.String()),
	}
	return pos, p.Err()
}

func (n *Normalizer) NormalizePosition(rows []okxPosition) (core.Position, error) {
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

func (n *Normalizer) NormalizePositions(rows []okxPosition) (core.PositionSet, error) {
	out := make(core.PositionSet)
	for i := range rows {
		pos, err := n.normalizePosition(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", rows[i].InstID, err)
		}
		out.Add(rows[i].InstID, pos)
	}
	return out, nil
}

func (n *Normalizer) NormalizePendingOrders(orders []okxOrder) ([]core.PendingOrder, error) {
	out := make([]core.PendingOrder, 0, len(orders))
	for _, o := range orders {
		var p core.FieldParser
		out = append(out, core.PendingOrder{
			OrderID:   o.OrdID,
			Symbol:    o.InstID,
			Price:     p.DecimalOrZero("px", o.Px.String()),
			Amount:    p.Signed("sz", o.Sz.String(), core.IsSellSide(o.Side)),
			CreatedAt: p.Millis("cTime", o.CTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrdID, err)
		}
	}
	return out, nil
}

// NormalizeTradeHistory reads filled orders: the average fill price, the
// filled size and the time of the last fill.
func (n *Normalizer) NormalizeTradeHistory(orders []okxOrder) ([]core.TradeRecord, error) {
	out := make([]core.TradeRecord, 0, len(orders))
	for _, o := range orders {
		size := o.AccFillSz
		if size.IsEmpty() {
			size = o.Sz
		}
		var p core.FieldParser
		out = append(out, core.TradeRecord{
			ID:         o.OrdID,
			Symbol:     o.InstID,
			Price:      p.Decimal("avgPx", o.AvgPx.String()),
			Amount:     p.Signed("accFillSz", size.String(), core.IsSellSide(o.Side)),
			ExecutedAt: p.Millis("uTime", o.UTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrdID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizePositionHistory(rows []okxClosedPosition) ([]core.PositionHistoryRecord, error) {
	out := make([]core.PositionHistoryRecord, 0, len(rows))
	for _, r := range rows {
		var p core.FieldParser
		out = append(out, core.PositionHistoryRecord{
			ID:         r.PosID,
			Symbol:     r.InstID,
			Price:      p.DecimalOrZero("openAvgPx", r.OpenAvgPx.String()),
			Pnl:        p.Decimal("pnl", r.Pnl.String()),
			Amount:     p.Signed("closeTotalPos", r.CloseTotalPos.String(), core.IsSellSide(r.Direction)),
			ExecutedAt: p.Millis("uTime", r.UTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("position %s: %w", r.PosID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeOrderBook(books []okxBook) (*core.OrderBook, error) {
	if len(books) == 0 {
		return &core.OrderBook{}, nil
	}
	asks, err := core.ParseLevels(books[0].Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	bids, err := core.ParseLevels(books[0].Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	return &core.OrderBook{Asks: asks, Bids: bids}, nil
}

func (n *Normalizer) NormalizeCandles(rows []okxCandle) ([]core.Candle, error) {
	out := make([]core.Candle, 0, len(rows))
	for i, k := range rows {
		if len(k) < 6 {
			return nil, fmt.Errorf("candle %d: expected at least 6 fields, got %d", i, len(k))
		}
		var p core.FieldParser
		out = append(out, core.Candle{
			Timestamp: p.Millis("ts", k[0].String()),
			Open:      p.Decimal("o", k[1].String()),
			High:      p.Decimal("h", k[2].String()),
			Low:       p.Decimal("l", k[3].String()),
			Close:     p.Decimal("c", k[4].String()),
			Volume:    p.Decimal("vol", k[5].String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
	}
	return out, nil
}
