package orderly

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"perpgate/pkg/core"
)

// orderlyStatus decides success for every response: success must be true.
type orderlyStatus struct {
	Success bool        `json:"success"`
	Code    core.Scalar `json:"code"`
	Message string      `json:"message"`
}

type orderlyEnvelope[T any] struct {
	orderlyStatus
	Data T `json:"data"`
}

type orderlyRows[T any] struct {
	Rows []T `json:"rows"`
}

type orderlyInfo struct {
	Symbol      string      `json:"symbol"`
	BaseTick    core.Scalar `json:"base_tick"`
	QuoteTick   core.Scalar `json:"quote_tick"`
	MinNotional core.Scalar `json:"min_notional"`
	BaseMax     core.Scalar `json:"base_max"`
}

type orderlyPositions struct {
	TotalCollateralValue core.Scalar       `json:"total_collateral_value"`
	Rows                 []orderlyPosition `json:"rows"`
}

type orderlyPosition struct {
	Symbol           string      `json:"symbol"`
	PositionQty      core.Scalar `json:"position_qty"`
	AverageOpenPrice core.Scalar `json:"average_open_price"`
	UnsettledPnl     core.Scalar `json:"unsettled_pnl"`
}

type orderlyMarketTrade struct {
	ExecutedPrice core.Scalar `json:"executed_price"`
}

type orderlyOrder struct {
	OrderID     core.Scalar `json:"order_id"`
	Symbol      string      `json:"symbol"`
	Side        string      `json:"side"`
	Price       core.Scalar `json:"price"`
	Quantity    core.Scalar `json:"quantity"`
	CreatedTime core.Scalar `json:"created_time"`
}

type orderlyPlaced struct {
	OrderID       core.Scalar `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
}

type orderlyTrade struct {
	OrderID           core.Scalar `json:"order_id"`
	Symbol            string      `json:"symbol"`
	Side              string      `json:"side"`
	ExecutedPrice     core.Scalar `json:"executed_price"`
	ExecutedQuantity  core.Scalar `json:"executed_quantity"`
	ExecutedTimestamp core.Scalar `json:"executed_timestamp"`
}

type orderlyClosedPosition struct {
	PositionID        core.Scalar `json:"position_id"`
	Symbol            string      `json:"symbol"`
	Side              string      `json:"side"`
	AvgOpenPrice      core.Scalar `json:"avg_open_price"`
	ClosedPositionQty core.Scalar `json:"closed_position_qty"`
	RealizedPnl       core.Scalar `json:"realized_pnl"`
	CloseTimestamp    core.Scalar `json:"close_timestamp"`
	LastUpdateTime    core.Scalar `json:"last_update_time"`
}

type orderlyBookLevel struct {
	Price    core.Scalar `json:"price"`
	Quantity core.Scalar `json:"quantity"`
}

type orderlyBook struct {
	Asks []orderlyBookLevel `json:"asks"`
	Bids []orderlyBookLevel `json:"bids"`
}

type orderlyKline struct {
	Open           core.Scalar `json:"open"`
	High           core.Scalar `json:"high"`
	Low            core.Scalar `json:"low"`
	Close          core.Scalar `json:"close"`
	Volume         core.Scalar `json:"volume"`
	StartTimestamp core.Scalar `json:"start_timestamp"`
}

// Normalizer converts Orderly EVM payloads into canonical types. Orderly
// sends numbers as bare JSON numbers, which core.Scalar keeps verbatim.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) NormalizeSymbols(rows []orderlyInfo) (map[string]core.SymbolMeta, error) {
	out := make(map[string]core.SymbolMeta, len(rows))
	for _, r := range rows {
		var p core.FieldParser
		out[r.Symbol] = core.SymbolMeta{
			AmountTick:       p.Decimal("base_tick", r.BaseTick.String()),
			PriceTick:        p.Decimal("quote_tick", r.QuoteTick.String()),
			MinNotionalValue: p.DecimalOrZero("min_notional", r.MinNotional.String()),
			MaxOrderSize:     p.DecimalOrZero("base_max", r.BaseMax.String()),
			ContractValue:    *apd.New(1, 0),
		}
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("symbol %s: %w", r.Symbol, err)
		}
	}
	return out, nil
}

// NormalizeCollateral reads total_collateral_value, which serves as both
// the balance and the total equity of the account.
func (n *Normalizer) NormalizeCollateral(data *orderlyPositions) (apd.Decimal, error) {
	var p core.FieldParser
	value := p.DecimalOrZero("total_collateral_value", data.TotalCollateralValue.String())
	return value, p.Err()
}

func (n *Normalizer) NormalizeLastPrice(trades []orderlyMarketTrade) (apd.Decimal, error) {
	if len(trades) == 0 {
		return apd.Decimal{}, fmt.Errorf("no trades returned")
	}
	var p core.FieldParser
	price := p.Decimal("executed_price", trades[0].ExecutedPrice.String())
	return price, p.Err()
}

func (n *Normalizer) normalizePosition(data *orderlyPosition) (core.Position, error) {
	var p core.FieldParser
	pos := core.Position{
		Amount:            p.Decimal("position_qty", data.PositionQty.String()),
		AverageEntryPrice: p.DecimalOrZero("average_open_price", data.AverageOpenPrice.String()),
		UnrealisedPnl:     p.DecimalOrZero("unsettled_pnl", data.UnsettledPnl.String()),
	}
	return pos, p.Err()
}

// NormalizePosition picks symbol out of the account-wide position list. A
// symbol with no row is flat.
func (n *Normalizer) NormalizePosition(data *orderlyPositions, symbol string) (core.Position, error) {
	for i := range data.Rows {
		if data.Rows[i].Symbol == symbol {
			return n.normalizePosition(&data.Rows[i])
		}
	}
	return core.Position{}, nil
}

func (n *Normalizer) NormalizePositions(data *orderlyPositions) (core.PositionSet, error) {
	out := make(core.PositionSet)
	for i := range data.Rows {
		pos, err := n.normalizePosition(&data.Rows[i])
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", data.Rows[i].Symbol, err)
		}
		out.Add(data.Rows[i].Symbol, pos)
	}
	return out, nil
}

func (n *Normalizer) NormalizePendingOrders(orders []orderlyOrder) ([]core.PendingOrder, error) {
	out := make([]core.PendingOrder, 0, len(orders))
	for _, o := range orders {
		var p core.FieldParser
		out = append(out, core.PendingOrder{
			OrderID:   o.OrderID.String(),
			Symbol:    o.Symbol,
			Price:     p.DecimalOrZero("price", o.Price.String()),
			Amount:    p.Signed("quantity", o.Quantity.String(), core.IsSellSide(o.Side)),
			CreatedAt: p.Millis("created_time", o.CreatedTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeTradeHistory(trades []orderlyTrade) ([]core.TradeRecord, error) {
	out := make([]core.TradeRecord, 0, len(trades))
	for _, t := range trades {
		var p core.FieldParser
		out = append(out, core.TradeRecord{
			ID:         t.OrderID.String(),
			Symbol:     t.Symbol,
			Price:      p.Decimal("executed_price", t.ExecutedPrice.String()),
			Amount:     p.Signed("executed_quantity", t.ExecutedQuantity.String(), core.IsSellSide(t.Side)),
			ExecutedAt: p.Millis("executed_timestamp", t.ExecutedTimestamp.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("trade %s: %w", t.OrderID, err)
		}
	}
	return out, nil
}

// NormalizePositionHistory signs the closed quantity by side and stamps
// each record with its close time, or the last update while still open.
func (n *Normalizer) NormalizePositionHistory(rows []orderlyClosedPosition) ([]core.PositionHistoryRecord, error) {
	out := make([]core.PositionHistoryRecord, 0, len(rows))
	for _, r := range rows {
		closed := r.CloseTimestamp
		if closed.IsEmpty() {
			closed = r.LastUpdateTime
		}
		var p core.FieldParser
		out = append(out, core.PositionHistoryRecord{
			ID:         r.PositionID.String(),
			Symbol:     r.Symbol,
			Price:      p.DecimalOrZero("avg_open_price", r.AvgOpenPrice.String()),
			Pnl:        p.DecimalOrZero("realized_pnl", r.RealizedPnl.String()),
			Amount:     p.Signed("closed_position_qty", r.ClosedPositionQty.String(), core.IsSellSide(r.Side)),
			ExecutedAt: p.Millis("close_timestamp", closed.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("position %s: %w", r.PositionID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeOrderBook(data *orderlyBook) (*core.OrderBook, error) {
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

func levelPairs(levels []orderlyBookLevel) [][]core.Scalar {
	out := make([][]core.Scalar, len(levels))
	for i, l := range levels {
		out[i] = []core.Scalar{l.Price, l.Quantity}
	}
	return out
}

func (n *Normalizer) NormalizeCandles(rows []orderlyKline) ([]core.Candle, error) {
	out := make([]core.Candle, 0, len(rows))
	for i, k := range rows {
		var p core.FieldParser
		out = append(out, core.Candle{
			Timestamp: p.Millis("start_timestamp", k.StartTimestamp.String()),
			Open:      p.Decimal("open", k.Open.String()),
			High:      p.Decimal("high", k.High.String()),
			Low:       p.Decimal("low", k.Low.String()),
			Close:     p.Decimal("close", k.Close.String()),
			Volume:    p.DecimalOrZero("volume", k.Volume.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
	}
	return out, nil
}
