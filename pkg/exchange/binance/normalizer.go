package binance

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"perpgate/pkg/core"
)

type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type binanceExchangeInfo struct {
	Symbols []binanceSymbol `json:"symbols"`
}

type binanceSymbol struct {
	Symbol  string          `json:"symbol"`
	Filters []binanceFilter `json:"filters"`
}

type binanceFilter struct {
	FilterType string      `json:"filterType"`
	StepSize   core.Scalar `json:"stepSize"`
	TickSize   core.Scalar `json:"tickSize"`
	Notional   core.Scalar `json:"notional"`
	MaxQty     core.Scalar `json:"maxQty"`
}

type binanceAccount struct {
	TotalWalletBalance core.Scalar    `json:"totalWalletBalance"`
	Assets             []binanceAsset `json:"assets"`
}

type binanceAsset struct {
	Asset         string      `json:"asset"`
	WalletBalance core.Scalar `json:"walletBalance"`
}

type binanceTrade struct {
	Price core.Scalar `json:"price"`
}

type binancePosition struct {
	Symbol           string      `json:"symbol"`
	PositionAmt      core.Scalar `json:"positionAmt"`
	EntryPrice       core.Scalar `json:"entryPrice"`
	UnRealizedProfit core.Scalar `json:"unRealizedProfit"`
}

type binanceOrder struct {
	OrderID     core.Scalar `json:"orderId"`
	Symbol      string      `json:"symbol"`
	Side        string      `json:"side"`
	Status      string      `json:"status"`
	Price       core.Scalar `json:"price"`
	AvgPrice    core.Scalar `json:"avgPrice"`
	OrigQty     core.Scalar `json:"origQty"`
	ExecutedQty core.Scalar `json:"executedQty"`
	UpdateTime  core.Scalar `json:"updateTime"`
}

type binanceUserTrade struct {
	OrderID     core.Scalar `json:"orderId"`
	Symbol      string      `json:"symbol"`
	Side        string      `json:"side"`
	Price       core.Scalar `json:"price"`
	Qty         core.Scalar `json:"qty"`
	RealizedPnl core.Scalar `json:"realizedPnl"`
	Time        core.Scalar `json:"time"`
}

type binanceOrderBook struct {
	Asks [][]core.Scalar `json:"asks"`
	Bids [][]core.Scalar `json:"bids"`
}

// binanceKline is [openTime, open, high, low, close, volume, ...].
type binanceKline []core.Scalar

// Normalizer converts Binance USDⓈ-M payloads into canonical types.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeSymbols reads the LOT_SIZE, PRICE_FILTER, MIN_NOTIONAL and
// MARKET_LOT_SIZE filters. Every contract is quoted in units of 1.
func (n *Normalizer) NormalizeSymbols(info *binanceExchangeInfo) (map[string]core.SymbolMeta, error) {
	out := make(map[string]core.SymbolMeta, len(info.Symbols))
	for _, s := range info.Symbols {
		var p core.FieldParser
		meta := core.SymbolMeta{ContractValue: *apd.New(1, 0)}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				meta.AmountTick = p.Decimal("stepSize", f.StepSize.String())
			case "PRICE_FILTER":
				meta.PriceTick = p.Decimal("tickSize", f.TickSize.String())
			case "MIN_NOTIONAL":
				meta.MinNotionalValue = p.Decimal("notional", f.Notional.String())
			case "MARKET_LOT_SIZE":
				meta.MaxOrderSize = p.Decimal("maxQty", f.MaxQty.String())
			}
		}
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("symbol %s: %w", s.Symbol, err)
		}
		out[s.Symbol] = meta
	}
	return out, nil
}

// NormalizeBalance returns the wallet balance of asset, zero when the
// account holds none.
func (n *Normalizer) NormalizeBalance(account *binanceAccount, asset string) (apd.Decimal, error) {
	for _, a := range account.Assets {
		if a.Asset == asset {
			var p core.FieldParser
			balance := p.Decimal("walletBalance", a.WalletBalance.String())
			return balance, p.Err()
		}
	}
	return apd.Decimal{}, nil
}

func (n *Normalizer) NormalizeEquity(account *binanceAccount) (apd.Decimal, error) {
	var p core.FieldParser
	equity := p.Decimal("totalWalletBalance", account.TotalWalletBalance.String())
	return equity, p.Err()
}

func (n *Normalizer) NormalizeLastPrice(trades []binanceTrade) (apd.Decimal, error) {
	if len(trades) == 0 {
		return apd.Decimal{}, fmt.Errorf("no trades returned")
	}
	var p core.FieldParser
	price := p.Decimal("price", trades[0].Price.String())
	return price, p.Err()
}

func (n *Normalizer) normalizePosition(data *binancePosition) (core.Position, error) {
	var p core.FieldParser
	pos := core.Position{
		Amount:            p.Decimal("positionAmt", data.PositionAmt.String()),
		AverageEntryPrice: p.DecimalOrZero("entryPrice", data.EntryPrice.String()),
		UnrealisedPnl:     p.DecimalOrZero("unRealizedProfit", data.UnRealizedProfit.String()),
	}
	return pos, p.Err()
}

// NormalizePosition nets every row of one symbol. positionAmt is already
// signed; rows with zero amount are ignored.
func (n *Normalizer) NormalizePosition(rows []binancePosition) (core.Position, error) {
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

func (n *Normalizer) NormalizePositions(rows []binancePosition) (core.PositionSet, error) {
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

func (n *Normalizer) NormalizePendingOrders(orders []binanceOrder) ([]core.PendingOrder, error) {
	out := make([]core.PendingOrder, 0, len(orders))
	for _, o := range orders {
		var p core.FieldParser
		out = append(out, core.PendingOrder{
			OrderID:   o.OrderID.String(),
			Symbol:    o.Symbol,
			Price:     p.Decimal("price", o.Price.String()),
			Amount:    p.Signed("origQty", o.OrigQty.String(), core.IsSellSide(o.Side)),
			CreatedAt: p.Millis("updateTime", o.UpdateTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
	}
	return out, nil
}

// NormalizeTradeHistory keeps FILLED orders only.
func (n *Normalizer) NormalizeTradeHistory(orders []binanceOrder) ([]core.TradeRecord, error) {
	out := make([]core.TradeRecord, 0, len(orders))
	for _, o := range orders {
		if o.Status != "FILLED" {
			continue
		}
		var p core.FieldParser
		out = append(out, core.TradeRecord{
			ID:         o.OrderID.String(),
			Symbol:     o.Symbol,
			Price:      p.Decimal("avgPrice", o.AvgPrice.String()),
			Amount:     p.Signed("executedQty", o.ExecutedQty.String(), core.IsSellSide(o.Side)),
			ExecutedAt: p.Millis("updateTime", o.UpdateTime.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizePositionHistory(trades []binanceUserTrade) ([]core.PositionHistoryRecord, error) {
	out := make([]core.PositionHistoryRecord, 0, len(trades))
	for _, t := range trades {
		var p core.FieldParser
		out = append(out, core.PositionHistoryRecord{
			ID:         t.OrderID.String(),
			Symbol:     t.Symbol,
			Price:      p.Decimal("price", t.Price.String()),
			Pnl:        p.DecimalOrZero("realizedPnl", t.RealizedPnl.String()),
			Amount:     p.Signed("qty", t.Qty.String(), core.IsSellSide(t.Side)),
			ExecutedAt: p.Millis("time", t.Time.String()),
		})
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("trade %s: %w", t.OrderID, err)
		}
	}
	return out, nil
}

func (n *Normalizer) NormalizeOrderBook(data *binanceOrderBook) (*core.OrderBook, error) {
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

func (n *Normalizer) NormalizeCandles(klines []binanceKline) ([]core.Candle, error) {
	out := make([]core.Candle, 0, len(klines))
	for i, k := range klines {
		if len(k) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(k))
		}
		var p core.FieldParser
		out = append(out, core.Candle{
			Timestamp: p.Millis("openTime", k[0].String()),
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
