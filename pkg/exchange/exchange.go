package exchange

import (
	"context"

	"github.com/cockroachdb/apd/v3"

	"perpgate/pkg/core"
)

// Exchange is the contract every venue adapter satisfies. One instance
// holds one set of credentials for one account; all methods are safe for
// concurrent use.
type Exchange interface {
	Name() string

	// RefreshSymbolMetadata reloads contract metadata and replaces the cache.
	RefreshSymbolMetadata(ctx context.Context) (map[string]core.SymbolMeta, error)
	// ListSymbols returns the cached symbols in ascending order, warming
	// the cache first when it is cold.
	ListSymbols(ctx context.Context) ([]string, error)
	SymbolMeta(ctx context.Context, symbol string) (core.SymbolMeta, error)

	GetBalance(ctx context.Context, asset string) (apd.Decimal, error)
	GetTotalEquity(ctx context.Context) (apd.Decimal, error)
	GetLastPrice(ctx context.Context, symbol string) (apd.Decimal, error)

	GetPosition(ctx context.Context, symbol string) (core.Position, error)
	GetAllPositions(ctx context.Context) (core.PositionSet, error)

	PlaceOrder(ctx context.Context, req *core.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	CancelAllOrders(ctx context.Context, symbol string) (bool, error)

	// ListPendingOrders lists resting orders; an empty symbol is account-wide.
	ListPendingOrders(ctx context.Context, symbol string) ([]core.PendingOrder, error)
	ListTradeHistory(ctx context.Context, symbol string, limit int) ([]core.TradeRecord, error)
	ListPositionHistory(ctx context.Context, symbol string, limit int) ([]core.PositionHistoryRecord, error)

	GetOrderBook(ctx context.Context, symbol string, limit int) (*core.OrderBook, error)
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) (bool, error)

	Close() error
}

var _ Exchange = (*Adapter)(nil)
