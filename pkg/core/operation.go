package core

// Operation represents a logical call in the adapter contract.
type Operation int

// Operation constants define all supported exchange operations.
const (
	// OpRefreshSymbols loads contract metadata for every listed symbol.
	OpRefreshSymbols Operation = iota
	// OpGetBalance retrieves the wallet balance of one asset.
	OpGetBalance
	// OpGetTotalEquity retrieves the account equity.
	OpGetTotalEquity
	// OpGetLastPrice retrieves the most recent trade price.
	OpGetLastPrice
	// OpGetPosition retrieves the position of one symbol.
	OpGetPosition
	// OpGetAllPositions retrieves every open position.
	OpGetAllPositions
	// OpPlaceOrder submits a new order.
	OpPlaceOrder
	// OpCancelOrder cancels one order.
	OpCancelOrder
	// OpCancelAllOrders cancels every order of a symbol.
	OpCancelAllOrders
	// OpListPendingOrders lists resting orders.
	OpListPendingOrders
	// OpListTradeHistory lists executed orders or fills.
	OpListTradeHistory
	// OpListPositionHistory lists closed positions with realised PnL.
	OpListPositionHistory
	// OpGetOrderBook retrieves a depth snapshot.
	OpGetOrderBook
	// OpGetCandles retrieves OHLCV bars.
	OpGetCandles
	// OpSetLeverage changes the leverage setting.
	OpSetLeverage
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return [...]string{
		"REFRESH_SYMBOLS",
		"GET_BALANCE",
		"GET_TOTAL_EQUITY",
		"GET_LAST_PRICE",
		"GET_POSITION",
		"GET_ALL_POSITIONS",
		"PLACE_ORDER",
		"CANCEL_ORDER",
		"CANCEL_ALL_ORDERS",
		"LIST_PENDING_ORDERS",
		"LIST_TRADE_HISTORY",
		"LIST_POSITION_HISTORY",
		"GET_ORDER_BOOK",
		"GET_CANDLES",
		"SET_LEVERAGE",
	}[o]
}
