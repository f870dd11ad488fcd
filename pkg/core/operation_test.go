package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"refresh_symbols", OpRefreshSymbols, "REFRESH_SYMBOLS"},
		{"get_balance", OpGetBalance, "GET_BALANCE"},
		{"get_total_equity", OpGetTotalEquity, "GET_TOTAL_EQUITY"},
		{"get_last_price", OpGetLastPrice, "GET_LAST_PRICE"},
		{"get_position", OpGetPosition, "GET_POSITION"},
		{"get_all_positions", OpGetAllPositions, "GET_ALL_POSITIONS"},
		{"place_order", OpPlaceOrder, "PLACE_ORDER"},
		{"cancel_order", OpCancelOrder, "CANCEL_ORDER"},
		{"cancel_all_orders", OpCancelAllOrders, "CANCEL_ALL_ORDERS"},
		{"list_pending_orders", OpListPendingOrders, "LIST_PENDING_ORDERS"},
		{"list_trade_history", OpListTradeHistory, "LIST_TRADE_HISTORY"},
		{"list_position_history", OpListPositionHistory, "LIST_POSITION_HISTORY"},
		{"get_order_book", OpGetOrderBook, "GET_ORDER_BOOK"},
		{"get_candles", OpGetCandles, "GET_CANDLES"},
		{"set_leverage", OpSetLeverage, "SET_LEVERAGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}
