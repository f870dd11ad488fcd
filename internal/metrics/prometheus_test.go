package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveCall(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.ObserveCall("okx", "GET_BALANCE", StatusSuccess, 20*time.Millisecond)
	r.ObserveCall("okx", "GET_BALANCE", StatusSuccess, 30*time.Millisecond)
	r.ObserveCall("okx", "GET_BALANCE", StatusError, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.apiCalls.WithLabelValues("okx", "GET_BALANCE", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.apiCalls.WithLabelValues("okx", "GET_BALANCE", StatusError)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.apiLatency))
}

func TestRecorder_Gauges(t *testing.T) {
	r := NewRecorder(nil)

	r.SetBreakerState("bybit", 1)
	r.SetCachedSymbols("bybit", 42)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerState.WithLabelValues("bybit")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.cacheSymbols.WithLabelValues("bybit")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveCall("binance", "GET_CANDLES", StatusSuccess, time.Millisecond)
		r.SetBreakerState("binance", 0)
		r.SetCachedSymbols("binance", 1)
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder(nil)
	r.ObserveCall("gateio", "GET_ORDER_BOOK", StatusSuccess, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `perpgate_exchange_api_calls_total{exchange="gateio",operation="GET_ORDER_BOOK",status="success"} 1`)
}
