package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Call outcomes used as the status label.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
	StatusRejected    = "rejected"
)

// Recorder owns the adapter metrics. Every adapter of a process shares one
// Recorder; the exchange label tells them apart.
type Recorder struct {
	registry prometheus.Gatherer

	apiCalls     *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
	cacheSymbols *prometheus.GaugeVec
}

// NewRecorder registers the collectors on reg. A nil reg gets a fresh
// private registry.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		apiCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perpgate_exchange_api_calls_total",
				Help: "Total number of exchange API calls",
			},
			[]string{"exchange", "operation", "status"},
		),
		apiLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perpgate_exchange_api_latency_seconds",
				Help:    "Exchange API call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"exchange", "operation"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "perpgate_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"exchange"},
		),
		cacheSymbols: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "perpgate_symbol_cache_size",
				Help: "Number of symbols in the metadata cache",
			},
			[]string{"exchange"},
		),
	}
}

// ObserveCall records one finished call.
func (r *Recorder) ObserveCall(exchange, operation, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.apiCalls.WithLabelValues(exchange, operation, status).Inc()
	r.apiLatency.WithLabelValues(exchange, operation).Observe(d.Seconds())
}

func (r *Recorder) SetBreakerState(exchange string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(exchange).Set(float64(state))
}

func (r *Recorder) SetCachedSymbols(exchange string, n int) {
	if r == nil {
		return
	}
	r.cacheSymbols.WithLabelValues(exchange).Set(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
