package exchange

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"perpgate/internal/circuitbreaker"
	httpClient "perpgate/internal/http"
	"perpgate/internal/keyring"
	"perpgate/internal/metrics"
	"perpgate/internal/ratelimit"
	"perpgate/pkg/core"
)

// Adapter drives one venue Protocol through the shared transport, rate
// limiter, circuit breaker and symbol metadata cache. The venue packages
// only build, sign and parse; everything else lives here.
type Adapter struct {
	config   *core.Config
	protocol core.Protocol
	traits   core.Traits
	keyRing  *keyring.KeyRing
	http     *httpClient.Client
	limiter  *ratelimit.RateLimiter
	breaker  *circuitbreaker.Breaker
	metrics  *metrics.Recorder
	logger   zerolog.Logger
	now      func() time.Time

	// refreshMu serializes refreshes; cacheMu guards the map pointer.
	refreshMu sync.Mutex
	cacheMu   sync.RWMutex
	symbols   map[string]core.SymbolMeta

	closed atomic.Bool
}

// NewAdapter validates config and wires protocol to a fresh transport.
func NewAdapter(protocol core.Protocol, config *core.Config, opts ...Option) (*Adapter, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if config.Exchange != protocol.Name() {
		return nil, fmt.Errorf("config is for %q, protocol is %q", config.Exchange, protocol.Name())
	}

	options := ApplyOptions(opts...)

	logger := options.Logger.With().Str("exchange", protocol.Name()).Logger()
	if config.LogLevel != "" {
		if level, err := zerolog.ParseLevel(config.LogLevel); err == nil {
			logger = logger.Level(level)
		}
	}

	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = protocol.BaseURL(config.Sandbox)
	}

	client, err := httpClient.NewClient(&httpClient.Config{
		BaseURL: baseURL,
		Timeout: config.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	kr := options.KeyRing
	if kr == nil && config.Credentials != nil {
		kr = keyring.FromCredentials(*config.Credentials)
	}
	if kr != nil {
		kr.SetLogger(logger)
	}

	var cb *circuitbreaker.Breaker
	if config.CircuitBreakerEnabled {
		cb = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
			Now:              options.Clock,
		})
	}

	return &Adapter{
		config:   config,
		protocol: protocol,
		traits:   protocol.Traits(),
		keyRing:  kr,
		http:     client,
		limiter:  newLimiter(config, protocol.RateLimits()),
		breaker:  cb,
		metrics:  options.Metrics,
		logger:   logger,
		now:      options.Clock,
	}, nil
}

// newLimiter applies the tighter of the configured budget and the venue's
// published one.
func newLimiter(config *core.Config, venue core.RateLimitConfig) *ratelimit.RateLimiter {
	limiter := ratelimit.New(config.RateLimitRequests, config.RateLimitPeriod)
	if venue.RequestsPerSecond <= 0 {
		return limiter
	}
	configured := float64(config.RateLimitRequests) / config.RateLimitPeriod.Seconds()
	if float64(venue.RequestsPerSecond) >= configured {
		return limiter
	}
	burst := venue.Burst
	if burst <= 0 {
		burst = venue.RequestsPerSecond
	}
	period := time.Duration(float64(time.Second) * float64(burst) / float64(venue.RequestsPerSecond))
	return ratelimit.New(burst, period)
}

func (a *Adapter) Name() string {
	return a.protocol.Name()
}

func (a *Adapter) Traits() core.Traits {
	return a.traits
}

// Close releases the transport. Later calls fail with core.ErrClientClosed.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.http.Close()
}

func (a *Adapter) RefreshSymbolMetadata(ctx context.Context) (map[string]core.SymbolMeta, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	meta, err := call[map[string]core.SymbolMeta](ctx, a, core.OpRefreshSymbols, nil)
	if err != nil {
		return nil, err
	}

	a.cacheMu.Lock()
	a.symbols = meta
	a.cacheMu.Unlock()

	a.metrics.SetCachedSymbols(a.Name(), len(meta))
	a.logger.Info().Int("symbols", len(meta)).Msg("symbol metadata refreshed")
	return maps.Clone(meta), nil
}

func (a *Adapter) ListSymbols(ctx context.Context) ([]string, error) {
	if !a.traits.RefreshOnList {
		a.cacheMu.RLock()
		cache := a.symbols
		a.cacheMu.RUnlock()
		if cache != nil {
			return core.SortedKeys(cache), nil
		}
	}
	meta, err := a.RefreshSymbolMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return core.SortedKeys(meta), nil
}

// SymbolMeta returns the cached metadata of symbol, warming a cold cache.
func (a *Adapter) SymbolMeta(ctx context.Context, symbol string) (core.SymbolMeta, error) {
	if symbol == "" {
		return core.SymbolMeta{}, core.NewValidationError(core.ParamSymbol, "is required")
	}

	a.cacheMu.RLock()
	cache := a.symbols
	a.cacheMu.RUnlock()

	if cache == nil {
		fresh, err := a.RefreshSymbolMetadata(ctx)
		if err != nil {
			return core.SymbolMeta{}, err
		}
		cache = fresh
	}

	meta, ok := cache[symbol]
	if !ok {
		return core.SymbolMeta{}, core.NewValidationError(core.ParamSymbol, "unknown symbol %q", symbol)
	}
	return meta, nil
}

func (a *Adapter) GetBalance(ctx context.Context, asset string) (apd.Decimal, error) {
	if asset == "" {
		return apd.Decimal{}, core.NewValidationError(core.ParamAsset, "is required")
	}
	return call[apd.Decimal](ctx, a, core.OpGetBalance, core.Params{core.ParamAsset: asset})
}

func (a *Adapter) GetTotalEquity(ctx context.Context) (apd.Decimal, error) {
	return call[apd.Decimal](ctx, a, core.OpGetTotalEquity, nil)
}

func (a *Adapter) GetLastPrice(ctx context.Context, symbol string) (apd.Decimal, error) {
	if err := requireSymbol(symbol); err != nil {
		return apd.Decimal{}, err
	}
	return call[apd.Decimal](ctx, a, core.OpGetLastPrice, core.Params{core.ParamSymbol: symbol})
}

func (a *Adapter) GetPosition(ctx context.Context, symbol string) (core.Position, error) {
	if err := requireSymbol(symbol); err != nil {
		return core.Position{}, err
	}
	return call[core.Position](ctx, a, core.OpGetPosition, core.Params{core.ParamSymbol: symbol})
}

func (a *Adapter) GetAllPositions(ctx context.Context) (core.PositionSet, error) {
	return call[core.PositionSet](ctx, a, core.OpGetAllPositions, nil)
}

// PlaceOrder submits req and returns the venue order id.
func (a *Adapter) PlaceOrder(ctx context.Context, req *core.OrderRequest) (string, error) {
	if req == nil {
		return "", core.NewValidationError(core.ParamOrder, "is required")
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	return call[string](ctx, a, core.OpPlaceOrder, core.Params{core.ParamOrder: req})
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	if orderID == "" {
		return false, core.NewValidationError(core.ParamOrderID, "is required")
	}
	return call[bool](ctx, a, core.OpCancelOrder, core.Params{
		core.ParamSymbol:  symbol,
		core.ParamOrderID: orderID,
	})
}

// CancelAllOrders cancels every resting order of symbol. Venues without a
// bulk endpoint cancel one order at a time, paced by Config.CancelInterval;
// a failure stops the loop and leaves the earlier cancels in place.
func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) (bool, error) {
	if err := requireSymbol(symbol); err != nil {
		return false, err
	}
	if a.traits.BulkCancel {
		return call[bool](ctx, a, core.OpCancelAllOrders, core.Params{core.ParamSymbol: symbol})
	}
	return a.cancelSequential(ctx, symbol)
}

func (a *Adapter) cancelSequential(ctx context.Context, symbol string) (bool, error) {
	orders, err := a.ListPendingOrders(ctx, symbol)
	if err != nil {
		return false, err
	}

	pacer := ratelimit.NewPacer(a.config.CancelInterval)
	all := true
	for _, order := range orders {
		if err := pacer.Wait(ctx); err != nil {
			return false, core.NewTransportError(a.Name(), err)
		}
		ok, err := a.CancelOrder(ctx, symbol, order.OrderID)
		if err != nil {
			return false, fmt.Errorf("cancel order %s: %w", order.OrderID, err)
		}
		all = all && ok
	}

	a.logger.Debug().
		Str("symbol", symbol).
		Int("orders", len(orders)).
		Msg("sequential cancel finished")
	return all, nil
}

func (a *Adapter) ListPendingOrders(ctx context.Context, symbol string) ([]core.PendingOrder, error) {
	params := core.Params{}
	if symbol != "" {
		params[core.ParamSymbol] = symbol
	}
	return call[[]core.PendingOrder](ctx, a, core.OpListPendingOrders, params)
}

func (a *Adapter) ListTradeHistory(ctx context.Context, symbol string, limit int) ([]core.TradeRecord, error) {
	params, err := a.historyParams(symbol, limit)
	if err != nil {
		return nil, err
	}
	records, err := call[[]core.TradeRecord](ctx, a, core.OpListTradeHistory, params)
	if err != nil {
		return nil, err
	}
	return truncate(records, limit), nil
}

func (a *Adapter) ListPositionHistory(ctx context.Context, symbol string, limit int) ([]core.PositionHistoryRecord, error) {
	params, err := a.historyParams(symbol, limit)
	if err != nil {
		return nil, err
	}
	records, err := call[[]core.PositionHistoryRecord](ctx, a, core.OpListPositionHistory, params)
	if err != nil {
		return nil, err
	}
	return truncate(records, limit), nil
}

func (a *Adapter) historyParams(symbol string, limit int) (core.Params, error) {
	if symbol == "" && a.traits.HistoryNeedsSymbol {
		return nil, core.NewValidationError(core.ParamSymbol, "is required by %s history endpoints", a.Name())
	}
	params := core.Params{}
	if symbol != "" {
		params[core.ParamSymbol] = symbol
	}
	if limit > 0 {
		params[core.ParamLimit] = limit
	}
	return params, nil
}

// GetOrderBook returns asks ascending and bids descending, each cut to limit.
func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, limit int) (*core.OrderBook, error) {
	if err := requireSymbol(symbol); err != nil {
		return nil, err
	}
	params := core.Params{core.ParamSymbol: symbol}
	if limit > 0 {
		params[core.ParamLimit] = limit
	}
	book, err := call[*core.OrderBook](ctx, a, core.OpGetOrderBook, params)
	if err != nil {
		return nil, err
	}
	book.Normalize(limit)
	return book, nil
}

// GetCandles returns the most recent candle first.
func (a *Adapter) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	if err := requireSymbol(symbol); err != nil {
		return nil, err
	}
	if timeframe == "" {
		return nil, core.NewValidationError(core.ParamTimeframe, "is required")
	}
	params := core.Params{
		core.ParamSymbol:    symbol,
		core.ParamTimeframe: timeframe,
	}
	if limit > 0 {
		params[core.ParamLimit] = limit
	}
	candles, err := call[[]core.Candle](ctx, a, core.OpGetCandles, params)
	if err != nil {
		return nil, err
	}
	return core.SortCandles(candles, limit), nil
}

func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) (bool, error) {
	if leverage <= 0 {
		return false, core.NewValidationError(core.ParamLeverage, "must be positive, got %d", leverage)
	}
	return call[bool](ctx, a, core.OpSetLeverage, core.Params{
		core.ParamSymbol:   symbol,
		core.ParamLeverage: leverage,
	})
}

func call[T any](ctx context.Context, a *Adapter, op core.Operation, params core.Params) (T, error) {
	var zero T
	result, err := a.execute(ctx, op, params)
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected response type %T", op, result)
	}
	return typed, nil
}

func (a *Adapter) execute(ctx context.Context, op core.Operation, params core.Params) (any, error) {
	if a.closed.Load() {
		return nil, core.NewTransportError(a.Name(), core.ErrClientClosed)
	}
	if params == nil {
		params = core.Params{}
	}

	req, err := a.protocol.BuildRequest(op, params)
	if err != nil {
		return nil, err
	}
	if err := req.EncodeBody(); err != nil {
		return nil, err
	}

	var creds core.Credentials
	if req.RequireAuth {
		if creds, err = a.credentials(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := a.send(ctx, req, creds)
	if err != nil {
		a.observe(op, req, start, err)
		return nil, err
	}

	result, err := a.protocol.ParseResponse(op, params, resp)
	if err != nil && req.RequireAuth && a.keyRing != nil {
		a.keyRing.OnError(err)
	}
	a.observe(op, req, start, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// send waits for the limiter, signs with a single timestamp and performs
// the call. Only failures below the HTTP status line become errors here.
func (a *Adapter) send(ctx context.Context, req *core.Request, creds core.Credentials) (*core.Response, error) {
	if err := a.limiter.Wait(ctx, req.Weight); err != nil {
		return nil, core.NewTransportError(a.Name(), fmt.Errorf("rate limit: %w", err))
	}

	if req.RequireAuth {
		if err := a.protocol.SignRequest(req, creds, a.now()); err != nil {
			return nil, core.WrapValidationError("credentials", fmt.Errorf("sign request: %w", err))
		}
	}

	if a.breaker != nil && !a.breaker.Allow() {
		a.metrics.SetBreakerState(a.Name(), int(a.breaker.State()))
		return nil, core.NewTransportError(a.Name(), core.ErrCircuitBreakerOpen)
	}

	resp, err := a.http.Do(ctx, &httpClient.Request{
		Method:  req.Method,
		URL:     req.URL(),
		Headers: req.Headers,
		Body:    req.Payload,
	})
	if a.breaker != nil {
		a.breaker.Record(err == nil && resp.StatusCode() < 500)
		a.metrics.SetBreakerState(a.Name(), int(a.breaker.State()))
	}
	if err != nil {
		return nil, core.NewTransportError(a.Name(), err)
	}

	return &core.Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Bytes(),
	}, nil
}

func (a *Adapter) credentials() (core.Credentials, error) {
	if a.keyRing == nil || a.keyRing.Len() == 0 {
		return core.Credentials{}, core.WrapValidationError("credentials", fmt.Errorf("%s: %w", a.Name(), core.ErrNoCredentials))
	}
	creds, err := a.keyRing.Credentials()
	if err != nil {
		return core.Credentials{}, core.WrapValidationError("credentials", fmt.Errorf("%s: %w: %v", a.Name(), core.ErrNoCredentials, err))
	}
	if a.traits.RequiresPassphrase && creds.Passphrase == "" {
		return core.Credentials{}, core.NewValidationError("passphrase", "is required by %s", a.Name())
	}
	if a.traits.RequiresAccountID && creds.AccountID == "" {
		return core.Credentials{}, core.NewValidationError("account_id", "is required by %s", a.Name())
	}
	return creds, nil
}

func (a *Adapter) observe(op core.Operation, req *core.Request, start time.Time, err error) {
	elapsed := time.Since(start)

	status := metrics.StatusSuccess
	event := a.logger.Debug()
	switch {
	case err == nil:
	case errors.Is(err, core.ErrCircuitBreakerOpen):
		status = metrics.StatusRejected
		event = a.logger.Warn()
	case core.IsRateLimitError(err):
		status = metrics.StatusRateLimited
		event = a.logger.Warn()
	case core.IsTransportError(err):
		status = metrics.StatusError
		event = a.logger.Error()
	default:
		status = metrics.StatusError
		event = a.logger.Warn()
	}

	a.metrics.ObserveCall(a.Name(), op.String(), status, elapsed)
	event.
		Str("op", op.String()).
		Str("method", req.Method).
		Str("path", req.Path).
		Dur("duration", elapsed).
		Err(err).
		Msg("exchange call")
}

func requireSymbol(symbol string) error {
	if symbol == "" {
		return core.NewValidationError(core.ParamSymbol, "is required")
	}
	return nil
}

func truncate[T any](records []T, limit int) []T {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	if records == nil {
		return []T{}
	}
	return records
}
