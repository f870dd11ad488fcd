package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"perpgate/pkg/core"
)

const (
	ProductionURL = "https://fapi.binance.com"
	SandboxURL    = "https://testnet.binancefuture.com"

	// DefaultBrokerPrefix is prepended to generated client order ids.
	DefaultBrokerPrefix = "x-yQVdP6jN"
	clientIDMaxLen      = 36

	defaultDepth = 20
	maxKlines    = 1500
)

// depthLimits are the only depth sizes /fapi/v1/depth accepts.
var depthLimits = []int{5, 10, 20, 50, 100, 500, 1000}

// Protocol implements core.Protocol for Binance USDⓈ-M futures.
type Protocol struct {
	recvWindow   time.Duration
	brokerPrefix string
	normalizer   *Normalizer
}

var _ core.Protocol = (*Protocol)(nil)

// NewProtocol creates a Binance protocol. A nil config uses the defaults.
func NewProtocol(config *core.Config) *Protocol {
	p := &Protocol{
		recvWindow:   5 * time.Second,
		brokerPrefix: DefaultBrokerPrefix,
		normalizer:   NewNormalizer(),
	}
	if config != nil {
		if config.RecvWindow > 0 {
			p.recvWindow = config.RecvWindow
		}
		if config.BrokerTag != "" {
			p.brokerPrefix = config.BrokerTag
		}
	}
	return p
}

func (p *Protocol) Name() string {
	return core.ExchangeBinance
}

func (p *Protocol) BaseURL(sandbox bool) string {
	if sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// Traits reports a bulk cancel endpoint and history endpoints that are
// scoped to one symbol.
func (p *Protocol) Traits() core.Traits {
	return core.Traits{
		BulkCancel:         true,
		HistoryNeedsSymbol: true,
	}
}

func (p *Protocol) RateLimits() core.RateLimitConfig {
	return core.RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             40,
	}
}

func (p *Protocol) BuildRequest(op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpRefreshSymbols:
		return core.NewRequest(http.MethodGet, "/fapi/v1/exchangeInfo"), nil
	case core.OpGetBalance, core.OpGetTotalEquity:
		return core.NewRequest(http.MethodGet, "/fapi/v3/account").
			SetWeight(5).
			SetRequireAuth(true), nil
	case core.OpGetLastPrice:
		return p.symbolRequest(http.MethodGet, "/fapi/v1/trades", params, false, func(req *core.Request) {
			req.SetQuery("limit", 1)
		})
	case core.OpGetPosition:
		return p.symbolRequest(http.MethodGet, "/fapi/v3/positionRisk", params, true, nil)
	case core.OpGetAllPositions:
		return core.NewRequest(http.MethodGet, "/fapi/v3/positionRisk").
			SetWeight(5).
			SetRequireAuth(true), nil
	case core.OpPlaceOrder:
		return p.buildPlaceOrder(params)
	case core.OpCancelOrder:
		orderID, err := params.RequiredString(core.ParamOrderID)
		if err != nil {
			return nil, err
		}
		return p.symbolRequest(http.MethodDelete, "/fapi/v1/order", params, true, func(req *core.Request) {
			req.SetQuery("orderId", orderID)
		})
	case core.OpCancelAllOrders:
		return p.symbolRequest(http.MethodDelete, "/fapi/v1/allOpenOrders", params, true, nil)
	case core.OpListPendingOrders:
		req := core.NewRequest(http.MethodGet, "/fapi/v1/openOrders").SetRequireAuth(true)
		req.SetQueryIf("symbol", params.String(core.ParamSymbol))
		if params.String(core.ParamSymbol) == "" {
			req.SetWeight(40)
		}
		return req, nil
	case core.OpListTradeHistory:
		return p.symbolRequest(http.MethodGet, "/fapi/v1/allOrders", params, true, func(req *core.Request) {
			req.SetWeight(5)
			setLimit(req, params, 1000)
		})
	case core.OpListPositionHistory:
		return p.symbolRequest(http.MethodGet, "/fapi/v1/userTrades", params, true, func(req *core.Request) {
			req.SetWeight(5)
			setLimit(req, params, 1000)
		})
	case core.OpGetOrderBook:
		limit := depthLimit(params.IntOr(core.ParamLimit, defaultDepth))
		return p.symbolRequest(http.MethodGet, "/fapi/v1/depth", params, false, func(req *core.Request) {
			req.SetQuery("limit", limit)
			req.SetWeight(depthWeight(limit))
		})
	case core.OpGetCandles:
		interval, err := params.RequiredString(core.ParamTimeframe)
		if err != nil {
			return nil, err
		}
		return p.symbolRequest(http.MethodGet, "/fapi/v1/klines", params, false, func(req *core.Request) {
			req.SetQuery("interval", interval)
			setLimit(req, params, maxKlines)
			req.SetWeight(5)
		})
	case core.OpSetLeverage:
		leverage := params.IntOr(core.ParamLeverage, 0)
		if leverage <= 0 {
			return nil, core.NewValidationError(core.ParamLeverage, "must be positive")
		}
		return p.symbolRequest(http.MethodPost, "/fapi/v1/leverage", params, true, func(req *core.Request) {
			req.SetQuery("leverage", leverage)
		})
	default:
		return nil, fmt.Errorf("%s: %w: %s", p.Name(), core.ErrUnsupported, op)
	}
}

// symbolRequest builds a request whose only mandatory argument is the symbol.
func (p *Protocol) symbolRequest(method, path string, params core.Params, auth bool, extra func(*core.Request)) (*core.Request, error) {
	symbol, err := params.RequiredString(core.ParamSymbol)
	if err != nil {
		return nil, err
	}
	req := core.NewRequest(method, path).SetRequireAuth(auth)
	req.SetQuery("symbol", symbol)
	if method != http.MethodGet {
		req.SetHeader("Content-Type", "application/x-www-form-urlencoded")
	}
	if extra != nil {
		extra(req)
	}
	return req, nil
}

// buildPlaceOrder sends every field in the signed query string; the
// futures API does not read JSON bodies.
func (p *Protocol) buildPlaceOrder(params core.Params) (*core.Request, error) {
	order, err := params.Order()
	if err != nil {
		return nil, err
	}

	req := core.NewRequest(http.MethodPost, "/fapi/v1/order").SetRequireAuth(true)
	req.SetHeader("Content-Type", "application/x-www-form-urlencoded")
	req.SetQuery("symbol", order.Symbol)
	req.SetQuery("side", order.Side.String())
	req.SetQuery("type", order.Kind.String())
	req.SetQuery("quantity", order.Quantity.String())
	req.SetQuery("reduceOnly", strconv.FormatBool(order.ReduceOnly))
	if order.Kind == core.OrderKindLimit {
		req.SetQuery("price", order.Price.String())
		req.SetQuery("timeInForce", "GTC")
	}
	req.SetQuery("newClientOrderId", core.ClientIDOr(order.ClientTag, p.brokerPrefix, clientIDMaxLen))
	return req, nil
}

// SignRequest appends timestamp and recvWindow, signs the encoded query
// followed by any payload, and fixes the transmitted query with the
// signature last.
func (p *Protocol) SignRequest(req *core.Request, creds core.Credentials, now time.Time) error {
	if creds.SecretKey == "" {
		return fmt.Errorf("secret key is required for signing")
	}

	req.SetQuery("timestamp", now.UnixMilli())
	req.SetQuery("recvWindow", p.recvWindow.Milliseconds())

	qs := req.Query.Encode()
	signature := signHMAC(qs+string(req.Payload), creds.SecretKey)
	req.RawQuery = qs + "&signature=" + signature
	req.SetHeader("X-MBX-APIKEY", creds.APIKey)
	return nil
}

// ParseResponse reports any non-200 status carrying {code,msg} as an
// ExchangeError and a 200 body with a negative code the same way.
func (p *Protocol) ParseResponse(op core.Operation, params core.Params, resp *core.Response) (any, error) {
	if resp == nil {
		return nil, core.NewTransportError(p.Name(), fmt.Errorf("nil response"))
	}

	var apiErr binanceAPIError
	decodeErr := sonic.Unmarshal(resp.Body, &apiErr)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && apiErr.Code != 0 {
			return nil, p.exchangeError(resp.StatusCode, apiErr)
		}
		return nil, core.NewHTTPStatusError(p.Name(), resp.StatusCode, resp.Body)
	}
	if decodeErr == nil && apiErr.Code < 0 {
		return nil, p.exchangeError(resp.StatusCode, apiErr)
	}

	result, err := p.normalize(op, params, resp.Body)
	if err != nil {
		return nil, core.NewMalformedError(p.Name(), resp.StatusCode, err)
	}
	return result, nil
}

func (p *Protocol) exchangeError(status int, apiErr binanceAPIError) *core.ExchangeError {
	return core.NewExchangeErrorWithCode(
		p.Name(),
		mapBinanceErrorCode(apiErr.Code, status),
		status,
		strconv.Itoa(apiErr.Code),
		apiErr.Msg,
	)
}

func (p *Protocol) normalize(op core.Operation, params core.Params, body []byte) (any, error) {
	n := p.normalizer

	switch op {
	case core.OpRefreshSymbols:
		var data binanceExchangeInfo
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal exchange info: %w", err)
		}
		return n.NormalizeSymbols(&data)

	case core.OpGetBalance, core.OpGetTotalEquity:
		var data binanceAccount
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal account: %w", err)
		}
		if op == core.OpGetTotalEquity {
			return n.NormalizeEquity(&data)
		}
		return n.NormalizeBalance(&data, params.String(core.ParamAsset))

	case core.OpGetLastPrice:
		var data []binanceTrade
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal trades: %w", err)
		}
		return n.NormalizeLastPrice(data)

	case core.OpGetPosition, core.OpGetAllPositions:
		var data []binancePosition
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal positions: %w", err)
		}
		if op == core.OpGetPosition {
			return n.NormalizePosition(data)
		}
		return n.NormalizePositions(data)

	case core.OpPlaceOrder:
		var data binanceOrder
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		if data.OrderID.IsEmpty() {
			return nil, fmt.Errorf("order id missing")
		}
		return data.OrderID.String(), nil

	case core.OpCancelOrder, core.OpCancelAllOrders, core.OpSetLeverage:
		return true, nil

	case core.OpListPendingOrders, core.OpListTradeHistory:
		var data []binanceOrder
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		if op == core.OpListPendingOrders {
			return n.NormalizePendingOrders(data)
		}
		return n.NormalizeTradeHistory(data)

	case core.OpListPositionHistory:
		var data []binanceUserTrade
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal user trades: %w", err)
		}
		return n.NormalizePositionHistory(data)

	case core.OpGetOrderBook:
		var data binanceOrderBook
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal order book: %w", err)
		}
		return n.NormalizeOrderBook(&data)

	case core.OpGetCandles:
		var data []binanceKline
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal klines: %w", err)
		}
		return n.NormalizeCandles(data)

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupported, op)
	}
}

func setLimit(req *core.Request, params core.Params, max int) {
	if limit := params.IntOr(core.ParamLimit, 0); limit > 0 {
		req.SetQuery("limit", min(limit, max))
	}
}

// depthLimit rounds limit up to the nearest accepted depth size.
func depthLimit(limit int) int {
	for _, l := range depthLimits {
		if limit <= l {
			return l
		}
	}
	return depthLimits[len(depthLimits)-1]
}

func depthWeight(limit int) int {
	switch {
	case limit <= 50:
		return 2
	case limit <= 100:
		return 5
	case limit <= 500:
		return 10
	default:
		return 20
	}
}

func signHMAC(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func mapBinanceErrorCode(code, status int) core.ErrorType {
	switch code {
	case -1003, -1015:
		return core.ErrorTypeRateLimit
	case -1021:
		return core.ErrorTypeTimeout
	case -1022, -2014, -2015:
		return core.ErrorTypeAuthentication
	case -2019, -2018:
		return core.ErrorTypeInsufficientFunds
	case -2011, -2013:
		return core.ErrorTypeNotFound
	}
	switch {
	case code <= -1100 && code > -1200:
		return core.ErrorTypeBadRequest
	case code <= -2000 && code > -5000:
		return core.ErrorTypeInvalidOrder
	}
	return core.ErrorTypeForStatus(status)
}
