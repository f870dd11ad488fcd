package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"perpgate/pkg/core"
)

const (
	ProductionURL = "https://api.bybit.com"
	SandboxURL    = "https://api-testnet.bybit.com"

	// DefaultReferer is sent in X-Referer on every signed call.
	DefaultReferer = "Mg000592"

	category       = "linear"
	settleCoin     = "USDT"
	clientIDMaxLen = 36

	// retCodeLeverageNotModified is returned when the leverage already matches.
	retCodeLeverageNotModified = 110043
)

// Protocol implements core.Protocol for Bybit v5 linear contracts.
type Protocol struct {
	recvWindow string
	referer    string
	normalizer *Normalizer
}

var _ core.Protocol = (*Protocol)(nil)

// NewProtocol creates a Bybit protocol. A nil config uses the defaults.
func NewProtocol(config *core.Config) *Protocol {
	p := &Protocol{
		recvWindow: "5000",
		referer:    DefaultReferer,
		normalizer: NewNormalizer(),
	}
	if config != nil {
		if config.RecvWindow > 0 {
			p.recvWindow = strconv.FormatInt(config.RecvWindow.Milliseconds(), 10)
		}
		if config.BrokerTag != "" {
			p.referer = config.BrokerTag
		}
	}
	return p
}

func (p *Protocol) Name() string {
	return core.ExchangeBybit
}

func (p *Protocol) BaseURL(sandbox bool) string {
	if sandbox {
		return SandboxURL
	}
	return ProductionURL
}

func (p *Protocol) Traits() core.Traits {
	return core.Traits{BulkCancel: true}
}

func (p *Protocol) RateLimits() core.RateLimitConfig {
	return core.RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

func (p *Protocol) BuildRequest(op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpRefreshSymbols:
		return linearGet("/v5/market/instruments-info").SetQuery("limit", 1000), nil

	case core.OpGetBalance:
		asset, err := params.RequiredString(core.ParamAsset)
		if err != nil {
			return nil, err
		}
		return walletRequest().SetQuery("coin", asset), nil

	case core.OpGetTotalEquity:
		return walletRequest(), nil

	case core.OpGetLastPrice:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return linearGet("/v5/market/tickers").SetQuery("symbol", symbol), nil

	case core.OpGetPosition:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return linearGet("/v5/position/list").SetQuery("symbol", symbol).SetRequireAuth(true), nil

	case core.OpGetAllPositions:
		return linearGet("/v5/position/list").
			SetQuery("settleCoin", settleCoin).
			SetRequireAuth(true), nil

	case core.OpPlaceOrder:
		return p.buildPlaceOrder(params)

	case core.OpCancelOrder:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		orderID, err := params.RequiredString(core.ParamOrderID)
		if err != nil {
			return nil, err
		}
		return linearPost("/v5/order/cancel", map[string]any{
			"category": category,
			"symbol":   symbol,
			"orderId":  orderID,
		}), nil

	case core.OpCancelAllOrders:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return linearPost("/v5/order/cancel-all", map[string]any{
			"category": category,
			"symbol":   symbol,
		}), nil

	case core.OpListPendingOrders:
		req := linearGet("/v5/order/realtime").SetRequireAuth(true)
		if symbol := params.String(core.ParamSymbol); symbol != "" {
			req.SetQuery("symbol", symbol)
		} else {
			req.SetQuery("settleCoin", settleCoin)
		}
		return req, nil

	case core.OpListTradeHistory:
		return historyRequest("/v5/execution/list", params), nil

	case core.OpListPositionHistory:
		return historyRequest("/v5/position/closed-pnl", params), nil

	case core.OpGetOrderBook:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return linearGet("/v5/market/orderbook").
			SetQuery("symbol", symbol).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 25), 500)), nil

	case core.OpGetCandles:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		timeframe, err := params.RequiredString(core.ParamTimeframe)
		if err != nil {
			return nil, err
		}
		return linearGet("/v5/market/kline").
			SetQuery("symbol", symbol).
			SetQuery("interval", Interval(timeframe)).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), 1000)), nil

	case core.OpSetLeverage:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		leverage := strconv.Itoa(params.IntOr(core.ParamLeverage, 1))
		return linearPost("/v5/position/set-leverage", map[string]any{
			"category":     category,
			"symbol":       symbol,
			"buyLeverage":  leverage,
			"sellLeverage": leverage,
		}), nil

	default:
		return nil, fmt.Errorf("%s: %w: %s", p.Name(), core.ErrUnsupported, op)
	}
}

func (p *Protocol) buildPlaceOrder(params core.Params) (*core.Request, error) {
	order, err := params.Order()
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"category":       category,
		"symbol":         order.Symbol,
		"orderType":      titleCase(order.Kind.String()),
		"side":           titleCase(order.Side.String()),
		"qty":            order.Quantity.String(),
		"timeInForce":    "GTC",
		"reduceOnly":     order.ReduceOnly,
		"closeOnTrigger": order.ReduceOnly,
		"orderLinkId":    core.ClientIDOr(order.ClientTag, "", clientIDMaxLen),
	}
	if order.Kind == core.OrderKindLimit {
		body["price"] = order.Price.String()
	}
	return linearPost("/v5/order/create", body), nil
}

// SignRequest signs timestamp + key + recvWindow + query + body.
func (p *Protocol) SignRequest(req *core.Request, creds core.Credentials, now time.Time) error {
	if creds.SecretKey == "" {
		return fmt.Errorf("secret key is required for signing")
	}

	ts := strconv.FormatInt(now.UnixMilli(), 10)
	qs := req.Query.Encode()
	req.RawQuery = qs

	message := ts + creds.APIKey + p.recvWindow + qs + string(req.Payload)
	req.SetHeader("X-BAPI-SIGN", signHMAC(message, creds.SecretKey))
	req.SetHeader("X-BAPI-API-KEY", creds.APIKey)
	req.SetHeader("X-BAPI-TIMESTAMP", ts)
	req.SetHeader("X-BAPI-RECV-WINDOW", p.recvWindow)
	req.SetHeader("X-Referer", p.referer)
	return nil
}

// ParseResponse accepts retCode 0 only, except for a leverage change that
// reports the value was already set.
func (p *Protocol) ParseResponse(op core.Operation, params core.Params, resp *core.Response) (any, error) {
	if resp == nil {
		return nil, core.NewTransportError(p.Name(), fmt.Errorf("nil response"))
	}

	var status bybitStatus
	if err := sonic.Unmarshal(resp.Body, &status); err != nil {
		if !resp.IsSuccess() {
			return nil, core.NewHTTPStatusError(p.Name(), resp.StatusCode, resp.Body)
		}
		return nil, core.NewMalformedError(p.Name(), resp.StatusCode, err)
	}
	if status.RetCode != 0 {
		if op == core.OpSetLeverage && status.RetCode == retCodeLeverageNotModified {
			return true, nil
		}
		return nil, core.NewExchangeErrorWithCode(
			p.Name(),
			mapBybitErrorCode(status.RetCode, resp.StatusCode),
			resp.StatusCode,
			strconv.Itoa(status.RetCode),
			status.RetMsg,
		)
	}
	if !resp.IsSuccess() {
		return nil, core.NewHTTPStatusError(p.Name(), resp.StatusCode, resp.Body)
	}

	result, err := p.normalize(op, params, resp.Body)
	if err != nil {
		return nil, core.NewMalformedError(p.Name(), resp.StatusCode, err)
	}
	return result, nil
}

func (p *Protocol) normalize(op core.Operation, params core.Params, body []byte) (any, error) {
	n := p.normalizer

	switch op {
	case core.OpRefreshSymbols:
		list, err := decodeList[bybitInstrument](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeSymbols(list)

	case core.OpGetBalance:
		list, err := decodeList[bybitWallet](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeBalance(list, params.String(core.ParamAsset))

	case core.OpGetTotalEquity:
		list, err := decodeList[bybitWallet](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeEquity(list)

	case core.OpGetLastPrice:
		list, err := decodeList[bybitTicker](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeLastPrice(list)

	case core.OpGetPosition, core.OpGetAllPositions:
		list, err := decodeList[bybitPosition](body)
		if err != nil {
			return nil, err
		}
		if op == core.OpGetPosition {
			return n.NormalizePosition(list)
		}
		return n.NormalizePositions(list)

	case core.OpPlaceOrder:
		result, err := decodeResult[bybitOrder](body)
		if err != nil {
			return nil, err
		}
		if result.OrderID == "" {
			return nil, fmt.Errorf("order id missing")
		}
		return result.OrderID, nil

	case core.OpCancelOrder, core.OpCancelAllOrders, core.OpSetLeverage:
		return true, nil

	case core.OpListPendingOrders:
		list, err := decodeList[bybitOrder](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePendingOrders(list)

	case core.OpListTradeHistory:
		list, err := decodeList[bybitExecution](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeTradeHistory(list)

	case core.OpListPositionHistory:
		list, err := decodeList[bybitClosedPnl](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePositionHistory(list)

	case core.OpGetOrderBook:
		result, err := decodeResult[bybitOrderBook](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeOrderBook(&result)

	case core.OpGetCandles:
		list, err := decodeList[bybitKline](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeCandles(list)

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupported, op)
	}
}

func decodeResult[T any](body []byte) (T, error) {
	var env bybitEnvelope[T]
	if err := sonic.Unmarshal(body, &env); err != nil {
		return env.Result, fmt.Errorf("unmarshal result: %w", err)
	}
	return env.Result, nil
}

func decodeList[T any](body []byte) ([]T, error) {
	result, err := decodeResult[bybitList[T]](body)
	return result.List, err
}

func linearGet(path string) *core.Request {
	return core.NewRequest(http.MethodGet, path).SetQuery("category", category)
}

func linearPost(path string, body map[string]any) *core.Request {
	return core.NewRequest(http.MethodPost, path).SetBody(body).SetRequireAuth(true)
}

func walletRequest() *core.Request {
	return core.NewRequest(http.MethodGet, "/v5/account/wallet-balance").
		SetQuery("accountType", "UNIFIED").
		SetRequireAuth(true)
}

func historyRequest(path string, params core.Params) *core.Request {
	req := linearGet(path).
		SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), 100)).
		SetRequireAuth(true)
	req.SetQueryIf("symbol", params.String(core.ParamSymbol))
	return req
}

// Interval maps a timeframe such as "4h" or "15m" onto Bybit's kline
// interval: minutes for intraday bars and "D" for daily.
func Interval(timeframe string) string {
	switch timeframe {
	case "1d":
		return "D"
	case "12h":
		return "720"
	case "6h":
		return "360"
	case "4h":
		return "240"
	case "2h":
		return "120"
	case "1h":
		return "60"
	}
	return strings.ReplaceAll(timeframe, "m", "")
}

// titleCase turns "BUY" into "Buy" and "LIMIT" into "Limit".
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return s[:1] + strings.ToLower(s[1:])
}

func signHMAC(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func mapBybitErrorCode(code, status int) core.ErrorType {
	switch code {
	case 10001, 10003:
		return core.ErrorTypeBadRequest
	case 10002:
		return core.ErrorTypeTimeout
	case 10004, 10005, 10007, 10010, 33004:
		return core.ErrorTypeAuthentication
	case 10006, 10018:
		return core.ErrorTypeRateLimit
	case 110004, 110007, 110012, 110044, 110045:
		return core.ErrorTypeInsufficientFunds
	case 110001, 110008, 110010:
		return core.ErrorTypeNotFound
	}
	switch {
	case code >= 110000 && code < 120000:
		return core.ErrorTypeInvalidOrder
	case code >= 10000 && code < 20000:
		return core.ErrorTypeBadRequest
	}
	return core.ErrorTypeForStatus(status)
}
