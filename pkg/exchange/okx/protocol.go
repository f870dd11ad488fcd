package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"perpgate/pkg/core"
)

const (
	ProductionURL = "https://www.okx.com"

	// DefaultBrokerPrefix is prepended to generated clOrdId values.
	DefaultBrokerPrefix = "8d53cdda9f79BCDE"
	clientIDMaxLen      = 32

	instType = "SWAP"
	mgnMode  = "cross"

	isoMillis = "2006-01-02T15:04:05.000Z"
)

// Protocol implements core.Protocol for OKX perpetual swaps.
type Protocol struct {
	sandbox      bool
	brokerPrefix string
	normalizer   *Normalizer
}

var _ core.Protocol = (*Protocol)(nil)

// NewProtocol creates an OKX protocol. Sandbox mode marks every request as
// simulated trading, since OKX serves both from the same host.
func NewProtocol(config *core.Config) *Protocol {
	p := &Protocol{
		brokerPrefix: DefaultBrokerPrefix,
		normalizer:   NewNormalizer(),
	}
	if config != nil {
		p.sandbox = config.Sandbox
		if config.BrokerTag != "" {
			p.brokerPrefix = config.BrokerTag
		}
	}
	return p
}

func (p *Protocol) Name() string {
	return core.ExchangeOKX
}

func (p *Protocol) BaseURL(bool) string {
	return ProductionURL
}

// Traits reports no bulk cancel endpoint and a mandatory passphrase.
func (p *Protocol) Traits() core.Traits {
	return core.Traits{
		RequiresPassphrase: true,
	}
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
		return p.get("/api/v5/public/instruments", false).SetQuery("instType", instType), nil

	case core.OpGetBalance, core.OpGetTotalEquity:
		return p.get("/api/v5/account/balance", true), nil

	case core.OpGetLastPrice:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.get("/api/v5/market/trades", false).
			SetQuery("instId", symbol).
			SetQuery("limit", 1), nil

	case core.OpGetPosition:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.get("/api/v5/account/positions", true).
			SetQuery("instType", instType).
			SetQuery("instId", symbol), nil

	case core.OpGetAllPositions:
		return p.get("/api/v5/account/positions", true).SetQuery("instType", instType), nil

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
		return p.post("/api/v5/trade/cancel-order", map[string]any{
			"instId": symbol,
			"ordId":  orderID,
		}), nil

	case core.OpListPendingOrders:
		req := p.get("/api/v5/trade/orders-pending", true).SetQuery("instType", instType)
		req.SetQueryIf("instId", params.String(core.ParamSymbol))
		return req, nil

	case core.OpListTradeHistory:
		req := p.get("/api/v5/trade/orders-history", true).
			SetQuery("instType", instType).
			SetQuery("state", "filled").
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), 100))
		req.SetQueryIf("instId", params.String(core.ParamSymbol))
		return req, nil

	case core.OpListPositionHistory:
		req := p.get("/api/v5/account/positions-history", true).
			SetQuery("instType", instType).
			SetQuery("type", 2).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), 100))
		req.SetQueryIf("instId", params.String(core.ParamSymbol))
		return req, nil

	case core.OpGetOrderBook:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.get("/api/v5/market/books", false).
			SetQuery("instId", symbol).
			SetQuery("sz", min(params.IntOr(core.ParamLimit, 20), 400)), nil

	case core.OpGetCandles:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		timeframe, err := params.RequiredString(core.ParamTimeframe)
		if err != nil {
			return nil, err
		}
		return p.get("/api/v5/market/history-candles", false).
			SetQuery("instId", symbol).
			SetQuery("bar", Bar(timeframe)).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), 100)), nil

	case core.OpSetLeverage:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.post("/api/v5/account/set-leverage", map[string]any{
			"instId":  symbol,
			"lever":   strconv.Itoa(params.IntOr(core.ParamLeverage, 1)),
			"mgnMode": mgnMode,
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
		"instId":     order.Symbol,
		"tdMode":     mgnMode,
		"ordType":    strings.ToLower(order.Kind.String()),
		"side":       strings.ToLower(order.Side.String()),
		"sz":         order.Quantity.String(),
		"reduceOnly": order.ReduceOnly,
		"clOrdId":    core.ClientIDOr(order.ClientTag, p.brokerPrefix, clientIDMaxLen),
	}
	if order.Kind == core.OrderKindLimit {
		body["px"] = order.Price.String()
	}
	return p.post("/api/v5/trade/order", body), nil
}

func (p *Protocol) get(path string, auth bool) *core.Request {
	return p.decorate(core.NewRequest(http.MethodGet, path).SetRequireAuth(auth))
}

func (p *Protocol) post(path string, body map[string]any) *core.Request {
	return p.decorate(core.NewRequest(http.MethodPost, path).SetBody(body).SetRequireAuth(true))
}

func (p *Protocol) decorate(req *core.Request) *core.Request {
	if p.sandbox {
		req.SetHeader("x-simulated-trading", "1")
	}
	return req
}

// SignRequest signs timestamp + method + path and query + body with
// HMAC-SHA256, base64 encoded. The timestamp is ISO-8601 in UTC with
// millisecond precision.
func (p *Protocol) SignRequest(req *core.Request, creds core.Credentials, now time.Time) error {
	if creds.SecretKey == "" {
		return fmt.Errorf("secret key is required for signing")
	}

	ts := now.UTC().Format(isoMillis)
	req.RawQuery = req.Query.Encode()

	message := ts + req.Method + req.URL() + string(req.Payload)
	req.SetHeader("OK-ACCESS-KEY", creds.APIKey)
	req.SetHeader("OK-ACCESS-SIGN", signHMAC(message, creds.SecretKey))
	req.SetHeader("OK-ACCESS-TIMESTAMP", ts)
	req.SetHeader("OK-ACCESS-PASSPHRASE", creds.Passphrase)
	return nil
}

// ParseResponse requires code "0". Trade endpoints also report a per-item
// sCode, which is surfaced in place of the generic envelope message.
func (p *Protocol) ParseResponse(op core.Operation, params core.Params, resp *core.Response) (any, error) {
	if resp == nil {
		return nil, core.NewTransportError(p.Name(), fmt.Errorf("nil response"))
	}

	var status okxStatus
	if err := sonic.Unmarshal(resp.Body, &status); err != nil || status.Code == "" {
		if !resp.IsSuccess() {
			return nil, core.NewHTTPStatusError(p.Name(), resp.StatusCode, resp.Body)
		}
		if err == nil {
			err = fmt.Errorf("missing code")
		}
		return nil, core.NewMalformedError(p.Name(), resp.StatusCode, err)
	}
	if status.Code != "0" {
		return nil, p.envelopeError(resp, status)
	}
	if !resp.IsSuccess() {
		return nil, core.NewHTTPStatusError(p.Name(), resp.StatusCode, resp.Body)
	}

	result, err := p.normalize(op, params, resp)
	if err != nil {
		if core.IsExchangeError(err) {
			return nil, err
		}
		return nil, core.NewMalformedError(p.Name(), resp.StatusCode, err)
	}
	return result, nil
}

func (p *Protocol) envelopeError(resp *core.Response, status okxStatus) *core.ExchangeError {
	code, msg := status.Code, status.Msg
	var items okxEnvelope[okxItemError]
	if err := sonic.Unmarshal(resp.Body, &items); err == nil && len(items.Data) > 0 {
		if item := items.Data[0]; item.SCode != "" && item.SCode != "0" {
			code, msg = item.SCode, item.SMsg
		}
	}
	return core.NewExchangeErrorWithCode(p.Name(), mapOKXErrorCode(code, resp.StatusCode), resp.StatusCode, code, msg)
}

func (p *Protocol) normalize(op core.Operation, params core.Params, resp *core.Response) (any, error) {
	n := p.normalizer
	body := resp.Body

	switch op {
	case core.OpRefreshSymbols:
		data, err := decodeData[okxInstrument](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeSymbols(data)

	case core.OpGetBalance, core.OpGetTotalEquity:
		data, err := decodeData[okxBalance](body)
		if err != nil {
			return nil, err
		}
		if op == core.OpGetTotalEquity {
			return n.NormalizeEquity(data)
		}
		return n.NormalizeBalance(data, params.String(core.ParamAsset))

	case core.OpGetLastPrice:
		data, err := decodeData[okxTrade](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeLastPrice(data)

	case core.OpGetPosition, core.OpGetAllPositions:
		data, err := decodeData[okxPosition](body)
		if err != nil {
			return nil, err
		}
		if op == core.OpGetPosition {
			return n.NormalizePosition(data)
		}
		return n.NormalizePositions(data)

	case core.OpPlaceOrder, core.OpCancelOrder:
		data, err := decodeData[okxOrder](body)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("empty order result")
		}
		if item := data[0]; item.SCode != "" && item.SCode != "0" {
			return nil, core.NewExchangeErrorWithCode(p.Name(), mapOKXErrorCode(item.SCode, resp.StatusCode),
				resp.StatusCode, item.SCode, item.SMsg)
		}
		if op == core.OpCancelOrder {
			return true, nil
		}
		return data[0].OrdID, nil

	case core.OpSetLeverage:
		return true, nil

	case core.OpListPendingOrders:
		data, err := decodeData[okxOrder](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePendingOrders(data)

	case core.OpListTradeHistory:
		data, err := decodeData[okxOrder](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeTradeHistory(data)

	case core.OpListPositionHistory:
		data, err := decodeData[okxClosedPosition](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePositionHistory(data)

	case core.OpGetOrderBook:
		data, err := decodeData[okxBook](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeOrderBook(data)

	case core.OpGetCandles:
		data, err := decodeData[okxCandle](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeCandles(data)

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupported, op)
	}
}

func decodeData[T any](body []byte) ([]T, error) {
	var env okxEnvelope[T]
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return env.Data, nil
}

// Bar maps a timeframe onto an OKX candle bar. Daily and 6h/12h bars use
// the UTC-aligned variants.
func Bar(timeframe string) string {
	switch timeframe {
	case "1d":
		return "1Dutc"
	case "6h", "12h":
		return strings.ReplaceAll(timeframe, "h", "Hutc")
	}
	return strings.ReplaceAll(timeframe, "h", "H")
}

func signHMAC(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func mapOKXErrorCode(code string, status int) core.ErrorType {
	switch code {
	case "50011", "50061":
		return core.ErrorTypeRateLimit
	case "50102":
		return core.ErrorTypeTimeout
	case "50103", "50104", "50105", "50111", "50113", "50114":
		return core.ErrorTypeAuthentication
	case "51008", "51127":
		return core.ErrorTypeInsufficientFunds
	case "51400", "51401", "51603":
		return core.ErrorTypeNotFound
	}
	switch {
	case strings.HasPrefix(code, "51"):
		return core.ErrorTypeInvalidOrder
	case strings.HasPrefix(code, "50"):
		if t := core.ErrorTypeForStatus(status); t != core.ErrorTypeUnknown {
			return t
		}
		return core.ErrorTypeBadRequest
	}
	return core.ErrorTypeForStatus(status)
}
