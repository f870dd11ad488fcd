package bitget

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
	ProductionURL = "https://api.bitget.com"

	// DefaultChannelCode is sent as X-CHANNEL-API-CODE unless the config
	// carries a broker tag.
	DefaultChannelCode = "1jbtz"
	clientIDMaxLen     = 36

	successCode = "00000"
	marginMode  = "crossed"

	defaultDepth   = 15
	maxHistory     = 100
	maxCandles     = 1000
	defaultCandles = 100
)

var depthLimits = []int{1, 5, 15, 50}

// product groups the identifiers that differ between live and demo trading.
type product struct {
	productType string
	marginCoin  string
}

var (
	liveProduct = product{productType: "USDT-FUTURES", marginCoin: "USDT"}
	demoProduct = product{productType: "SUSDT-FUTURES", marginCoin: "SUSDT"}
)

// Protocol implements core.Protocol for Bitget USDT-margined futures.
type Protocol struct {
	sandbox     bool
	channelCode string
	product     product
	normalizer  *Normalizer
}

var _ core.Protocol = (*Protocol)(nil)

// NewProtocol creates a Bitget protocol. Sandbox mode switches to the demo
// product type and marks requests with the paptrading header.
func NewProtocol(config *core.Config) *Protocol {
	p := &Protocol{
		channelCode: DefaultChannelCode,
		product:     liveProduct,
		normalizer:  NewNormalizer(),
	}
	if config != nil {
		if config.Sandbox {
			p.sandbox = true
			p.product = demoProduct
		}
		if config.BrokerTag != "" {
			p.channelCode = config.BrokerTag
		}
	}
	return p
}

func (p *Protocol) Name() string {
	return core.ExchangeBitget
}

func (p *Protocol) BaseURL(bool) string {
	return ProductionURL
}

func (p *Protocol) Traits() core.Traits {
	return core.Traits{
		BulkCancel:         true,
		RequiresPassphrase: true,
	}
}

func (p *Protocol) RateLimits() core.RateLimitConfig {
	return core.RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

type placeOrderBody struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	MarginMode  string `json:"marginMode"`
	MarginCoin  string `json:"marginCoin"`
	Size        string `json:"size"`
	Price       string `json:"price,omitempty"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Force       string `json:"force,omitempty"`
	ReduceOnly  string `json:"reduceOnly"`
	ClientOid   string `json:"clientOid"`
}

type cancelOrderBody struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	OrderID     string `json:"orderId"`
}

type cancelAllBody struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	MarginCoin  string `json:"marginCoin"`
}

type leverageBody struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	MarginCoin  string `json:"marginCoin"`
	Leverage    string `json:"leverage"`
}

func (p *Protocol) BuildRequest(op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpRefreshSymbols:
		return p.get("/api/v2/mix/market/contracts", false).
			SetQuery("productType", strings.ToLower(p.product.productType)), nil

	case core.OpGetBalance, core.OpGetTotalEquity:
		return p.get("/api/v2/mix/account/accounts", true).
			SetQuery("productType", p.product.productType), nil

	case core.OpGetLastPrice:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.get("/api/v2/mix/market/fills", false).
			SetQuery("productType", p.product.productType).
			SetQuery("symbol", symbol).
			SetQuery("limit", 1), nil

	case core.OpGetPosition:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.get("/api/v2/mix/position/single-position", true).
			SetQuery("productType", p.product.productType).
			SetQuery("symbol", symbol).
			SetQuery("marginCoin", p.product.marginCoin), nil

	case core.OpGetAllPositions:
		return p.get("/api/v2/mix/position/all-position", true).
			SetQuery("productType", p.product.productType).
			SetQuery("marginCoin", p.product.marginCoin), nil

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
		return p.post("/api/v2/mix/order/cancel-order", &cancelOrderBody{
			Symbol:      symbol,
			ProductType: p.product.productType,
			OrderID:     orderID,
		}), nil

	case core.OpCancelAllOrders:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.post("/api/v2/mix/order/cancel-all-orders", &cancelAllBody{
			Symbol:      symbol,
			ProductType: p.product.productType,
			MarginCoin:  p.product.marginCoin,
		}), nil

	case core.OpListPendingOrders:
		req := p.get("/api/v2/mix/order/orders-pending", true).
			SetQuery("productType", p.product.productType)
		req.SetQueryIf("symbol", params.String(core.ParamSymbol))
		return req, nil

	case core.OpListTradeHistory, core.OpListPositionHistory:
		req := p.get("/api/v2/mix/order/fills", true).
			SetQuery("productType", p.product.productType).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, maxHistory), maxHistory))
		req.SetQueryIf("symbol", params.String(core.ParamSymbol))
		return req, nil

	case core.OpGetOrderBook:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.get("/api/v2/mix/market/merge-depth", false).
			SetQuery("productType", p.product.productType).
			SetQuery("symbol", symbol).
			SetQuery("limit", depthLimit(params.IntOr(core.ParamLimit, defaultDepth))), nil

	case core.OpGetCandles:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		timeframe, err := params.RequiredString(core.ParamTimeframe)
		if err != nil {
			return nil, err
		}
		return p.get("/api/v2/mix/market/candles", false).
			SetQuery("productType", p.product.productType).
			SetQuery("symbol", symbol).
			SetQuery("granularity", Granularity(timeframe)).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, defaultCandles), maxCandles)), nil

	case core.OpSetLeverage:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.post("/api/v2/mix/account/set-leverage", &leverageBody{
			Symbol:      symbol,
			ProductType: p.product.productType,
			MarginCoin:  p.product.marginCoin,
			Leverage:    strconv.Itoa(params.IntOr(core.ParamLeverage, 1)),
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

	body := &placeOrderBody{
		Symbol:      order.Symbol,
		ProductType: p.product.productType,
		MarginMode:  marginMode,
		MarginCoin:  p.product.marginCoin,
		Size:        order.Quantity.String(),
		Side:        strings.ToLower(order.Side.String()),
		OrderType:   strings.ToLower(order.Kind.String()),
		ReduceOnly:  "NO",
		ClientOid:   core.ClientIDOr(order.ClientTag, "", clientIDMaxLen),
	}
	if order.ReduceOnly {
		body.ReduceOnly = "YES"
	}
	if order.Kind == core.OrderKindLimit {
		body.Price = order.Price.String()
		body.Force = "gtc"
	}
	return p.post("/api/v2/mix/order/place-order", body), nil
}

func (p *Protocol) get(path string, auth bool) *core.Request {
	return p.decorate(core.NewRequest(http.MethodGet, path).SetRequireAuth(auth))
}

func (p *Protocol) post(path string, body any) *core.Request {
	return p.decorate(core.NewRequest(http.MethodPost, path).SetBody(body).SetRequireAuth(true))
}

func (p *Protocol) decorate(req *core.Request) *core.Request {
	req.SetHeader("X-CHANNEL-API-CODE", p.channelCode)
	if p.sandbox {
		req.SetHeader("paptrading", "1")
	}
	return req
}

// SignRequest signs timestamp + method + path and query + body with
// HMAC-SHA256, base64 encoded. The timestamp is in epoch milliseconds.
func (p *Protocol) SignRequest(req *core.Request, creds core.Credentials, now time.Time) error {
	if creds.SecretKey == "" {
		return fmt.Errorf("secret key is required for signing")
	}

	ts := strconv.FormatInt(now.UnixMilli(), 10)
	req.RawQuery = req.Query.Encode()

	message := ts + req.Method + req.URL() + string(req.Payload)
	req.SetHeader("ACCESS-KEY", creds.APIKey)
	req.SetHeader("ACCESS-SIGN", signHMAC(message, creds.SecretKey))
	req.SetHeader("ACCESS-TIMESTAMP", ts)
	req.SetHeader("ACCESS-PASSPHRASE", creds.Passphrase)
	return nil
}

// ParseResponse requires code "00000" in the envelope, whatever the HTTP
// status.
func (p *Protocol) ParseResponse(op core.Operation, params core.Params, resp *core.Response) (any, error) {
	if resp == nil {
		return nil, core.NewTransportError(p.Name(), fmt.Errorf("nil response"))
	}

	var status bitgetStatus
	if err := sonic.Unmarshal(resp.Body, &status); err != nil || status.Code == "" {
		if !resp.IsSuccess() {
			return nil, core.NewHTTPStatusError(p.Name(), resp.StatusCode, resp.Body)
		}
		if err == nil {
			err = fmt.Errorf("missing code")
		}
		return nil, core.NewMalformedError(p.Name(), resp.StatusCode, err)
	}
	if status.Code != successCode {
		return nil, core.NewExchangeErrorWithCode(p.Name(), mapBitgetErrorCode(status.Code, resp.StatusCode),
			resp.StatusCode, status.Code, status.Msg)
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
		data, err := decodeData[[]bitgetContract](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeSymbols(data)

	case core.OpGetBalance:
		data, err := decodeData[[]bitgetAccount](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeBalance(data, params.String(core.ParamAsset))

	case core.OpGetTotalEquity:
		data, err := decodeData[[]bitgetAccount](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeBalance(data, p.product.marginCoin)

	case core.OpGetLastPrice:
		data, err := decodeData[[]bitgetFill](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeLastPrice(data)

	case core.OpGetPosition, core.OpGetAllPositions:
		data, err := decodeData[[]bitgetPosition](body)
		if err != nil {
			return nil, err
		}
		if op == core.OpGetPosition {
			return n.NormalizePosition(data)
		}
		return n.NormalizePositions(data)

	case core.OpPlaceOrder:
		data, err := decodeData[bitgetPlaced](body)
		if err != nil {
			return nil, err
		}
		if data.OrderID == "" {
			return nil, fmt.Errorf("missing orderId")
		}
		return data.OrderID, nil

	case core.OpCancelOrder, core.OpCancelAllOrders, core.OpSetLeverage:
		return true, nil

	case core.OpListPendingOrders:
		data, err := decodeData[bitgetOrderList](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePendingOrders(&data)

	case core.OpListTradeHistory:
		data, err := decodeData[bitgetFillList](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeTradeHistory(&data)

	case core.OpListPositionHistory:
		data, err := decodeData[bitgetFillList](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePositionHistory(&data)

	case core.OpGetOrderBook:
		data, err := decodeData[bitgetDepth](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeOrderBook(&data)

	case core.OpGetCandles:
		data, err := decodeData[[]bitgetCandle](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeCandles(data)

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupported, op)
	}
}

func decodeData[T any](body []byte) (T, error) {
	var env bitgetEnvelope[T]
	if err := sonic.Unmarshal(body, &env); err != nil {
		return env.Data, fmt.Errorf("unmarshal data: %w", err)
	}
	return env.Data, nil
}

// Granularity maps a timeframe onto a Bitget candle granularity. Daily and
// 6h/12h candles use the UTC-aligned variants.
func Granularity(timeframe string) string {
	switch timeframe {
	case "1d":
		return "1Dutc"
	case "6h", "12h":
		return strings.ReplaceAll(timeframe, "h", "Hutc")
	}
	return strings.ReplaceAll(timeframe, "h", "H")
}

// depthLimit rounds limit up to a supported merge-depth size; anything
// above the largest becomes "max".
func depthLimit(limit int) string {
	for _, l := range depthLimits {
		if limit <= l {
			return strconv.Itoa(l)
		}
	}
	return "max"
}

func signHMAC(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func mapBitgetErrorCode(code string, status int) core.ErrorType {
	switch code {
	case "429", "40054":
		return core.ErrorTypeRateLimit
	case "40008":
		return core.ErrorTypeTimeout
	case "40006", "40009", "40012", "40014", "40037":
		return core.ErrorTypeAuthentication
	case "40754", "40762", "43012":
		return core.ErrorTypeInsufficientFunds
	case "40768", "43001", "43025":
		return core.ErrorTypeNotFound
	}
	switch {
	case strings.HasPrefix(code, "43"), strings.HasPrefix(code, "45"):
		return core.ErrorTypeInvalidOrder
	case strings.HasPrefix(code, "40"):
		if t := core.ErrorTypeForStatus(status); t != core.ErrorTypeUnknown {
			return t
		}
		return core.ErrorTypeBadRequest
	}
	return core.ErrorTypeForStatus(status)
}
