package gateio

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"perpgate/pkg/core"
)

const (
	ProductionURL = "https://api.gateio.ws"
	SandboxURL    = "https://fx-api-testnet.gateio.ws"

	// DefaultChannelID is sent as X-Gate-Channel-Id unless the config
	// carries a broker tag.
	DefaultChannelID = "masterrayn"

	// Gate.io requires custom order text to start with "t-".
	textPrefix     = "t-"
	clientIDMaxLen = 28

	settle       = "usdt"
	futuresPath  = "/api/v4/futures/" + settle
	defaultDepth = 20
	maxDepth     = 100
	maxHistory   = 1000
	maxCandles   = 2000
)

// Protocol implements core.Protocol for Gate.io USDT-settled futures.
type Protocol struct {
	channelID  string
	normalizer *Normalizer
}

var _ core.Protocol = (*Protocol)(nil)

func NewProtocol(config *core.Config) *Protocol {
	p := &Protocol{
		channelID:  DefaultChannelID,
		normalizer: NewNormalizer(),
	}
	if config != nil && config.BrokerTag != "" {
		p.channelID = config.BrokerTag
	}
	return p
}

func (p *Protocol) Name() string {
	return core.ExchangeGateIO
}

func (p *Protocol) BaseURL(sandbox bool) string {
	if sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// Traits reports a bulk cancel endpoint. Gate.io lists new contracts often,
// so ListSymbols always reloads the contract list.
func (p *Protocol) Traits() core.Traits {
	return core.Traits{
		BulkCancel:    true,
		RefreshOnList: true,
	}
}

func (p *Protocol) RateLimits() core.RateLimitConfig {
	return core.RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

type placeOrderBody struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"`
	Price      string `json:"price"`
	Tif        string `json:"tif"`
	ReduceOnly bool   `json:"reduce_only,omitempty"`
	Text       string `json:"text"`
}

func (p *Protocol) BuildRequest(op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpRefreshSymbols:
		return p.request(http.MethodGet, futuresPath+"/contracts", false), nil

	case core.OpGetBalance:
		asset, err := params.RequiredString(core.ParamAsset)
		if err != nil {
			return nil, err
		}
		return p.request(http.MethodGet, "/api/v4/futures/"+strings.ToLower(asset)+"/accounts", true), nil

	case core.OpGetTotalEquity:
		return p.request(http.MethodGet, futuresPath+"/accounts", true), nil

	case core.OpGetLastPrice:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.request(http.MethodGet, futuresPath+"/trades", false).
			SetQuery("contract", symbol).
			SetQuery("limit", 1), nil

	case core.OpGetPosition:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.request(http.MethodGet, futuresPath+"/positions/"+url.PathEscape(symbol), true), nil

	case core.OpGetAllPositions:
		return p.request(http.MethodGet, futuresPath+"/positions", true), nil

	case core.OpPlaceOrder:
		return p.buildPlaceOrder(params)

	case core.OpCancelOrder:
		orderID, err := params.RequiredString(core.ParamOrderID)
		if err != nil {
			return nil, err
		}
		return p.request(http.MethodDelete, futuresPath+"/orders/"+url.PathEscape(orderID), true), nil

	case core.OpCancelAllOrders:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.request(http.MethodDelete, futuresPath+"/orders", true).SetQuery("contract", symbol), nil

	case core.OpListPendingOrders:
		req := p.request(http.MethodGet, futuresPath+"/orders", true).SetQuery("status", "open")
		req.SetQueryIf("contract", params.String(core.ParamSymbol))
		return req, nil

	case core.OpListTradeHistory:
		req := p.request(http.MethodGet, futuresPath+"/my_trades", true).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), maxHistory))
		req.SetQueryIf("contract", params.String(core.ParamSymbol))
		return req, nil

	case core.OpListPositionHistory:
		req := p.request(http.MethodGet, futuresPath+"/position_close", true).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), maxHistory))
		req.SetQueryIf("contract", params.String(core.ParamSymbol))
		return req, nil

	case core.OpGetOrderBook:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return p.request(http.MethodGet, futuresPath+"/order_book", false).
			SetQuery("contract", symbol).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, defaultDepth), maxDepth)), nil

	case core.OpGetCandles:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		timeframe, err := params.RequiredString(core.ParamTimeframe)
		if err != nil {
			return nil, err
		}
		return p.request(http.MethodGet, futuresPath+"/candlesticks", false).
			SetQuery("contract", symbol).
			SetQuery("interval", timeframe).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), maxCandles)), nil

	case core.OpSetLeverage:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		// leverage=0 selects cross margin; the limit carries the multiplier.
		return p.request(http.MethodPost, futuresPath+"/positions/"+url.PathEscape(symbol)+"/leverage", true).
			SetQuery("leverage", 0).
			SetQuery("cross_leverage_limit", params.IntOr(core.ParamLeverage, 1)), nil

	default:
		return nil, fmt.Errorf("%s: %w: %s", p.Name(), core.ErrUnsupported, op)
	}
}

// buildPlaceOrder sends size as a signed contract count, negative for
// sells. Market orders are priced at "0" with immediate-or-cancel.
func (p *Protocol) buildPlaceOrder(params core.Params) (*core.Request, error) {
	order, err := params.Order()
	if err != nil {
		return nil, err
	}
	size, err := order.Quantity.Int64()
	if err != nil {
		return nil, core.NewValidationError("quantity", "must be a whole number of contracts, got %s", order.Quantity.String())
	}
	if order.Side == core.SideSell {
		size = -size
	}

	body := &placeOrderBody{
		Contract:   order.Symbol,
		Size:       size,
		Price:      "0",
		Tif:        "ioc",
		ReduceOnly: order.ReduceOnly,
		Text:       orderText(order.ClientTag),
	}
	if order.Kind == core.OrderKindLimit {
		body.Price = order.Price.String()
		body.Tif = "gtc"
	}
	return p.request(http.MethodPost, futuresPath+"/orders", true).SetBody(body), nil
}

func orderText(tag string) string {
	if tag != "" && !strings.HasPrefix(tag, textPrefix) {
		tag = textPrefix + tag
	}
	return core.ClientIDOr(tag, textPrefix, clientIDMaxLen)
}

func (p *Protocol) request(method, path string, auth bool) *core.Request {
	return core.NewRequest(method, path).
		SetHeader("X-Gate-Channel-Id", p.channelID).
		SetRequireAuth(auth)
}

// SignRequest signs method, path, query, the hex SHA-512 of the body and
// the timestamp, joined by newlines, with HMAC-SHA512. The timestamp is in
// epoch seconds.
func (p *Protocol) SignRequest(req *core.Request, creds core.Credentials, now time.Time) error {
	if creds.SecretKey == "" {
		return fmt.Errorf("secret key is required for signing")
	}

	ts := strconv.FormatInt(now.Unix(), 10)
	req.RawQuery = req.Query.Encode()

	bodyHash := sha512.Sum512(req.Payload)
	message := strings.Join([]string{
		req.Method,
		req.Path,
		req.RawQuery,
		hex.EncodeToString(bodyHash[:]),
		ts,
	}, "\n")

	req.SetHeader("KEY", creds.APIKey)
	req.SetHeader("SIGN", signHMAC(message, creds.SecretKey))
	req.SetHeader("Timestamp", ts)
	return nil
}

// ParseResponse treats any 2xx as success. Failures carry {label, message}.
func (p *Protocol) ParseResponse(op core.Operation, params core.Params, resp *core.Response) (any, error) {
	if resp == nil {
		return nil, core.NewTransportError(p.Name(), fmt.Errorf("nil response"))
	}

	if !resp.IsSuccess() {
		var apiErr gateError
		if err := sonic.Unmarshal(resp.Body, &apiErr); err != nil || apiErr.Label == "" {
			return nil, core.NewHTTPStatusError(p.Name(), resp.StatusCode, resp.Body)
		}
		return nil, core.NewExchangeErrorWithCode(p.Name(), mapGateLabel(apiErr.Label, resp.StatusCode),
			resp.StatusCode, apiErr.Label, apiErr.Message)
	}

	result, err := p.normalize(op, resp.Body)
	if err != nil {
		return nil, core.NewMalformedError(p.Name(), resp.StatusCode, err)
	}
	return result, nil
}

func (p *Protocol) normalize(op core.Operation, body []byte) (any, error) {
	n := p.normalizer

	switch op {
	case core.OpRefreshSymbols:
		data, err := decode[[]gateContract](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeSymbols(data)

	case core.OpGetBalance, core.OpGetTotalEquity:
		data, err := decode[gateAccount](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeBalance(&data)

	case core.OpGetLastPrice:
		data, err := decode[[]gateTrade](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeLastPrice(data)

	case core.OpGetPosition:
		data, err := decode[gatePosition](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePosition(&data)

	case core.OpGetAllPositions:
		data, err := decode[[]gatePosition](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePositions(data)

	case core.OpPlaceOrder:
		data, err := decode[gateOrder](body)
		if err != nil {
			return nil, err
		}
		if data.ID.IsEmpty() {
			return nil, fmt.Errorf("missing order id")
		}
		return data.ID.String(), nil

	case core.OpCancelOrder, core.OpCancelAllOrders, core.OpSetLeverage:
		return true, nil

	case core.OpListPendingOrders:
		data, err := decode[[]gateOrder](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePendingOrders(data)

	case core.OpListTradeHistory:
		data, err := decode[[]gateTrade](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeTradeHistory(data)

	case core.OpListPositionHistory:
		data, err := decode[[]gatePositionClose](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePositionHistory(data)

	case core.OpGetOrderBook:
		data, err := decode[gateOrderBook](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeOrderBook(&data)

	case core.OpGetCandles:
		data, err := decode[[]gateCandle](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeCandles(data)

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupported, op)
	}
}

func decode[T any](body []byte) (T, error) {
	var out T
	if err := sonic.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("unmarshal: %w", err)
	}
	return out, nil
}

func signHMAC(message, secret string) string {
	h := hmac.New(sha512.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func mapGateLabel(label string, status int) core.ErrorType {
	switch label {
	case "TOO_MANY_REQUESTS":
		return core.ErrorTypeRateLimit
	case "REQUEST_EXPIRED":
		return core.ErrorTypeTimeout
	case "INVALID_KEY", "INVALID_SIGNATURE", "MISSING_REQUIRED_HEADER", "FORBIDDEN", "READ_ONLY", "INVALID_CREDENTIALS":
		return core.ErrorTypeAuthentication
	case "INSUFFICIENT_AVAILABLE", "BALANCE_NOT_ENOUGH", "MARGIN_BALANCE_NOT_ENOUGH":
		return core.ErrorTypeInsufficientFunds
	case "ORDER_NOT_FOUND", "CONTRACT_NOT_FOUND", "POSITION_NOT_FOUND", "USER_NOT_FOUND":
		return core.ErrorTypeNotFound
	case "INVALID_PARAM_VALUE", "INVALID_ARGUMENT", "INVALID_REQUEST_BODY", "MISSING_REQUIRED_PARAM":
		return core.ErrorTypeBadRequest
	}
	if strings.HasPrefix(label, "ORDER_") || strings.HasPrefix(label, "SIZE_") || strings.HasPrefix(label, "PRICE_") {
		return core.ErrorTypeInvalidOrder
	}
	return core.ErrorTypeForStatus(status)
}
