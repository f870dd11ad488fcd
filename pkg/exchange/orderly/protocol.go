package orderly

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/mr-tron/base58"

	"perpgate/pkg/core"
)

const (
	ProductionURL = "https://api-evm.orderly.network"
	SandboxURL    = "https://testnet-api-evm.orderly.org"

	// DefaultOrderTag is sent as order_tag unless the config carries a
	// broker tag.
	DefaultOrderTag = "ORDERLYB"
	clientIDMaxLen  = 36

	keyPrefix = "ed25519:"

	maxTrades  = 500
	maxCandles = 1000
)

// Protocol implements core.Protocol for Orderly Network perpetuals.
type Protocol struct {
	orderTag   string
	normalizer *Normalizer
}

var _ core.Protocol = (*Protocol)(nil)

func NewProtocol(config *core.Config) *Protocol {
	p := &Protocol{
		orderTag:   DefaultOrderTag,
		normalizer: NewNormalizer(),
	}
	if config != nil && config.BrokerTag != "" {
		p.orderTag = config.BrokerTag
	}
	return p
}

func (p *Protocol) Name() string {
	return core.ExchangeOrderly
}

func (p *Protocol) BaseURL(sandbox bool) string {
	if sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// Traits reports an account id requirement. The symbol list is reloaded on
// every ListSymbols call.
func (p *Protocol) Traits() core.Traits {
	return core.Traits{
		BulkCancel:        true,
		RefreshOnList:     true,
		RequiresAccountID: true,
	}
}

func (p *Protocol) RateLimits() core.RateLimitConfig {
	return core.RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             10,
	}
}

// number encodes a decimal as a bare JSON number.
type number string

func (n number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return nil, fmt.Errorf("empty number")
	}
	return []byte(n), nil
}

func decimalNumber(d *apd.Decimal) number {
	return number(d.Text('f'))
}

type placeOrderBody struct {
	Symbol        string  `json:"symbol"`
	OrderType     string  `json:"order_type"`
	Side          string  `json:"side"`
	OrderQuantity number  `json:"order_quantity"`
	OrderPrice    *number `json:"order_price,omitempty"`
	ReduceOnly    bool    `json:"reduce_only"`
	ClientOrderID string  `json:"client_order_id"`
	OrderTag      string  `json:"order_tag"`
}

type leverageBody struct {
	Leverage int `json:"leverage"`
}

func (p *Protocol) BuildRequest(op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpRefreshSymbols:
		return core.NewRequest(http.MethodGet, "/v1/public/info"), nil

	case core.OpGetBalance, core.OpGetTotalEquity, core.OpGetPosition, core.OpGetAllPositions:
		return signed(http.MethodGet, "/v1/positions"), nil

	case core.OpGetLastPrice:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return core.NewRequest(http.MethodGet, "/v1/public/market_trades").
			SetQuery("symbol", symbol).
			SetQuery("limit", 1), nil

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
		return signed(http.MethodDelete, "/v1/order").
			SetQuery("symbol", symbol).
			SetQuery("order_id", orderID), nil

	case core.OpCancelAllOrders:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		return signed(http.MethodDelete, "/v1/orders").SetQuery("symbol", symbol), nil

	case core.OpListPendingOrders:
		req := signed(http.MethodGet, "/v1/orders").SetQuery("status", "INCOMPLETE")
		req.SetQueryIf("symbol", params.String(core.ParamSymbol))
		return req, nil

	case core.OpListTradeHistory:
		req := signed(http.MethodGet, "/v1/trades").
			SetQuery("size", min(params.IntOr(core.ParamLimit, 100), maxTrades))
		req.SetQueryIf("symbol", params.String(core.ParamSymbol))
		return req, nil

	case core.OpListPositionHistory:
		req := signed(http.MethodGet, "/v1/position_history").
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), maxTrades))
		req.SetQueryIf("symbol", params.String(core.ParamSymbol))
		return req, nil

	case core.OpGetOrderBook:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		req := signed(http.MethodGet, "/v1/orderbook/"+url.PathEscape(symbol))
		if limit := params.IntOr(core.ParamLimit, 0); limit > 0 {
			req.SetQuery("max_level", limit)
		}
		return req, nil

	case core.OpGetCandles:
		symbol, err := params.RequiredString(core.ParamSymbol)
		if err != nil {
			return nil, err
		}
		timeframe, err := params.RequiredString(core.ParamTimeframe)
		if err != nil {
			return nil, err
		}
		return signed(http.MethodGet, "/v1/kline").
			SetQuery("symbol", symbol).
			SetQuery("type", timeframe).
			SetQuery("limit", min(params.IntOr(core.ParamLimit, 100), maxCandles)), nil

	case core.OpSetLeverage:
		return signed(http.MethodPost, "/v1/client/leverage").
			SetBody(&leverageBody{Leverage: params.IntOr(core.ParamLeverage, 1)}), nil

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
		Symbol:        order.Symbol,
		OrderType:     order.Kind.String(),
		Side:          order.Side.String(),
		OrderQuantity: decimalNumber(&order.Quantity),
		ReduceOnly:    order.ReduceOnly,
		ClientOrderID: core.ClientIDOr(order.ClientTag, "", clientIDMaxLen),
		OrderTag:      p.orderTag,
	}
	if order.Kind == core.OrderKindLimit {
		price := decimalNumber(&order.Price)
		body.OrderPrice = &price
	}
	return signed(http.MethodPost, "/v1/order").SetBody(body), nil
}

func signed(method, path string) *core.Request {
	return core.NewRequest(method, path).SetRequireAuth(true)
}

// SignRequest signs timestamp + method + path and query + body with the
// account's Ed25519 key. The signature is base64url without padding.
func (p *Protocol) SignRequest(req *core.Request, creds core.Credentials, now time.Time) error {
	key, err := signingKey(creds.SecretKey)
	if err != nil {
		return err
	}

	ts := strconv.FormatInt(now.UnixMilli(), 10)
	req.RawQuery = req.Query.Encode()

	message := ts + req.Method + req.URL() + string(req.Payload)
	signature := ed25519.Sign(key, []byte(message))

	req.SetHeader("orderly-timestamp", ts)
	req.SetHeader("orderly-account-id", creds.AccountID)
	req.SetHeader("orderly-key", keyPrefix+base58.Encode(key.Public().(ed25519.PublicKey)))
	req.SetHeader("orderly-signature", base64.RawURLEncoding.EncodeToString(signature))
	return nil
}

// signingKey decodes an optionally "ed25519:"-prefixed base58 secret. Both
// a 32-byte seed and a full 64-byte private key are accepted.
func signingKey(secret string) (ed25519.PrivateKey, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret key is required for signing")
	}
	raw, err := base58.Decode(strings.TrimPrefix(secret, keyPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, fmt.Errorf("secret key decodes to %d bytes, want %d or %d",
		len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
}

// ParseResponse requires success == true in the envelope.
func (p *Protocol) ParseResponse(op core.Operation, params core.Params, resp *core.Response) (any, error) {
	if resp == nil {
		return nil, core.NewTransportError(p.Name(), fmt.Errorf("nil response"))
	}

	var status orderlyStatus
	err := sonic.Unmarshal(resp.Body, &status)
	blank := !status.Success && status.Code.IsEmpty() && status.Message == ""
	if err != nil || blank {
		if !resp.IsSuccess() {
			return nil, core.NewHTTPStatusError(p.Name(), resp.StatusCode, resp.Body)
		}
		if err == nil {
			err = fmt.Errorf("missing success flag")
		}
		return nil, core.NewMalformedError(p.Name(), resp.StatusCode, err)
	}
	if !status.Success {
		code := status.Code.String()
		return nil, core.NewExchangeErrorWithCode(p.Name(), mapOrderlyErrorCode(code, resp.StatusCode),
			resp.StatusCode, code, status.Message)
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
		data, err := decodeData[orderlyRows[orderlyInfo]](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeSymbols(data.Rows)

	case core.OpGetBalance, core.OpGetTotalEquity, core.OpGetPosition, core.OpGetAllPositions:
		data, err := decodeData[orderlyPositions](body)
		if err != nil {
			return nil, err
		}
		switch op {
		case core.OpGetPosition:
			return n.NormalizePosition(&data, params.String(core.ParamSymbol))
		case core.OpGetAllPositions:
			return n.NormalizePositions(&data)
		}
		return n.NormalizeCollateral(&data)

	case core.OpGetLastPrice:
		data, err := decodeData[orderlyRows[orderlyMarketTrade]](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeLastPrice(data.Rows)

	case core.OpPlaceOrder:
		data, err := decodeData[orderlyPlaced](body)
		if err != nil {
			return nil, err
		}
		if data.OrderID.IsEmpty() {
			return nil, fmt.Errorf("missing order_id")
		}
		return data.OrderID.String(), nil

	case core.OpCancelOrder, core.OpCancelAllOrders, core.OpSetLeverage:
		return true, nil

	case core.OpListPendingOrders:
		data, err := decodeData[orderlyRows[orderlyOrder]](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePendingOrders(data.Rows)

	case core.OpListTradeHistory:
		data, err := decodeData[orderlyRows[orderlyTrade]](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeTradeHistory(data.Rows)

	case core.OpListPositionHistory:
		data, err := decodeData[orderlyRows[orderlyClosedPosition]](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizePositionHistory(data.Rows)

	case core.OpGetOrderBook:
		data, err := decodeData[orderlyBook](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeOrderBook(&data)

	case core.OpGetCandles:
		data, err := decodeData[orderlyRows[orderlyKline]](body)
		if err != nil {
			return nil, err
		}
		return n.NormalizeCandles(data.Rows)

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupported, op)
	}
}

func decodeData[T any](body []byte) (T, error) {
	var env orderlyEnvelope[T]
	if err := sonic.Unmarshal(body, &env); err != nil {
		return env.Data, fmt.Errorf("unmarshal data: %w", err)
	}
	return env.Data, nil
}

func mapOrderlyErrorCode(code string, status int) core.ErrorType {
	switch code {
	case "-1003":
		return core.ErrorTypeRateLimit
	case "-1001", "-1002":
		return core.ErrorTypeAuthentication
	case "-1004", "-1005":
		return core.ErrorTypeBadRequest
	case "-1006":
		return core.ErrorTypeNotFound
	case "-1101":
		return core.ErrorTypeInsufficientFunds
	case "-1007", "-1008", "-1102", "-1103":
		return core.ErrorTypeInvalidOrder
	}
	return core.ErrorTypeForStatus(status)
}
