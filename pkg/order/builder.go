// Package order builds validated order requests.
package order

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"perpgate/pkg/core"
)

// Builder provides a fluent interface for constructing a core.OrderRequest.
// It keeps the first parse error and reports it on Build.
//
// Example:
//
//	req, err := order.NewBuilder("BTCUSDT").
//	    Sell().
//	    Limit("43000.5").
//	    Quantity("0.01").
//	    ReduceOnly().
//	    Build()
type Builder struct {
	req  core.OrderRequest
	meta *core.SymbolMeta
	err  error
}

// NewBuilder starts a market buy for symbol.
func NewBuilder(symbol string) *Builder {
	return &Builder{
		req: core.OrderRequest{
			Symbol: symbol,
			Kind:   core.OrderKindMarket,
			Side:   core.SideBuy,
		},
	}
}

func (b *Builder) Side(side core.OrderSide) *Builder {
	b.req.Side = side
	return b
}

func (b *Builder) Buy() *Builder {
	return b.Side(core.SideBuy)
}

func (b *Builder) Sell() *Builder {
	return b.Side(core.SideSell)
}

// Market switches to a market order and clears any price.
func (b *Builder) Market() *Builder {
	b.req.Kind = core.OrderKindMarket
	b.req.Price = apd.Decimal{}
	return b
}

// Limit switches to a limit order at price.
func (b *Builder) Limit(price string) *Builder {
	b.req.Kind = core.OrderKindLimit
	b.parse("price", &b.req.Price, price)
	return b
}

// LimitDecimal switches to a limit order at price.
func (b *Builder) LimitDecimal(price apd.Decimal) *Builder {
	b.req.Kind = core.OrderKindLimit
	b.req.Price.Set(&price)
	return b
}

func (b *Builder) Quantity(qty string) *Builder {
	b.parse("quantity", &b.req.Quantity, qty)
	return b
}

func (b *Builder) QuantityDecimal(qty apd.Decimal) *Builder {
	b.req.Quantity.Set(&qty)
	return b
}

func (b *Builder) ReduceOnly() *Builder {
	b.req.ReduceOnly = true
	return b
}

// ClientTag sets the caller's correlation tag. Venues cut it to their
// client order id length.
func (b *Builder) ClientTag(tag string) *Builder {
	b.req.ClientTag = tag
	return b
}

// Constrain snaps the quantity down to the amount tick and the price to
// the price tick of meta on Build, then checks the notional and size
// limits. Market orders skip the notional check.
func (b *Builder) Constrain(meta core.SymbolMeta) *Builder {
	b.meta = &meta
	return b
}

func (b *Builder) parse(field string, dest *apd.Decimal, s string) {
	if b.err != nil {
		return
	}
	if err := core.ParseDecimal(dest, s); err != nil {
		b.err = core.NewValidationError(field, "%v", err)
	}
}

// Build validates and returns the request.
func (b *Builder) Build() (*core.OrderRequest, error) {
	if b.err != nil {
		return nil, b.err
	}

	req := b.req
	if b.meta != nil {
		qty, err := b.meta.RoundQuantity(req.Quantity)
		if err != nil {
			return nil, fmt.Errorf("build order: %w", err)
		}
		req.Quantity = qty

		if req.Kind == core.OrderKindLimit {
			price, err := b.meta.RoundPrice(req.Price)
			if err != nil {
				return nil, fmt.Errorf("build order: %w", err)
			}
			req.Price = price
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if b.meta != nil && req.Kind == core.OrderKindLimit {
		if err := b.meta.CheckOrder(req.Quantity, req.Price); err != nil {
			return nil, err
		}
	}
	return &req, nil
}
