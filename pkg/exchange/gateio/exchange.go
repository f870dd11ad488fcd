package gateio

import (
	"fmt"

	"perpgate/pkg/core"
	"perpgate/pkg/exchange"
)

// New creates a Gate.io USDT futures adapter. A nil config falls back to
// core.DefaultConfig with no credentials.
func New(config *core.Config, opts ...exchange.Option) (*exchange.Adapter, error) {
	if config == nil {
		config = core.DefaultConfig(core.ExchangeGateIO)
	}
	adapter, err := exchange.NewAdapter(NewProtocol(config), config, opts...)
	if err != nil {
		return nil, fmt.Errorf("gateio: %w", err)
	}
	return adapter, nil
}

// Register creates an adapter and stores it in c under name.
func Register(c *exchange.Container, name string, config *core.Config, opts ...exchange.Option) error {
	adapter, err := New(config, opts...)
	if err != nil {
		return err
	}
	c.Register(name, adapter)
	return nil
}
