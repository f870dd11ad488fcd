package exchange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockExchange struct {
	Exchange
	name     string
	closed   bool
	closeErr error
}

func (m *mockExchange) Name() string { return m.name }

func (m *mockExchange) Close() error {
	m.closed = true
	return m.closeErr
}

func TestContainer_RegisterAndGet(t *testing.T) {
	c := NewContainer()
	ex := &mockExchange{name: "okx"}

	c.Register("okx-main", ex)

	got, err := c.Get("okx-main")
	require.NoError(t, err)
	assert.Equal(t, "okx", got.Name())
	assert.True(t, c.Exists("okx-main"))
}

func TestContainer_GetMissing(t *testing.T) {
	c := NewContainer()

	_, err := c.Get("nope")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestContainer_NamesSorted(t *testing.T) {
	c := NewContainer()
	c.Register("orderly", &mockExchange{name: "orderly"})
	c.Register("binance", &mockExchange{name: "binance"})
	c.Register("gateio", &mockExchange{name: "gateio"})

	assert.Equal(t, []string{"binance", "gateio", "orderly"}, c.Names())
}

func TestContainer_Unregister(t *testing.T) {
	c := NewContainer()
	c.Register("bybit", &mockExchange{name: "bybit"})

	c.Unregister("bybit")

	assert.False(t, c.Exists("bybit"))
	assert.Empty(t, c.Names())
}

func TestContainer_CloseAll(t *testing.T) {
	c := NewContainer()
	ok := &mockExchange{name: "binance"}
	bad := &mockExchange{name: "bitget", closeErr: errors.New("boom")}
	c.Register("binance", ok)
	c.Register("bitget", bad)

	err := c.CloseAll()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "close bitget")
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
	assert.Empty(t, c.Names())
}
