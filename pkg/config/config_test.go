package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpgate/pkg/core"
)

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "PERPGATE_GATEIO", EnvPrefix(core.ExchangeGateIO))
	assert.Equal(t, "PERPGATE_OKX", EnvPrefix("okx"))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(core.ExchangeBinance, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, core.ExchangeBinance, cfg.Exchange)
	assert.False(t, cfg.Sandbox)
	assert.Nil(t, cfg.Credentials)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 35*time.Millisecond, cfg.CancelInterval)
	assert.Equal(t, 1200, cfg.RateLimitRequests)
	assert.True(t, cfg.CircuitBreakerEnabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PERPGATE_OKX_API_KEY", "key")
	t.Setenv("PERPGATE_OKX_SECRET_KEY", "secret")
	t.Setenv("PERPGATE_OKX_PASSPHRASE", "pass")
	t.Setenv("PERPGATE_OKX_SANDBOX", "true")
	t.Setenv("PERPGATE_OKX_BROKER_TAG", "mytag")
	t.Setenv("PERPGATE_OKX_CANCEL_INTERVAL", "50ms")
	t.Setenv("PERPGATE_OKX_LOG_LEVEL", "debug")

	cfg, err := Load(core.ExchangeOKX, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	require.NotNil(t, cfg.Credentials)
	assert.Equal(t, "key", cfg.Credentials.APIKey)
	assert.Equal(t, "secret", cfg.Credentials.SecretKey)
	assert.Equal(t, "pass", cfg.Credentials.Passphrase)
	assert.True(t, cfg.Sandbox)
	assert.Equal(t, "mytag", cfg.BrokerTag)
	assert.Equal(t, 50*time.Millisecond, cfg.CancelInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_VenuesAreIsolated(t *testing.T) {
	t.Setenv("PERPGATE_BYBIT_API_KEY", "bybit-key")

	cfg, err := Load(core.ExchangeBitget, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Credentials)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"PERPGATE_ORDERLY_SECRET_KEY=ed25519:abc\nPERPGATE_ORDERLY_ACCOUNT_ID=0xabc\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("PERPGATE_ORDERLY_SECRET_KEY")
		_ = os.Unsetenv("PERPGATE_ORDERLY_ACCOUNT_ID")
	})

	cfg, err := Load(core.ExchangeOrderly, path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Credentials)
	assert.Equal(t, "ed25519:abc", cfg.Credentials.SecretKey)
	assert.Equal(t, "0xabc", cfg.Credentials.AccountID)
}

func TestLoad_Invalid(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("unknown exchange", func(t *testing.T) {
		_, err := Load("kraken", missing)
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("PERPGATE_GATEIO_TIMEOUT", "soon")
		_, err := Load(core.ExchangeGateIO, missing)
		assert.ErrorContains(t, err, "config gateio")
	})

	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("PERPGATE_BINANCE_LOG_LEVEL", "verbose")
		_, err := Load(core.ExchangeBinance, missing)
		assert.Error(t, err)
	})
}
