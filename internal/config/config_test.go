package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
exchange:
  driver: gate
  api_key: k
  api_secret: s
market:
  symbols: [" btc_usdt ", "ETH_USDT", "BTC_USDT"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, defaultGateREST, cfg.Exchange.RESTBaseURL)
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, cfg.Market.Symbols)
	assert.Equal(t, defaultTradingLeverage, cfg.Trading.Leverage)
	assert.True(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, 1000, cfg.Heartbeat.TickMs)
	assert.Equal(t, 300, cfg.Heartbeat.GraceMs)
	assert.Equal(t, defaultCircuitThreshold, cfg.Circuit.Threshold)
}

func TestLoadRespectsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
exchange:
  driver: browser
heartbeat:
  enabled: false
  tick_ms: "250"
trading:
  leverage: 125
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, 250, cfg.Heartbeat.TickMs)
	assert.Equal(t, 125, cfg.Trading.Leverage)
	assert.Equal(t, DriverBrowser, cfg.Exchange.Driver)
	assert.Empty(t, cfg.Exchange.RESTBaseURL)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secrets.yaml", `
exchange:
  api_key: from-include
  api_secret: s
`)
	path := writeFile(t, dir, "config.yaml", `
include: ["secrets.yaml"]
exchange:
  driver: binance
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-include", cfg.Exchange.APIKey)
	assert.Equal(t, DriverBinance, cfg.Exchange.Driver)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"unknown driver":    "exchange:\n  driver: ftx\n",
		"missing gate keys": "exchange:\n  driver: gate\n",
		"telegram token": `
exchange:
  driver: browser
notify:
  telegram:
    enabled: true
    chat_id: "1"
`,
		"bad symbol": "exchange:\n  driver: browser\nmarket:\n  symbols: [BTCUSDT]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/gatebot.yaml")
	assert.Equal(t, "/etc/gatebot.yaml", ResolvePath("configs/config.yaml"))
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "configs/config.yaml", ResolvePath("configs/config.yaml"))
}

func TestLoadIncludeOrderAndCycles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "exchange:\n  driver: gate\n  api_key: base\n  api_secret: s\n")
	writeFile(t, dir, "a.yaml", "include: [base.yaml]\napp:\n  env: a\n")
	writeFile(t, dir, "b.yaml", "include: [base.yaml]\napp:\n  env: b\n")
	path := writeFile(t, dir, "config.yaml", "include: [a.yaml, b.yaml]\nexchange:\n  api_key: top\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "top", cfg.Exchange.APIKey)
	assert.Equal(t, "b", cfg.App.Env)

	cyclic := t.TempDir()
	writeFile(t, cyclic, "x.yaml", "include: [y.yaml]\n")
	writeFile(t, cyclic, "y.yaml", "include: [x.yaml]\n")
	_, err = Load(filepath.Join(cyclic, "x.yaml"))
	assert.ErrorContains(t, err, "include cycle")
}
