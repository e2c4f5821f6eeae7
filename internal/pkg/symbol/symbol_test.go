package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"BTC_USDT":      "BTC_USDT",
		"btc/usdt":      "BTC_USDT",
		"ETH-USDT":      "ETH_USDT",
		"SOL/USDT:USDT": "SOL_USDT",
		"BNBUSDT":       "BNB_USDT",
		"":              "",
		"_USDT":         "",
		"NOQUOTE":       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "BTC_USDT", Gate.ToExchange("btc/usdt"))
	assert.Equal(t, "BTC_USDT", Gate.FromExchange("btc_usdt"))
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("BTC_USDT"))
	assert.Equal(t, "BTC_USDT", Binance.FromExchange("BTCUSDT"))
	assert.True(t, IsValid("ETH_USDT"))
	assert.False(t, IsValid("ETH"))
}
