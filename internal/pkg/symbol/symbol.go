package symbol

import (
	"strings"
)

type Format string

const (
	FormatInternal Format = "internal"
	FormatGate     Format = "gate"
	FormatBinance  Format = "binance"
)

type Converter interface {
	ToExchange(internal string) string

	FromExchange(raw string) string

	Format() Format
}

type Symbol struct {
	Base  string
	Quote string
}

// Internal is the queue key used across the trader: BASE_QUOTE.
func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "_" + s.Quote
}

func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

var quoteCurrencies = []string{"USDT", "USDC", "USD", "BUSD", "BTC", "ETH"}

// Parse accepts BTC_USDT, BTC/USDT, BTC-USDT, BTC/USDT:USDT and BTCUSDT.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	for _, sep := range []string{"_", "/", "-"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			base := strings.TrimSpace(parts[0])
			quote := strings.TrimSpace(parts[1])
			if base == "" || quote == "" {
				return Symbol{}
			}
			return Symbol{Base: base, Quote: quote}
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

func Normalize(s string) string {
	return Parse(s).Internal()
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
