package symbol

type BinanceConverter struct{}

func (BinanceConverter) ToExchange(internal string) string {
	return Parse(internal).Binance()
}

func (BinanceConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

func (BinanceConverter) Format() Format {
	return FormatBinance
}

var Binance = BinanceConverter{}
