package market

import "strings"

// SymbolMeta describes a tradable currency pair.
type SymbolMeta struct {
	Name          string
	BaseCurrency  string
	QuoteCurrency string
	BasePrice     float64 // seed price for simulated feeds
}

// Symbols is the set of pairs the simulated feed knows about. Base prices
// mirror typical market levels and only matter as random-walk seeds.
var Symbols = map[string]SymbolMeta{
	"EURUSD": {Name: "EURUSD", BaseCurrency: "EUR", QuoteCurrency: "USD", BasePrice: 1.0850},
	"GBPUSD": {Name: "GBPUSD", BaseCurrency: "GBP", QuoteCurrency: "USD", BasePrice: 1.2650},
	"USDJPY": {Name: "USDJPY", BaseCurrency: "USD", QuoteCurrency: "JPY", BasePrice: 149.50},
	"AUDUSD": {Name: "AUDUSD", BaseCurrency: "AUD", QuoteCurrency: "USD", BasePrice: 0.6550},
	"USDCAD": {Name: "USDCAD", BaseCurrency: "USD", QuoteCurrency: "CAD", BasePrice: 1.3550},
	"USDCHF": {Name: "USDCHF", BaseCurrency: "USD", QuoteCurrency: "CHF", BasePrice: 0.8850},
	"NZDUSD": {Name: "NZDUSD", BaseCurrency: "NZD", QuoteCurrency: "USD", BasePrice: 0.6050},
	"EURGBP": {Name: "EURGBP", BaseCurrency: "EUR", QuoteCurrency: "GBP", BasePrice: 0.8580},
	"EURJPY": {Name: "EURJPY", BaseCurrency: "EUR", QuoteCurrency: "JPY", BasePrice: 162.15},
	"GBPJPY": {Name: "GBPJPY", BaseCurrency: "GBP", QuoteCurrency: "JPY", BasePrice: 189.10},
}

// PipSize returns the pip increment for a symbol: 0.01 when the counter
// currency is the yen, 0.0001 otherwise. Every pip-from-price-delta
// derivation in the engine goes through here.
func PipSize(symbol string) float64 {
	if meta, ok := Symbols[symbol]; ok {
		if meta.QuoteCurrency == "JPY" {
			return 0.01
		}
		return 0.0001
	}
	if strings.HasSuffix(symbol, "JPY") {
		return 0.01
	}
	return 0.0001
}
