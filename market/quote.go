package market

import (
	"context"
	"errors"
	"time"
)

// ErrQuoteNotFound is returned when no quote exists for a symbol.
var ErrQuoteNotFound = errors.New("quote not found")

// Quote is a single bid/ask observation for one symbol. Quotes are value
// types: a quote is never mutated after it is produced, it is replaced
// wholesale by the next one for the same symbol.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// QuoteSource supplies the current quote per symbol. It is the only source
// of market truth for the engine.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}
