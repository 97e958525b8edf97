package market

import (
	"fmt"
	"sync"
)

// QuoteBook holds the current quote per symbol. Quotes are stored by value
// and replaced atomically under the lock, so a reader always observes either
// the previous complete quote or the new one, never a mixed bid/ask pair.
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewQuoteBook() *QuoteBook {
	return &QuoteBook{quotes: make(map[string]Quote)}
}

func (b *QuoteBook) Set(q Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[q.Symbol] = q
}

func (b *QuoteBook) Get(symbol string) (Quote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrQuoteNotFound)
	}
	return q, nil
}

// All returns a snapshot of every current quote, keyed by symbol.
func (b *QuoteBook) All() map[string]Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Quote, len(b.quotes))
	for sym, q := range b.quotes {
		out[sym] = q
	}
	return out
}
