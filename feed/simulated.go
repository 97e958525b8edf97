// Package feed supplies quotes to the engine: a simulated random-walk
// generator for live-like runs and a replay source for recorded ticks.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/edgetrade/engine/market"
)

// Simulated is a broker-agnostic quote generator: a bounded random walk
// around each symbol's base price with a fixed spread re-derived from the
// new midpoint on every step.
//
// Each symbol owns its state and its lock, so symbols tick independently
// and in parallel while any single symbol's read-modify-write stays
// serialized. Readers only ever see a complete quote.
type Simulated struct {
	spreadPips  float64
	maxStepPips float64
	now         func() time.Time

	symbols map[string]*symbolState
}

type symbolState struct {
	mu    sync.Mutex
	quote market.Quote
	rng   *rand.Rand
}

// SimulatedOptions configure the generator. The RNG seed is explicit so
// tests can pin a deterministic walk.
type SimulatedOptions struct {
	SpreadPips  float64
	MaxStepPips float64
	Seed        int64
	Now         func() time.Time
	// BasePrices overrides or extends market.Symbols; nil means the full
	// built-in symbol table.
	BasePrices map[string]float64
}

func NewSimulated(opts SimulatedOptions) *Simulated {
	if opts.SpreadPips <= 0 {
		opts.SpreadPips = 1.5
	}
	if opts.MaxStepPips <= 0 {
		opts.MaxStepPips = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	base := opts.BasePrices
	if base == nil {
		base = make(map[string]float64, len(market.Symbols))
		for sym, meta := range market.Symbols {
			base[sym] = meta.BasePrice
		}
	}

	f := &Simulated{
		spreadPips:  opts.SpreadPips,
		maxStepPips: opts.MaxStepPips,
		now:         opts.Now,
		symbols:     make(map[string]*symbolState, len(base)),
	}

	seed := opts.Seed
	for sym, price := range base {
		pip := market.PipSize(sym)
		half := opts.SpreadPips * pip / 2
		f.symbols[sym] = &symbolState{
			quote: market.Quote{
				Symbol: sym,
				Bid:    price - half,
				Ask:    price + half,
				Time:   opts.Now(),
			},
			rng: rand.New(rand.NewSource(seed)),
		}
		seed++
	}
	return f
}

// GetQuote returns the current quote for a symbol, or ErrQuoteNotFound for
// an unknown one. It never blocks on anything but the symbol's own lock and
// never advances the walk; movement comes from Tick or Run.
func (f *Simulated) GetQuote(_ context.Context, symbol string) (market.Quote, error) {
	st, ok := f.symbols[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("%s: %w", symbol, market.ErrQuoteNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.quote, nil
}

// Snapshot returns the current quote for every symbol.
func (f *Simulated) Snapshot() map[string]market.Quote {
	out := make(map[string]market.Quote, len(f.symbols))
	for sym, st := range f.symbols {
		st.mu.Lock()
		out[sym] = st.quote
		st.mu.Unlock()
	}
	return out
}

// Tick advances one symbol a single random step.
func (f *Simulated) Tick(symbol string) (market.Quote, error) {
	st, ok := f.symbols[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("%s: %w", symbol, market.ErrQuoteNotFound)
	}
	return f.step(symbol, st), nil
}

// TickAll advances every symbol one step.
func (f *Simulated) TickAll() {
	for sym, st := range f.symbols {
		f.step(sym, st)
	}
}

func (f *Simulated) step(symbol string, st *symbolState) market.Quote {
	pip := market.PipSize(symbol)
	half := f.spreadPips * pip / 2

	st.mu.Lock()
	defer st.mu.Unlock()

	mid := st.quote.Mid()
	move := (st.rng.Float64()*2 - 1) * f.maxStepPips * pip
	mid += move

	ts := f.now()
	if ts.Before(st.quote.Time) {
		ts = st.quote.Time
	}

	st.quote = market.Quote{
		Symbol: symbol,
		Bid:    mid - half,
		Ask:    mid + half,
		Time:   ts,
	}
	return st.quote
}

// Run ticks all symbols at the given cadence until the context is done.
// Quote movement is independent of the risk evaluation schedule; a slow
// evaluation pass never stalls the feed.
func (f *Simulated) Run(ctx context.Context, interval time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("price feed started", "symbols", len(f.symbols), "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("price feed stopped")
			return
		case <-ticker.C:
			f.TickAll()
		}
	}
}
