package feed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/ulikunitz/xz/lzma"

	"github.com/edgetrade/engine/market"
)

// Replay feeds recorded ticks into a quote book in their original order.
// It satisfies market.QuoteSource, so the engine runs against it exactly as
// it runs against the simulated feed — useful for reproducing a liquidation
// from a captured session.
type Replay struct {
	book  *market.QuoteBook
	ticks []market.Quote
	pos   int
}

func NewReplay() *Replay {
	return &Replay{book: market.NewQuoteBook()}
}

func (r *Replay) GetQuote(_ context.Context, symbol string) (market.Quote, error) {
	return r.book.Get(symbol)
}

// Next publishes the next recorded tick. io.EOF signals the end of the
// recording.
func (r *Replay) Next() (market.Quote, error) {
	if r.pos >= len(r.ticks) {
		return market.Quote{}, io.EOF
	}
	q := r.ticks[r.pos]
	r.pos++
	r.book.Set(q)
	return q, nil
}

// Rewind restarts the replay from the first tick. Published quotes stay in
// the book until overwritten.
func (r *Replay) Rewind() { r.pos = 0 }

func (r *Replay) Len() int { return len(r.ticks) }

// LoadBI5 appends one hour of Dukascopy ticks from an lzma-compressed .bi5
// archive. hourStart is the UTC hour the archive covers; tick timestamps are
// millisecond offsets from it. Ticks from multiple loads are kept in time
// order.
func (r *Replay) LoadBI5(path, symbol string, hourStart time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open bi5: %w", err)
	}
	defer f.Close()

	ticks, err := decodeBI5(f, symbol, hourStart)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	r.ticks = append(r.ticks, ticks...)
	sort.SliceStable(r.ticks, func(i, j int) bool { return r.ticks[i].Time.Before(r.ticks[j].Time) })
	return nil
}

// bi5 records are 20 bytes, big-endian: ms offset (u32), ask (u32),
// bid (u32), ask volume (f32), bid volume (f32). Prices are integers scaled
// by the symbol's point size, one tenth of a pip.
func decodeBI5(src io.Reader, symbol string, hourStart time.Time) ([]market.Quote, error) {
	lr, err := lzma.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}

	point := market.PipSize(symbol) / 10

	var ticks []market.Quote
	var rec [20]byte
	for {
		_, err := io.ReadFull(lr, rec[:])
		if errors.Is(err, io.EOF) {
			return ticks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", len(ticks), err)
		}

		ms := binary.BigEndian.Uint32(rec[0:4])
		ask := binary.BigEndian.Uint32(rec[4:8])
		bid := binary.BigEndian.Uint32(rec[8:12])

		q := market.Quote{
			Symbol: symbol,
			Bid:    float64(bid) * point,
			Ask:    float64(ask) * point,
			Time:   hourStart.Add(time.Duration(ms) * time.Millisecond),
		}
		if q.Bid <= 0 || q.Ask <= 0 || math.IsNaN(q.Bid) || q.Bid > q.Ask {
			return nil, fmt.Errorf("record %d: invalid bid/ask %v/%v", len(ticks), q.Bid, q.Ask)
		}
		ticks = append(ticks, q)
	}
}
