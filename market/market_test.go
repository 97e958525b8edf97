package market

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol   string
		expected float64
	}{
		{"EURUSD", 0.0001},
		{"GBPUSD", 0.0001},
		{"AUDUSD", 0.0001},
		{"EURGBP", 0.0001},
		{"USDJPY", 0.01},
		{"EURJPY", 0.01},
		{"GBPJPY", 0.01},
		// unknown symbols fall back to the counter-currency suffix rule
		{"CADJPY", 0.01},
		{"XAUUSD", 0.0001},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.symbol, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, PipSize(tt.symbol))
		})
	}
}

func TestQuoteMidSpread(t *testing.T) {
	t.Parallel()

	q := Quote{Symbol: "EURUSD", Bid: 1.0849, Ask: 1.0851}
	assert.InDelta(t, 1.0850, q.Mid(), 1e-9)
	assert.InDelta(t, 0.0002, q.Spread(), 1e-9)
}

func TestQuoteBook(t *testing.T) {
	t.Parallel()

	b := NewQuoteBook()

	_, err := b.Get("EURUSD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuoteNotFound))

	q := Quote{Symbol: "EURUSD", Bid: 1.0849, Ask: 1.0851, Time: time.Now()}
	b.Set(q)

	got, err := b.Get("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, q, got)

	b.Set(Quote{Symbol: "USDJPY", Bid: 149.49, Ask: 149.51})
	all := b.All()
	assert.Len(t, all, 2)
	assert.Equal(t, q, all["EURUSD"])
}

// Concurrent readers must never observe a torn bid/ask pair: every read is
// either the old complete quote or the new one.
func TestQuoteBookNoTornReads(t *testing.T) {
	t.Parallel()

	b := NewQuoteBook()
	b.Set(Quote{Symbol: "EURUSD", Bid: 1.0000, Ask: 1.0002})

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			px := 1.0 + float64(i)*0.0001
			b.Set(Quote{Symbol: "EURUSD", Bid: px, Ask: px + 0.0002})
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				q, err := b.Get("EURUSD")
				assert.NoError(t, err)
				// bid and ask always belong to the same quote
				assert.InDelta(t, 0.0002, q.Ask-q.Bid, 1e-9)
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	wg.Wait()
}
