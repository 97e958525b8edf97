package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgetrade/engine/journal"
	"github.com/edgetrade/engine/market"
	"github.com/edgetrade/engine/order"
	"github.com/edgetrade/engine/risk"
)

func ptr(v float64) *float64 { return &v }

type testQuotes struct {
	book *market.QuoteBook
}

func newTestQuotes() *testQuotes {
	return &testQuotes{book: market.NewQuoteBook()}
}

func (s *testQuotes) GetQuote(_ context.Context, symbol string) (market.Quote, error) {
	return s.book.Get(symbol)
}

func (s *testQuotes) set(symbol string, bid, ask float64) {
	s.book.Set(market.Quote{Symbol: symbol, Bid: bid, Ask: ask, Time: time.Now()})
}

type closeEvent struct {
	accountID string
	orderID   string
	reason    string
}

type recordingListener struct {
	mu     sync.Mutex
	events []closeEvent
}

func (l *recordingListener) OnTradeClosed(accountID, orderID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, closeEvent{accountID, orderID, reason})
}

func (l *recordingListener) all() []closeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]closeEvent(nil), l.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *testQuotes) {
	t.Helper()

	quotes := newTestQuotes()
	quotes.set("EURUSD", 1.0849, 1.0851)

	eng := New(quotes, risk.NewEvaluator(quotes, 50, 20), journal.Nop{}, discardLogger())
	require.NoError(t, eng.AddAccount(risk.Account{
		ID: "ACC-1", Currency: "USD", Balance: 10000, Leverage: 100, Active: true,
	}))
	return eng, quotes
}

func marketBuy(lots float64) PlaceOrderRequest {
	return PlaceOrderRequest{
		AccountID: "ACC-1",
		Symbol:    "EURUSD",
		Side:      order.Buy,
		Type:      order.Market,
		Quantity:  lots,
	}
}

func TestAddAccount(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	assert.Error(t, eng.AddAccount(risk.Account{ID: "ACC-1", Balance: 1, Leverage: 100, Active: true}))
	assert.Error(t, eng.AddAccount(risk.Account{ID: "ACC-2", Balance: 1, Leverage: 0, Active: true}))
	assert.NoError(t, eng.AddAccount(risk.Account{ID: "ACC-2", Balance: 1, Leverage: 100, Active: true}))
}

func TestPlaceMarketOrderFillsAtAsk(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	o, err := eng.PlaceOrder(context.Background(), marketBuy(1.0))
	require.NoError(t, err)

	assert.Equal(t, order.StatusOpen, o.Status)
	assert.Equal(t, 1.0851, o.ExecutedPrice)
	assert.InDelta(t, 1085.1, o.MarginRequired, 1e-9)
	assert.NotEmpty(t, o.ID)
}

func TestPlaceMarketSellFillsAtBid(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	req := marketBuy(1.0)
	req.Side = order.Sell
	o, err := eng.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, order.StatusOpen, o.Status)
	assert.Equal(t, 1.0849, o.ExecutedPrice)
}

func TestPlaceOrderNoQuoteRejected(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	req := marketBuy(1.0)
	req.Symbol = "GBPUSD"
	o, err := eng.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, order.StatusRejected, o.Status)
	assert.Equal(t, "no quote available for GBPUSD", o.RejectReason)
}

func TestPlaceOrderInsufficientMarginRejected(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	// 10 lots at 1.0851 needs 10,851 margin against 10,000 of equity
	o, err := eng.PlaceOrder(context.Background(), marketBuy(10.0))
	require.NoError(t, err)

	assert.Equal(t, order.StatusRejected, o.Status)
	assert.Contains(t, o.RejectReason, "insufficient margin")
	assert.Contains(t, o.RejectReason, "10851.00")
}

func TestPlaceLimitOrderRests(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	req := marketBuy(1.0)
	req.Type = order.Limit
	req.Price = ptr(1.0800)
	o, err := eng.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, 0.0, o.ExecutedPrice)
}

func TestPlaceLimitOrderWithoutPriceRejected(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	req := marketBuy(1.0)
	req.Type = order.Limit
	o, err := eng.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, order.StatusRejected, o.Status)
	assert.Contains(t, o.RejectReason, "price is required")
}

func TestPlaceOrderOpenPositionLimit(t *testing.T) {
	t.Parallel()

	eng, quotes := newTestEngine(t)
	eng.eval.MaxOpenPositions = 2
	quotes.set("EURUSD", 1.0849, 1.0851)

	for i := 0; i < 2; i++ {
		o, err := eng.PlaceOrder(context.Background(), marketBuy(0.1))
		require.NoError(t, err)
		require.Equal(t, order.StatusOpen, o.Status)
	}

	o, err := eng.PlaceOrder(context.Background(), marketBuy(0.1))
	require.NoError(t, err)
	assert.Equal(t, order.StatusRejected, o.Status)
	assert.Contains(t, o.RejectReason, "open position limit")
}

func TestPlaceOrderUnknownAccount(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	req := marketBuy(1.0)
	req.AccountID = "NOPE"
	_, err := eng.PlaceOrder(context.Background(), req)
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	req := marketBuy(1.0)
	req.Type = order.Limit
	req.Price = ptr(1.0800)
	pending, err := eng.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	cancelled, err := eng.CancelOrder(context.Background(), "ACC-1", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	// open positions are closed, not cancelled
	open, err := eng.PlaceOrder(context.Background(), marketBuy(1.0))
	require.NoError(t, err)
	require.Equal(t, order.StatusOpen, open.Status)
	_, err = eng.CancelOrder(context.Background(), "ACC-1", open.ID)
	assert.Error(t, err)

	_, err = eng.CancelOrder(context.Background(), "ACC-1", "missing")
	assert.True(t, errors.Is(err, ErrOrderNotFound))
}

func TestModifyOrder(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	o, err := eng.PlaceOrder(context.Background(), marketBuy(1.0))
	require.NoError(t, err)

	got, err := eng.ModifyOrder(context.Background(), "ACC-1", o.ID, order.Changes{
		StopLoss:   ptr(1.0800),
		TakeProfit: ptr(1.0900),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0800, *got.StopLoss)
	assert.Equal(t, 1.0900, *got.TakeProfit)
}

func TestClosePositionRealizesPnL(t *testing.T) {
	t.Parallel()

	eng, quotes := newTestEngine(t)
	listener := &recordingListener{}
	eng.SetTradeClosedListener(listener)

	o, err := eng.PlaceOrder(context.Background(), marketBuy(1.0))
	require.NoError(t, err)
	require.Equal(t, 1.0851, o.ExecutedPrice)

	// price rallies; a buy exits at the bid
	quotes.set("EURUSD", 1.0871, 1.0873)

	closed, err := eng.ClosePosition(context.Background(), "ACC-1", o.ID, "")
	require.NoError(t, err)

	assert.Equal(t, order.StatusFilled, closed.Status)
	assert.Equal(t, 1.0871, closed.ClosePrice)
	assert.InDelta(t, 200.0, closed.RealizedPL, 1e-9)
	assert.InDelta(t, 20.0, closed.PLPips, 1e-9)

	// balance_after = balance_before + realized pl
	acct, err := eng.Account("ACC-1")
	require.NoError(t, err)
	assert.InDelta(t, 10200.0, acct.Balance, 1e-9)

	events := listener.all()
	require.Len(t, events, 1)
	assert.Equal(t, closeEvent{"ACC-1", o.ID, ReasonManualClose}, events[0])

	// a position closes exactly once
	_, err = eng.ClosePosition(context.Background(), "ACC-1", o.ID, "")
	assert.Error(t, err)
}

func TestClosePositionNeedsQuote(t *testing.T) {
	t.Parallel()

	eng, quotes := newTestEngine(t)

	o, err := eng.PlaceOrder(context.Background(), marketBuy(1.0))
	require.NoError(t, err)

	// the book forgets the symbol before the close
	quotes.book = market.NewQuoteBook()
	_, err = eng.ClosePosition(context.Background(), "ACC-1", o.ID, "")
	assert.Error(t, err)

	got, err := eng.Order("ACC-1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOpen, got.Status)
}

// Two placements racing on one account must not both pass admission against
// the same margin-free figure. With 10,000 of balance and 1,085.1 of margin
// per lot, exactly 9 one-lot buys fit; the rest are rejected.
func TestConcurrentPlacementsCannotOverdraw(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)

	const attempts = 10
	results := make(chan order.Status, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := eng.PlaceOrder(context.Background(), marketBuy(1.0))
			require.NoError(t, err)
			results <- o.Status
		}()
	}
	wg.Wait()
	close(results)

	var open, rejected int
	for status := range results {
		switch status {
		case order.StatusOpen:
			open++
		case order.StatusRejected:
			rejected++
		}
	}
	assert.Equal(t, 9, open)
	assert.Equal(t, 1, rejected)

	snap, err := eng.AccountMetrics(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.InDelta(t, 9*1085.1, snap.MarginUsed, 1e-6)
}

func TestOrderReturnsDetachedCopy(t *testing.T) {
	t.Parallel()

	eng, quotes := newTestEngine(t)

	placed, err := eng.PlaceOrder(context.Background(), marketBuy(1.0))
	require.NoError(t, err)
	require.Equal(t, order.StatusOpen, placed.Status)

	before, err := eng.Order("ACC-1", placed.ID)
	require.NoError(t, err)

	quotes.set("EURUSD", 1.0871, 1.0873)
	_, err = eng.ClosePosition(context.Background(), "ACC-1", placed.ID, "")
	require.NoError(t, err)

	// the snapshot taken before the close is unaffected by it
	assert.Equal(t, order.StatusOpen, before.Status)
	assert.Zero(t, before.ClosePrice)

	after, err := eng.Order("ACC-1", placed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, after.Status)
	assert.Equal(t, 1.0871, after.ClosePrice)
}

// Readers polling the engine while the evaluation loop closes positions must
// always see a complete order state: a filled order carries its realized
// outcome, never a half-written close.
func TestReadsDuringEvaluationSeeCompleteOrders(t *testing.T) {
	t.Parallel()

	eng, quotes := newTestEngine(t)

	req := marketBuy(1.0)
	req.StopLoss = ptr(1.0800)
	placed, err := eng.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, order.StatusOpen, placed.Status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx, time.Millisecond)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := eng.Order("ACC-1", placed.ID)
				assert.NoError(t, err)
				if got.Status == order.StatusFilled {
					assert.Equal(t, 1.0799, got.ClosePrice)
					assert.NotZero(t, got.RealizedPL)
				}

				all, err := eng.Orders("ACC-1")
				assert.NoError(t, err)
				for _, o := range all {
					if o.Status == order.StatusFilled {
						assert.NotZero(t, o.ClosePrice)
					}
				}

				select {
				case <-stop:
					return
				default:
				}
			}
		}()
	}

	quotes.set("EURUSD", 1.0799, 1.0801)

	require.Eventually(t, func() bool {
		got, err := eng.Order("ACC-1", placed.ID)
		return err == nil && got.Status == order.StatusFilled
	}, time.Second, time.Millisecond)

	close(stop)
	wg.Wait()
}

func TestRiskState(t *testing.T) {
	t.Parallel()

	eng, quotes := newTestEngine(t)

	state, err := eng.RiskState(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.False(t, state.MarginCall)
	assert.False(t, state.Liquidation)
	assert.Equal(t, 10000.0, state.Snapshot.Equity)

	o, err := eng.PlaceOrder(context.Background(), marketBuy(1.0))
	require.NoError(t, err)
	require.Equal(t, order.StatusOpen, o.Status)

	// deep drawdown: equity 400, margin used 1085.1, level ~36.9%
	quotes.set("EURUSD", 1.0851-0.0960, 1.0851-0.0958)

	state, err = eng.RiskState(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.True(t, state.MarginCall)
	assert.False(t, state.Liquidation)
}
