package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edgetrade/engine/order"
	"github.com/edgetrade/engine/pricing"
)

type closedEvent struct {
	orderID string
	reason  string
}

// EvaluateAccount runs one risk pass for an account: expire stale pending
// orders, fill triggered limit/stop orders, close stop-loss/take-profit
// hits, snapshot equity, then force-liquidate worst losers first until the
// margin level recovers above the liquidation threshold or no open
// positions remain. The whole pass holds the account lock; listener
// notifications go out after it is released.
func (e *Engine) EvaluateAccount(ctx context.Context, accountID string) error {
	st, err := e.state(accountID)
	if err != nil {
		return err
	}

	st.mu.Lock()

	now := e.now()
	var closed []closedEvent

	// Expiry before triggers: an order past its deadline must not fill.
	for _, o := range st.orders {
		if o.Status != order.StatusPending || o.ExpiresAt == nil {
			continue
		}
		if !now.Before(*o.ExpiresAt) {
			_ = o.Expire(now)
			e.log.Info("order expired", "account", accountID, "order", o.ID)
		}
	}

	// Fill resting limit/stop orders whose trigger condition is met. The
	// fill price is the current market side, which for a triggered limit
	// is the order price or better.
	for _, o := range st.orders {
		if o.Status != order.StatusPending || o.Type == order.Market || o.Price == nil {
			continue
		}
		q, err := e.quotes.GetQuote(ctx, o.Symbol)
		if err != nil {
			continue
		}
		if !o.EntryTriggered(q) {
			continue
		}
		price := pricing.ExecutionPrice(q, o.Side)
		if err := o.Fill(price, now); err != nil {
			continue
		}
		o.MarginRequired = pricing.MarginRequired(o.Symbol, o.Quantity, price, st.acct.Leverage)
		e.log.Info("order triggered",
			"account", accountID, "order", o.ID, "symbol", o.Symbol,
			"type", o.Type, "price", price)
	}

	// Stop-loss / take-profit hits on open positions.
	for _, o := range st.orders {
		if o.Status != order.StatusOpen {
			continue
		}
		q, err := e.quotes.GetQuote(ctx, o.Symbol)
		if err != nil {
			continue
		}

		var reason string
		switch {
		case o.StopLossHit(q):
			reason = ReasonStopLoss
		case o.TakeProfitHit(q):
			reason = ReasonTakeProfit
		default:
			continue
		}
		if err := e.closeLocked(ctx, st, o, q, reason); err != nil {
			st.mu.Unlock()
			return err
		}
		closed = append(closed, closedEvent{orderID: o.ID, reason: reason})
	}

	snap, err := e.snapshotLocked(ctx, st, now)
	if err != nil {
		st.mu.Unlock()
		return err
	}
	if e.eval.NeedsMarginCall(snap.MarginLevel) && !e.eval.NeedsLiquidation(snap.MarginLevel) {
		e.log.Warn("margin call",
			"account", accountID, "margin_level", snap.MarginLevel,
			"equity", snap.Equity, "margin_used", snap.MarginUsed)
	}

	// Forced liquidation: close the worst loser, recompute, repeat until
	// the margin level recovers or nothing is left to close.
	for e.eval.NeedsLiquidation(snap.MarginLevel) {
		ranked := e.eval.PositionsToLiquidate(ctx, st.orderList())
		if len(ranked) == 0 {
			break
		}
		worst := ranked[0]
		q, err := e.quotes.GetQuote(ctx, worst.Symbol)
		if err != nil {
			break
		}
		if err := e.closeLocked(ctx, st, worst, q, ReasonLiquidation); err != nil {
			st.mu.Unlock()
			return err
		}
		e.log.Warn("position liquidated",
			"account", accountID, "order", worst.ID, "margin_level", snap.MarginLevel)
		closed = append(closed, closedEvent{orderID: worst.ID, reason: ReasonLiquidation})

		snap = e.eval.AccountMetrics(ctx, st.acct, st.orderList())
	}

	listener := e.currentListener()
	st.mu.Unlock()

	if listener != nil {
		for _, c := range closed {
			listener.OnTradeClosed(accountID, c.orderID, c.reason)
		}
	}
	return nil
}

// Run evaluates every account at the given cadence until the context is
// done. Accounts are evaluated in parallel; one slow account never stalls
// the others, and there is no global lock. A tick that arrives while a pass
// is still running is picked up by the next pass.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	e.log.Info("risk evaluation started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("risk evaluation stopped")
			return
		case <-ticker.C:
			e.evaluateAll(ctx)
		}
	}
}

func (e *Engine) evaluateAll(ctx context.Context) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.accounts))
	for id := range e.accounts {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	var wg sync.WaitGroup
	for _, accountID := range ids {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			if err := e.EvaluateAccount(ctx, accountID); err != nil {
				e.log.Error("evaluation failed", "account", accountID, slog.Any("err", err))
			}
		}(accountID)
	}
	wg.Wait()
}
