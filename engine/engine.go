// Package engine ties the feed, calculator and evaluator together: it
// admits orders, executes and closes positions, and runs the periodic
// risk pass that fills triggered orders and force-liquidates accounts.
//
// Safety model: every account has its own lock, and the whole
// "recompute metrics, validate, commit order" sequence runs inside it, so
// only one admission decision is in flight per account. Different accounts
// never contend, and quote updates never take an account lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgetrade/engine/internal/id"
	"github.com/edgetrade/engine/journal"
	"github.com/edgetrade/engine/market"
	"github.com/edgetrade/engine/order"
	"github.com/edgetrade/engine/pricing"
	"github.com/edgetrade/engine/risk"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// Close reasons recorded on the journal and reported to the listener.
const (
	ReasonManualClose = "manual_close"
	ReasonStopLoss    = "stop_loss"
	ReasonTakeProfit  = "take_profit"
	ReasonLiquidation = "liquidation"
)

// TradeClosedListener is notified whenever the engine closes a position,
// including auto-closes during the evaluation pass. It is always called
// after the account lock has been released.
type TradeClosedListener interface {
	OnTradeClosed(accountID, orderID, reason string)
}

type Engine struct {
	quotes  market.QuoteSource
	eval    *risk.Evaluator
	journal journal.Journal
	log     *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	accounts map[string]*accountState
	listener TradeClosedListener
}

type accountState struct {
	mu     sync.Mutex
	acct   risk.Account
	orders map[string]*order.Order
}

func New(quotes market.QuoteSource, eval *risk.Evaluator, j journal.Journal, log *slog.Logger) *Engine {
	if j == nil {
		j = journal.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		quotes:   quotes,
		eval:     eval,
		journal:  j,
		log:      log,
		now:      time.Now,
		accounts: make(map[string]*accountState),
	}
}

// SetTradeClosedListener registers an optional listener for closed trades.
func (e *Engine) SetTradeClosedListener(l TradeClosedListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// AddAccount registers an account with the engine. The engine holds the
// account's live balance; the surrounding persistence layer remains the
// durable owner.
func (e *Engine) AddAccount(acct risk.Account) error {
	if acct.Leverage <= 0 {
		return fmt.Errorf("account %s: leverage must be positive, got %d", acct.ID, acct.Leverage)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.accounts[acct.ID]; ok {
		return fmt.Errorf("account %s already registered", acct.ID)
	}
	e.accounts[acct.ID] = &accountState{
		acct:   acct,
		orders: make(map[string]*order.Order),
	}
	return nil
}

func (e *Engine) state(accountID string) (*accountState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", accountID, ErrAccountNotFound)
	}
	return st, nil
}

// Account returns a copy of the account's current state.
func (e *Engine) Account(accountID string) (risk.Account, error) {
	st, err := e.state(accountID)
	if err != nil {
		return risk.Account{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.acct, nil
}

// Order returns a copy of one of the account's orders. The live order keeps
// mutating under the account lock as the evaluation pass runs; callers get a
// snapshot taken inside it.
func (e *Engine) Order(accountID, orderID string) (order.Order, error) {
	st, err := e.state(accountID)
	if err != nil {
		return order.Order{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	o, ok := st.orders[orderID]
	if !ok {
		return order.Order{}, fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	return *o, nil
}

// Orders returns copies of all the account's orders.
func (e *Engine) Orders(accountID string) ([]order.Order, error) {
	st, err := e.state(accountID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]order.Order, 0, len(st.orders))
	for _, o := range st.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (st *accountState) orderList() []*order.Order {
	out := make([]*order.Order, 0, len(st.orders))
	for _, o := range st.orders {
		out = append(out, o)
	}
	return out
}

// PlaceOrderRequest is what the order API layer hands the engine.
type PlaceOrderRequest struct {
	AccountID     string
	ClientOrderID string
	Symbol        string
	Side          order.Side
	Type          order.Type
	Quantity      float64
	Price         *float64 // required for limit/stop
	StopLoss      *float64
	TakeProfit    *float64
	ExpiresAt     *time.Time
}

// PlaceOrder runs admission and, for market orders, immediate execution.
// The returned order is a copy carrying the outcome: open with the executed
// price set, pending for resting limit/stop orders, or rejected with a
// reason. An error is returned only for structural problems (unknown
// account), never for a rejection.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (order.Order, error) {
	st, err := e.state(req.AccountID)
	if err != nil {
		return order.Order{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := e.now()
	o := order.New(id.New(), req.AccountID, req.Symbol, req.Type, req.Side, req.Quantity, now)
	o.ClientOrderID = req.ClientOrderID
	o.Price = req.Price
	o.StopLoss = req.StopLoss
	o.TakeProfit = req.TakeProfit
	o.ExpiresAt = req.ExpiresAt
	st.orders[o.ID] = o

	// Price the admission check against: the stated price for limit/stop,
	// the current execution price for market orders.
	var checkPrice float64
	switch req.Type {
	case order.Limit, order.Stop:
		if req.Price == nil {
			e.rejectLocked(o, fmt.Sprintf("price is required for %s orders", req.Type), now)
			return *o, nil
		}
		checkPrice = *req.Price
	default:
		q, err := e.quotes.GetQuote(ctx, req.Symbol)
		if err != nil {
			e.rejectLocked(o, fmt.Sprintf("no quote available for %s", req.Symbol), now)
			return *o, nil
		}
		checkPrice = pricing.ExecutionPrice(q, req.Side)
	}

	if max := e.eval.MaxOpenPositions; max > 0 && risk.CountOpen(st.orderList()) >= max {
		e.rejectLocked(o, fmt.Sprintf("open position limit reached (%d)", max), now)
		return *o, nil
	}

	snap := e.eval.AccountMetrics(ctx, st.acct, st.orderList())
	dec := e.eval.ValidateNewOrder(st.acct, snap, req.Symbol, req.Quantity, checkPrice)
	if !dec.Allowed {
		e.rejectLocked(o, dec.Reason, now)
		return *o, nil
	}
	o.MarginRequired = dec.MarginRequired

	if req.Type == order.Market {
		if err := o.Fill(checkPrice, now); err != nil {
			return order.Order{}, err
		}
		e.log.Info("order filled",
			"account", o.AccountID, "order", o.ID, "symbol", o.Symbol,
			"side", o.Side, "lots", o.Quantity, "price", o.ExecutedPrice)
	} else {
		e.log.Info("order resting",
			"account", o.AccountID, "order", o.ID, "symbol", o.Symbol,
			"type", o.Type, "side", o.Side, "lots", o.Quantity, "price", checkPrice)
	}
	return *o, nil
}

func (e *Engine) rejectLocked(o *order.Order, reason string, at time.Time) {
	_ = o.Reject(reason, at)
	e.log.Info("order rejected", "account", o.AccountID, "order", o.ID, "reason", reason)
}

// CancelOrder cancels a pending order. Open positions must be closed.
func (e *Engine) CancelOrder(_ context.Context, accountID, orderID string) (order.Order, error) {
	st, err := e.state(accountID)
	if err != nil {
		return order.Order{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	o, ok := st.orders[orderID]
	if !ok {
		return order.Order{}, fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	if err := o.Cancel(e.now()); err != nil {
		return order.Order{}, err
	}
	return *o, nil
}

// ModifyOrder applies price/SL/TP/quantity changes to a pending or open
// order.
func (e *Engine) ModifyOrder(_ context.Context, accountID, orderID string, c order.Changes) (order.Order, error) {
	st, err := e.state(accountID)
	if err != nil {
		return order.Order{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	o, ok := st.orders[orderID]
	if !ok {
		return order.Order{}, fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	if err := o.Modify(c); err != nil {
		return order.Order{}, err
	}
	return *o, nil
}

// ClosePosition closes an open position at the current exit price, realizes
// the PnL into the account balance and journals the trade. This is the one
// operation that mutates the realized balance. Closing a position twice
// fails the second time.
func (e *Engine) ClosePosition(ctx context.Context, accountID, orderID, reason string) (order.Order, error) {
	if reason == "" {
		reason = ReasonManualClose
	}

	st, err := e.state(accountID)
	if err != nil {
		return order.Order{}, err
	}

	st.mu.Lock()

	o, ok := st.orders[orderID]
	if !ok {
		st.mu.Unlock()
		return order.Order{}, fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	if o.Status != order.StatusOpen {
		st.mu.Unlock()
		return order.Order{}, fmt.Errorf("cannot close order %s with status %s", o.ID, o.Status)
	}

	q, err := e.quotes.GetQuote(ctx, o.Symbol)
	if err != nil {
		st.mu.Unlock()
		return order.Order{}, fmt.Errorf("close position %s: %w", o.ID, err)
	}

	if err := e.closeLocked(ctx, st, o, q, reason); err != nil {
		st.mu.Unlock()
		return order.Order{}, err
	}

	out := *o
	listener := e.currentListener()
	st.mu.Unlock()

	if listener != nil {
		listener.OnTradeClosed(accountID, orderID, reason)
	}
	return out, nil
}

// closeLocked realizes one open position and records the trade plus a fresh
// equity snapshot. Caller holds st.mu.
func (e *Engine) closeLocked(ctx context.Context, st *accountState, o *order.Order, q market.Quote, reason string) error {
	exit := pricing.ExitPrice(q, o.Side)
	pl, pips := pricing.PnL(o.Symbol, o.Side, o.ExecutedPrice, exit, o.Quantity)

	now := e.now()
	if err := o.Close(exit, pl, pips, now); err != nil {
		return err
	}
	st.acct.Balance += pl

	e.log.Info("position closed",
		"account", o.AccountID, "order", o.ID, "symbol", o.Symbol,
		"reason", reason, "pl", pl, "pips", pips)

	if err := e.journal.RecordTrade(journal.TradeRecord{
		TradeID:    o.ID,
		AccountID:  o.AccountID,
		Symbol:     o.Symbol,
		Side:       string(o.Side),
		Lots:       o.Quantity,
		EntryPrice: o.ExecutedPrice,
		ExitPrice:  o.ClosePrice,
		OpenTime:   o.FilledAt,
		CloseTime:  o.ClosedAt,
		RealizedPL: o.RealizedPL,
		PLPips:     o.PLPips,
		Reason:     reason,
	}); err != nil {
		return fmt.Errorf("record trade: %w", err)
	}

	_, err := e.snapshotLocked(ctx, st, now)
	return err
}

// snapshotLocked recomputes the account snapshot and journals it. Caller
// holds st.mu.
func (e *Engine) snapshotLocked(ctx context.Context, st *accountState, at time.Time) (risk.Snapshot, error) {
	snap := e.eval.AccountMetrics(ctx, st.acct, st.orderList())
	return snap, e.journal.RecordEquity(journal.EquitySnapshot{
		AccountID:   st.acct.ID,
		Time:        at,
		Balance:     snap.Balance,
		Equity:      snap.Equity,
		MarginUsed:  snap.MarginUsed,
		MarginFree:  snap.MarginFree,
		MarginLevel: snap.MarginLevel,
	})
}

func (e *Engine) currentListener() TradeClosedListener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listener
}

// AccountMetrics computes the account's risk snapshot under the account
// lock, so it never interleaves with an admission decision.
func (e *Engine) AccountMetrics(ctx context.Context, accountID string) (risk.Snapshot, error) {
	st, err := e.state(accountID)
	if err != nil {
		return risk.Snapshot{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return e.eval.AccountMetrics(ctx, st.acct, st.orderList()), nil
}

// RiskState is what the alerting layer polls: the snapshot plus the two
// decision booleans. The engine reports facts; it never sends alerts.
type RiskState struct {
	Snapshot    risk.Snapshot
	MarginCall  bool
	Liquidation bool
}

func (e *Engine) RiskState(ctx context.Context, accountID string) (RiskState, error) {
	snap, err := e.AccountMetrics(ctx, accountID)
	if err != nil {
		return RiskState{}, err
	}
	return RiskState{
		Snapshot:    snap,
		MarginCall:  e.eval.NeedsMarginCall(snap.MarginLevel),
		Liquidation: e.eval.NeedsLiquidation(snap.MarginLevel),
	}, nil
}
