// Package risk aggregates open positions into account-level margin metrics
// and decides when an account must be warned or force-liquidated.
package risk

import (
	"context"
	"fmt"
	"sort"

	"github.com/edgetrade/engine/market"
	"github.com/edgetrade/engine/order"
	"github.com/edgetrade/engine/pricing"
)

// Evaluator computes account risk snapshots and admission decisions against
// a quote source. The thresholds are margin-level percentages; the
// liquidation level sits strictly below the margin-call level.
type Evaluator struct {
	Quotes market.QuoteSource

	MarginCallLevel  float64 // warn below this, e.g. 50
	LiquidationLevel float64 // force-close below this, e.g. 20

	// Optional admission limits; zero disables the check.
	MinLotSize       float64
	MaxLotSize       float64
	MaxOpenPositions int
}

func NewEvaluator(quotes market.QuoteSource, marginCall, liquidation float64) *Evaluator {
	if liquidation >= marginCall {
		panic(fmt.Sprintf("risk: liquidation level %v must be below margin-call level %v", liquidation, marginCall))
	}
	return &Evaluator{
		Quotes:           quotes,
		MarginCallLevel:  marginCall,
		LiquidationLevel: liquidation,
	}
}

// AccountMetrics aggregates margin and floating PnL across the account's
// open positions. Each position is valued against a single quote fetched
// once for that position; positions with no quote available are excluded
// from both totals rather than failing the whole snapshot.
func (e *Evaluator) AccountMetrics(ctx context.Context, acct Account, open []*order.Order) Snapshot {
	if acct.Leverage <= 0 {
		panic(fmt.Sprintf("risk: account %s has non-positive leverage %d", acct.ID, acct.Leverage))
	}

	var marginUsed, floatingPL float64
	for _, o := range open {
		if o.Status != order.StatusOpen {
			continue
		}
		q, err := e.Quotes.GetQuote(ctx, o.Symbol)
		if err != nil {
			continue
		}

		marginUsed += pricing.MarginRequired(o.Symbol, o.Quantity, o.ExecutedPrice, acct.Leverage)

		exit := pricing.ExitPrice(q, o.Side)
		pl, _ := pricing.PnL(o.Symbol, o.Side, o.ExecutedPrice, exit, o.Quantity)
		floatingPL += pl
	}

	equity := acct.Balance + floatingPL
	snap := Snapshot{
		Balance:    acct.Balance,
		Equity:     equity,
		MarginUsed: marginUsed,
		MarginFree: equity - marginUsed,
		FloatingPL: floatingPL,
	}
	if marginUsed > 0 {
		snap.MarginLevel = equity / marginUsed * 100
	}
	return snap
}

// Decision is the outcome of order admission. A rejection carries a
// human-readable reason; it is a value, not an error.
type Decision struct {
	Allowed        bool
	Reason         string
	MarginRequired float64
	MarginFree     float64
}

func rejected(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ValidateNewOrder decides whether the account can carry a candidate order,
// given a snapshot computed in the same critical section. The check is a
// point-in-time approximation: the caller must hold the account's admission
// lock so that concurrent placements cannot both pass against the same
// stale margin-free figure.
func (e *Evaluator) ValidateNewOrder(acct Account, snap Snapshot, symbol string, lots, price float64) Decision {
	if acct.Locked {
		return rejected("account is locked")
	}
	if !acct.Active {
		return rejected("account is inactive")
	}
	if e.MinLotSize > 0 && lots < e.MinLotSize {
		return rejected(fmt.Sprintf("lot size %.2f below minimum %.2f", lots, e.MinLotSize))
	}
	if e.MaxLotSize > 0 && lots > e.MaxLotSize {
		return rejected(fmt.Sprintf("lot size %.2f above maximum %.2f", lots, e.MaxLotSize))
	}

	required := pricing.MarginRequired(symbol, lots, price, acct.Leverage)
	if required > snap.MarginFree {
		return Decision{
			Allowed:        false,
			Reason:         fmt.Sprintf("insufficient margin: required %.2f, available %.2f", required, snap.MarginFree),
			MarginRequired: required,
			MarginFree:     snap.MarginFree,
		}
	}

	return Decision{Allowed: true, MarginRequired: required, MarginFree: snap.MarginFree}
}

// CountOpen reports how many of the orders are open positions.
func CountOpen(orders []*order.Order) int {
	n := 0
	for _, o := range orders {
		if o.Status == order.StatusOpen {
			n++
		}
	}
	return n
}

// NeedsMarginCall reports whether the margin level has fallen into the
// warning band. A level of 0 means no margin in use, not infinite risk.
func (e *Evaluator) NeedsMarginCall(marginLevel float64) bool {
	return marginLevel > 0 && marginLevel < e.MarginCallLevel
}

// NeedsLiquidation reports whether the margin level has fallen below the
// forced-liquidation threshold.
func (e *Evaluator) NeedsLiquidation(marginLevel float64) bool {
	return marginLevel > 0 && marginLevel < e.LiquidationLevel
}

// PositionsToLiquidate ranks the open positions worst floating PnL first.
// Liquidation closes positions in this order until the margin level
// recovers. Positions with no quote are excluded: they cannot be valued, so
// they cannot be closed either.
func (e *Evaluator) PositionsToLiquidate(ctx context.Context, open []*order.Order) []*order.Order {
	type ranked struct {
		o  *order.Order
		pl float64
	}

	var list []ranked
	for _, o := range open {
		if o.Status != order.StatusOpen {
			continue
		}
		q, err := e.Quotes.GetQuote(ctx, o.Symbol)
		if err != nil {
			continue
		}
		exit := pricing.ExitPrice(q, o.Side)
		pl, _ := pricing.PnL(o.Symbol, o.Side, o.ExecutedPrice, exit, o.Quantity)
		list = append(list, ranked{o: o, pl: pl})
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].pl < list[j].pl })

	out := make([]*order.Order, len(list))
	for i, r := range list {
		out[i] = r.o
	}
	return out
}
