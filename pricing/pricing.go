// Package pricing holds the pure calculation layer: pip values, profit and
// loss, and required margin. Every function is stateless and reproducible
// for identical inputs, which is what makes it safe to call from any
// goroutine without coordination.
package pricing

import (
	"fmt"

	"github.com/edgetrade/engine/market"
	"github.com/edgetrade/engine/order"
)

// ContractSize is the number of base-currency units in one standard lot.
// The margin and pip-value formulas both hang off this constant.
const ContractSize = 100_000

// PipValue returns the value of one pip for the given lot size, in the
// quote currency.
//
// Known limitation: the value is not converted into the account currency
// when that differs from the quote currency. The behavior is inherited and
// deliberately preserved.
func PipValue(symbol string, lots float64) float64 {
	if lots <= 0 {
		panic(fmt.Sprintf("pricing: non-positive lot size %v", lots))
	}
	return lots * ContractSize * market.PipSize(symbol)
}

// PnL returns the profit or loss of a trade in currency and in pips. The
// price delta is exit-entry for buys and entry-exit for sells.
func PnL(symbol string, side order.Side, entry, exit, lots float64) (amount, pips float64) {
	var delta float64
	switch side {
	case order.Buy:
		delta = exit - entry
	case order.Sell:
		delta = entry - exit
	default:
		panic(fmt.Sprintf("pricing: unknown order side %q", side))
	}

	pips = delta / market.PipSize(symbol)
	amount = pips * PipValue(symbol, lots)
	return amount, pips
}

// MarginRequired returns the margin to post for a position:
// (lots x ContractSize x entry) / leverage. Leverage and lot size must be
// positive; zero leverage is a caller error, not unlimited leverage.
func MarginRequired(symbol string, lots, entry float64, leverage int) float64 {
	if leverage <= 0 {
		panic(fmt.Sprintf("pricing: non-positive leverage %d", leverage))
	}
	if lots <= 0 {
		panic(fmt.Sprintf("pricing: non-positive lot size %v", lots))
	}
	_ = symbol // pip size does not enter the margin formula
	return lots * ContractSize * entry / float64(leverage)
}

// ExecutionPrice returns the price a new position fills at: ask for buys,
// bid for sells. Entry always crosses the spread against the trader.
func ExecutionPrice(q market.Quote, side order.Side) float64 {
	if side == order.Buy {
		return q.Ask
	}
	return q.Bid
}

// ExitPrice returns the price an existing position closes at: bid for buys,
// ask for sells. The spread cost is realized on both entry and exit.
func ExitPrice(q market.Quote, side order.Side) float64 {
	if side == order.Buy {
		return q.Bid
	}
	return q.Ask
}
