package order

import (
	"fmt"

	"github.com/edgetrade/engine/market"
)

// The four predicates below are deliberately asymmetric in which side of the
// spread they reference: an order always executes against the worse of
// bid/ask for the trader.

// EntryTriggered reports whether a pending limit/stop order should execute
// against the current quote. Market orders never wait, so they are a caller
// bug here; so is a limit/stop order without a price.
func (o *Order) EntryTriggered(q market.Quote) bool {
	if o.Price == nil {
		panic(fmt.Sprintf("order: %s order %s has no price", o.Type, o.ID))
	}
	price := *o.Price

	switch o.Type {
	case Limit:
		if o.Side == Buy {
			return q.Ask <= price
		}
		return q.Bid >= price
	case Stop:
		if o.Side == Buy {
			return q.Ask >= price
		}
		return q.Bid <= price
	default:
		panic(fmt.Sprintf("order: entry trigger on %s order %s", o.Type, o.ID))
	}
}

// StopLossHit reports whether the stop-loss level has been reached: bid for
// buy positions, ask for sell positions.
func (o *Order) StopLossHit(q market.Quote) bool {
	if o.StopLoss == nil {
		return false
	}
	if o.Side == Buy {
		return q.Bid <= *o.StopLoss
	}
	return q.Ask >= *o.StopLoss
}

// TakeProfitHit reports whether the take-profit level has been reached: bid
// for buy positions, ask for sell positions.
func (o *Order) TakeProfitHit(q market.Quote) bool {
	if o.TakeProfit == nil {
		return false
	}
	if o.Side == Buy {
		return q.Bid >= *o.TakeProfit
	}
	return q.Ask <= *o.TakeProfit
}
