package order

import (
	"fmt"
	"time"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type Type string

const (
	Market Type = "market"
	Limit  Type = "limit"
	Stop   Type = "stop"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusOpen            Status = "open"
	StatusFilled          Status = "filled"
	StatusPartiallyFilled Status = "partially_filled"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Order is the engine's view of an order/position. The engine computes over
// it and hands it back; durable storage belongs to the caller.
type Order struct {
	ID            string
	ClientOrderID string
	AccountID     string

	Symbol   string
	Type     Type
	Side     Side
	Quantity float64 // lot size

	FilledQuantity    float64
	RemainingQuantity float64

	Price      *float64 // entry price, required for limit/stop
	StopLoss   *float64
	TakeProfit *float64

	ExecutedPrice  float64
	Status         Status
	MarginRequired float64
	RejectReason   string

	// Realized on close
	ClosePrice float64
	RealizedPL float64
	PLPips     float64

	CreatedAt   time.Time
	FilledAt    time.Time
	CancelledAt time.Time
	ClosedAt    time.Time
	ExpiresAt   *time.Time
}

// New creates a pending order. Quantity must be positive; a non-positive
// quantity is a caller bug, not a rejectable request.
func New(id, accountID, symbol string, typ Type, side Side, quantity float64, createdAt time.Time) *Order {
	if quantity <= 0 {
		panic(fmt.Sprintf("order: non-positive quantity %v", quantity))
	}
	switch typ {
	case Market, Limit, Stop:
	default:
		panic(fmt.Sprintf("order: unknown order type %q", typ))
	}
	switch side {
	case Buy, Sell:
	default:
		panic(fmt.Sprintf("order: unknown order side %q", side))
	}
	return &Order{
		ID:                id,
		AccountID:         accountID,
		Symbol:            symbol,
		Type:              typ,
		Side:              side,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		Status:            StatusPending,
		CreatedAt:         createdAt,
	}
}

// Fill moves a pending order to open with the executed price set and the
// full quantity filled.
func (o *Order) Fill(price float64, at time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("cannot fill order with status %s", o.Status)
	}
	o.Status = StatusOpen
	o.ExecutedPrice = price
	o.FilledQuantity = o.Quantity
	o.RemainingQuantity = 0
	o.FilledAt = at
	return nil
}

// Reject moves a pending order to rejected with a reason.
func (o *Order) Reject(reason string, at time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("cannot reject order with status %s", o.Status)
	}
	o.Status = StatusRejected
	o.RejectReason = reason
	o.CancelledAt = at
	return nil
}

// Cancel is only legal while the order is still pending. Open positions must
// be closed, not cancelled.
func (o *Order) Cancel(at time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("cannot cancel order with status %s", o.Status)
	}
	o.Status = StatusCancelled
	o.CancelledAt = at
	return nil
}

// Close realizes an open position: records the exit price and PnL and moves
// it to filled. The caller settles the account balance.
func (o *Order) Close(exitPrice, pl, pips float64, at time.Time) error {
	if o.Status != StatusOpen {
		return fmt.Errorf("cannot close order with status %s", o.Status)
	}
	o.Status = StatusFilled
	o.ClosePrice = exitPrice
	o.RealizedPL = pl
	o.PLPips = pips
	o.ClosedAt = at
	return nil
}

// Expire moves a pending or open order to expired.
func (o *Order) Expire(at time.Time) error {
	if o.Status != StatusPending && o.Status != StatusOpen {
		return fmt.Errorf("cannot expire order with status %s", o.Status)
	}
	o.Status = StatusExpired
	o.CancelledAt = at
	return nil
}

// Changes carries the fields a caller may modify on a live order. Nil means
// leave unchanged.
type Changes struct {
	Price      *float64
	StopLoss   *float64
	TakeProfit *float64
	Quantity   *float64
}

// Modify applies changes; legal only while pending or open. A quantity
// change keeps remaining = quantity - filled.
func (o *Order) Modify(c Changes) error {
	if o.Status != StatusPending && o.Status != StatusOpen {
		return fmt.Errorf("cannot modify order with status %s", o.Status)
	}
	if c.Quantity != nil {
		if *c.Quantity <= 0 {
			panic(fmt.Sprintf("order: non-positive quantity %v", *c.Quantity))
		}
		if *c.Quantity < o.FilledQuantity {
			return fmt.Errorf("quantity %v below filled quantity %v", *c.Quantity, o.FilledQuantity)
		}
		o.Quantity = *c.Quantity
		o.RemainingQuantity = o.Quantity - o.FilledQuantity
	}
	if c.Price != nil {
		o.Price = c.Price
	}
	if c.StopLoss != nil {
		o.StopLoss = c.StopLoss
	}
	if c.TakeProfit != nil {
		o.TakeProfit = c.TakeProfit
	}
	return nil
}
