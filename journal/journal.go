// Package journal records closed trades and equity snapshots produced by
// the engine. The engine only reports facts; what the records are used for
// (statements, alerting, analysis) is the caller's business.
package journal

import "time"

// TradeRecord is one realized trade.
type TradeRecord struct {
	TradeID    string
	AccountID  string
	Symbol     string
	Side       string
	Lots       float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	PLPips     float64
	Reason     string
}

// EquitySnapshot is the account risk state at a point in time.
type EquitySnapshot struct {
	AccountID   string
	Time        time.Time
	Balance     float64
	Equity      float64
	MarginUsed  float64
	MarginFree  float64
	MarginLevel float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Stats summarizes an account's realized trading history.
type Stats struct {
	Trades  int
	Wins    int
	Losses  int
	TotalPL float64
	WinRate float64 // percent
}

// Nop discards everything. Useful in tests and in callers that persist
// through their own layer.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
