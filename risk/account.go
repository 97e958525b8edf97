package risk

// Account is the slice of a trading account the engine needs: the realized
// ledger value plus the flags and leverage that gate order admission. The
// surrounding persistence layer owns the full entity.
type Account struct {
	ID       string
	Currency string
	Balance  float64
	Leverage int
	Active   bool
	Locked   bool
}

// Snapshot is the derived account risk state. It is computed on demand and
// never stored.
type Snapshot struct {
	Balance     float64
	Equity      float64
	MarginUsed  float64
	MarginFree  float64
	MarginLevel float64 // percent; 0 when no margin is in use
	FloatingPL  float64
}
