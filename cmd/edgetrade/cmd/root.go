package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "edgetrade",
	Short: "Margin-trading risk engine with a simulated price feed",
	Long: `EdgeTrade is a margin-trading backend engine written in Go.

It provides:
  - A simulated bid/ask price feed (bounded random walk per symbol)
  - Pip, PnL and margin calculators
  - An order lifecycle state machine (market, limit and stop orders)
  - Account-level risk evaluation with margin-call and forced-liquidation
    handling
  - Trade and equity journaling to SQLite or CSV`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
