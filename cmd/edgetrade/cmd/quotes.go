package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgetrade/engine/feed"
)

var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Print a few ticks of simulated quotes",
	Long: `Run the simulated feed for a number of ticks and print every symbol's
bid/ask after each one. Useful for eyeballing the random walk and spread.

Example:
  edgetrade quotes --ticks 5 --seed 42`,
	RunE: runQuotes,
}

var (
	quotesTicks int
	quotesSeed  int64
)

func init() {
	rootCmd.AddCommand(quotesCmd)

	quotesCmd.Flags().IntVarP(&quotesTicks, "ticks", "n", 3, "number of ticks to simulate")
	quotesCmd.Flags().Int64Var(&quotesSeed, "seed", time.Now().UnixNano(), "random walk seed")
}

func runQuotes(cmd *cobra.Command, args []string) error {
	f := feed.NewSimulated(feed.SimulatedOptions{Seed: quotesSeed})

	for i := 0; i < quotesTicks; i++ {
		f.TickAll()
		fmt.Printf("tick %d:\n", i+1)

		quotes := f.Snapshot()
		symbols := make([]string, 0, len(quotes))
		for sym := range quotes {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		for _, sym := range symbols {
			q := quotes[sym]
			fmt.Printf("  %-8s bid %.5f  ask %.5f\n", sym, q.Bid, q.Ask)
		}
	}
	return nil
}
