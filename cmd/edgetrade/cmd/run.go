package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgetrade/engine/config"
	"github.com/edgetrade/engine/engine"
	"github.com/edgetrade/engine/feed"
	"github.com/edgetrade/engine/internal/logx"
	"github.com/edgetrade/engine/journal"
	"github.com/edgetrade/engine/risk"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine with a simulated feed",
	Long: `Start the price feed and the risk evaluation loop with the account from
the configuration file, then run until interrupted.

Orders are placed through the engine's API; this command only hosts the
engine and prints the account state on shutdown.

Example:
  edgetrade run --config edgetrade.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logx.New(cfg.LogLevel)

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	f := feed.NewSimulated(feed.SimulatedOptions{
		SpreadPips:  cfg.Feed.SpreadPips,
		MaxStepPips: cfg.Feed.MaxStepPips,
		Seed:        cfg.Feed.Seed,
		BasePrices:  cfg.Feed.BasePrices,
	})

	eval := risk.NewEvaluator(f, cfg.Risk.MarginCallLevel, cfg.Risk.LiquidationLevel)
	eval.MinLotSize = cfg.Risk.MinLotSize
	eval.MaxLotSize = cfg.Risk.MaxLotSize
	eval.MaxOpenPositions = cfg.Risk.MaxOpenPositions

	eng := engine.New(f, eval, j, log)
	if err := eng.AddAccount(risk.Account{
		ID:       cfg.Account.ID,
		Currency: cfg.Account.Currency,
		Balance:  cfg.Account.Balance,
		Leverage: cfg.Account.Leverage,
		Active:   true,
	}); err != nil {
		return err
	}

	feedInterval, _ := cfg.FeedInterval()
	evalInterval, _ := cfg.EvalInterval()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go f.Run(ctx, feedInterval, log)
	eng.Run(ctx, evalInterval)

	snap, err := eng.AccountMetrics(context.Background(), cfg.Account.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\nFinal account state (%s):\n", cfg.Account.ID)
	fmt.Printf("  Balance:      $%.2f\n", snap.Balance)
	fmt.Printf("  Equity:       $%.2f\n", snap.Equity)
	fmt.Printf("  Margin used:  $%.2f\n", snap.MarginUsed)
	fmt.Printf("  Margin free:  $%.2f\n", snap.MarginFree)
	if snap.MarginUsed > 0 {
		fmt.Printf("  Margin level: %.1f%%\n", snap.MarginLevel)
	}
	return nil
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.TradesFile, cfg.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	default:
		return journal.Nop{}, nil
	}
}
