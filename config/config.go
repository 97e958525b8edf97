package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgetrade/engine/market"
)

// Config is the complete engine configuration.
type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Account  AccountConfig `json:"account" yaml:"account"`
	Risk     RiskConfig    `json:"risk" yaml:"risk"`
	Feed     FeedConfig    `json:"feed" yaml:"feed"`
	Journal  JournalConfig `json:"journal" yaml:"journal"`
}

// AccountConfig seeds the demo account the CLI trades on.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
	Leverage int     `json:"leverage" yaml:"leverage"`
}

// RiskConfig carries the margin thresholds and admission limits.
type RiskConfig struct {
	MarginCallLevel  float64 `json:"margin_call_level" yaml:"margin_call_level"`
	LiquidationLevel float64 `json:"liquidation_level" yaml:"liquidation_level"`
	MinLotSize       float64 `json:"min_lot_size" yaml:"min_lot_size"`
	MaxLotSize       float64 `json:"max_lot_size" yaml:"max_lot_size"`
	MaxOpenPositions int     `json:"max_open_positions" yaml:"max_open_positions"`
	// EvalInterval is the cadence of the background risk evaluation pass,
	// e.g. "500ms".
	EvalInterval string `json:"eval_interval" yaml:"eval_interval"`
}

// FeedConfig configures the simulated price feed.
type FeedConfig struct {
	Interval    string  `json:"interval" yaml:"interval"` // e.g. "1s"
	SpreadPips  float64 `json:"spread_pips" yaml:"spread_pips"`
	MaxStepPips float64 `json:"max_step_pips" yaml:"max_step_pips"`
	Seed        int64   `json:"seed" yaml:"seed"`
	// BasePrices overrides the built-in symbol table; empty means all
	// known symbols at their default base prices.
	BasePrices map[string]float64 `json:"base_prices,omitempty" yaml:"base_prices,omitempty"`
}

// JournalConfig selects the journal backend.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "sqlite", "csv" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration; YAML for .yaml/.yml, JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// FeedInterval parses the feed cadence.
func (c *Config) FeedInterval() (time.Duration, error) {
	return time.ParseDuration(c.Feed.Interval)
}

// EvalInterval parses the risk evaluation cadence.
func (c *Config) EvalInterval() (time.Duration, error) {
	return time.ParseDuration(c.Risk.EvalInterval)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("account.id is required")
	}
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Account.Leverage <= 0 {
		return fmt.Errorf("account.leverage must be positive")
	}
	if c.Risk.MarginCallLevel <= 0 {
		return fmt.Errorf("risk.margin_call_level must be positive")
	}
	if c.Risk.LiquidationLevel <= 0 {
		return fmt.Errorf("risk.liquidation_level must be positive")
	}
	if c.Risk.LiquidationLevel >= c.Risk.MarginCallLevel {
		return fmt.Errorf("risk.liquidation_level must be below risk.margin_call_level")
	}
	if c.Risk.MinLotSize < 0 || c.Risk.MaxLotSize < 0 {
		return fmt.Errorf("risk lot size limits must not be negative")
	}
	if c.Risk.MaxLotSize > 0 && c.Risk.MinLotSize > c.Risk.MaxLotSize {
		return fmt.Errorf("risk.min_lot_size exceeds risk.max_lot_size")
	}
	if _, err := c.EvalInterval(); err != nil {
		return fmt.Errorf("risk.eval_interval: %w", err)
	}
	if _, err := c.FeedInterval(); err != nil {
		return fmt.Errorf("feed.interval: %w", err)
	}
	if c.Feed.SpreadPips <= 0 {
		return fmt.Errorf("feed.spread_pips must be positive")
	}
	if c.Feed.MaxStepPips <= 0 {
		return fmt.Errorf("feed.max_step_pips must be positive")
	}
	for sym, price := range c.Feed.BasePrices {
		if price <= 0 {
			return fmt.Errorf("feed.base_prices[%s] must be positive", sym)
		}
		if _, ok := market.Symbols[sym]; !ok {
			return fmt.Errorf("unknown symbol: %s", sym)
		}
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for csv type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv' or 'none'")
	}
	return nil
}

// Default returns the stock configuration: a 10k USD demo account at 1:100
// leverage with the standard 50/20 margin thresholds.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Account: AccountConfig{
			ID:       "DEMO-001",
			Currency: "USD",
			Balance:  10000,
			Leverage: 100,
		},
		Risk: RiskConfig{
			MarginCallLevel:  50,
			LiquidationLevel: 20,
			MinLotSize:       0.01,
			MaxLotSize:       100,
			MaxOpenPositions: 50,
			EvalInterval:     "500ms",
		},
		Feed: FeedConfig{
			Interval:    "1s",
			SpreadPips:  1.5,
			MaxStepPips: 5,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./edgetrade.db",
		},
	}
}
