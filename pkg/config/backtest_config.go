package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/akhenda/polypaper/pkg/types"
)

// Backtest is the JSON file configuration of one backtest run. Strategy
// parameters stay raw here; the strategy's own typed struct decodes and
// validates them.
type Backtest struct {
	StrategyID     string          `json:"strategy_id"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	MarketIDs      []string        `json:"market_ids"`
	Interval       string          `json:"interval"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	InitialCapital float64         `json:"initial_capital"`
	FeeRate        float64         `json:"fee_rate"`
	SlippageRate   float64         `json:"slippage_rate"`
	PositionCapUSD float64         `json:"position_cap_usd"`

	// DataFiles maps market ids to CSV candle files, used when candles are
	// loaded from disk instead of the database or the exchange.
	DataFiles map[string]string `json:"data_files,omitempty"`

	NumSimulations int `json:"num_simulations"`
	BlockSize      int `json:"block_size"`
}

// Defaults for Backtest fields.
const (
	DefaultInterval       = "1h"
	DefaultInitialCapital = 10000.0
	DefaultPositionCapUSD = 20.0
	DefaultSimulations    = 1000
	DefaultBlockSize      = 5
)

// NewDefaultBacktest returns a backtest config with every default applied.
func NewDefaultBacktest() *Backtest {
	return &Backtest{
		Interval:       DefaultInterval,
		InitialCapital: DefaultInitialCapital,
		FeeRate:        DefaultFeeRate,
		SlippageRate:   DefaultSlippageRate,
		PositionCapUSD: DefaultPositionCapUSD,
		NumSimulations: DefaultSimulations,
		BlockSize:      DefaultBlockSize,
	}
}

// LoadBacktest reads and validates a backtest config file. File values
// override the defaults field by field.
func LoadBacktest(path string) (*Backtest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := NewDefaultBacktest()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for internal consistency.
func (c *Backtest) Validate() error {
	if c.StrategyID == "" {
		return fmt.Errorf("strategy_id is required")
	}
	if len(c.MarketIDs) == 0 {
		return fmt.Errorf("at least one market_id is required")
	}
	if types.IntervalDuration(c.Interval) <= 0 {
		return fmt.Errorf("unknown interval %q", c.Interval)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %v", c.InitialCapital)
	}
	if c.FeeRate < 0 || c.SlippageRate < 0 {
		return fmt.Errorf("fee_rate and slippage_rate must be non-negative")
	}
	if c.PositionCapUSD < 0 {
		return fmt.Errorf("position_cap_usd must be non-negative, got %v", c.PositionCapUSD)
	}

	start, err := c.ParseStartDate()
	if err != nil {
		return err
	}
	end, err := c.ParseEndDate()
	if err != nil {
		return err
	}
	if !end.After(start) {
		return fmt.Errorf("end_date %s must be after start_date %s", c.EndDate, c.StartDate)
	}
	return nil
}

// ParseStartDate parses the start date, accepting YYYY-MM-DD or RFC 3339.
func (c *Backtest) ParseStartDate() (time.Time, error) {
	return parseDate("start_date", c.StartDate)
}

// ParseEndDate parses the end date, accepting YYYY-MM-DD or RFC 3339.
func (c *Backtest) ParseEndDate() (time.Time, error) {
	return parseDate("end_date", c.EndDate)
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s %q: expected YYYY-MM-DD or RFC 3339", field, value)
	}
	return t, nil
}
