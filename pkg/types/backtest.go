package types

import "time"

// BacktestStatus is the lifecycle of a backtest row:
// PENDING -> RUNNING -> {COMPLETED, FAILED}. Terminal rows are immutable
// except for attached Monte Carlo metadata.
type BacktestStatus string

const (
	BacktestPending   BacktestStatus = "PENDING"
	BacktestRunning   BacktestStatus = "RUNNING"
	BacktestCompleted BacktestStatus = "COMPLETED"
	BacktestFailed    BacktestStatus = "FAILED"
)

// EquityPoint is one sample of the equity curve, recorded at every bar.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Trade is one completed (fully or partially closed) round trip, appended
// to the trade log whenever a position closes.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
}

// MonteCarloResult is the robustness summary merged into a completed
// backtest's metadata as {"monte_carlo": {...}}.
type MonteCarloResult struct {
	NumSimulations int     `json:"num_simulations"`
	BlockSize      int     `json:"block_size"`
	EquityP5       float64 `json:"equity_p5"`
	EquityP50      float64 `json:"equity_p50"`
	EquityP95      float64 `json:"equity_p95"`
	EquityMean     float64 `json:"equity_mean"`
	EquityStd      float64 `json:"equity_std"`
	DrawdownP5     float64 `json:"drawdown_p5"`
	DrawdownP50    float64 `json:"drawdown_p50"`
	DrawdownP95    float64 `json:"drawdown_p95"`
	ProbRuin       float64 `json:"prob_ruin"`
	ProbProfit     float64 `json:"prob_profit"`
}

// Backtest is the persisted record of one replay run.
type Backtest struct {
	ID             string            `json:"id"`
	StrategyID     string            `json:"strategy_id"`
	Parameters     map[string]any    `json:"parameters"`
	MarketIDs      []string          `json:"market_ids"`
	StartDate      time.Time         `json:"start_date"`
	EndDate        time.Time         `json:"end_date"`
	InitialCapital float64           `json:"initial_capital"`
	FinalCapital   float64           `json:"final_capital"`
	TotalReturn    float64           `json:"total_return"`
	SharpeRatio    float64           `json:"sharpe_ratio"`
	MaxDrawdown    float64           `json:"max_drawdown"`
	WinRate        float64           `json:"win_rate"`
	TradeCount     int               `json:"trade_count"`
	EquityCurve    []EquityPoint     `json:"equity_curve"`
	Trades         []Trade           `json:"trades"`
	Status         BacktestStatus    `json:"status"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	MonteCarlo     *MonteCarloResult `json:"monte_carlo,omitempty"`
}
