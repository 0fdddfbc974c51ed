// Package storage persists the simulation's records to Postgres through
// gorm. Column names are the contract shared with the surrounding API
// layer; the core exchanges typed records only, never query fragments.
package storage

import (
	"time"

	"gorm.io/datatypes"
)

// CandleRecord mirrors the market_candles table. Rows are immutable once
// written and are read-only input for the engine.
type CandleRecord struct {
	MarketID  string    `gorm:"column:market_id;primaryKey"`
	Interval  string    `gorm:"column:interval;primaryKey"`
	Timestamp time.Time `gorm:"column:timestamp;type:timestamptz;primaryKey"`
	Open      float64   `gorm:"column:open;type:numeric;not null"`
	High      float64   `gorm:"column:high;type:numeric;not null"`
	Low       float64   `gorm:"column:low;type:numeric;not null"`
	Close     float64   `gorm:"column:close;type:numeric;not null"`
	Volume    float64   `gorm:"column:volume;type:numeric;not null"`
}

func (CandleRecord) TableName() string { return "market_candles" }

// OrderRecord mirrors the orders table.
type OrderRecord struct {
	ID             string     `gorm:"column:id;type:uuid;primaryKey"`
	AccountID      string     `gorm:"column:account_id;not null;index:idx_orders_account"`
	MarketID       string     `gorm:"column:market_id;not null"`
	StrategyID     string     `gorm:"column:strategy_id"`
	Side           string     `gorm:"column:side;not null"`
	Type           string     `gorm:"column:type;not null"`
	Quantity       float64    `gorm:"column:quantity;type:numeric;not null"`
	Price          *float64   `gorm:"column:price;type:numeric"`
	FilledQuantity float64    `gorm:"column:filled_quantity;type:numeric;not null"`
	AvgFillPrice   float64    `gorm:"column:avg_fill_price;type:numeric"`
	Status         string     `gorm:"column:status;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null"`
	FilledAt       *time.Time `gorm:"column:filled_at;type:timestamptz"`
}

func (OrderRecord) TableName() string { return "orders" }

// PositionRecord mirrors the positions table. A partial uniqueness rule
// (one open position per account and market) is enforced structurally by
// the ledger; the table stores open and closed rows alike.
type PositionRecord struct {
	ID            string     `gorm:"column:id;type:uuid;primaryKey"`
	AccountID     string     `gorm:"column:account_id;not null;index:idx_positions_account_market"`
	MarketID      string     `gorm:"column:market_id;not null;index:idx_positions_account_market"`
	StrategyID    string     `gorm:"column:strategy_id"`
	Side          string     `gorm:"column:side;not null"`
	Quantity      float64    `gorm:"column:quantity;type:numeric;not null"`
	AvgEntryPrice float64    `gorm:"column:avg_entry_price;type:numeric;not null"`
	RealizedPnL   float64    `gorm:"column:realized_pnl;type:numeric;not null"`
	IsOpen        bool       `gorm:"column:is_open;not null"`
	OpenedAt      time.Time  `gorm:"column:opened_at;type:timestamptz;not null"`
	ClosedAt      *time.Time `gorm:"column:closed_at;type:timestamptz"`
}

func (PositionRecord) TableName() string { return "positions" }

// StrategyStateRecord mirrors the strategy_state table, keyed by
// (account_id, strategy_id).
type StrategyStateRecord struct {
	AccountID         string     `gorm:"column:account_id;primaryKey"`
	StrategyID        string     `gorm:"column:strategy_id;primaryKey"`
	ConsecutiveLosses int        `gorm:"column:consecutive_losses;not null"`
	LastLossAt        *time.Time `gorm:"column:last_loss_at;type:timestamptz"`
	CooldownUntil     *time.Time `gorm:"column:cooldown_until;type:timestamptz"`
	TotalTrades       int        `gorm:"column:total_trades;not null"`
	WinningTrades     int        `gorm:"column:winning_trades;not null"`
	TotalPnL          float64    `gorm:"column:total_pnl;type:numeric;not null"`
}

func (StrategyStateRecord) TableName() string { return "strategy_state" }

// BacktestRecord mirrors the backtests table. The equity curve and trade
// list are stored as JSON arrays; Monte Carlo results are merged into the
// metadata JSON under the monte_carlo key.
type BacktestRecord struct {
	ID             string         `gorm:"column:id;type:uuid;primaryKey"`
	StrategyID     string         `gorm:"column:strategy_id;not null;index:idx_backtests_strategy"`
	Parameters     datatypes.JSON `gorm:"column:parameters;type:jsonb"`
	MarketIDs      datatypes.JSON `gorm:"column:market_ids;type:jsonb"`
	StartDate      time.Time      `gorm:"column:start_date;type:timestamptz;not null"`
	EndDate        time.Time      `gorm:"column:end_date;type:timestamptz;not null"`
	InitialCapital float64        `gorm:"column:initial_capital;type:numeric;not null"`
	FinalCapital   float64        `gorm:"column:final_capital;type:numeric"`
	TotalReturn    float64        `gorm:"column:total_return;type:numeric"`
	SharpeRatio    float64        `gorm:"column:sharpe_ratio;type:numeric"`
	MaxDrawdown    float64        `gorm:"column:max_drawdown;type:numeric"`
	WinRate        float64        `gorm:"column:win_rate;type:numeric"`
	TradeCount     int            `gorm:"column:trade_count"`
	EquityCurve    datatypes.JSON `gorm:"column:equity_curve;type:jsonb"`
	Trades         datatypes.JSON `gorm:"column:trades;type:jsonb"`
	Metadata       datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	Status         string         `gorm:"column:status;not null"`
	ErrorMessage   string         `gorm:"column:error_message"`
	CreatedAt      time.Time      `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

func (BacktestRecord) TableName() string { return "backtests" }

// TradeLogRecord mirrors the append-only trade_log audit table.
type TradeLogRecord struct {
	ID         uint           `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID  string         `gorm:"column:account_id;not null;index:idx_trade_log_account"`
	OrderID    string         `gorm:"column:order_id"`
	PositionID string         `gorm:"column:position_id;not null"`
	Action     string         `gorm:"column:action;not null"`
	Details    datatypes.JSON `gorm:"column:details;type:jsonb"`
	CreatedAt  time.Time      `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
}

func (TradeLogRecord) TableName() string { return "trade_log" }
