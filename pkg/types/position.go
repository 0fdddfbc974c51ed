package types

import "time"

// PositionSide is the exposure direction of a position. Crypto markets use
// LONG/SHORT; prediction markets use YES/NO, which behave like LONG/SHORT
// for PnL purposes.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionYes   PositionSide = "YES"
	PositionNo    PositionSide = "NO"
)

// IsLongFamily reports whether the side profits when price rises.
func (s PositionSide) IsLongFamily() bool {
	return s == PositionLong || s == PositionYes
}

// Position is an account's exposure on one market. At most one open
// position exists per (account_id, market_id).
type Position struct {
	ID            string       `json:"id"`
	AccountID     string       `json:"account_id"`
	MarketID      string       `json:"market_id"`
	StrategyID    string       `json:"strategy_id,omitempty"`
	Side          PositionSide `json:"side"`
	Quantity      float64      `json:"quantity"`
	AvgEntryPrice float64      `json:"avg_entry_price"`
	RealizedPnL   float64      `json:"realized_pnl"`
	IsOpen        bool         `json:"is_open"`
	OpenedAt      time.Time    `json:"opened_at"`
	ClosedAt      *time.Time   `json:"closed_at,omitempty"`
}

// UnrealizedPnL values the position at the given price. LONG/YES gain when
// price rises, SHORT/NO gain when it falls.
func (p *Position) UnrealizedPnL(currentPrice float64) float64 {
	if !p.IsOpen || p.Quantity == 0 {
		return 0
	}
	if p.Side.IsLongFamily() {
		return (currentPrice - p.AvgEntryPrice) * p.Quantity
	}
	return (p.AvgEntryPrice - currentPrice) * p.Quantity
}
