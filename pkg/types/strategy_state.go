package types

import "time"

// StrategyState is the per (account, strategy) risk bookkeeping mutated by
// the risk state machine after each closing trade.
type StrategyState struct {
	AccountID         string     `json:"account_id"`
	StrategyID        string     `json:"strategy_id"`
	ConsecutiveLosses int        `json:"consecutive_losses"`
	LastLossAt        *time.Time `json:"last_loss_at,omitempty"`
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty"`
	TotalTrades       int        `json:"total_trades"`
	WinningTrades     int        `json:"winning_trades"`
	TotalPnL          float64    `json:"total_pnl"`
}

// InCooldown reports whether new entries are barred at the given time.
// Cooldown expiry is evaluated lazily; there is no timer.
func (s *StrategyState) InCooldown(now time.Time) bool {
	return s.CooldownUntil != nil && now.Before(*s.CooldownUntil)
}

// WinRate returns winning trades as a percentage of total trades.
func (s *StrategyState) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades) * 100
}
