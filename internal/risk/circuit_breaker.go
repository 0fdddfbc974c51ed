// Package risk implements the per-(account, strategy) circuit breaker. A run
// of consecutive losing trades trips the breaker into COOLDOWN, during which
// new entries are denied; exits are never blocked.
package risk

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akhenda/polypaper/internal/monitoring"
	"github.com/akhenda/polypaper/pkg/types"
)

// State of one breaker.
type State string

const (
	StateActive   State = "ACTIVE"
	StateCooldown State = "COOLDOWN"
)

const (
	// DefaultMaxConsecutiveLosses trips the breaker on the third straight loss.
	DefaultMaxConsecutiveLosses = 3

	// DefaultCooldown is how long entries stay barred after a trip.
	DefaultCooldown = 24 * time.Hour
)

// Config tunes the breaker. Zero values fall back to the defaults.
type Config struct {
	MaxConsecutiveLosses int
	Cooldown             time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConsecutiveLosses <= 0 {
		c.MaxConsecutiveLosses = DefaultMaxConsecutiveLosses
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

type key struct {
	accountID  string
	strategyID string
}

// Manager tracks breaker state for every (account, strategy) pair it has
// seen. Pairs start ACTIVE with zeroed counters.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	states map[key]*types.StrategyState
	logger *logrus.Entry
}

// NewManager creates a breaker manager with the given config.
func NewManager(cfg Config, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		cfg:    cfg.withDefaults(),
		states: make(map[key]*types.StrategyState),
		logger: logger.WithField("component", "circuit_breaker"),
	}
}

func (m *Manager) state(accountID, strategyID string) *types.StrategyState {
	k := key{accountID, strategyID}
	s, ok := m.states[k]
	if !ok {
		s = &types.StrategyState{AccountID: accountID, StrategyID: strategyID}
		m.states[k] = s
	}
	return s
}

// CanEnter reports whether the pair may open a new position at the given
// time. Cooldown expiry is evaluated lazily here; an expired cooldown is
// cleared and the pair returns to ACTIVE with its loss streak reset.
func (m *Manager) CanEnter(accountID, strategyID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(accountID, strategyID)
	if s.CooldownUntil == nil {
		return true
	}
	if now.Before(*s.CooldownUntil) {
		return false
	}

	m.logger.WithFields(logrus.Fields{
		"account":  accountID,
		"strategy": strategyID,
	}).Info("Cooldown expired, strategy reactivated")
	s.CooldownUntil = nil
	s.ConsecutiveLosses = 0
	return true
}

// RecordClose feeds one closed trade's realized PnL into the breaker. A
// winning or break-even trade resets the loss streak; a loss extends it and
// trips the breaker when the streak reaches the configured maximum.
func (m *Manager) RecordClose(accountID, strategyID string, pnl float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(accountID, strategyID)
	s.TotalTrades++
	s.TotalPnL += pnl

	if pnl >= 0 {
		if pnl > 0 {
			s.WinningTrades++
		}
		s.ConsecutiveLosses = 0
		return
	}

	lossAt := now
	s.ConsecutiveLosses++
	s.LastLossAt = &lossAt

	if s.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses && s.CooldownUntil == nil {
		until := now.Add(m.cfg.Cooldown)
		s.CooldownUntil = &until
		monitoring.RecordCircuitBreakerTrip(strategyID)
		m.logger.WithFields(logrus.Fields{
			"account":            accountID,
			"strategy":           strategyID,
			"consecutive_losses": s.ConsecutiveLosses,
			"cooldown_until":     until,
		}).Warn("Circuit breaker tripped")
	}
}

// StateOf returns the current breaker state for a pair, evaluated at now.
func (m *Manager) StateOf(accountID, strategyID string, now time.Time) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(accountID, strategyID)
	if s.InCooldown(now) {
		return StateCooldown
	}
	return StateActive
}

// Snapshot returns a copy of the bookkeeping for a pair, for persistence
// and reporting.
func (m *Manager) Snapshot(accountID, strategyID string) types.StrategyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state(accountID, strategyID)
}

// Restore seeds a pair's state, typically loaded from storage at startup.
func (m *Manager) Restore(s types.StrategyState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := s
	m.states[key{s.AccountID, s.StrategyID}] = &copied
}
