// Package ledger owns the position lifecycle and PnL accounting for paper
// accounts. Every fill is applied atomically: balance, position, and audit
// log commit together or not at all.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akhenda/polypaper/pkg/types"
)

var (
	// ErrInsufficientBalance rejects a BUY whose notional plus fee exceeds
	// the available cash balance. Checked before any mutation.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoOpenPosition rejects a SELL on a market with no open position.
	ErrNoOpenPosition = errors.New("no open position")

	// ErrUnknownAccount is returned for operations on an account id the
	// ledger has never seen.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrMissingPrice is returned when an open position cannot be valued
	// because no current price was supplied for its market.
	ErrMissingPrice = errors.New("missing price for open position")
)

// TradeLogEntry is an append-only audit record, written on every position
// close (full or partial).
type TradeLogEntry struct {
	AccountID  string         `json:"account_id"`
	OrderID    string         `json:"order_id,omitempty"`
	PositionID string         `json:"position_id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	At         time.Time      `json:"at"`
}

// FillEffect describes what a single applied fill did to the account.
type FillEffect struct {
	Position       types.Position
	OpenedPosition bool
	ClosedPosition bool
	ClosedQuantity float64
	RealizedPnL    float64
	CashDelta      float64
}

// Account is one paper account. All mutations on the same account are
// serialized by its mutex; accounts are fully independent of each other.
type Account struct {
	mu sync.Mutex

	ID             string
	InitialBalance float64

	balance   float64
	positions map[string]*types.Position // open positions keyed by market id
	closed    []*types.Position
	tradeLog  []TradeLogEntry
}

// Ledger tracks all accounts known to the simulation.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

// CreateAccount registers an account with a starting cash balance. Creating
// an existing id returns the existing account unchanged.
func (l *Ledger) CreateAccount(id string, balance float64) *Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acct, ok := l.accounts[id]; ok {
		return acct
	}
	acct := &Account{
		ID:             id,
		InitialBalance: balance,
		balance:        balance,
		positions:      make(map[string]*types.Position),
	}
	l.accounts[id] = acct
	return acct
}

// Account looks up an account by id.
func (l *Ledger) Account(id string) (*Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", id, ErrUnknownAccount)
	}
	return acct, nil
}

// Balance returns the current cash balance.
func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// ApplyFill applies one executed fill to the account. The fill price is
// assumed to already include slippage; fee is deducted from cash on top of
// the notional. Validation happens before any state changes, so a rejected
// fill leaves the account untouched.
func (a *Account) ApplyFill(marketID, strategyID, orderID string, side types.OrderSide, quantity, fillPrice, fee float64, at time.Time) (FillEffect, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch side {
	case types.SideBuy:
		return a.applyBuy(marketID, strategyID, orderID, quantity, fillPrice, fee, at)
	case types.SideSell:
		return a.applySell(marketID, orderID, quantity, fillPrice, fee, at)
	default:
		return FillEffect{}, fmt.Errorf("unsupported order side %q", side)
	}
}

func (a *Account) applyBuy(marketID, strategyID, orderID string, quantity, fillPrice, fee float64, at time.Time) (FillEffect, error) {
	cost := quantity*fillPrice + fee
	if cost > a.balance {
		return FillEffect{}, fmt.Errorf("need %.2f, have %.2f: %w", cost, a.balance, ErrInsufficientBalance)
	}

	pos, ok := a.positions[marketID]
	opened := false
	if !ok {
		pos = &types.Position{
			ID:            uuid.NewString(),
			AccountID:     a.ID,
			MarketID:      marketID,
			StrategyID:    strategyID,
			Side:          types.PositionLong,
			Quantity:      quantity,
			AvgEntryPrice: fillPrice,
			IsOpen:        true,
			OpenedAt:      at,
		}
		a.positions[marketID] = pos
		opened = true
	} else {
		// Size-weighted average keeps the entry between the old average and
		// the new fill price.
		total := pos.Quantity + quantity
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + fillPrice*quantity) / total
		pos.Quantity = total
	}

	a.balance -= cost
	return FillEffect{
		Position:       *pos,
		OpenedPosition: opened,
		CashDelta:      -cost,
	}, nil
}

func (a *Account) applySell(marketID, orderID string, quantity, fillPrice, fee float64, at time.Time) (FillEffect, error) {
	pos, ok := a.positions[marketID]
	if !ok {
		return FillEffect{}, fmt.Errorf("market %q: %w", marketID, ErrNoOpenPosition)
	}

	soldQty := quantity
	if soldQty > pos.Quantity {
		soldQty = pos.Quantity
	}

	var realized float64
	if pos.Side.IsLongFamily() {
		realized = (fillPrice - pos.AvgEntryPrice) * soldQty
	} else {
		realized = (pos.AvgEntryPrice - fillPrice) * soldQty
	}
	proceeds := soldQty*fillPrice - fee

	pos.RealizedPnL += realized
	a.balance += proceeds

	effect := FillEffect{
		ClosedQuantity: soldQty,
		RealizedPnL:    realized,
		CashDelta:      proceeds,
	}

	if quantity >= pos.Quantity {
		closedAt := at
		pos.Quantity = 0
		pos.IsOpen = false
		pos.ClosedAt = &closedAt
		delete(a.positions, marketID)
		a.closed = append(a.closed, pos)
		effect.ClosedPosition = true
		a.appendTradeLog(orderID, pos, "CLOSE", soldQty, fillPrice, realized, at)
	} else {
		pos.Quantity -= soldQty
		a.appendTradeLog(orderID, pos, "REDUCE", soldQty, fillPrice, realized, at)
	}

	effect.Position = *pos
	return effect, nil
}

func (a *Account) appendTradeLog(orderID string, pos *types.Position, action string, quantity, fillPrice, realized float64, at time.Time) {
	a.tradeLog = append(a.tradeLog, TradeLogEntry{
		AccountID:  a.ID,
		OrderID:    orderID,
		PositionID: pos.ID,
		Action:     action,
		Details: map[string]any{
			"market_id":       pos.MarketID,
			"quantity":        quantity,
			"fill_price":      fillPrice,
			"realized_pnl":    realized,
			"avg_entry_price": pos.AvgEntryPrice,
		},
		At: at,
	})
}

// Position returns the open position on a market, if any.
func (a *Account) Position(marketID string) (types.Position, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.positions[marketID]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of all open positions.
func (a *Account) OpenPositions() []types.Position {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]types.Position, 0, len(a.positions))
	for _, pos := range a.positions {
		out = append(out, *pos)
	}
	return out
}

// Equity values the account as cash plus the market value of all open
// positions, priced from the supplied per-market prices. Cash already paid
// the entry cost, so each position contributes its cost basis plus
// unrealized PnL; opening a position leaves equity unchanged. A missing
// price for any open position fails the whole valuation.
func (a *Account) Equity(prices map[string]float64) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	equity := a.balance
	for marketID, pos := range a.positions {
		price, ok := prices[marketID]
		if !ok || price <= 0 {
			return 0, fmt.Errorf("market %q: %w", marketID, ErrMissingPrice)
		}
		equity += pos.Quantity*pos.AvgEntryPrice + pos.UnrealizedPnL(price)
	}
	return equity, nil
}

// TradeLog returns a copy of the audit log.
func (a *Account) TradeLog() []TradeLogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]TradeLogEntry, len(a.tradeLog))
	copy(out, a.tradeLog)
	return out
}

// ClosedPositions returns copies of all fully closed positions.
func (a *Account) ClosedPositions() []types.Position {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]types.Position, 0, len(a.closed))
	for _, pos := range a.closed {
		out = append(out, *pos)
	}
	return out
}
