package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhenda/polypaper/pkg/types"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestAccount(t *testing.T, balance float64) *Account {
	t.Helper()
	return New().CreateAccount("acct-1", balance)
}

func TestApplyFill_BuyOpensPosition(t *testing.T) {
	acct := newTestAccount(t, 10000)

	// 0.1 BTC at a slippage-adjusted fill of 95047.50 with a 9.50 fee.
	fillPrice := 95000 * 1.0005
	fee := fillPrice * 0.1 * 0.001
	effect, err := acct.ApplyFill("btc-usd", "late-entry-v1", "ord-1", types.SideBuy, 0.1, fillPrice, fee, testTime)
	require.NoError(t, err)

	assert.True(t, effect.OpenedPosition)
	assert.Equal(t, types.PositionLong, effect.Position.Side)
	assert.Equal(t, 0.1, effect.Position.Quantity)
	assert.InDelta(t, fillPrice, effect.Position.AvgEntryPrice, 1e-9)
	assert.InDelta(t, 10000-(0.1*fillPrice+fee), acct.Balance(), 1e-9)

	pos, ok := acct.Position("btc-usd")
	require.True(t, ok)
	assert.True(t, pos.IsOpen)
	assert.Equal(t, "acct-1", pos.AccountID)
	assert.NotEmpty(t, pos.ID)
}

func TestApplyFill_BuyInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	acct := newTestAccount(t, 100)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 1, 95000, 95, testTime)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	assert.Equal(t, 100.0, acct.Balance())
	assert.Empty(t, acct.OpenPositions())
	assert.Empty(t, acct.TradeLog())
}

func TestApplyFill_BuyIntoExistingAveragesEntry(t *testing.T) {
	acct := newTestAccount(t, 100000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 1, 100, 0, testTime)
	require.NoError(t, err)
	effect, err := acct.ApplyFill("btc-usd", "s", "ord-2", types.SideBuy, 1, 110, 0, testTime)
	require.NoError(t, err)

	assert.False(t, effect.OpenedPosition)
	assert.Equal(t, 2.0, effect.Position.Quantity)
	assert.InDelta(t, 105.0, effect.Position.AvgEntryPrice, 1e-9)

	// Average always sits between the old average and the new fill.
	assert.Greater(t, effect.Position.AvgEntryPrice, 100.0)
	assert.Less(t, effect.Position.AvgEntryPrice, 110.0)
}

func TestApplyFill_OnePositionPerMarket(t *testing.T) {
	acct := newTestAccount(t, 100000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 1, 100, 0, testTime)
	require.NoError(t, err)
	_, err = acct.ApplyFill("btc-usd", "s", "ord-2", types.SideBuy, 1, 120, 0, testTime)
	require.NoError(t, err)
	_, err = acct.ApplyFill("eth-usd", "s", "ord-3", types.SideBuy, 1, 50, 0, testTime)
	require.NoError(t, err)

	assert.Len(t, acct.OpenPositions(), 2)
}

func TestApplyFill_SellWithoutPosition(t *testing.T) {
	acct := newTestAccount(t, 10000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideSell, 1, 100, 0, testTime)
	assert.ErrorIs(t, err, ErrNoOpenPosition)
	assert.Equal(t, 10000.0, acct.Balance())
}

func TestApplyFill_SellFullClose(t *testing.T) {
	acct := newTestAccount(t, 10000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 1, 100, 1, testTime)
	require.NoError(t, err)

	closedAt := testTime.Add(time.Hour)
	effect, err := acct.ApplyFill("btc-usd", "s", "ord-2", types.SideSell, 1, 120, 1.2, closedAt)
	require.NoError(t, err)

	assert.True(t, effect.ClosedPosition)
	assert.Equal(t, 1.0, effect.ClosedQuantity)
	assert.InDelta(t, 20.0, effect.RealizedPnL, 1e-9)
	assert.False(t, effect.Position.IsOpen)
	require.NotNil(t, effect.Position.ClosedAt)
	assert.Equal(t, closedAt, *effect.Position.ClosedAt)

	_, ok := acct.Position("btc-usd")
	assert.False(t, ok)
	assert.Len(t, acct.ClosedPositions(), 1)

	// 10000 - (100 + 1) + (120 - 1.2)
	assert.InDelta(t, 10017.8, acct.Balance(), 1e-9)
}

func TestApplyFill_PartialCloseReducesExactly(t *testing.T) {
	acct := newTestAccount(t, 10000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 2, 100, 0, testTime)
	require.NoError(t, err)

	effect, err := acct.ApplyFill("btc-usd", "s", "ord-2", types.SideSell, 0.5, 110, 0, testTime)
	require.NoError(t, err)

	assert.False(t, effect.ClosedPosition)
	assert.Equal(t, 0.5, effect.ClosedQuantity)
	assert.InDelta(t, 5.0, effect.RealizedPnL, 1e-9)

	pos, ok := acct.Position("btc-usd")
	require.True(t, ok)
	assert.InDelta(t, 1.5, pos.Quantity, 1e-9)
	// Partial close never moves the entry price.
	assert.InDelta(t, 100.0, pos.AvgEntryPrice, 1e-9)
	assert.InDelta(t, 5.0, pos.RealizedPnL, 1e-9)
}

func TestApplyFill_SellOversizedClampsToPosition(t *testing.T) {
	acct := newTestAccount(t, 10000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 1, 100, 0, testTime)
	require.NoError(t, err)

	effect, err := acct.ApplyFill("btc-usd", "s", "ord-2", types.SideSell, 5, 110, 0, testTime)
	require.NoError(t, err)

	assert.True(t, effect.ClosedPosition)
	assert.Equal(t, 1.0, effect.ClosedQuantity)
	assert.InDelta(t, 10.0, effect.RealizedPnL, 1e-9)
}

func TestEquity_CashPlusMarketValue(t *testing.T) {
	acct := newTestAccount(t, 10000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 1, 100, 0, testTime)
	require.NoError(t, err)

	// Opening a fee-free position moves cash into the position, not out of
	// the account: equity at the entry price is unchanged.
	equity, err := acct.Equity(map[string]float64{"btc-usd": 100})
	require.NoError(t, err)
	assert.InDelta(t, 10000, equity, 1e-9)

	equity, err = acct.Equity(map[string]float64{"btc-usd": 130})
	require.NoError(t, err)
	assert.InDelta(t, 9900+130, equity, 1e-9)

	// Flat account: equity equals cash.
	_, err = acct.ApplyFill("btc-usd", "s", "ord-2", types.SideSell, 1, 130, 0, testTime)
	require.NoError(t, err)
	equity, err = acct.Equity(nil)
	require.NoError(t, err)
	assert.InDelta(t, acct.Balance(), equity, 1e-9)
}

func TestEquity_MissingPrice(t *testing.T) {
	acct := newTestAccount(t, 10000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 1, 100, 0, testTime)
	require.NoError(t, err)

	_, err = acct.Equity(map[string]float64{"eth-usd": 50})
	assert.ErrorIs(t, err, ErrMissingPrice)
}

func TestTradeLog_WrittenOnEveryClose(t *testing.T) {
	acct := newTestAccount(t, 10000)

	_, err := acct.ApplyFill("btc-usd", "s", "ord-1", types.SideBuy, 2, 100, 0, testTime)
	require.NoError(t, err)
	_, err = acct.ApplyFill("btc-usd", "s", "ord-2", types.SideSell, 0.5, 110, 0, testTime)
	require.NoError(t, err)
	_, err = acct.ApplyFill("btc-usd", "s", "ord-3", types.SideSell, 1.5, 120, 0, testTime)
	require.NoError(t, err)

	log := acct.TradeLog()
	require.Len(t, log, 2)
	assert.Equal(t, "REDUCE", log[0].Action)
	assert.Equal(t, "CLOSE", log[1].Action)
	assert.Equal(t, "ord-3", log[1].OrderID)
	assert.Equal(t, "btc-usd", log[1].Details["market_id"])
}

func TestLedger_AccountLookup(t *testing.T) {
	l := New()
	created := l.CreateAccount("a", 500)

	got, err := l.Account("a")
	require.NoError(t, err)
	assert.Same(t, created, got)

	_, err = l.Account("missing")
	assert.ErrorIs(t, err, ErrUnknownAccount)

	// Re-creating returns the existing account unchanged.
	again := l.CreateAccount("a", 9999)
	assert.Same(t, created, again)
	assert.Equal(t, 500.0, again.Balance())
}
