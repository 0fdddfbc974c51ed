package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSnapshot_NoCandles(t *testing.T) {
	_, err := BuildSnapshot("btc-usd", nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBuildSnapshot_ShortHistoryLeavesIndicatorsUnset(t *testing.T) {
	snap, err := BuildSnapshot("btc-usd", generateCandles(5, 100, 0.02), DefaultConfig())
	require.NoError(t, err)

	assert.False(t, snap.HasADX)
	assert.False(t, snap.HasBands)
	assert.False(t, snap.HasRSI)
	assert.Equal(t, TrendFlat, snap.Trend)
	assert.Empty(t, snap.Warnings)
}

func TestBuildSnapshot_FullHistory(t *testing.T) {
	snap, err := BuildSnapshot("btc-usd", generateTrendingCandles(60), DefaultConfig())
	require.NoError(t, err)

	assert.True(t, snap.HasADX)
	assert.True(t, snap.HasBands)
	assert.True(t, snap.HasRSI)
	assert.Equal(t, TrendUp, snap.Trend)
	assert.Equal(t, "btc-usd", snap.MarketID)
	assert.Empty(t, snap.Warnings)
}

func TestSnapshot_SanityCheckFlagsOutOfRangeRSI(t *testing.T) {
	snap := Snapshot{MarketID: "btc-usd", HasRSI: true, RSI: 120}
	warnings := snap.sanityCheck()

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "rsi 120.00")
}

func TestSnapshot_SanityCheckFlagsClampedADX(t *testing.T) {
	snap := Snapshot{MarketID: "btc-usd", HasADX: true, ADX: ADXResult{ADX: 100, Clamped: true}}
	warnings := snap.sanityCheck()

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "adx")
}
