package strategy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhenda/polypaper/pkg/types"
)

var barTime = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func candleAt(i int, close float64) types.Candle {
	return types.Candle{
		MarketID:  "btc-usd",
		Interval:  "1h",
		Timestamp: barTime.Add(time.Duration(i) * time.Hour),
		Open:      close,
		High:      close * 1.001,
		Low:       close * 0.999,
		Close:     close,
		Volume:    100,
	}
}

func feedCloses(t *testing.T, s Strategy, closes []float64) *Signal {
	t.Helper()
	var last *Signal
	for i, c := range closes {
		sig, err := s.OnBar(candleAt(i, c), nil)
		require.NoError(t, err)
		last = sig
	}
	return last
}

func TestRegistry_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, []string{LateEntryID, MeanReversionID, TrendFollowingID}, List())

	s, err := New(LateEntryID, nil)
	require.NoError(t, err)
	assert.Equal(t, LateEntryID, s.Metadata().ID)

	_, err = New("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestNewLateEntry_ParamDefaultsAndOverrides(t *testing.T) {
	s, err := NewLateEntry(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLateEntryParams(), s.params)

	s, err = NewLateEntry(json.RawMessage(`{"positionCapUsd": 100, "takeProfitPercent": 8}`))
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.params.PositionCapUSD)
	assert.Equal(t, 8.0, s.params.TakeProfitPercent)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.015, s.params.VolatilityThreshold)

	_, err = NewLateEntry(json.RawMessage(`{"positionCapUsd": -1}`))
	assert.Error(t, err)

	_, err = NewLateEntry(json.RawMessage(`{bad json`))
	assert.Error(t, err)
}

func TestLateEntry_QuietMarketNeverSignals(t *testing.T) {
	s, err := NewLateEntry(nil)
	require.NoError(t, err)

	closes := make([]float64, 30)
	for i := range closes {
		// Drift well below the volatility threshold.
		closes[i] = 100 + float64(i)*0.01
	}
	assert.Nil(t, feedCloses(t, s, closes))
}

func TestLateEntry_EntersOnVolatileUptrend(t *testing.T) {
	s, err := NewLateEntry(nil)
	require.NoError(t, err)

	closes := []float64{100, 103, 100, 104, 101, 105, 102, 106, 103, 108, 112}
	sig := feedCloses(t, s, closes)

	require.NotNil(t, sig)
	assert.Equal(t, types.SideBuy, sig.Side)
	assert.Equal(t, types.OrderTypeMarket, sig.Type)
	// Cap of $20 at a 112 close.
	assert.InDelta(t, 20.0/112.0, sig.Quantity, 1e-9)
	assert.Contains(t, sig.Reason, "volatility")
}

func TestLateEntry_TakeProfitAndStopLoss(t *testing.T) {
	s, err := NewLateEntry(nil)
	require.NoError(t, err)

	pos := &types.Position{
		MarketID:      "btc-usd",
		Side:          types.PositionLong,
		Quantity:      0.2,
		AvgEntryPrice: 100,
		IsOpen:        true,
	}

	sig, err := s.OnBar(candleAt(0, 106), pos)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, types.SideSell, sig.Side)
	assert.Equal(t, 0.2, sig.Quantity)
	assert.Contains(t, sig.Reason, "take profit")

	sig, err = s.OnBar(candleAt(1, 96), pos)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Contains(t, sig.Reason, "stop loss")

	// Inside the band: hold.
	sig, err = s.OnBar(candleAt(2, 101), pos)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestTrendFollowing_EntersOnBreakout(t *testing.T) {
	s, err := NewTrendFollowing(nil)
	require.NoError(t, err)

	var sig *Signal
	for i := 0; i < s.RequiredHistory()+10; i++ {
		sig, err = s.OnBar(candleAt(i, 100+float64(i)*2), nil)
		require.NoError(t, err)
		if sig != nil {
			break
		}
	}

	require.NotNil(t, sig)
	assert.Equal(t, types.SideBuy, sig.Side)
	assert.Contains(t, sig.Reason, "breakout")
	assert.Greater(t, sig.Quantity, 0.0)
}

func TestTrendFollowing_TrailingStopExit(t *testing.T) {
	s, err := NewTrendFollowing(nil)
	require.NoError(t, err)

	// Warm up on a steady uptrend until the entry fires.
	i := 0
	price := 100.0
	var entry *Signal
	for ; i < s.RequiredHistory()+20; i++ {
		price += 2
		sig, err := s.OnBar(candleAt(i, price), nil)
		require.NoError(t, err)
		if sig != nil {
			entry = sig
			break
		}
	}
	require.NotNil(t, entry)

	pos := &types.Position{
		MarketID:      "btc-usd",
		Side:          types.PositionLong,
		Quantity:      entry.Quantity,
		AvgEntryPrice: price,
		IsOpen:        true,
	}

	// A drop beyond the 2% trailing stop forces the exit.
	var exit *Signal
	for j := 0; j < 5 && exit == nil; j++ {
		i++
		price *= 0.97
		exit, err = s.OnBar(candleAt(i, price), pos)
		require.NoError(t, err)
	}

	require.NotNil(t, exit)
	assert.Equal(t, types.SideSell, exit.Side)
	assert.Equal(t, entry.Quantity, exit.Quantity)
}

func TestTrendFollowing_NoEntryWithoutHistory(t *testing.T) {
	s, err := NewTrendFollowing(nil)
	require.NoError(t, err)

	for i := 0; i < s.RequiredHistory()-1; i++ {
		sig, err := s.OnBar(candleAt(i, 100+float64(i)*2), nil)
		require.NoError(t, err)
		assert.Nil(t, sig)
	}
}

func TestMeanReversion_BuysNearLowerBand(t *testing.T) {
	s, err := NewMeanReversion(nil)
	require.NoError(t, err)

	closes := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			closes = append(closes, 90)
		} else {
			closes = append(closes, 110)
		}
	}
	closes = append(closes, 80)

	sig := feedCloses(t, s, closes)
	require.NotNil(t, sig)
	assert.Equal(t, types.SideBuy, sig.Side)
	assert.Contains(t, sig.Reason, "mean reversion buy")
}

func TestMeanReversion_SqueezeBlocksEntry(t *testing.T) {
	s, err := NewMeanReversion(nil)
	require.NoError(t, err)

	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	assert.Nil(t, feedCloses(t, s, closes))
}

func TestMeanReversion_ExitsAtMiddleBand(t *testing.T) {
	s, err := NewMeanReversion(nil)
	require.NoError(t, err)

	pos := &types.Position{
		MarketID:      "btc-usd",
		Side:          types.PositionLong,
		Quantity:      0.25,
		AvgEntryPrice: 100,
		IsOpen:        true,
	}

	var sig *Signal
	for i := 0; i < 25; i++ {
		sig, err = s.OnBar(candleAt(i, 100), pos)
		require.NoError(t, err)
	}

	require.NotNil(t, sig)
	assert.Equal(t, types.SideSell, sig.Side)
	assert.Contains(t, sig.Reason, "reversion to mean")
}
