package strategy

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/akhenda/polypaper/pkg/types"
)

// LateEntryID identifies the late-entry strategy in the registry.
const LateEntryID = "late-entry-v1"

const lateEntryLookback = 10

// LateEntryParams tunes the late-entry strategy.
type LateEntryParams struct {
	// PositionCapUSD bounds the notional of any single entry.
	PositionCapUSD float64 `json:"positionCapUsd"`
	// VolatilityThreshold is the minimum stddev of bar returns to enter.
	VolatilityThreshold float64 `json:"volatilityThreshold"`
	TakeProfitPercent   float64 `json:"takeProfitPercent"`
	StopLossPercent     float64 `json:"stopLossPercent"`
}

// DefaultLateEntryParams returns the documented defaults.
func DefaultLateEntryParams() LateEntryParams {
	return LateEntryParams{
		PositionCapUSD:      20,
		VolatilityThreshold: 0.015,
		TakeProfitPercent:   5.0,
		StopLossPercent:     3.0,
	}
}

// LateEntry enters only when recent volatility is elevated and price is
// above its short-term average, then exits on a fixed take-profit or
// stop-loss band around the entry.
type LateEntry struct {
	params LateEntryParams
	closes []float64
}

// NewLateEntry builds a late-entry strategy from JSON parameters.
func NewLateEntry(params json.RawMessage) (*LateEntry, error) {
	p := DefaultLateEntryParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.PositionCapUSD <= 0 {
		return nil, fmt.Errorf("positionCapUsd must be positive, got %v", p.PositionCapUSD)
	}
	return &LateEntry{params: p}, nil
}

func (s *LateEntry) Metadata() Metadata {
	return Metadata{
		ID:          LateEntryID,
		Name:        "Late Entry",
		Description: "Enters during favorable volatility conditions with a position cap",
		Version:     "1.0.0",
	}
}

func (s *LateEntry) RequiredHistory() int {
	return lateEntryLookback + 1
}

func (s *LateEntry) OnBar(candle types.Candle, position *types.Position) (*Signal, error) {
	s.closes = append(s.closes, candle.Close)
	if len(s.closes) > lateEntryLookback+5 {
		s.closes = s.closes[len(s.closes)-(lateEntryLookback+5):]
	}

	if position != nil {
		return s.manageExit(candle, position), nil
	}

	vol := s.volatility()
	if vol < s.params.VolatilityThreshold {
		return nil, nil
	}

	// Momentum gate: close above its short-term average.
	if len(s.closes) < 5 {
		return nil, nil
	}
	var sum float64
	for _, c := range s.closes[len(s.closes)-5:] {
		sum += c
	}
	if candle.Close <= sum/5 {
		return nil, nil
	}

	if candle.Close <= 0 {
		return nil, nil
	}
	return &Signal{
		MarketID:   candle.MarketID,
		Side:       types.SideBuy,
		Type:       types.OrderTypeMarket,
		Quantity:   s.params.PositionCapUSD / candle.Close,
		Confidence: math.Min(0.8, vol*10),
		Reason:     fmt.Sprintf("volatility %.2f%% above threshold %.1f%%, trending up", vol*100, s.params.VolatilityThreshold*100),
	}, nil
}

func (s *LateEntry) manageExit(candle types.Candle, position *types.Position) *Signal {
	pnlPercent := (candle.Close - position.AvgEntryPrice) / position.AvgEntryPrice * 100

	if pnlPercent >= s.params.TakeProfitPercent {
		return &Signal{
			MarketID:   candle.MarketID,
			Side:       types.SideSell,
			Type:       types.OrderTypeMarket,
			Quantity:   position.Quantity,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("take profit hit: %.1f%% >= %.1f%%", pnlPercent, s.params.TakeProfitPercent),
		}
	}
	if pnlPercent <= -s.params.StopLossPercent {
		return &Signal{
			MarketID:   candle.MarketID,
			Side:       types.SideSell,
			Type:       types.OrderTypeMarket,
			Quantity:   position.Quantity,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("stop loss hit: %.1f%% <= -%.1f%%", pnlPercent, s.params.StopLossPercent),
		}
	}
	return nil
}

// volatility is the population stddev of bar-to-bar returns over the
// lookback window.
func (s *LateEntry) volatility() float64 {
	if len(s.closes) < lateEntryLookback {
		return 0
	}

	recent := s.closes[len(s.closes)-lateEntryLookback:]
	returns := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		returns = append(returns, (recent[i]-recent[i-1])/recent[i-1])
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}
