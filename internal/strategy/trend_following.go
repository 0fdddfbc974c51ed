package strategy

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/akhenda/polypaper/internal/indicators"
	"github.com/akhenda/polypaper/pkg/types"
)

// TrendFollowingID identifies the trend-following strategy in the registry.
const TrendFollowingID = "trend-following-v1"

// TrendFollowingParams tunes the trend-following strategy.
type TrendFollowingParams struct {
	PositionCapUSD float64 `json:"positionCapUsd"`
	// ADXThreshold is the minimum ADX reading to treat the market as trending.
	ADXThreshold float64 `json:"adxThreshold"`
	// LookbackPeriod is the window for the breakout high.
	LookbackPeriod      int     `json:"lookbackPeriod"`
	TrailingStopPercent float64 `json:"trailingStopPercent"`
}

// DefaultTrendFollowingParams returns the documented defaults.
func DefaultTrendFollowingParams() TrendFollowingParams {
	return TrendFollowingParams{
		PositionCapUSD:      20,
		ADXThreshold:        indicators.ADXStrongTrend,
		LookbackPeriod:      20,
		TrailingStopPercent: 2.0,
	}
}

// TrendFollowing enters long on a breakout above the recent high when ADX
// confirms an uptrend, and exits on a trailing stop or a confirmed trend
// reversal. Only long entries are taken.
type TrendFollowing struct {
	params  TrendFollowingParams
	candles []types.Candle

	highestSinceEntry float64
}

// NewTrendFollowing builds a trend-following strategy from JSON parameters.
func NewTrendFollowing(params json.RawMessage) (*TrendFollowing, error) {
	p := DefaultTrendFollowingParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.PositionCapUSD <= 0 {
		return nil, fmt.Errorf("positionCapUsd must be positive, got %v", p.PositionCapUSD)
	}
	if p.LookbackPeriod < 2 {
		return nil, fmt.Errorf("lookbackPeriod must be at least 2, got %d", p.LookbackPeriod)
	}
	return &TrendFollowing{params: p}, nil
}

func (s *TrendFollowing) Metadata() Metadata {
	return Metadata{
		ID:          TrendFollowingID,
		Name:        "Trend Following",
		Description: "Follows established trends with ADX confirmation and trailing stops",
		Version:     "1.0.0",
	}
}

func (s *TrendFollowing) RequiredHistory() int {
	// Extra candles on top of the breakout window so ADX has warmup.
	return s.params.LookbackPeriod + 2*indicators.DefaultADXPeriod + 1
}

func (s *TrendFollowing) OnBar(candle types.Candle, position *types.Position) (*Signal, error) {
	s.candles = append(s.candles, candle)
	maxHistory := s.RequiredHistory() + 20
	if len(s.candles) > maxHistory {
		s.candles = s.candles[len(s.candles)-maxHistory:]
	}

	if len(s.candles) < s.RequiredHistory() {
		return nil, nil
	}

	adx, err := indicators.CalculateADX(s.candles, indicators.DefaultADXPeriod)
	if err != nil {
		return nil, fmt.Errorf("trend following adx: %w", err)
	}
	trend := adx.Trend(s.params.ADXThreshold)

	if position != nil {
		return s.manageExit(candle, position, adx, trend), nil
	}

	if trend != indicators.TrendUp {
		return nil, nil
	}

	recentHigh := s.recentHigh()
	if candle.Close <= recentHigh {
		return nil, nil
	}

	if candle.Close <= 0 {
		return nil, nil
	}
	s.highestSinceEntry = candle.High
	return &Signal{
		MarketID:   candle.MarketID,
		Side:       types.SideBuy,
		Type:       types.OrderTypeMarket,
		Quantity:   s.params.PositionCapUSD / candle.Close,
		Confidence: math.Min(0.85, adx.ADX/50),
		Reason:     fmt.Sprintf("breakout above %.2f, ADX=%.1f", recentHigh, adx.ADX),
	}, nil
}

func (s *TrendFollowing) manageExit(candle types.Candle, position *types.Position, adx indicators.ADXResult, trend indicators.TrendDirection) *Signal {
	if candle.High > s.highestSinceEntry {
		s.highestSinceEntry = candle.High
	}

	stopPrice := s.highestSinceEntry * (1 - s.params.TrailingStopPercent/100)
	if candle.Close <= stopPrice {
		s.highestSinceEntry = 0
		return &Signal{
			MarketID:   candle.MarketID,
			Side:       types.SideSell,
			Type:       types.OrderTypeMarket,
			Quantity:   position.Quantity,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("trailing stop hit at %.2f", stopPrice),
		}
	}

	if trend == indicators.TrendDown {
		s.highestSinceEntry = 0
		return &Signal{
			MarketID:   candle.MarketID,
			Side:       types.SideSell,
			Type:       types.OrderTypeMarket,
			Quantity:   position.Quantity,
			Confidence: 0.7,
			Reason:     fmt.Sprintf("trend reversal: ADX=%.1f", adx.ADX),
		}
	}
	return nil
}

// recentHigh is the highest high over the breakout window, excluding the
// current bar.
func (s *TrendFollowing) recentHigh() float64 {
	window := s.candles[len(s.candles)-s.params.LookbackPeriod-1 : len(s.candles)-1]
	high := window[0].High
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
	}
	return high
}
