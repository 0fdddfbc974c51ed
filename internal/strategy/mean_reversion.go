package strategy

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/akhenda/polypaper/internal/indicators"
	"github.com/akhenda/polypaper/pkg/types"
)

// MeanReversionID identifies the mean-reversion strategy in the registry.
const MeanReversionID = "mean-reversion-v1"

// MeanReversionParams tunes the mean-reversion strategy.
type MeanReversionParams struct {
	PositionCapUSD float64 `json:"positionCapUsd"`
	BBPeriod       int     `json:"bbPeriod"`
	BBStdDev       float64 `json:"bbStdDev"`
	// MinBandWidth is the minimum band width percent to trade; narrower
	// markets are treated as chop and skipped.
	MinBandWidth      float64 `json:"minBandWidth"`
	TakeProfitPercent float64 `json:"takeProfitPercent"`
	StopLossPercent   float64 `json:"stopLossPercent"`
}

// DefaultMeanReversionParams returns the documented defaults.
func DefaultMeanReversionParams() MeanReversionParams {
	return MeanReversionParams{
		PositionCapUSD:    20,
		BBPeriod:          indicators.DefaultBollingerPeriod,
		BBStdDev:          indicators.DefaultBollingerStdDev,
		MinBandWidth:      5.0,
		TakeProfitPercent: 2.0,
		StopLossPercent:   2.0,
	}
}

// MeanReversion buys near the lower Bollinger band when the bands are wide
// enough, targeting reversion to the middle band; exits on the target, a
// fixed take-profit, or a stop-loss. Short entries are not taken.
type MeanReversion struct {
	params MeanReversionParams
	closes []float64
}

// NewMeanReversion builds a mean-reversion strategy from JSON parameters.
func NewMeanReversion(params json.RawMessage) (*MeanReversion, error) {
	p := DefaultMeanReversionParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.PositionCapUSD <= 0 {
		return nil, fmt.Errorf("positionCapUsd must be positive, got %v", p.PositionCapUSD)
	}
	if p.BBPeriod < 2 {
		return nil, fmt.Errorf("bbPeriod must be at least 2, got %d", p.BBPeriod)
	}
	return &MeanReversion{params: p}, nil
}

func (s *MeanReversion) Metadata() Metadata {
	return Metadata{
		ID:          MeanReversionID,
		Name:        "Mean Reversion",
		Description: "Trades mean reversion using Bollinger Bands with a volatility filter",
		Version:     "1.0.0",
	}
}

func (s *MeanReversion) RequiredHistory() int {
	return s.params.BBPeriod + 5
}

func (s *MeanReversion) OnBar(candle types.Candle, position *types.Position) (*Signal, error) {
	s.closes = append(s.closes, candle.Close)
	maxHistory := s.params.BBPeriod + 10
	if len(s.closes) > maxHistory {
		s.closes = s.closes[len(s.closes)-maxHistory:]
	}

	if len(s.closes) < s.params.BBPeriod {
		return nil, nil
	}

	bands, err := indicators.CalculateBollinger(s.closes, s.params.BBPeriod, s.params.BBStdDev)
	if err != nil {
		return nil, fmt.Errorf("mean reversion bollinger: %w", err)
	}

	if position != nil {
		return s.manageExit(candle, position, bands), nil
	}

	if bands.Width < s.params.MinBandWidth {
		return nil, nil
	}

	// Entry zone: bottom 20% of the lower half of the bands.
	lowerThreshold := bands.Lower + (bands.Middle-bands.Lower)*0.2
	if candle.Close > lowerThreshold {
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
		Confidence: math.Min(0.8, bands.Width/10),
		Reason: fmt.Sprintf("mean reversion buy: price %.2f near lower band %.2f, width %.1f%%",
			candle.Close, bands.Lower, bands.Width),
	}, nil
}

func (s *MeanReversion) manageExit(candle types.Candle, position *types.Position, bands indicators.BollingerBands) *Signal {
	pnlPercent := (candle.Close - position.AvgEntryPrice) / position.AvgEntryPrice * 100

	if pnlPercent >= s.params.TakeProfitPercent {
		return &Signal{
			MarketID:   candle.MarketID,
			Side:       types.SideSell,
			Type:       types.OrderTypeMarket,
			Quantity:   position.Quantity,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("take profit: %.1f%% >= %.1f%%", pnlPercent, s.params.TakeProfitPercent),
		}
	}
	if pnlPercent <= -s.params.StopLossPercent {
		return &Signal{
			MarketID:   candle.MarketID,
			Side:       types.SideSell,
			Type:       types.OrderTypeMarket,
			Quantity:   position.Quantity,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("stop loss: %.1f%% <= -%.1f%%", pnlPercent, s.params.StopLossPercent),
		}
	}

	// Reversion target: within 2% of the middle band.
	if candle.Close >= bands.Middle*0.98 {
		return &Signal{
			MarketID:   candle.MarketID,
			Side:       types.SideSell,
			Type:       types.OrderTypeMarket,
			Quantity:   position.Quantity,
			Confidence: 0.7,
			Reason:     fmt.Sprintf("reversion to mean: price near middle band %.2f", bands.Middle),
		}
	}
	return nil
}
