package indicators

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Bollinger band defaults and volatility-regime thresholds. A width below
// SqueezeThreshold suppresses entries; above ExpansionThreshold the market
// is in a high-volatility expansion.
const (
	DefaultBollingerPeriod = 20
	DefaultBollingerStdDev = 2.0
	SqueezeThreshold       = 4.0
	ExpansionThreshold     = 8.0
)

// BollingerBands is a moving-average envelope used as a volatility filter.
// Width is (upper-lower)/middle expressed as a percentage of the middle
// band.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
	Width  float64
}

// CalculateBollinger computes the bands over the last period closes.
func CalculateBollinger(closes []float64, period int, stdDevMultiple float64) (BollingerBands, error) {
	if period <= 0 {
		period = DefaultBollingerPeriod
	}
	if len(closes) < period {
		return BollingerBands{}, ErrInsufficientData
	}

	recent := closes[len(closes)-period:]
	middle, err := stats.Mean(recent)
	if err != nil {
		return BollingerBands{}, fmt.Errorf("bollinger mean: %w", err)
	}
	stdDev, err := stats.StandardDeviationPopulation(recent)
	if err != nil {
		return BollingerBands{}, fmt.Errorf("bollinger stddev: %w", err)
	}

	bb := BollingerBands{
		Upper:  middle + stdDevMultiple*stdDev,
		Middle: middle,
		Lower:  middle - stdDevMultiple*stdDev,
	}
	if middle != 0 {
		bb.Width = (bb.Upper - bb.Lower) / middle * 100
	}
	return bb, nil
}

// IsSqueeze reports low volatility: entries should be suppressed.
func (b BollingerBands) IsSqueeze() bool {
	return b.Width < SqueezeThreshold
}

// IsExpansion reports a high-volatility regime.
func (b BollingerBands) IsExpansion() bool {
	return b.Width > ExpansionThreshold
}

// BandPosition locates a price relative to the bands.
type BandPosition string

const (
	BandAbove BandPosition = "ABOVE"
	BandUpper BandPosition = "UPPER"
	BandLower BandPosition = "LOWER"
	BandBelow BandPosition = "BELOW"
)

// Position classifies where price sits within the envelope.
func (b BollingerBands) Position(price float64) BandPosition {
	switch {
	case price > b.Upper:
		return BandAbove
	case price < b.Lower:
		return BandBelow
	case price > b.Middle:
		return BandUpper
	default:
		return BandLower
	}
}
