package indicators

import (
	"errors"
	"fmt"

	"github.com/akhenda/polypaper/pkg/types"
)

// Config selects the lookbacks used when building a snapshot.
type Config struct {
	ADXPeriod       int
	ADXThreshold    float64
	BollingerPeriod int
	BollingerStdDev float64
	RSIPeriod       int
}

// DefaultConfig returns the conventional lookbacks.
func DefaultConfig() Config {
	return Config{
		ADXPeriod:       DefaultADXPeriod,
		ADXThreshold:    ADXStrongTrend,
		BollingerPeriod: DefaultBollingerPeriod,
		BollingerStdDev: DefaultBollingerStdDev,
		RSIPeriod:       DefaultRSIPeriod,
	}
}

// Snapshot is the per-market regime view handed to strategy decision
// functions: trend strength and direction, volatility envelope, momentum.
// HasADX/HasBands/HasRSI report which values could be computed from the
// available history; Warnings carries sanity-check findings that are
// reported but never fatal.
type Snapshot struct {
	MarketID string

	ADX    ADXResult
	Trend  TrendDirection
	HasADX bool

	Bands    BollingerBands
	HasBands bool

	RSI    float64
	HasRSI bool

	Warnings []string
}

// BuildSnapshot computes all configured indicators from the candle history
// of one (market, interval). Individual indicators that lack history are
// simply left unset; the snapshot fails only when no candle data exists at
// all.
func BuildSnapshot(marketID string, candles []types.Candle, cfg Config) (Snapshot, error) {
	if len(candles) == 0 {
		return Snapshot{}, ErrInsufficientData
	}

	snap := Snapshot{MarketID: marketID, Trend: TrendFlat}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	if adx, err := CalculateADX(candles, cfg.ADXPeriod); err == nil {
		snap.ADX = adx
		snap.Trend = adx.Trend(cfg.ADXThreshold)
		snap.HasADX = true
	} else if !errors.Is(err, ErrInsufficientData) {
		return Snapshot{}, err
	}

	if bands, err := CalculateBollinger(closes, cfg.BollingerPeriod, cfg.BollingerStdDev); err == nil {
		snap.Bands = bands
		snap.HasBands = true
	} else if !errors.Is(err, ErrInsufficientData) {
		return Snapshot{}, err
	}

	if rsi, err := CalculateRSI(closes, cfg.RSIPeriod); err == nil {
		snap.RSI = rsi
		snap.HasRSI = true
	} else if !errors.Is(err, ErrInsufficientData) {
		return Snapshot{}, err
	}

	snap.Warnings = snap.sanityCheck()
	return snap, nil
}

// sanityCheck flags oscillator values outside [0, 100]. Such values signal
// a computation or data bug upstream; the snapshot is still returned.
func (s *Snapshot) sanityCheck() []string {
	var warnings []string
	if s.HasADX && s.ADX.Clamped {
		warnings = append(warnings,
			fmt.Sprintf("adx for %s left [0,100] and was clamped to %.2f", s.MarketID, s.ADX.ADX))
	}
	if s.HasRSI && (s.RSI < 0 || s.RSI > 100) {
		warnings = append(warnings,
			fmt.Sprintf("rsi %.2f for %s outside [0,100]", s.RSI, s.MarketID))
	}
	return warnings
}
