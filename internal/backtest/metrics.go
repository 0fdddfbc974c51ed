package backtest

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/akhenda/polypaper/pkg/types"
)

// Metrics is the performance summary derived from a finished replay.
type Metrics struct {
	FinalEquity float64
	// TotalReturn is (final/initial - 1) in percent.
	TotalReturn float64
	// MaxDrawdown is the largest peak-to-trough decline of the equity
	// curve, in percent of the peak.
	MaxDrawdown float64
	WinRate     float64
	SharpeRatio float64
}

// BarsPerYear returns the annualization base for a bar interval: the number
// of bars in a 365-day year. Unknown intervals return 0, which disables
// annualization.
func BarsPerYear(interval string) float64 {
	d := types.IntervalDuration(interval)
	if d <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(d)
}

// ComputeMetrics derives the summary metrics from an equity curve and trade
// log. The Sharpe ratio is mean over stddev of bar-over-bar returns, scaled
// by sqrt(BarsPerYear(interval)); it is 0 when there are fewer than two
// returns or the returns have zero variance.
func ComputeMetrics(curve []types.EquityPoint, trades []types.Trade, initialCapital float64, interval string) Metrics {
	m := Metrics{FinalEquity: initialCapital}
	if len(curve) > 0 {
		m.FinalEquity = curve[len(curve)-1].Equity
	}
	if initialCapital > 0 {
		m.TotalReturn = (m.FinalEquity/initialCapital - 1) * 100
	}
	m.MaxDrawdown = maxDrawdown(curve)
	m.WinRate = winRate(trades)
	m.SharpeRatio = sharpeRatio(curve, interval)
	return m
}

func maxDrawdown(curve []types.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func winRate(trades []types.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades)) * 100
}

func sharpeRatio(curve []types.EquityPoint, interval string) float64 {
	returns := barReturns(curve)
	if len(returns) < 2 {
		return 0
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return 0
	}
	std, err := stats.StandardDeviationPopulation(returns)
	if err != nil || std == 0 {
		return 0
	}

	sharpe := mean / std
	if perYear := BarsPerYear(interval); perYear > 0 {
		sharpe *= math.Sqrt(perYear)
	}
	return sharpe
}

// barReturns converts the equity curve to bar-over-bar fractional returns.
func barReturns(curve []types.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev > 0 {
			returns = append(returns, (curve[i].Equity-prev)/prev)
		}
	}
	return returns
}
