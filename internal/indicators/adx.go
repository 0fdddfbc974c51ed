package indicators

import (
	"errors"
	"math"

	"github.com/akhenda/polypaper/pkg/types"
)

// ErrInsufficientData is returned when fewer candles than the lookback
// period are supplied. The caller can retry once more data has arrived.
var ErrInsufficientData = errors.New("insufficient data for indicator calculation")

// TrendDirection classifies the prevailing trend from ADX and the
// directional index pair.
type TrendDirection string

const (
	TrendUp   TrendDirection = "UP"
	TrendDown TrendDirection = "DOWN"
	TrendFlat TrendDirection = "FLAT"
)

// DefaultADXPeriod is the standard Wilder lookback.
const DefaultADXPeriod = 14

// ADX thresholds: above Strong the market is trending hard, below Weak it
// is ranging.
const (
	ADXStrongTrend = 25.0
	ADXWeakTrend   = 20.0
)

// ADXResult holds the Average Directional Index and its directional
// components. All values are in [0, 100] after clamping; Clamped reports
// whether the raw computation left that range, which indicates an upstream
// data or computation bug rather than an unusable result.
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
	Clamped bool
}

// CalculateADX computes ADX, +DI and -DI over the candle sequence using
// Wilder's smoothing. Requires at least 2*period+1 candles.
func CalculateADX(candles []types.Candle, period int) (ADXResult, error) {
	if period <= 0 {
		period = DefaultADXPeriod
	}
	if len(candles) < period*2+1 {
		return ADXResult{}, ErrInsufficientData
	}

	n := len(candles)
	trList := make([]float64, 0, n-1)
	plusDMList := make([]float64, 0, n-1)
	minusDMList := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		cur := candles[i]
		prev := candles[i-1]

		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		trList = append(trList, tr)

		upMove := cur.High - prev.High
		downMove := prev.Low - cur.Low

		plusDM := 0.0
		minusDM := 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		plusDMList = append(plusDMList, plusDM)
		minusDMList = append(minusDMList, minusDM)
	}

	atr := wilderSmooth(trList, period)
	smoothedPlusDM := wilderSmooth(plusDMList, period)
	smoothedMinusDM := wilderSmooth(minusDMList, period)
	if len(atr) == 0 {
		return ADXResult{}, ErrInsufficientData
	}

	plusDIVals := make([]float64, len(atr))
	minusDIVals := make([]float64, len(atr))
	dxList := make([]float64, len(atr))
	for i := range atr {
		var plusDI, minusDI float64
		if atr[i] > 0 {
			plusDI = smoothedPlusDM[i] / atr[i] * 100
			minusDI = smoothedMinusDM[i] / atr[i] * 100
		}
		plusDIVals[i] = clamp(plusDI, 0, 100)
		minusDIVals[i] = clamp(minusDI, 0, 100)

		diSum := plusDIVals[i] + minusDIVals[i]
		if diSum > 0 {
			dxList[i] = math.Abs(plusDIVals[i]-minusDIVals[i]) / diSum * 100
		}
	}

	adxVals := wilderSmooth(dxList, period)
	if len(adxVals) == 0 {
		return ADXResult{}, ErrInsufficientData
	}

	rawADX := adxVals[len(adxVals)-1]
	result := ADXResult{
		ADX:     clamp(rawADX, 0, 100),
		PlusDI:  plusDIVals[len(plusDIVals)-1],
		MinusDI: minusDIVals[len(minusDIVals)-1],
		Clamped: rawADX < 0 || rawADX > 100,
	}
	return result, nil
}

// Trend classifies the result against a strength threshold: FLAT when ADX
// is below the threshold, otherwise the dominant directional index wins.
func (r ADXResult) Trend(threshold float64) TrendDirection {
	if r.ADX < threshold {
		return TrendFlat
	}
	switch {
	case r.PlusDI > r.MinusDI:
		return TrendUp
	case r.MinusDI > r.PlusDI:
		return TrendDown
	default:
		return TrendFlat
	}
}

// IsTrending reports whether ADX is at or above the threshold.
func (r ADXResult) IsTrending(threshold float64) bool {
	return r.ADX >= threshold
}

// wilderSmooth applies Wilder's running moving average: the first value is
// the SMA of the first period values, then
// rma = (prev*(period-1) + current) / period.
func wilderSmooth(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}

	smoothed := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	smoothed = append(smoothed, sum/float64(period))

	for i := period; i < len(values); i++ {
		prev := smoothed[len(smoothed)-1]
		smoothed = append(smoothed, (prev*float64(period-1)+values[i])/float64(period))
	}
	return smoothed
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
