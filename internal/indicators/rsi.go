package indicators

// RSI defaults and conventional overbought/oversold levels.
const (
	DefaultRSIPeriod = 14
	RSIOverbought    = 70.0
	RSIOversold      = 30.0
)

// CalculateRSI computes the Relative Strength Index over the closes using
// Wilder's smoothing. Requires period+1 closes.
func CalculateRSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(closes) < period+1 {
		return 0, ErrInsufficientData
	}

	changes := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		changes = append(changes, closes[i]-closes[i-1])
	}

	var avgGain, avgLoss float64
	for _, c := range changes[:period] {
		if c > 0 {
			avgGain += c
		} else {
			avgLoss += -c
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for _, c := range changes[period:] {
		gain, loss := 0.0, 0.0
		if c > 0 {
			gain = c
		} else {
			loss = -c
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
