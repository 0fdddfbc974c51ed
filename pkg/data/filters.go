package data

import (
	"fmt"
	"time"

	"github.com/akhenda/polypaper/pkg/types"
)

// FilterByDateRange keeps candles with start <= timestamp <= end.
func FilterByDateRange(candles []types.Candle, start, end time.Time) []types.Candle {
	if len(candles) == 0 {
		return candles
	}

	var filtered []types.Candle
	for _, candle := range candles {
		if candle.Timestamp.Before(start) || candle.Timestamp.After(end) {
			continue
		}
		filtered = append(filtered, candle)
	}
	return filtered
}

// FilterByPeriod keeps the trailing window of the given length, measured
// back from the newest candle.
func FilterByPeriod(candles []types.Candle, period time.Duration) []types.Candle {
	if period <= 0 || len(candles) == 0 {
		return candles
	}

	cutoff := candles[len(candles)-1].Timestamp.Add(-period)
	for i, candle := range candles {
		if !candle.Timestamp.Before(cutoff) {
			return candles[i:]
		}
	}
	return candles[:0]
}

// ValidateChronology checks that candles are strictly increasing in time.
// Duplicates and out-of-order bars are both errors.
func ValidateChronology(candles []types.Candle) error {
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Timestamp, candles[i].Timestamp
		if cur.Before(prev) {
			return fmt.Errorf("candles out of order at index %d: %s comes after %s",
				i, cur.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		if cur.Equal(prev) {
			return fmt.Errorf("duplicate candle timestamp at index %d: %s",
				i, cur.Format(time.RFC3339))
		}
	}
	return nil
}
