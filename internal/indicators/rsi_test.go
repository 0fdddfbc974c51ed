package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRSI_InsufficientData(t *testing.T) {
	_, err := CalculateRSI([]float64{100, 101}, 14)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCalculateRSI_AllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, err := CalculateRSI(closes, 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rsi)
}

func TestCalculateRSI_AllLosses(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	rsi, err := CalculateRSI(closes, 14)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, rsi, 1e-9)
}

func TestCalculateRSI_Range(t *testing.T) {
	closes := []float64{
		100, 102, 99, 103, 101, 104, 100, 105, 102, 106,
		103, 107, 104, 108, 105, 109, 106, 110, 107, 111,
	}
	rsi, err := CalculateRSI(closes, 14)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)
	// Net gains outweigh losses in this series.
	assert.Greater(t, rsi, 50.0)
}

func TestCalculateRSI_FlatSeries(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	rsi, err := CalculateRSI(closes, 14)
	require.NoError(t, err)
	// No losses at all reads as maximum strength by convention.
	assert.Equal(t, 100.0, rsi)
}
