package backtest

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhenda/polypaper/pkg/types"
)

func backtestWithReturns(returns []float64) *types.Backtest {
	bt := &types.Backtest{
		InitialCapital: 10000,
		EquityCurve:    curveOf(10000, 10000),
	}
	for _, r := range returns {
		bt.Trades = append(bt.Trades, types.Trade{PnLPercent: r * 100})
	}
	return bt
}

func mixedReturns(n int) []float64 {
	rng := rand.New(rand.NewSource(7))
	returns := make([]float64, n)
	for i := range returns {
		if rng.Float64() < 0.6 {
			returns[i] = 0.01 + rng.Float64()*0.04
		} else {
			returns[i] = -0.02 - rng.Float64()*0.06
		}
	}
	return returns
}

func TestRunMonteCarlo_EmptyBacktest(t *testing.T) {
	_, err := RunMonteCarlo(context.Background(), &types.Backtest{InitialCapital: 10000}, MonteCarloConfig{})
	assert.ErrorIs(t, err, ErrEmptyEquityCurve)

	// Trades without an equity curve are equally unusable.
	bt := &types.Backtest{InitialCapital: 10000, Trades: []types.Trade{{PnLPercent: 1}}}
	_, err = RunMonteCarlo(context.Background(), bt, MonteCarloConfig{})
	assert.ErrorIs(t, err, ErrEmptyEquityCurve)
}

func TestRunMonteCarlo_PercentileOrderingAndBounds(t *testing.T) {
	bt := backtestWithReturns(mixedReturns(100))

	result, err := RunMonteCarlo(context.Background(), bt, MonteCarloConfig{
		NumSimulations: 500,
		Seed:           42,
	})
	require.NoError(t, err)

	assert.Equal(t, 500, result.NumSimulations)
	assert.Equal(t, 5, result.BlockSize)
	assert.LessOrEqual(t, result.EquityP5, result.EquityP50)
	assert.LessOrEqual(t, result.EquityP50, result.EquityP95)
	assert.GreaterOrEqual(t, result.ProbRuin, 0.0)
	assert.LessOrEqual(t, result.ProbRuin, 1.0)
	assert.GreaterOrEqual(t, result.ProbProfit, 0.0)
	assert.LessOrEqual(t, result.ProbProfit, 1.0)
	assert.LessOrEqual(t, result.DrawdownP5, result.DrawdownP50)
	assert.LessOrEqual(t, result.DrawdownP50, result.DrawdownP95)
}

func TestRunMonteCarlo_SeededRunsAreReproducible(t *testing.T) {
	bt := backtestWithReturns(mixedReturns(60))
	cfg := MonteCarloConfig{NumSimulations: 200, Seed: 99, Workers: 4}

	first, err := RunMonteCarlo(context.Background(), bt, cfg)
	require.NoError(t, err)
	second, err := RunMonteCarlo(context.Background(), bt, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunMonteCarlo_AllWinningTrades(t *testing.T) {
	returns := make([]float64, 50)
	for i := range returns {
		returns[i] = 0.02
	}
	bt := backtestWithReturns(returns)

	result, err := RunMonteCarlo(context.Background(), bt, MonteCarloConfig{NumSimulations: 100, Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.ProbProfit)
	assert.Equal(t, 0.0, result.ProbRuin)
	assert.InDelta(t, 0.0, result.DrawdownP95, 1e-9)
	// Every resampled path compounds the identical return sequence.
	assert.InDelta(t, result.EquityP5, result.EquityP95, 1e-6)
}

func TestRunMonteCarlo_RuinOnPathMinimum(t *testing.T) {
	// One catastrophic stretch drags equity under half the starting
	// capital mid-path even though it recovers by the end.
	returns := []float64{-0.3, -0.3, -0.3, 3.0, 0.0}
	bt := backtestWithReturns(returns)

	result, err := RunMonteCarlo(context.Background(), bt, MonteCarloConfig{
		NumSimulations: 200,
		BlockSize:      5,
		Seed:           5,
	})
	require.NoError(t, err)

	// Block size equals sequence length, so every trial replays the
	// original path, which dips to 34% of capital before recovering.
	assert.Equal(t, 1.0, result.ProbRuin)
	assert.Equal(t, 1.0, result.ProbProfit)
}

func TestRunMonteCarlo_FewTradesFallBackToPlainBootstrap(t *testing.T) {
	bt := backtestWithReturns([]float64{0.01, -0.02, 0.03})

	result, err := RunMonteCarlo(context.Background(), bt, MonteCarloConfig{
		NumSimulations: 50,
		BlockSize:      5,
		Seed:           3,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, result.NumSimulations)
}

func TestRunMonteCarlo_Cancellation(t *testing.T) {
	bt := backtestWithReturns(mixedReturns(100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunMonteCarlo(ctx, bt, MonteCarloConfig{NumSimulations: 1000, Seed: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
