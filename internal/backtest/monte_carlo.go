package backtest

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/akhenda/polypaper/pkg/types"
)

// ErrEmptyEquityCurve is returned when the source backtest has no trades to
// resample.
var ErrEmptyEquityCurve = errors.New("backtest has no trades or equity curve")

// MonteCarloConfig tunes the block-bootstrap analysis. Zero values fall
// back to the defaults.
type MonteCarloConfig struct {
	NumSimulations int
	// BlockSize is the number of consecutive trades drawn per block,
	// preserving short-range return correlation.
	BlockSize int
	// RuinThreshold is the fraction of initial capital below which a
	// simulated path counts as ruined.
	RuinThreshold float64
	Workers       int
	// Seed fixes the resampling for reproducible runs; zero seeds from the
	// clock.
	Seed int64
}

func (c MonteCarloConfig) withDefaults() MonteCarloConfig {
	if c.NumSimulations <= 0 {
		c.NumSimulations = 1000
	}
	if c.BlockSize <= 0 {
		c.BlockSize = 5
	}
	if c.RuinThreshold <= 0 {
		c.RuinThreshold = 0.5
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// trialOutcome is one simulated path's summary.
type trialOutcome struct {
	finalEquity float64
	maxDrawdown float64
	ruined      bool
}

// RunMonteCarlo estimates the outcome distribution of a completed backtest
// by block-bootstrap resampling of its per-trade returns. Trials run on a
// worker pool and are individually seeded, so results depend only on the
// config seed, never on scheduling.
func RunMonteCarlo(ctx context.Context, bt *types.Backtest, cfg MonteCarloConfig) (*types.MonteCarloResult, error) {
	if len(bt.Trades) == 0 || len(bt.EquityCurve) == 0 {
		return nil, ErrEmptyEquityCurve
	}
	cfg = cfg.withDefaults()

	returns := make([]float64, len(bt.Trades))
	for i, t := range bt.Trades {
		returns[i] = t.PnLPercent / 100
	}

	blockSize := cfg.BlockSize
	if len(returns) < blockSize {
		// Too few trades for blocks: degrade to a plain bootstrap.
		blockSize = 1
	}

	seeder := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]int64, cfg.NumSimulations)
	for i := range seeds {
		seeds[i] = seeder.Int63()
	}

	ruinLevel := bt.InitialCapital * cfg.RuinThreshold
	outcomes := make([]trialOutcome, cfg.NumSimulations)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewSource(seeds[i]))
				sampled := blockBootstrap(returns, blockSize, rng)
				outcomes[i] = replayReturns(sampled, bt.InitialCapital, ruinLevel)
			}
		}()
	}

	var cancelErr error
	for i := 0; i < cfg.NumSimulations; i++ {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if cancelErr != nil {
		return nil, cancelErr
	}

	return aggregate(outcomes, cfg, bt.InitialCapital)
}

// blockBootstrap builds a synthetic return sequence of the original length
// by concatenating randomly-chosen contiguous blocks, truncating the last
// block as needed.
func blockBootstrap(returns []float64, blockSize int, rng *rand.Rand) []float64 {
	n := len(returns)
	sampled := make([]float64, 0, n+blockSize)
	for len(sampled) < n {
		start := rng.Intn(n - blockSize + 1)
		sampled = append(sampled, returns[start:start+blockSize]...)
	}
	return sampled[:n]
}

// replayReturns compounds a return sequence from the initial capital,
// tracking the path maximum drawdown and whether equity ever fell below the
// ruin level.
func replayReturns(returns []float64, initialCapital, ruinLevel float64) trialOutcome {
	equity := initialCapital
	peak := equity
	var out trialOutcome
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak * 100
			if dd > out.maxDrawdown {
				out.maxDrawdown = dd
			}
		}
		if equity < ruinLevel {
			out.ruined = true
		}
	}
	out.finalEquity = equity
	return out
}

func aggregate(outcomes []trialOutcome, cfg MonteCarloConfig, initialCapital float64) (*types.MonteCarloResult, error) {
	equities := make([]float64, len(outcomes))
	drawdowns := make([]float64, len(outcomes))
	ruined, profitable := 0, 0
	for i, o := range outcomes {
		equities[i] = o.finalEquity
		drawdowns[i] = o.maxDrawdown
		if o.ruined {
			ruined++
		}
		if o.finalEquity > initialCapital {
			profitable++
		}
	}

	result := &types.MonteCarloResult{
		NumSimulations: cfg.NumSimulations,
		BlockSize:      cfg.BlockSize,
		ProbRuin:       float64(ruined) / float64(len(outcomes)),
		ProbProfit:     float64(profitable) / float64(len(outcomes)),
	}

	var err error
	if result.EquityP5, err = stats.Percentile(equities, 5); err != nil {
		return nil, err
	}
	if result.EquityP50, err = stats.Percentile(equities, 50); err != nil {
		return nil, err
	}
	if result.EquityP95, err = stats.Percentile(equities, 95); err != nil {
		return nil, err
	}
	if result.EquityMean, err = stats.Mean(equities); err != nil {
		return nil, err
	}
	if result.EquityStd, err = stats.StandardDeviationPopulation(equities); err != nil {
		return nil, err
	}
	if result.DrawdownP5, err = stats.Percentile(drawdowns, 5); err != nil {
		return nil, err
	}
	if result.DrawdownP50, err = stats.Percentile(drawdowns, 50); err != nil {
		return nil, err
	}
	if result.DrawdownP95, err = stats.Percentile(drawdowns, 95); err != nil {
		return nil, err
	}
	return result, nil
}
