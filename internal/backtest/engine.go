// Package backtest replays historical candles through the strategy, fill,
// ledger, and risk layers, then derives performance metrics and Monte Carlo
// robustness estimates from the result.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/akhenda/polypaper/internal/indicators"
	"github.com/akhenda/polypaper/internal/ledger"
	"github.com/akhenda/polypaper/internal/monitoring"
	"github.com/akhenda/polypaper/internal/risk"
	"github.com/akhenda/polypaper/internal/sim"
	"github.com/akhenda/polypaper/internal/strategy"
	"github.com/akhenda/polypaper/pkg/types"
)

// Config describes one backtest run.
type Config struct {
	StrategyID     string
	Parameters     json.RawMessage
	MarketIDs      []string
	Interval       string
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital float64
	FeeRate        float64
	SlippageRate   float64
	// PositionCapUSD bounds the notional of any single entry. Zero disables
	// the cap.
	PositionCapUSD float64
	// Risk overrides the default circuit-breaker settings when non-zero.
	Risk risk.Config
}

// Engine replays one backtest. Engines are independent; any number may run
// concurrently, but bar processing within a run is strictly sequential.
type Engine struct {
	cfg    Config
	logger *logrus.Entry
}

// NewEngine creates a backtest engine for the given configuration.
func NewEngine(cfg Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		cfg: cfg,
		logger: logger.WithFields(logrus.Fields{
			"component": "backtest",
			"strategy":  cfg.StrategyID,
		}),
	}
}

// timelineBar is one entry of the merged multi-market timeline.
type timelineBar struct {
	candle types.Candle
}

// Run replays the candles and returns the finished backtest row. The row is
// always returned, COMPLETED or FAILED: a replay failure preserves the
// equity curve and trades accumulated up to the failing bar for diagnosis.
func (e *Engine) Run(ctx context.Context, candles map[string][]types.Candle) (*types.Backtest, error) {
	started := time.Now()
	bt := &types.Backtest{
		ID:             uuid.NewString(),
		StrategyID:     e.cfg.StrategyID,
		MarketIDs:      e.cfg.MarketIDs,
		StartDate:      e.cfg.StartDate,
		EndDate:        e.cfg.EndDate,
		InitialCapital: e.cfg.InitialCapital,
		Status:         types.BacktestRunning,
		EquityCurve:    make([]types.EquityPoint, 0),
		Trades:         make([]types.Trade, 0),
	}
	if len(e.cfg.Parameters) > 0 {
		if err := json.Unmarshal(e.cfg.Parameters, &bt.Parameters); err != nil {
			return e.fail(bt, started, fmt.Errorf("parse parameters: %w", err))
		}
	}

	// One strategy instance per market: instances carry per-series state.
	strategies := make(map[string]strategy.Strategy, len(e.cfg.MarketIDs))
	for _, marketID := range e.cfg.MarketIDs {
		s, err := strategy.New(e.cfg.StrategyID, e.cfg.Parameters)
		if err != nil {
			return e.fail(bt, started, err)
		}
		strategies[marketID] = s
	}

	timeline := e.mergeTimeline(candles)
	if len(timeline) == 0 {
		return e.fail(bt, started, fmt.Errorf("no candles in [%s, %s] for markets %v",
			e.cfg.StartDate.Format(time.RFC3339), e.cfg.EndDate.Format(time.RFC3339), e.cfg.MarketIDs))
	}

	led := ledger.New()
	account := led.CreateAccount("backtest-"+bt.ID, e.cfg.InitialCapital)
	breaker := risk.NewManager(e.cfg.Risk, nil)
	simCfg := sim.Config{FeeRate: e.cfg.FeeRate, SlippageRate: e.cfg.SlippageRate}

	latestClose := make(map[string]float64)
	history := make(map[string][]types.Candle, len(e.cfg.MarketIDs))

	for _, bar := range timeline {
		// Cancellation is honored at bar granularity.
		if err := ctx.Err(); err != nil {
			return e.fail(bt, started, fmt.Errorf("cancelled at bar %s: %w", bar.candle.Timestamp.Format(time.RFC3339), err))
		}

		candle := bar.candle
		latestClose[candle.MarketID] = candle.Close
		history[candle.MarketID] = e.observeIndicators(history[candle.MarketID], candle)

		var pos *types.Position
		if p, ok := account.Position(candle.MarketID); ok {
			pos = &p
		}

		sig, err := strategies[candle.MarketID].OnBar(candle, pos)
		if err != nil {
			return e.fail(bt, started, fmt.Errorf("strategy at bar %s: %w", candle.Timestamp.Format(time.RFC3339), err))
		}
		if sig != nil {
			e.routeSignal(bt, account, breaker, simCfg, sig, candle)
		}

		equity, err := account.Equity(latestClose)
		if err != nil {
			return e.fail(bt, started, fmt.Errorf("valuation at bar %s: %w", candle.Timestamp.Format(time.RFC3339), err))
		}
		bt.EquityCurve = append(bt.EquityCurve, types.EquityPoint{Time: candle.Timestamp, Equity: equity})
	}

	metrics := ComputeMetrics(bt.EquityCurve, bt.Trades, e.cfg.InitialCapital, e.cfg.Interval)
	bt.FinalCapital = metrics.FinalEquity
	bt.TotalReturn = metrics.TotalReturn
	bt.MaxDrawdown = metrics.MaxDrawdown
	bt.WinRate = metrics.WinRate
	bt.SharpeRatio = metrics.SharpeRatio
	bt.TradeCount = len(bt.Trades)
	bt.Status = types.BacktestCompleted

	monitoring.RecordBacktest(string(bt.Status), time.Since(started))
	e.logger.WithFields(logrus.Fields{
		"bars":         len(timeline),
		"trades":       bt.TradeCount,
		"total_return": bt.TotalReturn,
	}).Info("Backtest completed")
	return bt, nil
}

// routeSignal pushes one strategy signal through fill simulation, the
// ledger, and the circuit breaker. Order-level rejections are logged and
// skipped; they never abort the replay.
func (e *Engine) routeSignal(bt *types.Backtest, account *ledger.Account, breaker *risk.Manager, simCfg sim.Config, sig *strategy.Signal, candle types.Candle) {
	isEntry := sig.Side == types.SideBuy
	if isEntry && !breaker.CanEnter(account.ID, e.cfg.StrategyID, candle.Timestamp) {
		monitoring.RecordRejection("cooldown")
		return
	}

	quantity := sig.Quantity
	if isEntry && e.cfg.PositionCapUSD > 0 && quantity*candle.Close > e.cfg.PositionCapUSD {
		quantity = e.cfg.PositionCapUSD / candle.Close
	}

	fill, err := sim.Simulate(sim.OrderRequest{
		Side:     sig.Side,
		Type:     sig.Type,
		Quantity: quantity,
		Price:    sig.Price,
	}, candle.Close, simCfg)
	if err != nil {
		monitoring.RecordRejection("unfillable")
		e.logger.WithError(err).WithField("market", candle.MarketID).Debug("Order rejected by fill simulation")
		return
	}

	orderID := uuid.NewString()
	effect, err := account.ApplyFill(candle.MarketID, e.cfg.StrategyID, orderID, sig.Side, fill.Quantity, fill.Price, fill.Fee, candle.Timestamp)
	if err != nil {
		monitoring.RecordRejection("ledger")
		e.logger.WithError(err).WithField("market", candle.MarketID).Debug("Order rejected by ledger")
		return
	}
	monitoring.RecordFill(candle.MarketID, string(sig.Side), fill.Notional())

	if effect.ClosedQuantity > 0 {
		entryPrice := effect.Position.AvgEntryPrice
		trade := types.Trade{
			EntryTime:  effect.Position.OpenedAt,
			ExitTime:   candle.Timestamp,
			Symbol:     candle.MarketID,
			EntryPrice: entryPrice,
			ExitPrice:  fill.Price,
			Quantity:   effect.ClosedQuantity,
			PnL:        effect.RealizedPnL,
		}
		if entryPrice > 0 {
			trade.PnLPercent = effect.RealizedPnL / (entryPrice * effect.ClosedQuantity) * 100
		}
		bt.Trades = append(bt.Trades, trade)
		breaker.RecordClose(account.ID, e.cfg.StrategyID, effect.RealizedPnL, candle.Timestamp)
	}
}

// mergeTimeline flattens the per-market candles into one time-ordered
// sequence restricted to [StartDate, EndDate]. Ties on timestamp order by
// market id so replay stays deterministic.
func (e *Engine) mergeTimeline(candles map[string][]types.Candle) []timelineBar {
	var timeline []timelineBar
	for _, marketID := range e.cfg.MarketIDs {
		for _, c := range candles[marketID] {
			if c.Timestamp.Before(e.cfg.StartDate) || c.Timestamp.After(e.cfg.EndDate) {
				continue
			}
			timeline = append(timeline, timelineBar{candle: c})
		}
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		if timeline[i].candle.Timestamp.Equal(timeline[j].candle.Timestamp) {
			return timeline[i].candle.MarketID < timeline[j].candle.MarketID
		}
		return timeline[i].candle.Timestamp.Before(timeline[j].candle.Timestamp)
	})
	return timeline
}

// snapshotHistoryBars bounds the per-market candle window kept for
// indicator snapshots; enough for ADX, Bollinger, and RSI at their default
// lookbacks.
const snapshotHistoryBars = 4 * indicators.DefaultADXPeriod

// observeIndicators appends the bar to the market's history, builds the
// indicator snapshot, and surfaces its sanity warnings through the logger.
func (e *Engine) observeIndicators(history []types.Candle, candle types.Candle) []types.Candle {
	history = append(history, candle)
	if len(history) > snapshotHistoryBars {
		history = history[len(history)-snapshotHistoryBars:]
	}

	snap, err := indicators.BuildSnapshot(candle.MarketID, history, indicators.DefaultConfig())
	if err != nil {
		e.logger.WithField("market", candle.MarketID).Warnf("indicator snapshot: %v", err)
		return history
	}
	logIndicatorWarnings(e.logger, snap)
	return history
}

// logIndicatorWarnings reports snapshot sanity findings; they are warnings
// only and never affect the replay.
func logIndicatorWarnings(logger *logrus.Entry, snap indicators.Snapshot) {
	for _, warning := range snap.Warnings {
		logger.WithField("market", snap.MarketID).Warn(warning)
	}
}

func (e *Engine) fail(bt *types.Backtest, started time.Time, err error) (*types.Backtest, error) {
	bt.Status = types.BacktestFailed
	bt.ErrorMessage = err.Error()
	monitoring.RecordBacktest(string(bt.Status), time.Since(started))
	e.logger.WithError(err).Error("Backtest failed")
	return bt, err
}
