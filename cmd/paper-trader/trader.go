package main

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/akhenda/polypaper/internal/indicators"
	"github.com/akhenda/polypaper/internal/ledger"
	"github.com/akhenda/polypaper/internal/monitoring"
	"github.com/akhenda/polypaper/internal/risk"
	"github.com/akhenda/polypaper/internal/sim"
	"github.com/akhenda/polypaper/internal/storage"
	"github.com/akhenda/polypaper/internal/strategy"
	"github.com/akhenda/polypaper/pkg/data"
	"github.com/akhenda/polypaper/pkg/types"
)

// paperTrader drives the live paper-trading loop: one pass over all markets
// per closed candle, signals routed through the fill simulator and ledger.
type paperTrader struct {
	strategyID string
	interval   string
	marketIDs  []string
	strategies map[string]strategy.Strategy

	provider *data.BybitProvider
	account  *ledger.Account
	breaker  *risk.Manager
	store    *storage.Store
	health   *monitoring.HealthChecker
	simCfg   sim.Config
	logger   *logrus.Entry

	latestClose   map[string]float64
	history       map[string][]types.Candle
	persistedLogs int
}

// snapshotHistoryBars bounds the per-market candle window kept for
// indicator snapshots.
const snapshotHistoryBars = 4 * indicators.DefaultADXPeriod

// observeIndicators appends the bar to the market's history, builds the
// indicator snapshot, and surfaces its sanity warnings through the logger.
func (t *paperTrader) observeIndicators(candle types.Candle) {
	history := append(t.history[candle.MarketID], candle)
	if len(history) > snapshotHistoryBars {
		history = history[len(history)-snapshotHistoryBars:]
	}
	t.history[candle.MarketID] = history

	snap, err := indicators.BuildSnapshot(candle.MarketID, history, indicators.DefaultConfig())
	if err != nil {
		t.logger.WithField("market", candle.MarketID).Warnf("indicator snapshot: %v", err)
		return
	}
	for _, warning := range snap.Warnings {
		t.logger.WithField("market", snap.MarketID).Warn(warning)
	}
}

// Run blocks until the context is cancelled, processing one bar per market
// at every interval boundary.
func (t *paperTrader) Run(ctx context.Context) error {
	t.latestClose = make(map[string]float64)
	t.history = make(map[string][]types.Candle)
	barDuration := types.IntervalDuration(t.interval)

	// Warm up each strategy with recent history so signals can fire on the
	// first live bar.
	if err := t.warmUp(ctx, barDuration); err != nil {
		return err
	}

	for {
		wait := untilNextBar(time.Now().UTC(), barDuration)
		t.logger.WithField("sleep", wait.Round(time.Second).String()).Debug("waiting for next bar close")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := t.processBars(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.health.RecordFailure(err.Error())
			t.health.SetDataFeedOK(false)
			monitoring.RecordError("data_feed")
			t.logger.Errorf("bar processing failed: %v", err)
			continue
		}
		t.health.SetDataFeedOK(true)
	}
}

// warmUp replays recent history through each strategy without trading.
func (t *paperTrader) warmUp(ctx context.Context, barDuration time.Duration) error {
	end := time.Now().UTC().Truncate(barDuration)
	for marketID, strat := range t.strategies {
		bars := strat.RequiredHistory() + 1
		start := end.Add(-time.Duration(bars) * barDuration)

		candles, err := t.provider.Candles(ctx, marketID, bybitSymbol(marketID), t.interval, start, end)
		if err != nil {
			return err
		}
		candles = data.FilterByPeriod(candles, time.Duration(bars)*barDuration)
		// Drop the still-forming bar.
		for _, candle := range candles {
			if !candle.Timestamp.Before(end) {
				break
			}
			if _, err := strat.OnBar(candle, nil); err != nil {
				return err
			}
			t.latestClose[marketID] = candle.Close
			t.observeIndicators(candle)
		}
		t.logger.WithFields(logrus.Fields{
			"market": marketID,
			"bars":   len(candles),
		}).Info("strategy warmed up")
	}
	return nil
}

// processBars fetches the newest closed candle for every market and feeds
// it to that market's strategy.
func (t *paperTrader) processBars(ctx context.Context) error {
	barDuration := types.IntervalDuration(t.interval)
	end := time.Now().UTC().Truncate(barDuration)
	start := end.Add(-2 * barDuration)

	for _, marketID := range t.marketIDs {
		candles, err := t.provider.Candles(ctx, marketID, bybitSymbol(marketID), t.interval, start, end)
		if err != nil {
			return err
		}
		if len(candles) == 0 {
			continue
		}
		candle := candles[len(candles)-1]
		t.latestClose[marketID] = candle.Close
		t.health.RecordBar(candle.Close)
		t.observeIndicators(candle)

		var position *types.Position
		if pos, ok := t.account.Position(marketID); ok {
			position = &pos
		}

		signal, err := t.strategies[marketID].OnBar(candle, position)
		if err != nil {
			t.logger.WithField("market", marketID).Errorf("strategy error: %v", err)
			monitoring.RecordError("strategy")
			continue
		}
		if signal != nil {
			t.routeSignal(ctx, signal, candle)
		}
	}

	// Mark open positions to the live ticker rather than the bar close when
	// the ticker is reachable.
	for _, marketID := range t.marketIDs {
		if _, open := t.account.Position(marketID); !open {
			continue
		}
		if ticker, err := t.provider.LatestTicker(ctx, marketID, bybitSymbol(marketID)); err == nil {
			t.latestClose[marketID] = ticker.Price
		}
	}

	if equity, err := t.account.Equity(t.latestClose); err == nil {
		monitoring.UpdateEquity(t.account.ID, equity)
		t.logger.WithField("equity", equity).Info("bar processed")
	}
	t.persist(ctx)
	return nil
}

// routeSignal turns a strategy signal into a simulated fill and applies it
// to the account.
func (t *paperTrader) routeSignal(ctx context.Context, signal *strategy.Signal, candle types.Candle) {
	now := candle.Timestamp
	if signal.Side == types.SideBuy && !t.breaker.CanEnter(t.account.ID, t.strategyID, now) {
		monitoring.RecordRejection("cooldown")
		t.logger.WithField("market", signal.MarketID).Info("entry blocked by cooldown")
		return
	}

	orderID := uuid.NewString()
	fill, err := sim.Simulate(sim.OrderRequest{
		Side:     signal.Side,
		Type:     signal.Type,
		Quantity: signal.Quantity,
		Price:    signal.Price,
	}, candle.Close, t.simCfg)
	if err != nil {
		monitoring.RecordRejection("unfillable")
		t.logger.WithField("market", signal.MarketID).Debugf("order rejected: %v", err)
		return
	}

	effect, err := t.account.ApplyFill(signal.MarketID, t.strategyID, orderID, signal.Side, fill.Quantity, fill.Price, fill.Fee, now)
	if err != nil {
		monitoring.RecordRejection("ledger")
		t.logger.WithField("market", signal.MarketID).Warnf("fill rejected: %v", err)
		return
	}
	monitoring.RecordFill(signal.MarketID, string(signal.Side), fill.Notional())

	t.logger.WithFields(logrus.Fields{
		"market": signal.MarketID,
		"side":   string(signal.Side),
		"qty":    fill.Quantity,
		"price":  fill.Price,
		"reason": signal.Reason,
	}).Info("order filled")

	if t.store != nil {
		filledAt := now
		order := &types.Order{
			ID:             orderID,
			AccountID:      t.account.ID,
			MarketID:       signal.MarketID,
			StrategyID:     t.strategyID,
			Side:           signal.Side,
			Type:           signal.Type,
			Quantity:       signal.Quantity,
			Price:          signal.Price,
			FilledQuantity: fill.Quantity,
			AvgFillPrice:   fill.Price,
			Status:         types.OrderStatusFilled,
			CreatedAt:      now,
			FilledAt:       &filledAt,
		}
		if err := t.store.SaveOrder(ctx, order); err != nil {
			t.logger.Warnf("save order: %v", err)
		}
		if err := t.store.SavePosition(ctx, effect.Position); err != nil {
			t.logger.Warnf("save position: %v", err)
		}
	}

	if effect.ClosedQuantity > 0 {
		t.breaker.RecordClose(t.account.ID, t.strategyID, effect.RealizedPnL, now)
	}
}

// persist flushes new trade-log entries and the current risk state.
func (t *paperTrader) persist(ctx context.Context) {
	if t.store == nil {
		return
	}

	entries := t.account.TradeLog()
	if len(entries) > t.persistedLogs {
		if err := t.store.AppendTradeLog(ctx, entries[t.persistedLogs:]); err != nil {
			t.logger.Warnf("append trade log: %v", err)
		} else {
			t.persistedLogs = len(entries)
		}
	}

	state := t.breaker.Snapshot(t.account.ID, t.strategyID)
	if err := t.store.SaveStrategyState(ctx, state); err != nil {
		t.logger.Warnf("save strategy state: %v", err)
	}
}

// shutdown persists final state before exit.
func (t *paperTrader) shutdown(ctx context.Context) {
	t.persist(ctx)
}

// bybitSymbol maps market ids like "btc-usd" to Bybit spot symbols like
// "BTCUSDT".
func bybitSymbol(marketID string) string {
	symbol := strings.ToUpper(strings.ReplaceAll(marketID, "-", ""))
	if strings.HasSuffix(symbol, "USD") {
		symbol += "T"
	}
	return symbol
}

// untilNextBar returns the wait until just after the next interval
// boundary. The small offset lets the exchange finalize the closing bar.
func untilNextBar(now time.Time, barDuration time.Duration) time.Duration {
	next := now.Truncate(barDuration).Add(barDuration)
	return next.Sub(now) + 5*time.Second
}
