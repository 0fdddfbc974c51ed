package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhenda/polypaper/pkg/types"
)

func TestBacktestRecordRoundTrip(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bt := &types.Backtest{
		ID:             "bt-1",
		StrategyID:     "late-entry-v1",
		Parameters:     map[string]any{"positionCapUsd": 20.0},
		MarketIDs:      []string{"btc-usd", "eth-usd"},
		StartDate:      start,
		EndDate:        start.AddDate(0, 1, 0),
		InitialCapital: 10000,
		FinalCapital:   10500,
		TotalReturn:    5,
		SharpeRatio:    1.2,
		MaxDrawdown:    3.4,
		WinRate:        60,
		TradeCount:     2,
		EquityCurve: []types.EquityPoint{
			{Time: start, Equity: 10000},
			{Time: start.Add(time.Hour), Equity: 10500},
		},
		Trades: []types.Trade{
			{EntryTime: start, ExitTime: start.Add(time.Hour), Symbol: "btc-usd", EntryPrice: 100, ExitPrice: 110, Quantity: 1, PnL: 10, PnLPercent: 10},
		},
		Status: types.BacktestCompleted,
		MonteCarlo: &types.MonteCarloResult{
			NumSimulations: 100,
			BlockSize:      5,
			EquityP50:      10400,
			ProbProfit:     0.9,
		},
	}

	record, err := backtestToRecord(bt)
	require.NoError(t, err)
	assert.Equal(t, "backtests", record.TableName())
	assert.NotEmpty(t, record.EquityCurve)
	assert.NotEmpty(t, record.Metadata)

	restored, err := recordToBacktest(record)
	require.NoError(t, err)

	assert.Equal(t, bt.ID, restored.ID)
	assert.Equal(t, bt.MarketIDs, restored.MarketIDs)
	assert.Equal(t, bt.EquityCurve, restored.EquityCurve)
	assert.Equal(t, bt.Trades, restored.Trades)
	assert.Equal(t, bt.Status, restored.Status)
	require.NotNil(t, restored.MonteCarlo)
	assert.Equal(t, bt.MonteCarlo.EquityP50, restored.MonteCarlo.EquityP50)
	assert.Equal(t, bt.MonteCarlo.ProbProfit, restored.MonteCarlo.ProbProfit)
}

func TestBacktestRecordRoundTrip_FailedWithoutMonteCarlo(t *testing.T) {
	bt := &types.Backtest{
		ID:           "bt-2",
		StrategyID:   "mean-reversion-v1",
		Status:       types.BacktestFailed,
		ErrorMessage: "cancelled at bar 2025-01-01T00:00:00Z",
	}

	record, err := backtestToRecord(bt)
	require.NoError(t, err)
	assert.Empty(t, record.Metadata)

	restored, err := recordToBacktest(record)
	require.NoError(t, err)
	assert.Equal(t, types.BacktestFailed, restored.Status)
	assert.Equal(t, bt.ErrorMessage, restored.ErrorMessage)
	assert.Nil(t, restored.MonteCarlo)
}

func TestCandles_RequiresMarketAndInterval(t *testing.T) {
	s := &Store{}

	_, err := s.Candles(context.Background(), CandleQuery{MarketID: "btc-usd"})
	assert.Error(t, err)

	_, err = s.Candles(context.Background(), CandleQuery{Interval: "1h"})
	assert.Error(t, err)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "market_candles", CandleRecord{}.TableName())
	assert.Equal(t, "orders", OrderRecord{}.TableName())
	assert.Equal(t, "positions", PositionRecord{}.TableName())
	assert.Equal(t, "strategy_state", StrategyStateRecord{}.TableName())
	assert.Equal(t, "trade_log", TradeLogRecord{}.TableName())
}
