package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akhenda/polypaper/internal/ledger"
	"github.com/akhenda/polypaper/internal/logger"
	"github.com/akhenda/polypaper/pkg/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the Postgres connection with typed operations. Callers pass
// and receive domain records; no SQL or query fragments cross this
// boundary.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	models := []any{
		&CandleRecord{},
		&OrderRecord{},
		&PositionRecord{},
		&StrategyStateRecord{},
		&BacktestRecord{},
		&TradeLogRecord{},
	}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing gorm handle, used by tests.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CandleQuery is a structured candle lookup: explicit optional fields
// resolved into one parameterized query.
type CandleQuery struct {
	MarketID string
	Interval string
	// Start and End bound the timestamp range inclusively; zero values
	// leave the bound open.
	Start time.Time
	End   time.Time
	// Limit caps the number of rows returned; zero means no cap.
	Limit int
}

// Candles loads candles matching the query, ordered by timestamp.
func (s *Store) Candles(ctx context.Context, q CandleQuery) ([]types.Candle, error) {
	if q.MarketID == "" || q.Interval == "" {
		return nil, fmt.Errorf("candle query requires market_id and interval")
	}

	tx := s.db.WithContext(ctx).
		Where("market_id = ? AND interval = ?", q.MarketID, q.Interval).
		Order("timestamp ASC")
	if !q.Start.IsZero() {
		tx = tx.Where("timestamp >= ?", q.Start)
	}
	if !q.End.IsZero() {
		tx = tx.Where("timestamp <= ?", q.End)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var records []CandleRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}

	candles := make([]types.Candle, len(records))
	for i, r := range records {
		candles[i] = types.Candle{
			MarketID:  r.MarketID,
			Interval:  r.Interval,
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return candles, nil
}

// InsertCandles writes candles, silently skipping rows that already exist.
// Existing rows are never updated: candles are immutable once written.
func (s *Store) InsertCandles(ctx context.Context, candles []types.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	records := make([]CandleRecord, len(candles))
	for i, c := range candles {
		records[i] = CandleRecord{
			MarketID:  c.MarketID,
			Interval:  c.Interval,
			Timestamp: c.Timestamp,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, 500).Error
	if err != nil {
		return fmt.Errorf("insert candles: %w", err)
	}
	return nil
}

// SaveBacktest upserts a backtest row, serializing the equity curve, trade
// list, and parameters to JSON.
func (s *Store) SaveBacktest(ctx context.Context, bt *types.Backtest) error {
	record, err := backtestToRecord(bt)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("save backtest %s: %w", bt.ID, err)
	}
	return nil
}

// Backtest loads one backtest row by id.
func (s *Store) Backtest(ctx context.Context, id string) (*types.Backtest, error) {
	var record BacktestRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("backtest %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load backtest %s: %w", id, err)
	}
	return recordToBacktest(&record)
}

// MergeMonteCarlo attaches Monte Carlo results to a terminal backtest's
// metadata JSON under the monte_carlo key, preserving other metadata.
func (s *Store) MergeMonteCarlo(ctx context.Context, backtestID string, result *types.MonteCarloResult) error {
	var record BacktestRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", backtestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("backtest %s: %w", backtestID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load backtest %s: %w", backtestID, err)
	}

	metadata := map[string]json.RawMessage{}
	if len(record.Metadata) > 0 {
		if err := json.Unmarshal(record.Metadata, &metadata); err != nil {
			return fmt.Errorf("decode backtest metadata: %w", err)
		}
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode monte carlo result: %w", err)
	}
	metadata["monte_carlo"] = encoded

	merged, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode backtest metadata: %w", err)
	}

	err = s.db.WithContext(ctx).
		Model(&BacktestRecord{}).
		Where("id = ?", backtestID).
		Update("metadata", merged).Error
	if err != nil {
		return fmt.Errorf("merge monte carlo into backtest %s: %w", backtestID, err)
	}
	return nil
}

// SaveStrategyState upserts the circuit-breaker bookkeeping for one
// (account, strategy) pair.
func (s *Store) SaveStrategyState(ctx context.Context, state types.StrategyState) error {
	record := StrategyStateRecord{
		AccountID:         state.AccountID,
		StrategyID:        state.StrategyID,
		ConsecutiveLosses: state.ConsecutiveLosses,
		LastLossAt:        state.LastLossAt,
		CooldownUntil:     state.CooldownUntil,
		TotalTrades:       state.TotalTrades,
		WinningTrades:     state.WinningTrades,
		TotalPnL:          state.TotalPnL,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "strategy_id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("save strategy state %s/%s: %w", state.AccountID, state.StrategyID, err)
	}
	return nil
}

// StrategyState loads one pair's state.
func (s *Store) StrategyState(ctx context.Context, accountID, strategyID string) (types.StrategyState, error) {
	var record StrategyStateRecord
	err := s.db.WithContext(ctx).
		First(&record, "account_id = ? AND strategy_id = ?", accountID, strategyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.StrategyState{}, fmt.Errorf("strategy state %s/%s: %w", accountID, strategyID, ErrNotFound)
	}
	if err != nil {
		return types.StrategyState{}, fmt.Errorf("load strategy state: %w", err)
	}
	return types.StrategyState{
		AccountID:         record.AccountID,
		StrategyID:        record.StrategyID,
		ConsecutiveLosses: record.ConsecutiveLosses,
		LastLossAt:        record.LastLossAt,
		CooldownUntil:     record.CooldownUntil,
		TotalTrades:       record.TotalTrades,
		WinningTrades:     record.WinningTrades,
		TotalPnL:          record.TotalPnL,
	}, nil
}

// SaveOrder writes one order row.
func (s *Store) SaveOrder(ctx context.Context, order *types.Order) error {
	var price *float64
	if order.Price != 0 {
		p := order.Price
		price = &p
	}
	record := OrderRecord{
		ID:             order.ID,
		AccountID:      order.AccountID,
		MarketID:       order.MarketID,
		StrategyID:     order.StrategyID,
		Side:           string(order.Side),
		Type:           string(order.Type),
		Quantity:       order.Quantity,
		Price:          price,
		FilledQuantity: order.FilledQuantity,
		AvgFillPrice:   order.AvgFillPrice,
		Status:         string(order.Status),
		CreatedAt:      order.CreatedAt,
		FilledAt:       order.FilledAt,
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	return nil
}

// SavePosition upserts one position row.
func (s *Store) SavePosition(ctx context.Context, pos types.Position) error {
	record := PositionRecord{
		ID:            pos.ID,
		AccountID:     pos.AccountID,
		MarketID:      pos.MarketID,
		StrategyID:    pos.StrategyID,
		Side:          string(pos.Side),
		Quantity:      pos.Quantity,
		AvgEntryPrice: pos.AvgEntryPrice,
		RealizedPnL:   pos.RealizedPnL,
		IsOpen:        pos.IsOpen,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      pos.ClosedAt,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("save position %s: %w", pos.ID, err)
	}
	return nil
}

// AppendTradeLog writes audit entries produced by the ledger.
func (s *Store) AppendTradeLog(ctx context.Context, entries []ledger.TradeLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]TradeLogRecord, len(entries))
	for i, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode trade log details: %w", err)
		}
		records[i] = TradeLogRecord{
			AccountID:  e.AccountID,
			OrderID:    e.OrderID,
			PositionID: e.PositionID,
			Action:     e.Action,
			Details:    details,
			CreatedAt:  e.At,
		}
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("append trade log: %w", err)
	}
	return nil
}

func backtestToRecord(bt *types.Backtest) (*BacktestRecord, error) {
	parameters, err := json.Marshal(bt.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode backtest parameters: %w", err)
	}
	marketIDs, err := json.Marshal(bt.MarketIDs)
	if err != nil {
		return nil, fmt.Errorf("encode backtest market ids: %w", err)
	}
	equityCurve, err := json.Marshal(bt.EquityCurve)
	if err != nil {
		return nil, fmt.Errorf("encode equity curve: %w", err)
	}
	trades, err := json.Marshal(bt.Trades)
	if err != nil {
		return nil, fmt.Errorf("encode trades: %w", err)
	}

	record := &BacktestRecord{
		ID:             bt.ID,
		StrategyID:     bt.StrategyID,
		Parameters:     parameters,
		MarketIDs:      marketIDs,
		StartDate:      bt.StartDate,
		EndDate:        bt.EndDate,
		InitialCapital: bt.InitialCapital,
		FinalCapital:   bt.FinalCapital,
		TotalReturn:    bt.TotalReturn,
		SharpeRatio:    bt.SharpeRatio,
		MaxDrawdown:    bt.MaxDrawdown,
		WinRate:        bt.WinRate,
		TradeCount:     bt.TradeCount,
		EquityCurve:    equityCurve,
		Trades:         trades,
		Status:         string(bt.Status),
		ErrorMessage:   bt.ErrorMessage,
	}
	if bt.MonteCarlo != nil {
		metadata, err := json.Marshal(map[string]*types.MonteCarloResult{"monte_carlo": bt.MonteCarlo})
		if err != nil {
			return nil, fmt.Errorf("encode backtest metadata: %w", err)
		}
		record.Metadata = metadata
	}
	return record, nil
}

func recordToBacktest(record *BacktestRecord) (*types.Backtest, error) {
	bt := &types.Backtest{
		ID:             record.ID,
		StrategyID:     record.StrategyID,
		StartDate:      record.StartDate,
		EndDate:        record.EndDate,
		InitialCapital: record.InitialCapital,
		FinalCapital:   record.FinalCapital,
		TotalReturn:    record.TotalReturn,
		SharpeRatio:    record.SharpeRatio,
		MaxDrawdown:    record.MaxDrawdown,
		WinRate:        record.WinRate,
		TradeCount:     record.TradeCount,
		Status:         types.BacktestStatus(record.Status),
		ErrorMessage:   record.ErrorMessage,
	}
	if len(record.Parameters) > 0 {
		if err := json.Unmarshal(record.Parameters, &bt.Parameters); err != nil {
			return nil, fmt.Errorf("decode backtest parameters: %w", err)
		}
	}
	if len(record.MarketIDs) > 0 {
		if err := json.Unmarshal(record.MarketIDs, &bt.MarketIDs); err != nil {
			return nil, fmt.Errorf("decode backtest market ids: %w", err)
		}
	}
	if len(record.EquityCurve) > 0 {
		if err := json.Unmarshal(record.EquityCurve, &bt.EquityCurve); err != nil {
			return nil, fmt.Errorf("decode equity curve: %w", err)
		}
	}
	if len(record.Trades) > 0 {
		if err := json.Unmarshal(record.Trades, &bt.Trades); err != nil {
			return nil, fmt.Errorf("decode trades: %w", err)
		}
	}
	if len(record.Metadata) > 0 {
		var metadata struct {
			MonteCarlo *types.MonteCarloResult `json:"monte_carlo"`
		}
		if err := json.Unmarshal(record.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("decode backtest metadata: %w", err)
		}
		bt.MonteCarlo = metadata.MonteCarlo
	}
	return bt, nil
}
