// Package data loads historical candles from CSV files or the Bybit
// market data API and normalizes them into chronological candle slices.
package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akhenda/polypaper/pkg/types"
)

// CSVColumns maps candle fields to CSV column indexes. DateFormat is a Go
// time layout; leave it empty to also accept unix millisecond timestamps.
type CSVColumns struct {
	Timestamp  int
	Open       int
	High       int
	Low        int
	Close      int
	Volume     int
	MinColumns int
	DateFormat string
}

// DefaultCSVColumns matches the common timestamp,open,high,low,close,volume
// export layout.
var DefaultCSVColumns = CSVColumns{
	Timestamp:  0,
	Open:       1,
	High:       2,
	Low:        3,
	Close:      4,
	Volume:     5,
	MinColumns: 6,
	DateFormat: "2006-01-02 15:04:05",
}

// CSVLoader reads candle files into []types.Candle. Bad lines are logged
// and skipped rather than failing the whole file.
type CSVLoader struct {
	columns CSVColumns
	logger  *logrus.Entry
}

// NewCSVLoader creates a loader with the default column layout.
func NewCSVLoader(log *logrus.Logger) *CSVLoader {
	return NewCSVLoaderWithColumns(DefaultCSVColumns, log)
}

// NewCSVLoaderWithColumns creates a loader with a custom column layout.
func NewCSVLoaderWithColumns(columns CSVColumns, log *logrus.Logger) *CSVLoader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CSVLoader{
		columns: columns,
		logger:  log.WithField("component", "csv_loader"),
	}
}

// Load reads one CSV file and stamps every candle with the given market id
// and interval. Candles come back in file order; call ValidateChronology
// before feeding them to a backtest.
func (l *CSVLoader) Load(path, marketID, interval string) ([]types.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// Skip header.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	var candles []types.Candle
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", path, lineNum+1, err)
		}
		lineNum++

		candle, err := l.parseRecord(record, marketID, interval)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"file": path,
				"line": lineNum,
			}).Warnf("skipping bad candle row: %v", err)
			continue
		}
		candles = append(candles, candle)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("no valid candles in %s", path)
	}

	l.logger.WithFields(logrus.Fields{
		"file":    path,
		"market":  marketID,
		"candles": len(candles),
	}).Info("loaded candle file")
	return candles, nil
}

func (l *CSVLoader) parseRecord(record []string, marketID, interval string) (types.Candle, error) {
	cols := l.columns
	if len(record) < cols.MinColumns {
		return types.Candle{}, fmt.Errorf("expected %d columns, got %d", cols.MinColumns, len(record))
	}

	timestamp, err := parseTimestamp(record[cols.Timestamp], cols.DateFormat)
	if err != nil {
		return types.Candle{}, err
	}

	values := make([]float64, 5)
	for i, col := range []int{cols.Open, cols.High, cols.Low, cols.Close, cols.Volume} {
		v, err := strconv.ParseFloat(record[col], 64)
		if err != nil {
			return types.Candle{}, fmt.Errorf("parse column %d %q: %w", col, record[col], err)
		}
		values[i] = v
	}

	return types.Candle{
		MarketID:  marketID,
		Interval:  interval,
		Timestamp: timestamp,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

// parseTimestamp accepts the configured layout, RFC 3339, and unix
// millisecond integers, in that order.
func parseTimestamp(value, layout string) (time.Time, error) {
	if layout != "" {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
