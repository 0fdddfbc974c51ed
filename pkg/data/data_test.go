package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhenda/polypaper/pkg/types"
)

func writeCandleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCSVLoader_Load(t *testing.T) {
	path := writeCandleFile(t, `timestamp,open,high,low,close,volume
2025-01-01 00:00:00,100,101,99,100.5,1200
2025-01-01 01:00:00,100.5,102,100,101.5,900
`)

	candles, err := NewCSVLoader(nil).Load(path, "btc-usd", "1h")
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, "btc-usd", first.MarketID)
	assert.Equal(t, "1h", first.Interval)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 101.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 100.5, first.Close)
	assert.Equal(t, 1200.0, first.Volume)
}

func TestCSVLoader_SkipsBadRows(t *testing.T) {
	path := writeCandleFile(t, `timestamp,open,high,low,close,volume
2025-01-01 00:00:00,100,101,99,100.5,1200
not-a-date,100,101,99,100.5,1200
2025-01-01 01:00:00,oops,102,100,101.5,900
2025-01-01 02:00:00,101,103,101,102.5,700
`)

	candles, err := NewCSVLoader(nil).Load(path, "btc-usd", "1h")
	require.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.Equal(t, 102.5, candles[1].Close)
}

func TestCSVLoader_UnixMillisAndRFC3339Timestamps(t *testing.T) {
	millis := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	path := writeCandleFile(t, "timestamp,open,high,low,close,volume\n"+
		"2025-01-01T01:00:00Z,1,2,0.5,1.5,10\n"+
		"1735689600000,1,2,0.5,1.5,10\n")

	candles, err := NewCSVLoader(nil).Load(path, "eth-usd", "1h")
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC), candles[0].Timestamp)
	assert.Equal(t, time.UnixMilli(millis).UTC(), candles[1].Timestamp)
}

func TestCSVLoader_EmptyFileFails(t *testing.T) {
	path := writeCandleFile(t, "timestamp,open,high,low,close,volume\n")
	_, err := NewCSVLoader(nil).Load(path, "btc-usd", "1h")
	assert.Error(t, err)
}

func TestCSVLoader_MissingFileFails(t *testing.T) {
	_, err := NewCSVLoader(nil).Load(filepath.Join(t.TempDir(), "nope.csv"), "btc-usd", "1h")
	assert.Error(t, err)
}

func candlesAt(times ...time.Time) []types.Candle {
	candles := make([]types.Candle, len(times))
	for i, ts := range times {
		candles[i] = types.Candle{MarketID: "btc-usd", Interval: "1h", Timestamp: ts, Close: 100}
	}
	return candles
}

func TestFilterByDateRange(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := candlesAt(base, base.Add(time.Hour), base.Add(2*time.Hour), base.Add(3*time.Hour))

	filtered := FilterByDateRange(candles, base.Add(time.Hour), base.Add(2*time.Hour))
	require.Len(t, filtered, 2)
	assert.Equal(t, base.Add(time.Hour), filtered[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Hour), filtered[1].Timestamp)

	assert.Empty(t, FilterByDateRange(candles, base.AddDate(1, 0, 0), base.AddDate(1, 0, 1)))
}

func TestFilterByPeriod(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := candlesAt(base, base.Add(time.Hour), base.Add(2*time.Hour), base.Add(3*time.Hour))

	filtered := FilterByPeriod(candles, 2*time.Hour)
	require.Len(t, filtered, 3)
	assert.Equal(t, base.Add(time.Hour), filtered[0].Timestamp)

	// Zero period means no filtering.
	assert.Len(t, FilterByPeriod(candles, 0), 4)
}

func TestValidateChronology(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, ValidateChronology(candlesAt(base, base.Add(time.Hour))))
	assert.NoError(t, ValidateChronology(nil))

	err := ValidateChronology(candlesAt(base.Add(time.Hour), base))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")

	err = ValidateChronology(candlesAt(base, base))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBybitInterval(t *testing.T) {
	code, err := BybitInterval("1h")
	require.NoError(t, err)
	assert.Equal(t, "60", code)

	code, err = BybitInterval("1d")
	require.NoError(t, err)
	assert.Equal(t, "D", code)

	_, err = BybitInterval("7x")
	assert.Error(t, err)
}

func TestPaginateKlines_InclusiveEndDoesNotDuplicateBoundaries(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	const totalBars = 2500
	const pageSize = 1000

	// Serves hourly bars newest-first with an inclusive end cursor, the way
	// the kline endpoint pages.
	fetch := func(start, end time.Time) ([]types.Candle, error) {
		var page []types.Candle
		for ts := base.Add(time.Duration(totalBars-1) * time.Hour); !ts.Before(base); ts = ts.Add(-time.Hour) {
			if ts.After(end) || ts.Before(start) {
				continue
			}
			page = append(page, types.Candle{Timestamp: ts, Close: 100})
			if len(page) == pageSize {
				break
			}
		}
		return page, nil
	}

	candles, err := paginateKlines(base, base.Add(totalBars*time.Hour), fetch)
	require.NoError(t, err)
	require.Len(t, candles, totalBars)

	require.NoError(t, ValidateChronology(candles))
	assert.Equal(t, base, candles[0].Timestamp)
	assert.Equal(t, base.Add((totalBars-1)*time.Hour), candles[totalBars-1].Timestamp)
}

func TestParseKlineList(t *testing.T) {
	list := [][]string{
		{"1735693200000", "101", "103", "100", "102", "900", "91800"},
		{"1735689600000", "100", "102", "99", "101", "1200", "121200"},
	}

	candles, err := parseKlineList(list)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.UnixMilli(1735693200000).UTC(), candles[0].Timestamp)
	assert.Equal(t, 102.0, candles[0].Close)
	assert.Equal(t, 1200.0, candles[1].Volume)

	// Short rows are skipped, malformed numbers are errors.
	candles, err = parseKlineList([][]string{{"1735689600000", "100"}})
	require.NoError(t, err)
	assert.Empty(t, candles)

	_, err = parseKlineList([][]string{{"oops", "100", "102", "99", "101", "1200", "0"}})
	assert.Error(t, err)
}
