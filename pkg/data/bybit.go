package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/sirupsen/logrus"

	"github.com/akhenda/polypaper/pkg/types"
)

const (
	bybitMaxKlineLimit = 1000
	bybitCategorySpot  = "spot"
)

// bybitIntervals maps our interval strings to Bybit kline interval codes.
var bybitIntervals = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
	"1w":  "W",
}

// BybitInterval converts an interval like "1h" to Bybit's wire code ("60").
func BybitInterval(interval string) (string, error) {
	code, ok := bybitIntervals[interval]
	if !ok {
		return "", fmt.Errorf("interval %q is not supported by bybit klines", interval)
	}
	return code, nil
}

// BybitProvider fetches historical candles from the Bybit market data API.
// Kline endpoints are public, so no API keys are needed.
type BybitProvider struct {
	client *bybit_api.Client
	logger *logrus.Entry
}

// NewBybitProvider creates a provider against the Bybit mainnet.
func NewBybitProvider(log *logrus.Logger) *BybitProvider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BybitProvider{
		client: bybit_api.NewBybitHttpClient("", "", bybit_api.WithBaseURL(bybit_api.MAINNET)),
		logger: log.WithField("component", "bybit_provider"),
	}
}

// Candles fetches all candles for [start, end), paginating backwards the way
// the kline endpoint pages: each response is newest-first and capped at 1000
// rows, so we walk the end cursor down until the range is covered.
func (p *BybitProvider) Candles(ctx context.Context, marketID, symbol, interval string, start, end time.Time) ([]types.Candle, error) {
	code, err := BybitInterval(interval)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	candles, err := paginateKlines(start, end, func(start, end time.Time) ([]types.Candle, error) {
		return p.fetchPage(ctx, symbol, code, start, end)
	})
	if err != nil {
		return nil, err
	}
	for i := range candles {
		candles[i].MarketID = marketID
		candles[i].Interval = interval
	}

	p.logger.WithFields(logrus.Fields{
		"symbol":  symbol,
		"market":  marketID,
		"candles": len(candles),
	}).Info("fetched bybit klines")
	return candles, nil
}

// paginateKlines walks the end cursor backwards through newest-first pages.
// The kline end parameter is inclusive, so the next cursor steps 1ms below
// the oldest candle already fetched to avoid duplicating page boundaries.
func paginateKlines(start, end time.Time, fetch func(start, end time.Time) ([]types.Candle, error)) ([]types.Candle, error) {
	var candles []types.Candle
	cursor := end
	for cursor.After(start) {
		batch, err := fetch(start, cursor)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		// batch is newest-first; prepend in chronological order.
		page := make([]types.Candle, 0, len(batch))
		for i := len(batch) - 1; i >= 0; i-- {
			page = append(page, batch[i])
		}
		candles = append(page, candles...)

		cursor = batch[len(batch)-1].Timestamp.Add(-time.Millisecond)
	}
	return candles, nil
}

// LatestTicker returns the current spot price for a symbol.
func (p *BybitProvider) LatestTicker(ctx context.Context, marketID, symbol string) (types.Ticker, error) {
	params := map[string]interface{}{
		"category": bybitCategorySpot,
		"symbol":   symbol,
	}

	serverResp, err := p.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("get tickers: %w", err)
	}
	if serverResp.RetCode != 0 {
		return types.Ticker{}, fmt.Errorf("bybit error %d: %s", serverResp.RetCode, serverResp.RetMsg)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("marshal ticker result: %w", err)
	}

	var tickerResult struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &tickerResult); err != nil {
		return types.Ticker{}, fmt.Errorf("unmarshal ticker result: %w", err)
	}
	if len(tickerResult.List) == 0 {
		return types.Ticker{}, fmt.Errorf("no ticker data for %s", symbol)
	}

	price, err := strconv.ParseFloat(tickerResult.List[0].LastPrice, 64)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("parse last price %q: %w", tickerResult.List[0].LastPrice, err)
	}
	return types.Ticker{MarketID: marketID, Price: price, Timestamp: time.Now().UTC()}, nil
}

func (p *BybitProvider) fetchPage(ctx context.Context, symbol, intervalCode string, start, end time.Time) ([]types.Candle, error) {
	reqParams := map[string]interface{}{
		"category": bybitCategorySpot,
		"symbol":   symbol,
		"interval": intervalCode,
		"start":    start.UnixMilli(),
		"end":      end.UnixMilli(),
		"limit":    bybitMaxKlineLimit,
	}

	serverResp, err := p.client.NewUtaBybitServiceWithParams(reqParams).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("get klines: %w", err)
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", serverResp.RetCode, serverResp.RetMsg)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal kline result: %w", err)
	}

	var klineResult struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, fmt.Errorf("unmarshal kline result: %w", err)
	}

	return parseKlineList(klineResult.List)
}

// parseKlineList converts Bybit's row format into candles. Each row is
// [startTime, open, high, low, close, volume, turnover] as strings, and the
// list is newest-first.
func parseKlineList(list [][]string) ([]types.Candle, error) {
	candles := make([]types.Candle, 0, len(list))
	for _, row := range list {
		if len(row) < 7 {
			continue
		}

		millis, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse kline start time %q: %w", row[0], err)
		}

		values := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("parse kline field %q: %w", row[i+1], err)
			}
			values[i] = v
		}

		candles = append(candles, types.Candle{
			Timestamp: time.UnixMilli(millis).UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return candles, nil
}
