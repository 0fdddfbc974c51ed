package types

import "time"

// Candle is a single OHLCV bar for one (market, interval). Candles are
// immutable once written; ordering and uniqueness are per
// (market_id, interval, timestamp).
type Candle struct {
	MarketID  string    `json:"market_id"`
	Interval  string    `json:"interval"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Ticker is the latest observed price for a market.
type Ticker struct {
	MarketID  string
	Price     float64
	Timestamp time.Time
}

// IntervalDuration converts interval strings like "5m", "1h", "4h", "1d"
// into a time.Duration. Unknown intervals return 0.
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}
