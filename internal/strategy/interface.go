// Package strategy defines the trading-strategy interface and the built-in
// example strategies. Strategies are pure signal generators: they see bars
// and their own open position, and emit at most one signal per bar. Loss
// streaks and cooldowns are enforced outside, by the risk circuit breaker.
package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/akhenda/polypaper/pkg/types"
)

// Strategy is implemented by all trading strategies.
type Strategy interface {
	// Metadata returns the strategy's identity and parameter description.
	Metadata() Metadata

	// OnBar processes one closed candle together with the strategy's open
	// position on that market (nil when flat). It returns a signal or nil.
	OnBar(candle types.Candle, position *types.Position) (*Signal, error)

	// RequiredHistory returns the number of candles the strategy must see
	// before it can emit signals.
	RequiredHistory() int
}

// Metadata describes a strategy for registries and reports.
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Signal is a strategy's instruction to the execution layer.
type Signal struct {
	MarketID   string
	Side       types.OrderSide
	Type       types.OrderType
	Quantity   float64
	// Price is the limit or stop price; zero for market orders.
	Price float64
	Confidence float64
	Reason     string
}

// Factory builds a strategy instance from raw JSON parameters. Unknown
// fields are rejected; missing fields take the strategy's defaults.
type Factory func(params json.RawMessage) (Strategy, error)

// decodeParams unmarshals raw JSON into a pre-defaulted parameter struct.
// A nil or empty payload keeps the defaults as-is.
func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode strategy parameters: %w", err)
	}
	return nil
}
