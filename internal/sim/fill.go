// Package sim implements the deterministic order-fill simulator. Fills are
// a pure function of the order request, the reference price, and the
// fee/slippage configuration; there is no resting book and no persistence.
package sim

import (
	"errors"
	"fmt"

	"github.com/akhenda/polypaper/pkg/types"
)

var (
	// ErrNoPriceData is returned when no reference price exists for the
	// market. The order is rejected; account state is untouched.
	ErrNoPriceData = errors.New("no price data available for market")

	// ErrUnfillable is returned when a LIMIT or STOP order cannot execute
	// against the current reference price. There is no resting book, so the
	// order is rejected rather than queued.
	ErrUnfillable = errors.New("order unfillable at current price")

	// ErrInvalidQuantity is returned for non-positive order quantities.
	ErrInvalidQuantity = errors.New("order quantity must be positive")
)

// Config is the execution-cost model: both rates are fractions
// (0.001 = 10 bps).
type Config struct {
	FeeRate      float64
	SlippageRate float64
}

// DefaultConfig mirrors the standard paper-trading cost assumptions:
// 0.1% fee, 0.05% slippage.
func DefaultConfig() Config {
	return Config{FeeRate: 0.001, SlippageRate: 0.0005}
}

// OrderRequest is the subset of an order relevant to fill simulation.
type OrderRequest struct {
	Side     types.OrderSide
	Type     types.OrderType
	Quantity float64
	// Price is the limit price for LIMIT orders and the trigger price for
	// STOP orders; ignored for MARKET orders.
	Price float64
}

// Fill is the simulated execution. Quantity always equals the requested
// quantity: the current model fills fully or rejects, never partially.
type Fill struct {
	Price    float64
	Quantity float64
	Fee      float64
	Slippage float64
}

// Notional is the traded value at the fill price, before fees.
func (f Fill) Notional() float64 {
	return f.Price * f.Quantity
}

// Simulate determines the fill for an order against the latest reference
// price (normally the most recent close).
//
// MARKET orders fill at the reference adjusted by slippage in the adverse
// direction. LIMIT orders fill only when the reference is at least as
// favorable as the limit (BUY: ref <= limit, SELL: ref >= limit). STOP
// orders trigger once the reference has crossed the stop (BUY: ref >= stop,
// SELL: ref <= stop) and then fill like MARKET orders.
func Simulate(req OrderRequest, refPrice float64, cfg Config) (Fill, error) {
	if refPrice <= 0 {
		return Fill{}, ErrNoPriceData
	}
	if req.Quantity <= 0 {
		return Fill{}, ErrInvalidQuantity
	}

	switch req.Type {
	case types.OrderTypeMarket:
		// Always executable.
	case types.OrderTypeLimit:
		if req.Side == types.SideBuy && refPrice > req.Price {
			return Fill{}, fmt.Errorf("buy limit %.8f below reference %.8f: %w", req.Price, refPrice, ErrUnfillable)
		}
		if req.Side == types.SideSell && refPrice < req.Price {
			return Fill{}, fmt.Errorf("sell limit %.8f above reference %.8f: %w", req.Price, refPrice, ErrUnfillable)
		}
	case types.OrderTypeStop:
		if req.Side == types.SideBuy && refPrice < req.Price {
			return Fill{}, fmt.Errorf("buy stop %.8f not triggered at reference %.8f: %w", req.Price, refPrice, ErrUnfillable)
		}
		if req.Side == types.SideSell && refPrice > req.Price {
			return Fill{}, fmt.Errorf("sell stop %.8f not triggered at reference %.8f: %w", req.Price, refPrice, ErrUnfillable)
		}
	default:
		return Fill{}, fmt.Errorf("unsupported order type %q", req.Type)
	}

	fillPrice := applySlippage(refPrice, req.Side, cfg.SlippageRate)
	if req.Type == types.OrderTypeLimit {
		// Slippage never pushes a limit fill through its own limit price.
		if req.Side == types.SideBuy && fillPrice > req.Price {
			fillPrice = req.Price
		}
		if req.Side == types.SideSell && fillPrice < req.Price {
			fillPrice = req.Price
		}
	}
	fill := Fill{
		Price:    fillPrice,
		Quantity: req.Quantity,
		Fee:      fillPrice * req.Quantity * cfg.FeeRate,
	}
	if req.Side == types.SideBuy {
		fill.Slippage = (fillPrice - refPrice) * req.Quantity
	} else {
		fill.Slippage = (refPrice - fillPrice) * req.Quantity
	}
	return fill, nil
}

// applySlippage moves the price against the taker: buyers pay more,
// sellers receive less.
func applySlippage(price float64, side types.OrderSide, rate float64) float64 {
	if side == types.SideBuy {
		return price * (1 + rate)
	}
	return price * (1 - rate)
}
