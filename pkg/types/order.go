package types

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the execution style requested for an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// OrderStatus tracks the order lifecycle:
// PENDING -> {OPEN, REJECTED} -> {PARTIALLY_FILLED -> FILLED, CANCELLED}.
// In the current fill model every accepted order fills fully and
// immediately, so PARTIALLY_FILLED is reserved for a future resting book.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// Order is a simulated order against a paper account.
type Order struct {
	ID             string      `json:"id"`
	AccountID      string      `json:"account_id"`
	MarketID       string      `json:"market_id"`
	StrategyID     string      `json:"strategy_id,omitempty"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Quantity       float64     `json:"quantity"`
	Price          float64     `json:"price,omitempty"`
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	FilledAt       *time.Time  `json:"filled_at,omitempty"`
}
