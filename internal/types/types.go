package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string
type OrderType string
type OrderStatus string

const (
	BUY  OrderSide = "buy"
	SELL OrderSide = "sell"
)

const (
	LIMIT  OrderType = "limit"
	MARKET OrderType = "market"
)

const (
	OPEN      OrderStatus = "open"
	PARTIAL   OrderStatus = "partially_filled"
	FILLED    OrderStatus = "filled"
	CANCELLED OrderStatus = "cancelled"
)

// Terminal reports whether no further fills or cancels can apply.
func (s OrderStatus) Terminal() bool {
	return s == FILLED || s == CANCELLED
}

type Order struct {
	OrderID        string           `json:"order_id"`
	ClientID       string           `json:"client_id"`
	Instrument     string           `json:"instrument"`
	Side           OrderSide        `json:"side"`
	Type           OrderType        `json:"type"`
	Price          *decimal.Decimal `json:"price,omitempty"` // nil for market orders
	Quantity       decimal.Decimal  `json:"quantity"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	Status         OrderStatus      `json:"status"`
	Timestamp      time.Time        `json:"timestamp"`

	// Revision increases on every book mutation of this order; the
	// durable upsert ignores snapshots older than the stored row.
	Revision int64 `json:"-"`
}

// Remaining is the unfilled part of the order.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

type Trade struct {
	TradeID     string          `json:"trade_id"`
	Instrument  string          `json:"instrument"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Timestamp   time.Time       `json:"timestamp"`
}

type PlaceOrderRequest struct {
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	ClientID       string           `json:"client_id" validate:"required"`
	Instrument     string           `json:"instrument" validate:"required"`
	Side           OrderSide        `json:"side" validate:"required,oneof=buy sell"`
	Type           OrderType        `json:"type" validate:"required,oneof=limit market"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Quantity       decimal.Decimal  `json:"quantity"`
}

type PlaceOrderResponse struct {
	Message string  `json:"message"`
	Order   Order   `json:"order"`
	Trades  []Trade `json:"trades"`
}

// BookLevel is one aggregated price level of a book snapshot. Cumulative
// sums quantities from the best price outward.
type BookLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

type BookSnapshot struct {
	Instrument string      `json:"instrument"`
	Bids       []BookLevel `json:"bids"`
	Asks       []BookLevel `json:"asks"`
}
