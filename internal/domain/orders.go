package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// OrderDirection represents the side of an order
type OrderDirection string

const (
	OrderDirectionBuy  OrderDirection = "BUY"
	OrderDirectionSell OrderDirection = "SELL"
)

// OrderType represents how an order is priced
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	// OrderTypeOptionExercise converts an option position into its
	// underlying (physical delivery) or cash (cash-settled contracts)
	OrderTypeOptionExercise OrderType = "OPTION_EXERCISE"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// IsOpen reports whether the order can still receive fills
func (s OrderStatus) IsOpen() bool {
	switch s {
	case OrderStatusNew, OrderStatusSubmitted, OrderStatusPartiallyFilled:
		return true
	}
	return false
}

// Order is the read-only order contract consumed from the order layer.
// Quantity is signed: positive buys, negative sells.
type Order struct {
	ID         string    `json:"id"`
	Symbol     Symbol    `json:"symbol"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	Time       time.Time `json:"time"`
}

// NewOrderID returns a fresh order identifier
func NewOrderID() string {
	return uuid.New().String()
}

// Direction derives the order side from the signed quantity
func (o *Order) Direction() OrderDirection {
	if o.Quantity < 0 {
		return OrderDirectionSell
	}
	return OrderDirectionBuy
}

// AbsQuantity returns the unsigned order quantity
func (o *Order) AbsQuantity() float64 {
	return math.Abs(o.Quantity)
}

// OrderTicket tracks the fill progress of a submitted order.
type OrderTicket struct {
	OrderID        string      `json:"order_id"`
	Quantity       float64     `json:"quantity"`
	QuantityFilled float64     `json:"quantity_filled"`
	Status         OrderStatus `json:"status"`
}

// UnfilledQuantity returns the signed quantity still open on the ticket
func (t *OrderTicket) UnfilledQuantity() float64 {
	return t.Quantity - t.QuantityFilled
}

// Fill is the order-event contract consumed from the order layer when a
// brokerage reports an execution. Quantity is signed like Order.Quantity.
type Fill struct {
	OrderID  string    `json:"order_id"`
	Symbol   Symbol    `json:"symbol"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Fee      Money     `json:"fee"`
	TimeUTC  time.Time `json:"time_utc"`
}

// AbsQuantity returns the unsigned fill quantity
func (f *Fill) AbsQuantity() float64 {
	return math.Abs(f.Quantity)
}
