package models

import (
	"time"
)

type Order struct {
	OrderID    string
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Price      float64
	Size       float64
	FilledSize float64
	Status     OrderStatus
	Reason     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is an explicit tag: a limit order carries its price in the
// request, a market order carries none.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

type OrderStatus string

const (
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Price         float64
	Size          float64
}

// TradeRecord is one entry of the scalper's trade log, appended only when an
// order comes back filled.
type TradeRecord struct {
	Side      OrderSide
	Price     float64
	Quantity  float64
	Timestamp time.Time
}
