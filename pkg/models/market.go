package models

import (
	"time"
)

type OrderBook struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
}

type OrderBookLevel struct {
	Price float64
	Size  float64
}

// BestBid returns the top-of-book bid price, or 0 if the side is empty.
func (ob *OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the top-of-book ask price, or 0 if the side is empty.
func (ob *OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

type Ticker struct {
	Symbol    string
	BidPrice  float64
	BidSize   float64
	AskPrice  float64
	AskSize   float64
	LastPrice float64
	LastSize  float64
	Timestamp time.Time
}

type Trade struct {
	Symbol    string
	Price     float64
	Size      float64
	Side      string
	TradeID   string
	Timestamp time.Time
}
