// Package trader implements the scalping engine: manual buy/sell, the
// autonomous scalp loop, and the realized-P&L ledger.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ziher12/bitcio-trading/pkg/bitcio"
	"github.com/ziher12/bitcio-trading/pkg/indicator"
	"github.com/ziher12/bitcio-trading/pkg/models"
	"github.com/ziher12/bitcio-trading/pkg/risk"
)

// RejectionReason is the fixed reason carried by risk-rejected results.
const RejectionReason = "risk limits exceeded"

const (
	// cycleWait separates scalp iterations and risk-rejected retries.
	cycleWait = 5 * time.Second
	// holdWait is the short hold between a scalp buy and its exit check.
	holdWait = 1 * time.Second

	// Indicator thresholds for entry and exit.
	oversoldRSI   = 30.0
	overboughtRSI = 70.0

	// historyLimit is how many historical trades feed the indicators.
	historyLimit = 1000
	// openOrdersLimit bounds the order-history fetch for open positions.
	openOrdersLimit = 100
)

// Scalper orchestrates trading: it consults the indicators and the risk
// manager, places orders through the exchange, and keeps the realized-P&L
// ledger and trade log. The ledger and log mutate only on filled orders.
//
// All exported methods are safe for concurrent use; the scalp loop itself
// never overlaps two of its own iterations.
type Scalper struct {
	exchange bitcio.Exchange
	risk     *risk.Manager
	clock    Clock
	logger   *logrus.Logger

	mu             sync.Mutex
	realizedProfit float64
	trades         []models.TradeRecord
}

func NewScalper(exchange bitcio.Exchange, riskManager *risk.Manager, logger *logrus.Logger) *Scalper {
	return &Scalper{
		exchange: exchange,
		risk:     riskManager,
		clock:    realClock{},
		logger:   logger,
	}
}

// Buy places a limit buy at the current best ask, gated by the risk
// manager. A risk rejection returns a structured result with no order sent;
// gateway failures propagate. The ledger changes only on a filled result.
func (s *Scalper) Buy(ctx context.Context, symbol string, quantity float64) (*models.Order, error) {
	return s.trade(ctx, symbol, quantity, models.OrderSideBuy)
}

// Sell places a limit sell at the current best bid, symmetric to Buy.
func (s *Scalper) Sell(ctx context.Context, symbol string, quantity float64) (*models.Order, error) {
	return s.trade(ctx, symbol, quantity, models.OrderSideSell)
}

func (s *Scalper) trade(ctx context.Context, symbol string, quantity float64, side models.OrderSide) (*models.Order, error) {
	ok, err := s.risk.CanTrade(ctx, symbol, quantity, side)
	if err != nil {
		return nil, fmt.Errorf("risk check: %w", err)
	}
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"symbol":   symbol,
			"side":     side,
			"quantity": quantity,
		}).Info("Order rejected by risk manager")
		return &models.Order{
			Symbol: symbol,
			Side:   side,
			Size:   quantity,
			Status: models.OrderStatusRejected,
			Reason: RejectionReason,
		}, nil
	}

	book, err := s.exchange.GetOrderBook(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch orderbook: %w", err)
	}

	price := book.BestAsk()
	if side == models.OrderSideSell {
		price = book.BestBid()
	}

	order, err := s.exchange.PlaceOrder(ctx, &models.OrderRequest{
		Symbol: symbol,
		Side:   side,
		Type:   models.OrderTypeLimit,
		Price:  price,
		Size:   quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	if order.Status == models.OrderStatusFilled {
		s.recordFill(side, price, quantity)
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"side":     side,
		"price":    price,
		"quantity": quantity,
		"status":   order.Status,
	}).Info("Order placed")

	return order, nil
}

// recordFill books a filled order: buys decrement the realized profit by
// notional value, sells increment it.
func (s *Scalper) recordFill(side models.OrderSide, price, quantity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notional := price * quantity
	if side == models.OrderSideBuy {
		s.realizedProfit -= notional
	} else {
		s.realizedProfit += notional
	}
	s.trades = append(s.trades, models.TradeRecord{
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Timestamp: s.clock.Now(),
	})
}

// AutoScalp runs the autonomous scalp loop until duration elapses or ctx is
// cancelled. Each iteration: risk-check a provisional buy, read the spread
// from the live book, compute RSI/SMA over recent trades, and enter on an
// oversold signal with a spread at or above the configured minimum. After a
// buy it holds briefly, then exits on the RSI value computed before the buy;
// that value is intentionally not recomputed after the hold.
func (s *Scalper) AutoScalp(ctx context.Context, symbol string, baseQuantity float64, duration time.Duration) error {
	s.logger.WithFields(logrus.Fields{
		"symbol":        symbol,
		"base_quantity": baseQuantity,
		"duration":      duration,
	}).Info("Starting auto-scalp loop")

	start := s.clock.Now()
	for s.clock.Now().Sub(start) < duration {
		ok, err := s.risk.CanTrade(ctx, symbol, baseQuantity, models.OrderSideBuy)
		if err != nil {
			return fmt.Errorf("risk check: %w", err)
		}
		if !ok {
			if err := s.wait(ctx, cycleWait); err != nil {
				return err
			}
			continue
		}

		book, err := s.exchange.GetOrderBook(ctx, symbol)
		if err != nil {
			return fmt.Errorf("fetch orderbook: %w", err)
		}
		bestBid := book.BestBid()
		bestAsk := book.BestAsk()
		spread := (bestBid - bestAsk) / bestAsk

		trades, err := s.exchange.GetHistoricalTrades(ctx, symbol, historyLimit)
		if err != nil {
			return fmt.Errorf("fetch trades: %w", err)
		}
		prices := make([]float64, 0, len(trades))
		for _, t := range trades {
			prices = append(prices, t.Price)
		}
		rsi := indicator.RSI(prices, indicator.DefaultRSIPeriod)
		sma := indicator.SMA(prices, indicator.DefaultSMAPeriod)

		s.logger.WithFields(logrus.Fields{
			"symbol": symbol,
			"spread": spread,
			"rsi":    rsi,
			"sma":    sma,
		}).Debug("Scalp signals")

		if spread >= s.risk.Limits().MinSpread && rsi < oversoldRSI {
			balance, err := s.exchange.GetBalance(ctx, risk.BaseAsset(symbol))
			if err != nil {
				return fmt.Errorf("fetch balance: %w", err)
			}
			quantity := baseQuantity
			if sized := balance * s.risk.Limits().MaxPositionFraction / bestAsk; sized < quantity {
				quantity = sized
			}
			if quantity > 0 {
				if _, err := s.Buy(ctx, symbol, quantity); err != nil {
					return err
				}
				if err := s.wait(ctx, holdWait); err != nil {
					return err
				}
				// Exit check reuses the pre-buy RSI on purpose.
				if rsi > overboughtRSI {
					if _, err := s.Sell(ctx, symbol, quantity); err != nil {
						return err
					}
				}
			}
		}

		if err := s.wait(ctx, cycleWait); err != nil {
			return err
		}
	}

	s.logger.WithField("symbol", symbol).Info("Auto-scalp loop finished")
	return nil
}

func (s *Scalper) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

// CalculateProfit returns the realized profit booked on filled orders. It
// is not mark-to-market and ignores unrealized exposure.
func (s *Scalper) CalculateProfit() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realizedProfit
}

// Trades returns a copy of the trade log in fill order.
func (s *Scalper) Trades() []models.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out
}

// GetOpenPositions returns the orders from recent history that are still
// open. Open exposure is inferred from order history; there is no separate
// position entity.
func (s *Scalper) GetOpenPositions(ctx context.Context, symbol string) ([]models.Order, error) {
	orders, err := s.exchange.GetOrderHistory(ctx, symbol, openOrdersLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch order history: %w", err)
	}

	open := make([]models.Order, 0)
	for _, order := range orders {
		if order.Status == models.OrderStatusOpen {
			open = append(open, order)
		}
	}
	return open, nil
}

// CancelAllOrders cancels every open order for the symbol.
func (s *Scalper) CancelAllOrders(ctx context.Context, symbol string) error {
	open, err := s.GetOpenPositions(ctx, symbol)
	if err != nil {
		return err
	}

	for _, order := range open {
		if err := s.exchange.CancelOrder(ctx, order.OrderID, symbol); err != nil {
			return fmt.Errorf("cancel order %s: %w", order.OrderID, err)
		}
		s.logger.WithFields(logrus.Fields{
			"symbol":   symbol,
			"order_id": order.OrderID,
		}).Info("Order cancelled")
	}
	return nil
}
