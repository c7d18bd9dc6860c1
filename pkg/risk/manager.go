// Package risk gates trades against position, drawdown and volatility
// limits using live exchange state.
package risk

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ziher12/bitcio-trading/pkg/bitcio"
	"github.com/ziher12/bitcio-trading/pkg/models"
)

// Limits holds the risk thresholds. The value is fixed for a Manager's
// lifetime; building a new configuration means building a new Manager.
type Limits struct {
	// MaxPositionFraction is the maximum fraction of the base-asset balance
	// allowed in a single trade, in (0, 1].
	MaxPositionFraction float64
	// MinSpread is the minimum relative bid/ask spread required to enter.
	MinSpread float64
	// MaxLossFraction is the maximum drawdown from the initial balance, in (0, 1].
	MaxLossFraction float64
}

// volatilityThreshold rejects trades when stddev/mean of recent trade
// prices exceeds 5%.
const volatilityThreshold = 0.05

// volatilityWindow is the number of historical trades sampled per check.
const volatilityWindow = 100

// totalBalanceAssets is the fixed asset set summed for the account baseline
// and every drawdown check.
var totalBalanceAssets = []string{"BTC", "ETH", "USDT"}

// Reason identifies which check rejected a trade.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonPositionSize Reason = "position_size"
	ReasonDrawdown     Reason = "drawdown"
	ReasonVolatility   Reason = "volatility"
)

// Decision is the result of a risk check. Allowed is the original boolean
// contract; Reason is an additive extension naming the failed check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Manager answers whether a trade is permitted right now. Every check
// performs fresh gateway I/O; nothing is cached between calls.
type Manager struct {
	exchange       bitcio.Exchange
	limits         Limits
	initialBalance float64
	logger         *logrus.Logger
}

// NewManager captures the account baseline exactly once, at construction.
// The baseline is never recomputed for the manager's lifetime.
func NewManager(ctx context.Context, exchange bitcio.Exchange, limits Limits, logger *logrus.Logger) (*Manager, error) {
	initial, err := TotalBalance(ctx, exchange)
	if err != nil {
		return nil, fmt.Errorf("capture account baseline: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"initial_balance":       initial,
		"max_position_fraction": limits.MaxPositionFraction,
		"min_spread":            limits.MinSpread,
		"max_loss_fraction":     limits.MaxLossFraction,
	}).Info("Risk manager initialized")

	return &Manager{
		exchange:       exchange,
		limits:         limits,
		initialBalance: initial,
		logger:         logger,
	}, nil
}

// Limits returns the immutable risk limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// TotalBalance sums the balances of the fixed asset set.
func TotalBalance(ctx context.Context, exchange bitcio.Exchange) (float64, error) {
	total := 0.0
	for _, asset := range totalBalanceAssets {
		balance, err := exchange.GetBalance(ctx, asset)
		if err != nil {
			return 0, fmt.Errorf("balance for %s: %w", asset, err)
		}
		total += balance
	}
	return total, nil
}

// CanTrade reports whether a trade of the given size passes all risk
// checks. Rejection is a value, never an error; errors are gateway
// failures and propagate to the caller.
func (m *Manager) CanTrade(ctx context.Context, symbol string, quantity float64, side models.OrderSide) (bool, error) {
	decision, err := m.Check(ctx, symbol, quantity, side)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Check evaluates the three risk criteria in order: position size against
// the base-asset balance, drawdown against the initial baseline, and recent
// price volatility. All must pass; the first failure names the reason.
func (m *Manager) Check(ctx context.Context, symbol string, quantity float64, side models.OrderSide) (Decision, error) {
	balance, err := m.exchange.GetBalance(ctx, BaseAsset(symbol))
	if err != nil {
		return Decision{}, err
	}

	book, err := m.exchange.GetOrderBook(ctx, symbol)
	if err != nil {
		return Decision{}, err
	}

	price := book.BestAsk()
	if side == models.OrderSideSell {
		price = book.BestBid()
	}

	positionValue := quantity * price
	if positionValue > balance*m.limits.MaxPositionFraction {
		m.logger.WithFields(logrus.Fields{
			"symbol":         symbol,
			"position_value": positionValue,
			"balance":        balance,
		}).Debug("Trade rejected: position size")
		return Decision{Reason: ReasonPositionSize}, nil
	}

	current, err := TotalBalance(ctx, m.exchange)
	if err != nil {
		return Decision{}, err
	}
	if (m.initialBalance-current)/m.initialBalance > m.limits.MaxLossFraction {
		m.logger.WithFields(logrus.Fields{
			"initial_balance": m.initialBalance,
			"current_balance": current,
		}).Warn("Trade rejected: drawdown limit")
		return Decision{Reason: ReasonDrawdown}, nil
	}

	high, err := m.isHighVolatility(ctx, symbol)
	if err != nil {
		return Decision{}, err
	}
	if high {
		m.logger.WithField("symbol", symbol).Debug("Trade rejected: volatility")
		return Decision{Reason: ReasonVolatility}, nil
	}

	return Decision{Allowed: true}, nil
}

// isHighVolatility measures stddev/mean over the last trades. An empty
// trade history counts as zero volatility.
func (m *Manager) isHighVolatility(ctx context.Context, symbol string) (bool, error) {
	trades, err := m.exchange.GetHistoricalTrades(ctx, symbol, volatilityWindow)
	if err != nil {
		return false, err
	}
	if len(trades) == 0 {
		return false, nil
	}

	prices := make([]float64, 0, len(trades))
	for _, t := range trades {
		prices = append(prices, t.Price)
	}

	volatility := stddev(prices) / mean(prices)
	return volatility > volatilityThreshold, nil
}

// BaseAsset extracts the traded asset from a symbol like BTCUSDT.
func BaseAsset(symbol string) string {
	if i := strings.Index(symbol, "USDT"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
