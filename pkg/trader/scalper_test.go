package trader

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ziher12/bitcio-trading/pkg/models"
	"github.com/ziher12/bitcio-trading/pkg/risk"
)

type fakeExchange struct {
	balances    map[string]float64
	book        models.OrderBook
	trades      []models.Trade
	history     []models.Order
	placeStatus models.OrderStatus

	placed    []models.OrderRequest
	cancelled []string
}

func (f *fakeExchange) GetOrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	book := f.book
	book.Symbol = symbol
	return &book, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	return f.balances[asset], nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, order *models.OrderRequest) (*models.Order, error) {
	f.placed = append(f.placed, *order)
	status := f.placeStatus
	if status == "" {
		status = models.OrderStatusFilled
	}
	return &models.Order{
		OrderID: "order-1",
		Symbol:  order.Symbol,
		Side:    order.Side,
		Type:    order.Type,
		Price:   order.Price,
		Size:    order.Size,
		Status:  status,
	}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, orderID, symbol string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeExchange) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]models.Order, error) {
	return f.history, nil
}

func (f *fakeExchange) GetHistoricalTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	return f.trades, nil
}

// fakeClock advances its notion of now whenever the scalper waits, so the
// loop runs without real delays.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func steadyTrades(price float64, n int) []models.Trade {
	trades := make([]models.Trade, n)
	for i := range trades {
		trades[i] = models.Trade{Price: price}
	}
	return trades
}

// driftTrades produces a gently but strictly decreasing price series: RSI
// is 0 while volatility stays far below the risk threshold.
func driftTrades(start float64, n int) []models.Trade {
	trades := make([]models.Trade, n)
	for i := range trades {
		trades[i] = models.Trade{Price: start - 0.01*float64(i)}
	}
	return trades
}

func newTestScalper(t *testing.T, exchange *fakeExchange, limits risk.Limits) *Scalper {
	t.Helper()
	manager, err := risk.NewManager(context.Background(), exchange, limits, testLogger())
	if err != nil {
		t.Fatalf("risk.NewManager: %v", err)
	}
	s := NewScalper(exchange, manager, testLogger())
	s.clock = &fakeClock{now: time.Unix(1700000000, 0)}
	return s
}

func defaultLimits() risk.Limits {
	return risk.Limits{MaxPositionFraction: 0.1, MinSpread: 0.001, MaxLossFraction: 0.05}
}

func normalBook() models.OrderBook {
	return models.OrderBook{
		Asks: []models.OrderBookLevel{{Price: 100, Size: 5}},
		Bids: []models.OrderBookLevel{{Price: 99.9, Size: 5}},
	}
}

func TestBuyRejectedByRisk(t *testing.T) {
	// Position value 50 > balance 10 * 0.1: risk gate fires, no order sent.
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 10, "ETH": 0, "USDT": 0},
		book:     normalBook(),
		trades:   steadyTrades(100, 100),
	}
	s := newTestScalper(t, exchange, defaultLimits())

	order, err := s.Buy(context.Background(), "BTCUSDT", 0.5)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if order.Status != models.OrderStatusRejected {
		t.Errorf("status = %q, want rejected", order.Status)
	}
	if order.Reason != RejectionReason {
		t.Errorf("reason = %q, want %q", order.Reason, RejectionReason)
	}
	if len(exchange.placed) != 0 {
		t.Errorf("placed %d orders, want 0", len(exchange.placed))
	}
	if s.CalculateProfit() != 0 {
		t.Errorf("profit = %v, want 0", s.CalculateProfit())
	}
}

func TestBuyFilledBooksLedgerAndLog(t *testing.T) {
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 1000, "ETH": 0, "USDT": 0},
		book:     normalBook(),
		trades:   steadyTrades(100, 100),
	}
	s := newTestScalper(t, exchange, defaultLimits())

	order, err := s.Buy(context.Background(), "BTCUSDT", 0.5)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if order.Status != models.OrderStatusFilled {
		t.Fatalf("status = %q, want filled", order.Status)
	}
	if got, want := s.CalculateProfit(), -100*0.5; got != want {
		t.Errorf("profit = %v, want %v", got, want)
	}

	trades := s.Trades()
	if len(trades) != 1 {
		t.Fatalf("trade log has %d entries, want 1", len(trades))
	}
	if trades[0].Side != models.OrderSideBuy || trades[0].Price != 100 || trades[0].Quantity != 0.5 {
		t.Errorf("trade log entry = %+v", trades[0])
	}

	// Buy pays the best ask as a limit order.
	req := exchange.placed[0]
	if req.Type != models.OrderTypeLimit || req.Price != 100 {
		t.Errorf("order request = %+v, want limit at best ask", req)
	}
}

func TestSellFilledIncrementsLedger(t *testing.T) {
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 1000, "ETH": 0, "USDT": 0},
		book:     normalBook(),
		trades:   steadyTrades(100, 100),
	}
	s := newTestScalper(t, exchange, defaultLimits())

	if _, err := s.Sell(context.Background(), "BTCUSDT", 0.5); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	// Sell hits the best bid.
	if got, want := s.CalculateProfit(), 99.9*0.5; got != want {
		t.Errorf("profit = %v, want %v", got, want)
	}
	if req := exchange.placed[0]; req.Price != 99.9 {
		t.Errorf("sell priced at %v, want best bid 99.9", req.Price)
	}
}

func TestBuyPendingLeavesLedgerUntouched(t *testing.T) {
	exchange := &fakeExchange{
		balances:    map[string]float64{"BTC": 1000, "ETH": 0, "USDT": 0},
		book:        normalBook(),
		trades:      steadyTrades(100, 100),
		placeStatus: models.OrderStatusPending,
	}
	s := newTestScalper(t, exchange, defaultLimits())

	order, err := s.Buy(context.Background(), "BTCUSDT", 0.5)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if order.Status != models.OrderStatusPending {
		t.Errorf("status = %q, want pending returned verbatim", order.Status)
	}
	if s.CalculateProfit() != 0 {
		t.Errorf("profit = %v, want 0 for unfilled order", s.CalculateProfit())
	}
	if len(s.Trades()) != 0 {
		t.Errorf("trade log has %d entries, want 0", len(s.Trades()))
	}
}

func TestAutoScalpEntersOnOversoldSignal(t *testing.T) {
	// Crossed book gives spread 0.001 >= MinSpread; strictly decreasing
	// prices give RSI 0 < 30.
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 1000, "ETH": 0, "USDT": 0},
		book: models.OrderBook{
			Asks: []models.OrderBookLevel{{Price: 100, Size: 5}},
			Bids: []models.OrderBookLevel{{Price: 100.1, Size: 5}},
		},
		trades: driftTrades(100, 100),
	}
	s := newTestScalper(t, exchange, defaultLimits())

	if err := s.AutoScalp(context.Background(), "BTCUSDT", 0.5, 5*time.Second); err != nil {
		t.Fatalf("AutoScalp: %v", err)
	}

	if len(exchange.placed) != 1 {
		t.Fatalf("placed %d orders, want exactly 1 buy", len(exchange.placed))
	}
	req := exchange.placed[0]
	if req.Side != models.OrderSideBuy {
		t.Errorf("side = %q, want buy", req.Side)
	}
	if req.Size != 0.5 {
		t.Errorf("size = %v, want baseQuantity 0.5", req.Size)
	}
}

func TestAutoScalpNoBuyBelowMinSpread(t *testing.T) {
	// RSI is 0 but the book spread is negative, far below MinSpread.
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 1000, "ETH": 0, "USDT": 0},
		book:     normalBook(),
		trades:   driftTrades(100, 100),
	}
	s := newTestScalper(t, exchange, defaultLimits())

	if err := s.AutoScalp(context.Background(), "BTCUSDT", 0.5, 5*time.Second); err != nil {
		t.Fatalf("AutoScalp: %v", err)
	}
	if len(exchange.placed) != 0 {
		t.Errorf("placed %d orders, want 0 with spread below minimum", len(exchange.placed))
	}
}

func TestAutoScalpExitReusesStaleRSI(t *testing.T) {
	// Entry requires RSI < 30 and the exit check runs against that same
	// value, so the hold can never see RSI > 70: no sell is ever issued.
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 1000, "ETH": 0, "USDT": 0},
		book: models.OrderBook{
			Asks: []models.OrderBookLevel{{Price: 100, Size: 5}},
			Bids: []models.OrderBookLevel{{Price: 100.1, Size: 5}},
		},
		trades: driftTrades(100, 100),
	}
	s := newTestScalper(t, exchange, defaultLimits())

	if err := s.AutoScalp(context.Background(), "BTCUSDT", 0.5, 20*time.Second); err != nil {
		t.Fatalf("AutoScalp: %v", err)
	}
	for _, req := range exchange.placed {
		if req.Side == models.OrderSideSell {
			t.Fatal("sell issued from a stale oversold RSI")
		}
	}
}

func TestAutoScalpSkipsCycleOnRiskRejection(t *testing.T) {
	// Oversized provisional buy: the loop waits and retries, never touching
	// the book or placing orders.
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 1, "ETH": 0, "USDT": 0},
		book: models.OrderBook{
			Asks: []models.OrderBookLevel{{Price: 100, Size: 5}},
			Bids: []models.OrderBookLevel{{Price: 100.1, Size: 5}},
		},
		trades: driftTrades(100, 100),
	}
	s := newTestScalper(t, exchange, defaultLimits())

	if err := s.AutoScalp(context.Background(), "BTCUSDT", 0.5, 5*time.Second); err != nil {
		t.Fatalf("AutoScalp: %v", err)
	}
	if len(exchange.placed) != 0 {
		t.Errorf("placed %d orders, want 0 under risk rejection", len(exchange.placed))
	}
}

func TestAutoScalpStopsOnCancellation(t *testing.T) {
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 1000, "ETH": 0, "USDT": 0},
		book:     normalBook(),
		trades:   steadyTrades(100, 100),
	}
	s := newTestScalper(t, exchange, defaultLimits())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.AutoScalp(ctx, "BTCUSDT", 0.5, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("AutoScalp returned %v, want context.Canceled", err)
	}
}

func TestCancelAllOrdersCancelsOpenOnly(t *testing.T) {
	exchange := &fakeExchange{
		balances: map[string]float64{"BTC": 1000, "ETH": 0, "USDT": 0},
		book:     normalBook(),
		trades:   steadyTrades(100, 100),
		history: []models.Order{
			{OrderID: "a", Status: models.OrderStatusOpen},
			{OrderID: "b", Status: models.OrderStatusFilled},
			{OrderID: "c", Status: models.OrderStatusOpen},
		},
	}
	s := newTestScalper(t, exchange, defaultLimits())

	open, err := s.GetOpenPositions(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetOpenPositions: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open positions = %d, want 2", len(open))
	}

	if err := s.CancelAllOrders(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("CancelAllOrders: %v", err)
	}
	if len(exchange.cancelled) != 2 || exchange.cancelled[0] != "a" || exchange.cancelled[1] != "c" {
		t.Errorf("cancelled = %v, want [a c]", exchange.cancelled)
	}
}
