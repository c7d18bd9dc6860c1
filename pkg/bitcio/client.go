package bitcio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ziher12/bitcio-trading/pkg/models"
)

// Exchange is the gateway contract consumed by the risk manager and the
// trading engine. Network failures propagate to the caller unchanged; the
// core performs no retries.
type Exchange interface {
	GetOrderBook(ctx context.Context, symbol string) (*models.OrderBook, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
	PlaceOrder(ctx context.Context, order *models.OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, symbol string) error
	GetOrderHistory(ctx context.Context, symbol string, limit int) ([]models.Order, error)
	GetHistoricalTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error)
}

// APIError is returned for non-2xx exchange responses. Timeouts and 5xx are
// retryable by the caller; 4xx and malformed responses are fatal to the
// current operation.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitcio: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Retryable() bool {
	return e.Status >= 500
}

type RESTClient struct {
	auth       Authenticator
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewRESTClient(baseURL string, auth Authenticator) *RESTClient {
	if baseURL == "" {
		baseURL = "https://api.bitcio.com"
	}

	return &RESTClient{
		auth:       auth,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Public exchange limit is 10 req/s per key
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

func (c *RESTClient) GetOrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	path := "/orderbook?symbol=" + url.QueryEscape(symbol)

	var resp struct {
		Asks [][2]json.Number `json:"asks"`
		Bids [][2]json.Number `json:"bids"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("get orderbook: %w", err)
	}

	book := &models.OrderBook{
		Symbol:    symbol,
		Timestamp: time.Now(),
	}
	for _, lvl := range resp.Asks {
		price, _ := lvl[0].Float64()
		size, _ := lvl[1].Float64()
		book.Asks = append(book.Asks, models.OrderBookLevel{Price: price, Size: size})
	}
	for _, lvl := range resp.Bids {
		price, _ := lvl[0].Float64()
		size, _ := lvl[1].Float64()
		book.Bids = append(book.Bids, models.OrderBookLevel{Price: price, Size: size})
	}

	return book, nil
}

func (c *RESTClient) GetBalance(ctx context.Context, asset string) (float64, error) {
	path := "/balance?asset=" + url.QueryEscape(asset)

	var resp struct {
		Balance json.Number `json:"balance"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}

	balance, _ := resp.Balance.Float64()
	return balance, nil
}

func (c *RESTClient) PlaceOrder(ctx context.Context, order *models.OrderRequest) (*models.Order, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}

	payload := map[string]interface{}{
		"client_order_id": order.ClientOrderID,
		"symbol":          order.Symbol,
		"side":            order.Side,
		"quantity":        order.Size,
		"type":            order.Type,
	}
	if order.Type == models.OrderTypeLimit {
		payload["price"] = order.Price
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	return resp.toOrder(order.Symbol), nil
}

func (c *RESTClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	payload := map[string]string{
		"order_id": orderID,
		"symbol":   symbol,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cancel: %w", err)
	}

	if err := c.do(ctx, http.MethodDelete, "/order", body, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

func (c *RESTClient) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]models.Order, error) {
	path := fmt.Sprintf("/orders?symbol=%s&limit=%d", url.QueryEscape(symbol), limit)

	var resp []orderResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("get order history: %w", err)
	}

	orders := make([]models.Order, 0, len(resp))
	for _, o := range resp {
		orders = append(orders, *o.toOrder(symbol))
	}
	return orders, nil
}

func (c *RESTClient) GetHistoricalTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	path := fmt.Sprintf("/trades?symbol=%s&limit=%d", url.QueryEscape(symbol), limit)

	var resp []struct {
		Price     json.Number `json:"price"`
		Quantity  json.Number `json:"quantity"`
		Side      string      `json:"side"`
		TradeID   string      `json:"trade_id"`
		Timestamp int64       `json:"timestamp"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("get historical trades: %w", err)
	}

	trades := make([]models.Trade, 0, len(resp))
	for _, t := range resp {
		price, _ := t.Price.Float64()
		size, _ := t.Quantity.Float64()
		trades = append(trades, models.Trade{
			Symbol:    symbol,
			Price:     price,
			Size:      size,
			Side:      t.Side,
			TradeID:   t.TradeID,
			Timestamp: time.UnixMilli(t.Timestamp),
		})
	}
	return trades, nil
}

type orderResponse struct {
	OrderID   string      `json:"order_id"`
	Side      string      `json:"side"`
	Type      string      `json:"type"`
	Price     json.Number `json:"price"`
	Quantity  json.Number `json:"quantity"`
	FilledQty json.Number `json:"filled_quantity"`
	Status    string      `json:"status"`
	Reason    string      `json:"reason"`
	CreatedAt int64       `json:"created_at"`
	UpdatedAt int64       `json:"updated_at"`
}

func (r *orderResponse) toOrder(symbol string) *models.Order {
	price, _ := r.Price.Float64()
	size, _ := r.Quantity.Float64()
	filled, _ := r.FilledQty.Float64()
	return &models.Order{
		OrderID:    r.OrderID,
		Symbol:     symbol,
		Side:       models.OrderSide(r.Side),
		Type:       models.OrderType(r.Type),
		Price:      price,
		Size:       size,
		FilledSize: filled,
		Status:     models.OrderStatus(r.Status),
		Reason:     r.Reason,
		CreatedAt:  time.UnixMilli(r.CreatedAt),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt),
	}
}

func (c *RESTClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.auth != nil {
		if err := c.auth.AddAuthHeaders(req, method, path, string(body)); err != nil {
			return fmt.Errorf("auth headers: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
