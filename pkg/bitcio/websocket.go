package bitcio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ziher12/bitcio-trading/pkg/models"
)

// feedBuffer bounds the event channel. When a consumer lags, newer events
// are dropped and a warning is logged; the feed never blocks its read loop.
const feedBuffer = 1024

type FeedEventType string

const (
	FeedEventTicker FeedEventType = "ticker"
	FeedEventTrade  FeedEventType = "trade"
)

// FeedEvent is one message from the streaming feed. Exactly one of Ticker
// and Trade is set, according to Type.
type FeedEvent struct {
	Type   FeedEventType
	Ticker *models.Ticker
	Trade  *models.Trade
}

// Feed streams ticker and trade events into a bounded channel. Reconnection
// and backoff are handled here, invisible to consumers.
type Feed struct {
	url            string
	auth           Authenticator
	conn           *websocket.Conn
	mu             sync.Mutex
	connected      bool
	events         chan FeedEvent
	reconnectDelay time.Duration
	maxReconnects  int
	logger         *logrus.Logger
}

type wsMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol"`
	Bid       json.Number `json:"bid"`
	Ask       json.Number `json:"ask"`
	Last      json.Number `json:"last"`
	Price     json.Number `json:"price"`
	Quantity  json.Number `json:"quantity"`
	Side      string      `json:"side"`
	TradeID   string      `json:"trade_id"`
	Timestamp int64       `json:"timestamp"`
}

type subscribeMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

func NewFeed(url string, auth Authenticator, reconnectDelay time.Duration, maxReconnects int, logger *logrus.Logger) *Feed {
	if url == "" {
		url = "wss://ws.bitcio.com"
	}
	return &Feed{
		url:            url,
		auth:           auth,
		events:         make(chan FeedEvent, feedBuffer),
		reconnectDelay: reconnectDelay,
		maxReconnects:  maxReconnects,
		logger:         logger,
	}
}

// Events returns the bounded event channel. Closed after the feed gives up
// reconnecting or its context is cancelled.
func (f *Feed) Events() <-chan FeedEvent {
	return f.events
}

// Run connects, subscribes and keeps reading until ctx is cancelled or the
// reconnect budget is exhausted.
func (f *Feed) Run(ctx context.Context, symbols []string) {
	defer close(f.events)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.connect(ctx, symbols); err != nil {
			attempts++
			f.logger.WithError(err).WithField("attempt", attempts).Error("Feed connection failed")
			if f.maxReconnects > 0 && attempts >= f.maxReconnects {
				f.logger.Error("Feed reconnect budget exhausted, giving up")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.reconnectDelay):
			}
			continue
		}
		attempts = 0

		f.readLoop(ctx)
		f.disconnect()

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnectDelay):
			f.logger.Info("Feed reconnecting")
		}
	}
}

func (f *Feed) connect(ctx context.Context, symbols []string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	sub := subscribeMessage{
		Type:    "subscribe",
		Symbols: symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		f.disconnect()
		return fmt.Errorf("subscribe: %w", err)
	}

	go f.keepAlive(ctx)
	return nil
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg wsMessage
			if err := f.conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					f.logger.WithError(err).Error("Failed to read feed message")
				}
				return
			}

			event, ok := msg.toEvent()
			if !ok {
				continue
			}

			select {
			case f.events <- event:
			default:
				f.logger.WithField("symbol", msg.Symbol).Warn("Feed channel full, dropping event")
			}
		}
	}
}

func (m *wsMessage) toEvent() (FeedEvent, bool) {
	switch m.Type {
	case "ticker":
		bid, _ := m.Bid.Float64()
		ask, _ := m.Ask.Float64()
		last, _ := m.Last.Float64()
		return FeedEvent{
			Type: FeedEventTicker,
			Ticker: &models.Ticker{
				Symbol:    m.Symbol,
				BidPrice:  bid,
				AskPrice:  ask,
				LastPrice: last,
				Timestamp: time.UnixMilli(m.Timestamp),
			},
		}, true
	case "trade":
		price, _ := m.Price.Float64()
		size, _ := m.Quantity.Float64()
		return FeedEvent{
			Type: FeedEventTrade,
			Trade: &models.Trade{
				Symbol:    m.Symbol,
				Price:     price,
				Size:      size,
				Side:      m.Side,
				TradeID:   m.TradeID,
				Timestamp: time.UnixMilli(m.Timestamp),
			},
		}, true
	default:
		return FeedEvent{}, false
	}
}

func (f *Feed) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			if !f.connected {
				f.mu.Unlock()
				return
			}
			err := f.conn.WriteMessage(websocket.PingMessage, nil)
			f.mu.Unlock()
			if err != nil {
				f.logger.WithError(err).Error("Failed to send ping")
				return
			}
		}
	}
}

func (f *Feed) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = false
	if f.conn != nil {
		f.conn.Close()
	}
}
