package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ziher12/bitcio-trading/pkg/models"
	"github.com/ziher12/bitcio-trading/pkg/trader"
)

// Server exposes the scalper over HTTP. It interacts with the core only
// through its public methods.
type Server struct {
	scalper       *trader.Scalper
	logger        *logrus.Logger
	port          string
	defaultSymbol string
}

func NewServer(scalper *trader.Scalper, logger *logrus.Logger, port, defaultSymbol string) *Server {
	return &Server{
		scalper:       scalper,
		logger:        logger,
		port:          port,
		defaultSymbol: defaultSymbol,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/profit", s.handleProfit)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/orders", s.handleOrders)

	handler := corsMiddleware(mux)

	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleProfit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]float64{
		"realized_profit": s.scalper.CalculateProfit(),
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	symbol := s.symbolParam(r)
	positions, err := s.scalper.GetOpenPositions(r.Context(), symbol)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get open positions")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.scalper.Trades())
}

type orderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Symbol == "" {
			req.Symbol = s.defaultSymbol
		}

		var (
			order *models.Order
			err   error
		)
		switch models.OrderSide(req.Side) {
		case models.OrderSideBuy:
			order, err = s.scalper.Buy(r.Context(), req.Symbol, req.Quantity)
		case models.OrderSideSell:
			order, err = s.scalper.Sell(r.Context(), req.Symbol, req.Quantity)
		default:
			http.Error(w, "side must be buy or sell", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.logger.WithError(err).Error("Failed to place order")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		s.writeJSON(w, http.StatusOK, order)

	case http.MethodDelete:
		symbol := s.symbolParam(r)
		if err := s.scalper.CancelAllOrders(r.Context(), symbol); err != nil {
			s.logger.WithError(err).Error("Failed to cancel orders")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) symbolParam(r *http.Request) string {
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		return symbol
	}
	return s.defaultSymbol
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
