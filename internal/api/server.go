package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/ledger"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// Server отдает состояние движка по HTTP. Только чтение: управление
// позициями через API не предусмотрено.
type Server struct {
	logger  *utils.Logger
	ledger  *ledger.Ledger
	journal domain.TradeRepository // nil если база отключена
	pnl     domain.PnLRepository   // nil если база отключена
	port    int
	started time.Time
	srv     *http.Server
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewServer(logger *utils.Logger, l *ledger.Ledger, journal domain.TradeRepository, pnl domain.PnLRepository, port int) *Server {
	return &Server{
		logger:  logger,
		ledger:  l,
		journal: journal,
		pnl:     pnl,
		port:    port,
		started: time.Now(),
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/trades", s.handleTrades)
	mux.HandleFunc("/pnl", s.handlePnL)

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("Starting HTTP server on %s", addr)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.srv.ListenAndServe()
}

// Shutdown останавливает сервер, дожидаясь активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleHealth - health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().Unix(),
	}

	s.sendSuccess(w, health)
}

// handleStatus - open positions and daily limits
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	risk := s.ledger.Risk()
	status := map[string]interface{}{
		"positions":     s.ledger.Positions(),
		"trades_today":  risk.TradeCountToday,
		"max_daily":     risk.MaxDailyTrades,
		"max_positions": risk.MaxSimultaneousPositions,
		"timestamp":     time.Now().Unix(),
	}

	s.sendSuccess(w, status)
}

// handleTrades - trade journal: ?date=YYYY-MM-DD or ?symbol=&limit=
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		s.sendError(w, "Trade journal is disabled", http.StatusServiceUnavailable)
		return
	}

	if date := r.URL.Query().Get("date"); date != "" {
		trades, err := s.journal.GetByDate(date)
		if err != nil {
			s.logger.Error("Failed to query trades by date: %v", err)
			s.sendError(w, "Failed to query trades", http.StatusInternalServerError)
			return
		}
		s.sendSuccess(w, trades)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		s.sendError(w, "symbol or date query parameter is required", http.StatusBadRequest)
		return
	}
	trades, err := s.journal.GetRecent(symbol, queryLimit(r, 20))
	if err != nil {
		s.logger.Error("Failed to query recent trades: %v", err)
		s.sendError(w, "Failed to query trades", http.StatusInternalServerError)
		return
	}
	s.sendSuccess(w, trades)
}

// handlePnL - daily PnL snapshots, newest first
func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pnl == nil {
		s.sendError(w, "PnL history is disabled", http.StatusServiceUnavailable)
		return
	}

	history, err := s.pnl.GetHistory(queryLimit(r, 30))
	if err != nil {
		s.logger.Error("Failed to query PnL history: %v", err)
		s.sendError(w, "Failed to query PnL history", http.StatusInternalServerError)
		return
	}
	s.sendSuccess(w, history)
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return def
	}
	return limit
}

func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Response{
		Success: true,
		Data:    data,
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   message,
	})
}
