// Package httpapi implements the read-only status/health HTTP surface
// SPEC_FULL.md's operator-tooling section names: /healthz, /status,
// /orders, /risk. Grounded on uhyunpark-hyperlicked's pkg/api/server.go
// (gorilla/mux routing, rs/cors wrapping, respondJSON/respondError
// helpers), narrowed from that teacher's order-submission-capable REST
// API down to read-only reporting — this surface carries no
// order-placement path, only views onto Orchestrator's existing state.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/dundas/truex-mm/internal/orchestrator"
)

// Server serves the operator dashboard's read-only JSON endpoints.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	router *mux.Router
	srv    *http.Server
}

// New wires the router against orch. Call Start to begin serving.
func New(orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	s := &Server{orch: orch, logger: logger, router: mux.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/orders", s.handleOrders).Methods(http.MethodGet)
	s.router.HandleFunc("/risk", s.handleRisk).Methods(http.MethodGet)
}

// Handler exposes the wrapped router for tests and for Start.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(s.router)
}

// Start blocks serving addr until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("httpapi listening", zap.String("addr", addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP listener, if Start was ever called.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type statusResponse struct {
	FixState       string `json:"fix_state"`
	OrderCount     int    `json:"order_count"`
	DuplicateFills int64  `json:"duplicate_fills"`
}

type riskResponse struct {
	ActiveOrders    int     `json:"active_orders"`
	BuyNotional     string  `json:"buy_notional"`
	SellNotional    string  `json:"sell_notional"`
	MaxOrdersPerSec int     `json:"max_orders_per_second"`
	PriceBandPct    float64 `json:"price_band_pct"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.orch.Status()
	respondJSON(w, http.StatusOK, statusResponse{
		FixState:       snap.FixState,
		OrderCount:     len(snap.Orders),
		DuplicateFills: snap.DuplicateFills,
	})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	snap := s.orch.Status()
	respondJSON(w, http.StatusOK, snap.Orders)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	risk := s.orch.RiskStatus()
	respondJSON(w, http.StatusOK, riskResponse{
		ActiveOrders:    risk.ActiveOrders,
		BuyNotional:     risk.BuyNotional.String(),
		SellNotional:    risk.SellNotional.String(),
		MaxOrdersPerSec: risk.MaxOrdersPerSec,
		PriceBandPct:    risk.PriceBandPct,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
