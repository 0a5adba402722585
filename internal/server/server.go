// Package server exposes collateral status, prices and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"collateralScope/internal/collateral"
	"collateralScope/internal/fixed"
	"collateralScope/internal/model"
	"collateralScope/internal/oracle"
)

// Server is a read-only HTTP front for one collateral.
type Server struct {
	router   *mux.Router
	server   *http.Server
	coll     *collateral.Collateral
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Collateral     string       `json:"collateral"`
	Status         model.Status `json:"status"`
	WhenDefault    *uint64      `json:"when_default"`
	TargetName     string       `json:"target_name"`
	MaxTradeVolume string       `json:"max_trade_volume"`
	FallbackPrice  string       `json:"fallback_price"`
	TargetPerRef   string       `json:"target_per_ref"`
}

// PriceResponse is the /price payload.
type PriceResponse struct {
	Collateral string `json:"collateral"`
	Price      string `json:"price"`
	IsFallback bool   `json:"is_fallback"`
	RefPerTok  string `json:"ref_per_tok,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New wires the routes. gatherer may be nil to skip /metrics.
func New(addr string, coll *collateral.Collateral, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:   mux.NewRouter(),
		coll:     coll,
		gatherer: gatherer,
		logger:   logger,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestLoggingMiddleware)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/price", s.price).Methods(http.MethodGet)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.server.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Collateral:     s.coll.Name(),
		Status:         s.coll.Status(),
		TargetName:     s.coll.TargetName(),
		MaxTradeVolume: fixed.Format(s.coll.MaxTradeVolume()),
		FallbackPrice:  fixed.Format(s.coll.FallbackPrice()),
		TargetPerRef:   fixed.Format(s.coll.TargetPerRef()),
	}
	if wd := s.coll.WhenDefault(); wd != model.Never {
		resp.WhenDefault = &wd
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) price(w http.ResponseWriter, r *http.Request) {
	allowFallback := false
	if raw := r.URL.Query().Get("fallback"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "fallback must be a boolean"})
			return
		}
		allowFallback = parsed
	}

	isFallback, price, err := s.coll.Price(r.Context(), allowFallback)
	if err != nil {
		s.logger.Warn("price request failed", zap.Bool("fallback", allowFallback), zap.Error(err))
		writeJSON(w, priceErrorStatus(err), errorResponse{Error: err.Error()})
		return
	}

	resp := PriceResponse{
		Collateral: s.coll.Name(),
		Price:      fixed.Format(price),
		IsFallback: isFallback,
	}
	if ref, err := s.coll.RefPerTok(r.Context()); err == nil {
		resp.RefPerTok = fixed.Format(ref)
	}
	writeJSON(w, http.StatusOK, resp)
}

func priceErrorStatus(err error) int {
	switch {
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrPriceOutsideRange):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapper.statusCode),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
