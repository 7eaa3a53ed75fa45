package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/openalpha/spot-exchange/api/handlers"
	"github.com/openalpha/spot-exchange/api/middleware"
	"github.com/openalpha/spot-exchange/engine"
	"github.com/openalpha/spot-exchange/metrics"
)

// Server represents the API server
type Server struct {
	httpServer *http.Server
	config     *Config
	logger     log.Logger

	engine  *engine.Engine
	service *ExchangeService

	publicHandler  *handlers.PublicHandler
	orderHandler   *handlers.OrderHandler
	accountHandler *handlers.AccountHandler
	adminHandler   *handlers.AdminHandler

	auth        *middleware.Authenticator
	rateLimiter *middleware.RateLimiter
}

// Config contains server configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AdminAPIKey, when set, bootstraps an ADMIN user at startup so the
	// admin endpoints are reachable on a fresh instance.
	AdminName   string
	AdminAPIKey uuid.UUID

	DisableRateLimit bool // for testing and benchmarks
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		AdminName:    "admin",
	}
}

// NewServer creates an API server with a fresh engine
func NewServer(config *Config, logger log.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	eng := engine.New(logger)
	if config.AdminAPIKey != uuid.Nil {
		eng.BootstrapAdmin(config.AdminName, config.AdminAPIKey)
	}

	service := NewExchangeService(eng, logger)

	s := &Server{
		config:      config,
		logger:      logger.With("module", "server"),
		engine:      eng,
		service:     service,
		auth:        middleware.NewAuthenticator(eng.UserByAPIKey),
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}

	s.publicHandler = handlers.NewPublicHandler(service)
	s.orderHandler = handlers.NewOrderHandler(service)
	s.accountHandler = handlers.NewAccountHandler(service)
	s.adminHandler = handlers.NewAdminHandler(service)

	return s
}

// Engine exposes the underlying engine, mainly for tests and tooling
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Handler builds the full middleware and routing chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	// Public endpoints
	mux.HandleFunc("/api/v1/public/register", s.publicHandler.HandleRegister)
	mux.HandleFunc("/api/v1/public/instrument", s.publicHandler.HandleInstruments)
	mux.HandleFunc("/api/v1/public/orderbook/", s.publicHandler.HandleOrderBook)
	mux.HandleFunc("/api/v1/public/transactions/", s.publicHandler.HandleTransactions)

	// Authenticated user endpoints
	mux.HandleFunc("/api/v1/balance", s.auth.RequireUser(s.accountHandler.HandleBalance))
	mux.HandleFunc("/api/v1/order", s.auth.RequireUser(s.orderHandler.HandleOrders))
	mux.HandleFunc("/api/v1/order/", s.auth.RequireUser(s.orderHandler.HandleOrder))

	// Admin endpoints
	mux.HandleFunc("/api/v1/admin/balance/deposit", s.auth.RequireAdmin(s.adminHandler.HandleDeposit))
	mux.HandleFunc("/api/v1/admin/balance/withdraw", s.auth.RequireAdmin(s.adminHandler.HandleWithdraw))
	mux.HandleFunc("/api/v1/admin/instrument", s.auth.RequireAdmin(s.adminHandler.HandleInstrument))
	mux.HandleFunc("/api/v1/admin/instrument/", s.auth.RequireAdmin(s.adminHandler.HandleInstrumentDelete))
	mux.HandleFunc("/api/v1/admin/user/", s.auth.RequireAdmin(s.adminHandler.HandleUserDelete))

	// Middleware chain: CORS -> RateLimit -> Metrics -> Handler
	var handler http.Handler = metricsMiddleware(mux)
	if !s.config.DisableRateLimit {
		handler = middleware.RateLimitMiddleware(s.rateLimiter)(handler)
	}
	return corsMiddleware(handler)
}

// Start starts the API server and blocks until it shuts down
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("API server starting", "addr", addr, "rate_limit_disabled", s.config.DisableRateLimit)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%d}`, time.Now().Unix())
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request counts and latency per endpoint
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.GetCollector().RecordAPIRequest(
			r.Method, normalizeEndpoint(r.URL.Path),
			fmt.Sprintf("%d", rec.status), time.Since(start).Seconds(),
		)
	})
}

// normalizeEndpoint collapses path parameters so metric label
// cardinality stays bounded.
func normalizeEndpoint(path string) string {
	for _, prefix := range []string{
		"/api/v1/public/orderbook/",
		"/api/v1/public/transactions/",
		"/api/v1/order/",
		"/api/v1/admin/instrument/",
		"/api/v1/admin/user/",
	} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + "{param}"
		}
	}
	return path
}

// corsMiddleware adds permissive CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
