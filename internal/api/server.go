// Package api provides the HTTP surface over the tracker's core operations.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/balance-tracker/internal/logging"
	"github.com/balance-tracker/internal/types"
)

// PortfolioServiceInterface defines the service operations the API exposes.
type PortfolioServiceInterface interface {
	QueryBalances(ctx context.Context, saveData bool) (*types.PortfolioSnapshot, error)
	SetupExchange(ctx context.Context, name types.ExchangeName, apiKey, apiSecret string) error
	RemoveExchange(name types.ExchangeName) error
	SetMainCurrency(ctx context.Context, currency string) error
	GetSettings() types.Settings
	USDToMainCurrency(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	Shutdown()
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond int
	Burst             int
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	portfolio  PortfolioServiceInterface
	logger     *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, portfolio PortfolioServiceInterface, logger *logging.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		portfolio: portfolio,
		logger:    logger,
	}

	s.router.Use(LoggingMiddleware(logger))
	s.router.Use(RecoveryMiddleware(logger))
	s.router.Use(RateLimitMiddleware(config.RequestsPerSecond, config.Burst))

	s.setupRoutes()

	readTimeout := config.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := config.WriteTimeout
	if writeTimeout == 0 {
		// Balance queries fan out to several exchanges; give them room.
		writeTimeout = 120 * time.Second
	}
	idleTimeout := config.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/balances", s.handleQueryBalances).Methods("GET")
	api.HandleFunc("/exchanges/{name}", s.handleSetupExchange).Methods("PUT")
	api.HandleFunc("/exchanges/{name}", s.handleRemoveExchange).Methods("DELETE")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings/currency", s.handleSetMainCurrency).Methods("PUT")
	api.HandleFunc("/shutdown", s.handleShutdown).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "balance-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
