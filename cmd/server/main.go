// Package main provides the API server entry point for the balance tracker.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balance-tracker/internal/api"
	"github.com/balance-tracker/internal/config"
	"github.com/balance-tracker/internal/credentials"
	"github.com/balance-tracker/internal/exchange"
	"github.com/balance-tracker/internal/logging"
	"github.com/balance-tracker/internal/rates"
	"github.com/balance-tracker/internal/service"
	"github.com/balance-tracker/internal/source"
	"github.com/balance-tracker/internal/storage"
	"github.com/balance-tracker/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	snapshotRepo := storage.NewSnapshotRepository(postgres)
	historyRepo := storage.NewHistoryRepository(clickhouse)

	ctx := context.Background()
	if err := historyRepo.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to create balance history schema")
	}

	// Rate inquirer backed by the Redis cache
	inquirer := rates.NewInquirer(redis.Client(), logger)

	// Exchange registry from the on-disk credential file
	credStore, err := credentials.NewStore(cfg.Data.CredentialPath())
	if err != nil {
		logger.WithError(err).Fatal("Failed to load exchange credentials")
	}

	registry, err := exchange.NewRegistry(credStore, exchange.NewClientFactory(inquirer), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize exchange registry")
	}
	logger.WithField("exchanges", registry.Connected()).Info("Exchange registry initialized")

	// Optional balance sources
	var blockchain service.BalanceSource
	if cfg.Blockchain.RPCURL != "" && len(cfg.Blockchain.Accounts) > 0 {
		chain, err := source.NewBlockchain(cfg.Blockchain.RPCURL, cfg.Blockchain.Accounts, inquirer)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize blockchain source")
		}
		defer chain.Close()
		blockchain = chain
		logger.WithField("accounts", len(cfg.Blockchain.Accounts)).Info("Blockchain source initialized")
	}

	var banks service.BalanceSource
	if len(cfg.Fiat.Holdings) > 0 {
		b, err := source.NewBanks(cfg.Fiat.Holdings, inquirer)
		if err != nil {
			logger.WithError(err).Fatal("Failed to parse fiat holdings")
		}
		banks = b
	}

	// Initialize services
	portfolioService := service.NewPortfolioService(&service.Config{
		Registry:   registry,
		Blockchain: blockchain,
		Banks:      banks,
		Rater:      inquirer,
		Snapshots:  snapshotRepo,
		History:    historyRepo,
		Logger:     logger,
	})

	// Periodic exchange sync loop
	syncCtx, cancelSync := context.WithCancel(ctx)
	defer cancelSync()

	syncWorker := worker.NewSyncWorker(registry, cfg.Sync.Interval, logger)
	if err := syncWorker.Start(syncCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start sync worker")
	}

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, portfolioService, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for an interrupt or a service-level shutdown request
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down server...")
		portfolioService.Shutdown()
	case <-portfolioService.Done():
		logger.Info("Shutdown requested, stopping server...")
	}

	syncWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
