// Package service orchestrates balance collection, valuation and
// persistence behind the operations the API layer consumes.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/balance-tracker/internal/circuitbreaker"
	"github.com/balance-tracker/internal/errors"
	"github.com/balance-tracker/internal/exchange"
	"github.com/balance-tracker/internal/logging"
	"github.com/balance-tracker/internal/portfolio"
	"github.com/balance-tracker/internal/types"
)

// BalanceSource is any non-exchange origin of balance data.
type BalanceSource interface {
	QueryBalances(ctx context.Context) (types.AssetBalances, error)
}

// FiatRater is the fiat-rate collaborator.
type FiatRater interface {
	QueryFiatPair(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// SnapshotSaver receives the save_balances_data hand-off.
type SnapshotSaver interface {
	Save(ctx context.Context, snapshot *types.PortfolioSnapshot) (string, error)
}

// HistoryAppender records timed per-asset balances.
type HistoryAppender interface {
	AppendSnapshot(ctx context.Context, at time.Time, snapshot *types.PortfolioSnapshot) error
}

// PortfolioService exposes the tracker's core operations. Exchange queries
// run behind per-exchange circuit breakers; a tripped breaker fails the
// valuation for that request rather than hammering the exchange.
type PortfolioService struct {
	registry    *exchange.Registry
	blockchain  BalanceSource
	banks       BalanceSource
	rater       FiatRater
	taxReporter portfolio.TaxReporter
	snapshots   SnapshotSaver
	history     HistoryAppender
	logger      *logging.Logger

	breakersMu sync.Mutex
	breakers   map[types.ExchangeName]*circuitbreaker.CircuitBreaker

	// settingsMu serializes settings mutations and the cached
	// USD-to-main-currency rate. Credential and connected-list mutations are
	// serialized separately by the registry's lock; no invariant spans both.
	settingsMu    sync.Mutex
	settings      types.Settings
	usdToMainRate decimal.Decimal

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// Config wires a PortfolioService. Blockchain, Banks, TaxReporter,
// Snapshots and History are optional; a nil collaborator disables the
// corresponding step.
type Config struct {
	Registry     *exchange.Registry
	Blockchain   BalanceSource
	Banks        BalanceSource
	Rater        FiatRater
	TaxReporter  portfolio.TaxReporter
	Snapshots    SnapshotSaver
	History      HistoryAppender
	MainCurrency string
	Logger       *logging.Logger
}

// NewPortfolioService creates the service.
func NewPortfolioService(cfg *Config) *PortfolioService {
	mainCurrency := cfg.MainCurrency
	if mainCurrency == "" {
		mainCurrency = "USD"
	}
	return &PortfolioService{
		registry:    cfg.Registry,
		blockchain:  cfg.Blockchain,
		banks:       cfg.Banks,
		rater:       cfg.Rater,
		taxReporter: cfg.TaxReporter,
		snapshots:   cfg.Snapshots,
		history:     cfg.History,
		logger:      cfg.Logger,
		breakers:    make(map[types.ExchangeName]*circuitbreaker.CircuitBreaker),
		settings:    types.Settings{MainCurrency: mainCurrency},
		shutdownCh:  make(chan struct{}),
	}
}

func (s *PortfolioService) breaker(name types.ExchangeName) *circuitbreaker.CircuitBreaker {
	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()

	cb, ok := s.breakers[name]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(string(name)))
		s.breakers[name] = cb
	}
	return cb
}

// QueryBalances collects balances from every source, computes the snapshot,
// optionally persists it, and overlays cost-basis data. The overlay runs
// after persistence so overlay fields never reach the history file.
func (s *PortfolioService) QueryBalances(ctx context.Context, saveData bool) (*types.PortfolioSnapshot, error) {
	sources := make(types.SourceBalances)

	for _, client := range s.registry.ConnectedClients() {
		name := client.Name()
		var balances types.AssetBalances
		err := s.breaker(name).Execute(ctx, func() error {
			var queryErr error
			balances, queryErr = client.QueryBalances(ctx)
			return queryErr
		})
		if err != nil {
			return nil, errors.NewProviderError(string(name), err)
		}
		sources[types.SourceName(name)] = balances
	}

	if s.blockchain != nil {
		balances, err := s.blockchain.QueryBalances(ctx)
		if err != nil {
			return nil, errors.NewProviderError(string(types.SourceBlockchain), err)
		}
		sources[types.SourceBlockchain] = balances
	}

	if s.banks != nil {
		balances, err := s.banks.QueryBalances(ctx)
		if err != nil {
			return nil, errors.NewProviderError(string(types.SourceBanks), err)
		}
		sources[types.SourceBanks] = balances
	}

	snapshot := portfolio.Valuate(sources)

	if saveData {
		if err := s.saveSnapshot(ctx, snapshot); err != nil {
			return nil, err
		}
	}

	portfolio.ApplyTaxOverlay(snapshot, s.taxReporter)

	return snapshot, nil
}

func (s *PortfolioService) saveSnapshot(ctx context.Context, snapshot *types.PortfolioSnapshot) error {
	now := time.Now().UTC()

	if s.snapshots != nil {
		id, err := s.snapshots.Save(ctx, snapshot)
		if err != nil {
			return err
		}
		s.logger.WithField("snapshotId", id).Info("portfolio snapshot saved")
	}

	if s.history != nil {
		if err := s.history.AppendSnapshot(ctx, now, snapshot); err != nil {
			return err
		}
	}

	return nil
}

// SetupExchange registers a new exchange credential.
func (s *PortfolioService) SetupExchange(ctx context.Context, name types.ExchangeName, apiKey, apiSecret string) error {
	return s.registry.Register(ctx, name, apiKey, apiSecret)
}

// RemoveExchange unregisters an exchange.
func (s *PortfolioService) RemoveExchange(name types.ExchangeName) error {
	return s.registry.Unregister(name)
}

// SetMainCurrency switches the valuation display currency and refreshes the
// cached USD conversion rate.
func (s *PortfolioService) SetMainCurrency(ctx context.Context, currency string) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	if currency != "USD" {
		rate, err := s.rater.QueryFiatPair(ctx, "USD", currency)
		if err != nil {
			return err
		}
		s.usdToMainRate = rate
	} else {
		s.usdToMainRate = decimal.NewFromInt(1)
	}
	s.settings.MainCurrency = currency

	return nil
}

// GetSettings returns the current settings.
func (s *PortfolioService) GetSettings() types.Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.settings
}

// USDToMainCurrency converts a USD amount into the main currency using the
// cached rate, fetching it on first use.
func (s *PortfolioService) USDToMainCurrency(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	if s.settings.MainCurrency == "USD" {
		return amount, nil
	}
	if s.usdToMainRate.IsZero() {
		rate, err := s.rater.QueryFiatPair(ctx, "USD", s.settings.MainCurrency)
		if err != nil {
			return decimal.Zero, err
		}
		s.usdToMainRate = rate
	}

	return amount.Mul(s.usdToMainRate), nil
}

// Shutdown signals the process to stop. Safe to call more than once.
func (s *PortfolioService) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down")
		close(s.shutdownCh)
	})
}

// Done is closed once Shutdown has been requested.
func (s *PortfolioService) Done() <-chan struct{} {
	return s.shutdownCh
}
