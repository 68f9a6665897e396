// Package worker runs the main loop that periodically drives each connected
// exchange client's sync hook.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/balance-tracker/internal/exchange"
	"github.com/balance-tracker/internal/logging"
)

// DefaultInterval is the sleep between sync cycles.
const DefaultInterval = 10 * time.Second

// SyncWorker is the cooperative main loop. Each cycle it invokes the
// periodic-sync hook of every connected client that exposes one, strictly
// sequentially, then sleeps. Cancellation is checked at the top of each
// cycle only: a cycle in progress always completes its pass, and iterations
// never overlap.
//
// Because the pass is sequential and clients get no per-call timeout, one
// stalled client delays the rest of its cycle. Known limitation.
type SyncWorker struct {
	registry *exchange.Registry
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncWorker creates a sync worker over the registry's connected clients.
func NewSyncWorker(registry *exchange.Registry, interval time.Duration, logger *logging.Logger) *SyncWorker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &SyncWorker{
		registry: registry,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the loop. It can be started once.
func (s *SyncWorker) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sync worker is already running")
	}
	s.running = true

	go s.run(ctx)
	return nil
}

// Stop requests termination and waits for the current cycle to finish.
func (s *SyncWorker) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

func (s *SyncWorker) run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			s.logger.Info("sync worker stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sync worker context cancelled")
			return
		default:
		}

		s.logger.Debug("main loop cycle start")
		for _, client := range s.registry.ConnectedClients() {
			syncer, ok := client.(exchange.PeriodicSyncer)
			if !ok {
				continue
			}
			if err := syncer.PeriodicSync(ctx); err != nil {
				s.logger.WithError(err).WithField("exchange", string(client.Name())).Warn("periodic sync failed")
			}
		}
		s.logger.Debug("main loop cycle end")

		// The timed wait is the loop's only suspension point. A stop during
		// the wait is acted on at the top of the next cycle.
		select {
		case <-time.After(s.interval):
		case <-s.stopCh:
		case <-ctx.Done():
		}
	}
}
