package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/balance-tracker/internal/credentials"
	"github.com/balance-tracker/internal/errors"
	"github.com/balance-tracker/internal/logging"
	"github.com/balance-tracker/internal/types"
)

// Registry owns the set of active exchange client handles. It is created
// once at startup and passed explicitly to every consumer; there are no
// package-level singletons.
//
// A single reader-writer lock covers the credential store, the connected
// list and the client map. Registration and removal take the write lock;
// balance readers take the read lock, so a registration can never interleave
// with a read.
type Registry struct {
	mu      sync.RWMutex
	store   *credentials.Store
	factory ClientFactory
	logger  *logging.Logger

	// clients holds every client handle ever constructed, keyed by name.
	// Unregister removes the credential and the connected entry but leaves
	// the handle in place: there is no teardown of a client's background
	// activity yet, so the handle simply goes dormant.
	clients   map[types.ExchangeName]Client
	connected []types.ExchangeName
}

// NewRegistry builds a registry and instantiates a client for every
// credential already present in the store.
func NewRegistry(store *credentials.Store, factory ClientFactory, logger *logging.Logger) (*Registry, error) {
	r := &Registry{
		store:   store,
		factory: factory,
		logger:  logger,
		clients: make(map[types.ExchangeName]Client),
	}

	for _, name := range store.Exchanges() {
		cred, _ := store.Get(name)
		client, err := factory(name, cred)
		if err != nil {
			return nil, fmt.Errorf("failed to construct %s client: %w", name, err)
		}
		r.clients[name] = client
		r.connected = append(r.connected, name)
		logger.WithField("exchange", string(name)).Info("exchange connected from stored credential")
	}

	return r, nil
}

// Register validates a new credential against the exchange and, on success,
// atomically activates the client, marks the exchange connected and persists
// the credential. On any failure no state changes.
func (r *Registry) Register(ctx context.Context, name types.ExchangeName, apiKey, apiSecret string) error {
	if !types.IsSupportedExchange(name) {
		return errors.NewUnsupportedExchangeError(string(name))
	}

	r.mu.RLock()
	registered := r.store.Has(name)
	r.mu.RUnlock()
	if registered {
		return errors.NewAlreadyRegisteredError(string(name))
	}

	candidate, err := r.factory(name, credentials.Credential{APIKey: apiKey, APISecret: apiSecret})
	if err != nil {
		return err
	}

	// Validation talks to the exchange; keep it outside the lock.
	if err := candidate.ValidateAPIKey(ctx); err != nil {
		return errors.NewValidationFailedError(string(name), err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Two racing registrations can both pass the early check; the first to
	// take the write lock wins.
	if r.store.Has(name) {
		return errors.NewAlreadyRegisteredError(string(name))
	}

	// Persist first: the file write is the only step that can fail, and the
	// in-memory effects must never be observable without it.
	if err := r.store.Add(name, apiKey, apiSecret); err != nil {
		return err
	}
	r.clients[name] = candidate
	r.connected = append(r.connected, name)

	r.logger.WithField("exchange", string(name)).Info("exchange registered")
	return nil
}

// Unregister removes the exchange's credential and connected entry. The
// in-memory client handle is left alive; see the clients field note.
func (r *Registry) Unregister(name types.ExchangeName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.store.Has(name) {
		return errors.NewNotRegisteredError(string(name))
	}

	if err := r.store.Remove(name); err != nil {
		return err
	}
	for i, connected := range r.connected {
		if connected == name {
			r.connected = append(r.connected[:i], r.connected[i+1:]...)
			break
		}
	}

	r.logger.WithField("exchange", string(name)).Info("exchange unregistered")
	return nil
}

// Connected returns the currently connected exchange names.
func (r *Registry) Connected() []types.ExchangeName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ExchangeName, len(r.connected))
	copy(out, r.connected)
	return out
}

// ConnectedClients returns the active client handles in connection order.
func (r *Registry) ConnectedClients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Client, 0, len(r.connected))
	for _, name := range r.connected {
		if client, ok := r.clients[name]; ok {
			out = append(out, client)
		}
	}
	return out
}

// QueryBalances collects per-exchange balances for every connected exchange.
func (r *Registry) QueryBalances(ctx context.Context) (types.SourceBalances, error) {
	out := make(types.SourceBalances)
	for _, client := range r.ConnectedClients() {
		balances, err := client.QueryBalances(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s balances: %w", client.Name(), err)
		}
		out[types.SourceName(client.Name())] = balances
	}
	return out, nil
}
