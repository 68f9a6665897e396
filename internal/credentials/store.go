// Package credentials persists exchange API key/secret pairs in a flat JSON
// file. The file maps "<exchange>_api_key" and "<exchange>_secret" string
// keys to string values and is rewritten in full on every mutation.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/balance-tracker/internal/errors"
	"github.com/balance-tracker/internal/types"
)

// Credential is one exchange's API key/secret pair.
type Credential struct {
	APIKey    string
	APISecret string
}

// Store holds the credential map loaded from disk. Store performs no locking
// of its own: all mutations go through the exchange registry, whose lock
// covers the store.
type Store struct {
	path string
	data map[string]string
	// seen is true once the file has been observed on disk, either at load
	// or after a successful write. A mutation that finds the file missing
	// after that point fails instead of silently recreating it.
	seen bool
}

// NewStore loads the credential file at path. A missing file is not an
// error; the store starts empty.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file %s: %w", path, err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse credential file %s: %w", path, err)
	}
	s.seen = true

	return s, nil
}

// Path returns the credential file location.
func (s *Store) Path() string {
	return s.path
}

func apiKeyField(name types.ExchangeName) string {
	return fmt.Sprintf("%s_api_key", name)
}

func secretField(name types.ExchangeName) string {
	return fmt.Sprintf("%s_secret", name)
}

// Has reports whether a credential is stored for the exchange.
func (s *Store) Has(name types.ExchangeName) bool {
	_, ok := s.data[apiKeyField(name)]
	return ok
}

// Get returns the stored credential for the exchange.
func (s *Store) Get(name types.ExchangeName) (Credential, bool) {
	key, ok := s.data[apiKeyField(name)]
	if !ok {
		return Credential{}, false
	}
	return Credential{
		APIKey:    key,
		APISecret: s.data[secretField(name)],
	}, true
}

// Exchanges returns every exchange with a stored credential, in the closed
// set's stable order.
func (s *Store) Exchanges() []types.ExchangeName {
	var out []types.ExchangeName
	for _, name := range types.SupportedExchanges() {
		if s.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Add stores a credential and rewrites the file.
func (s *Store) Add(name types.ExchangeName, apiKey, apiSecret string) error {
	if err := s.checkFile(); err != nil {
		return err
	}

	s.data[apiKeyField(name)] = apiKey
	s.data[secretField(name)] = apiSecret

	return s.flush()
}

// Remove deletes a credential and rewrites the file.
func (s *Store) Remove(name types.ExchangeName) error {
	if err := s.checkFile(); err != nil {
		return err
	}

	delete(s.data, apiKeyField(name))
	delete(s.data, secretField(name))

	return s.flush()
}

// checkFile fails a mutation when the credential file has gone missing since
// it was last observed. A file that never existed is created on first write.
func (s *Store) checkFile() error {
	if !s.seen {
		return nil
	}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return errors.NewCredentialFileMissingError(s.path)
	}
	return nil
}

// flush rewrites the entire file contents. There is no partial patch and no
// partial-write recovery.
func (s *Store) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return errors.NewCredentialWriteError(s.path, err)
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return errors.NewCredentialWriteError(s.path, err)
	}
	s.seen = true

	return nil
}
