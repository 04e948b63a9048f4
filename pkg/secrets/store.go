// Package secrets holds the operator-owned service keys substituted into
// templates at instantiation time.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Key is one operator-held key for a third-party service.
type Key struct {
	Service string `yaml:"service"`
	Key     string `yaml:"key"`
	Active  bool   `yaml:"active"`
}

type file struct {
	Keys []Key `yaml:"keys"`
}

// Store serves the active key per service. Keys are read from a YAML file and
// only change on Reload.
type Store struct {
	path   string
	codec  *Codec
	logger *slog.Logger

	mu   sync.RWMutex
	keys map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithCodec enables decryption of values carrying EncryptedPrefix.
func WithCodec(codec *Codec) Option {
	return func(s *Store) {
		s.codec = codec
	}
}

// NewStore loads the secret file at path. An empty path yields an empty store.
func NewStore(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	store := &Store{
		path:   path,
		logger: logger.With("module", "secrets"),
		keys:   map[string]string{},
	}

	for _, opt := range opts {
		opt(store)
	}

	if err := store.Reload(); err != nil {
		return nil, err
	}

	return store, nil
}

// NewStaticStore builds a store from in-memory keys. Reload keeps them as they are.
func NewStaticStore(keys ...Key) *Store {
	return &Store{logger: slog.Default(), keys: index(keys)}
}

// ActiveKey returns the active key for service. Service lookup is case-insensitive.
func (s *Store) ActiveKey(service string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[strings.ToLower(strings.TrimSpace(service))]

	return key, ok
}

// Services lists the services that currently have an active key.
func (s *Store) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]string, 0, len(s.keys))
	for service := range s.keys {
		services = append(services, service)
	}

	return services
}

// Reload re-reads the secret file. On error the previously loaded keys stay in place.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read secrets file: %w", err)
	}

	var parsed file
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse secrets file: %w", err)
	}

	for i, key := range parsed.Keys {
		plain, err := s.codec.Decrypt(key.Key)
		if err != nil {
			return fmt.Errorf("failed to decrypt key for %s: %w", key.Service, err)
		}

		parsed.Keys[i].Key = plain
	}

	keys := index(parsed.Keys)

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()

	s.logger.Info("Loaded operator secrets", "path", s.path, "services", len(keys))

	return nil
}

// index keeps the first active, non-empty key of every service.
func index(keys []Key) map[string]string {
	out := make(map[string]string, len(keys))

	for _, key := range keys {
		service := strings.ToLower(strings.TrimSpace(key.Service))
		if !key.Active || service == "" || key.Key == "" {
			continue
		}

		if _, exists := out[service]; !exists {
			out[service] = key.Key
		}
	}

	return out
}
