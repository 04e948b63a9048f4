package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/graphsmith/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

// Ledger remembers credentials created for a deployment so that a retried
// instantiation with the same deployment key reuses them.
type Ledger interface {
	Lookup(ctx context.Context, key string) (models.CredentialReference, bool, error)
	Record(ctx context.Context, key string, ref models.CredentialReference) error
}

// LedgerKey addresses the credential of kind created for a deployment.
func LedgerKey(deploymentKey, kind string) string {
	return deploymentKey + ":" + kind
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]models.CredentialReference
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]models.CredentialReference)}
}

func (l *MemoryLedger) Lookup(_ context.Context, key string) (models.CredentialReference, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ref, ok := l.entries[key]

	return ref, ok, nil
}

func (l *MemoryLedger) Record(_ context.Context, key string, ref models.CredentialReference) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = ref

	return nil
}

const redisLedgerPrefix = "graphsmith:credentials:"

// RedisLedger is a Ledger shared between API replicas.
type RedisLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLedger wraps client. A zero ttl keeps entries forever.
func NewRedisLedger(client redis.UniversalClient, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

// NewRedisLedgerFromURL connects to a redis:// URL and verifies the connection.
func NewRedisLedgerFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLedger(client, ttl), nil
}

func (l *RedisLedger) Lookup(ctx context.Context, key string) (models.CredentialReference, bool, error) {
	value, err := l.client.Get(ctx, redisLedgerPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CredentialReference{}, false, nil
		}

		return models.CredentialReference{}, false, fmt.Errorf("failed to read credential ledger: %w", err)
	}

	var ref models.CredentialReference
	if err := json.Unmarshal([]byte(value), &ref); err != nil {
		return models.CredentialReference{}, false, fmt.Errorf("failed to decode credential ledger entry: %w", err)
	}

	return ref, true, nil
}

func (l *RedisLedger) Record(ctx context.Context, key string, ref models.CredentialReference) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to encode credential ledger entry: %w", err)
	}

	if err := l.client.Set(ctx, redisLedgerPrefix+key, data, l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write credential ledger: %w", err)
	}

	return nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}
