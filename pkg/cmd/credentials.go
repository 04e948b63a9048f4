package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dukex/graphsmith/pkg/credentials"
	"github.com/dukex/graphsmith/pkg/secrets"
)

// SecretKeyEnv names the variable holding the key for encrypted operator secrets.
const SecretKeyEnv = "GRAPHSMITH_SECRET_KEY"

// CloseFunc releases a resource opened by a factory.
type CloseFunc func() error

func noopClose() error { return nil }

// NewLedger opens the credential ledger addressed by url: memory:// (or empty)
// for a process-local ledger, redis:// or rediss:// for a shared one.
func NewLedger(ctx context.Context, url string, ttl time.Duration) (credentials.Ledger, CloseFunc, error) {
	scheme, _, _ := strings.Cut(url, "://")

	switch scheme {
	case "", "memory":
		return credentials.NewMemoryLedger(), noopClose, nil
	case "redis", "rediss":
		ledger, err := credentials.NewRedisLedgerFromURL(ctx, url, ttl)
		if err != nil {
			return nil, nil, err
		}

		return ledger, ledger.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported credential ledger: %s", url)
	}
}

// NewCredentialStore returns the engine client, or nil when no engine is configured.
//
// nolint:ireturn // nil interface signals that no engine is configured
func NewCredentialStore(engineURL, apiKey string, logger *slog.Logger) credentials.Store {
	if strings.TrimSpace(engineURL) == "" {
		return nil
	}

	return credentials.NewEngineClient(engineURL, apiKey, logger)
}

// NewSecretsStore loads the operator key file. Encrypted values are accepted
// when SecretKeyEnv is set.
func NewSecretsStore(path string, logger *slog.Logger) (*secrets.Store, error) {
	opts := make([]secrets.Option, 0, 1)

	if material := os.Getenv(SecretKeyEnv); material != "" {
		codec, err := secrets.NewCodec(material)
		if err != nil {
			return nil, err
		}

		opts = append(opts, secrets.WithCodec(codec))
	}

	return secrets.NewStore(path, logger, opts...)
}
