// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/dukex/graphsmith/pkg/persistence/file"
	"github.com/dukex/graphsmith/pkg/persistence/postgresql"
)

var ErrMissingDatabaseURL = errors.New("database url is required")

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the template store addressed by databaseURL. URLs
// without a known scheme are treated as file paths.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrMissingDatabaseURL
	}

	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
