package cmd

import (
	"log/slog"

	"github.com/dukex/graphsmith/pkg/credentials"
	"github.com/dukex/graphsmith/pkg/extractor"
	"github.com/dukex/graphsmith/pkg/injector"
	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/schedule"
	"github.com/dukex/graphsmith/pkg/validator"
)

// Pipeline holds the graph components shared by the API and the CLI.
type Pipeline struct {
	Catalog    *models.Catalog
	Extractor  *extractor.Extractor
	Validator  *validator.Validator
	Normalizer *schedule.Normalizer
	Injector   *injector.Injector
}

func NewPipeline(logger *slog.Logger, opts ...injector.Option) (*Pipeline, error) {
	catalog := models.DefaultCatalog()

	graphValidator, err := validator.New(logger, catalog)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Catalog:    catalog,
		Extractor:  extractor.New(logger),
		Validator:  graphValidator,
		Normalizer: schedule.NewNormalizer(logger, catalog),
		Injector:   injector.New(logger, catalog, graphValidator, opts...),
	}, nil
}

// InjectorOptions collects the injector configuration shared by both binaries.
type InjectorOptions struct {
	Keys        injector.KeySource
	Store       credentials.Store
	Ledger      credentials.Ledger
	EmailPolicy string

	// OptionalCredentials replaces the default optional credential kinds when set.
	OptionalCredentials []string
}

func (o InjectorOptions) Build() ([]injector.Option, error) {
	policy, err := injector.ParseEmailPolicy(o.EmailPolicy)
	if err != nil {
		return nil, err
	}

	opts := []injector.Option{injector.WithEmailPolicy(policy)}

	if o.Keys != nil {
		opts = append(opts, injector.WithKeySource(o.Keys))
	}

	if o.Store != nil {
		opts = append(opts, injector.WithCredentialStore(o.Store))
	}

	if o.Ledger != nil {
		opts = append(opts, injector.WithLedger(o.Ledger))
	}

	if len(o.OptionalCredentials) > 0 {
		opts = append(opts, injector.WithOptionalKinds(o.OptionalCredentials...))
	}

	return opts, nil
}
