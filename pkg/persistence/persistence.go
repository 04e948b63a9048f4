// Package persistence provides the storage abstraction for workflow templates.
package persistence

import (
	"context"

	"github.com/dukex/graphsmith/pkg/models"
)

type Persistence interface {
	TemplateRepository() TemplateRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// TemplateRepository stores workflow templates. Lookups of unknown ids fail
// with ErrTemplateNotFound.
type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*models.Template, error)
	// Create stores a new template, failing with ErrTemplateAlreadyExists if the id is taken.
	Create(ctx context.Context, template *models.Template) error
	// Save inserts or replaces a template.
	Save(ctx context.Context, template *models.Template) error
	List(ctx context.Context, opts ListTemplatesOptions) (*TemplateListResult, error)
	Delete(ctx context.Context, id string) error
}

// Sort fields accepted by List.
const (
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
	SortByName      = "name"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type ListTemplatesOptions struct {
	Owner     string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// Normalize applies defaults and rejects unknown sort fields.
func (o ListTemplatesOptions) Normalize() (ListTemplatesOptions, error) {
	if o.Limit <= 0 || o.Limit > MaxListLimit {
		o.Limit = DefaultListLimit
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	if o.SortBy == "" {
		o.SortBy = SortByCreatedAt
	}

	if o.SortOrder == "" {
		o.SortOrder = "desc"
	}

	switch o.SortBy {
	case SortByCreatedAt, SortByUpdatedAt, SortByName:
	default:
		return o, ErrInvalidSort
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		return o, ErrInvalidSort
	}

	return o, nil
}

type TemplateListResult struct {
	Templates   []*models.Template `json:"templates"`
	TotalCount  int64              `json:"totalCount"`
	HasNextPage bool               `json:"hasNextPage"`
}
