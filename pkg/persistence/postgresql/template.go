package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const selectTemplate = `
		SELECT
			id
		  , name
		  , description
		  , body
		  , owner
		  , created_at
		  , updated_at
		FROM templates
`

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*models.Template, error) {
	var (
		template models.Template
		body     []byte
		owner    sql.NullString
	)

	err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Description,
		&body,
		&owner,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	template.Body = body
	template.Owner = owner.String

	return &template, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	row := r.db.QueryRowContext(ctx, selectTemplate+" WHERE id = $1 AND deleted_at IS NULL", id)

	template, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	return template, nil
}

// Create inserts a new template. A soft-deleted row with the same id is replaced.
func (r *TemplateRepository) Create(ctx context.Context, template *models.Template) error {
	err := prepare(template)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO templates (id, name, description, body, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , body = EXCLUDED.body
		  , owner = EXCLUDED.owner
		  , created_at = EXCLUDED.created_at
		  , updated_at = EXCLUDED.updated_at
		  , deleted_at = NULL
		WHERE templates.deleted_at IS NOT NULL
	`

	result, err := r.db.ExecContext(ctx, query, templateArgs(template)...)
	if err != nil {
		return r.writeError("Create", template.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewTemplateError("Create", template.ID, persistence.ErrTemplateAlreadyExists)
	}

	return nil
}

// Save inserts or replaces a template, keeping the creation time of a live row.
func (r *TemplateRepository) Save(ctx context.Context, template *models.Template) error {
	err := prepare(template)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO templates (id, name, description, body, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , body = EXCLUDED.body
		  , owner = EXCLUDED.owner
		  , created_at = CASE WHEN templates.deleted_at IS NULL THEN templates.created_at ELSE EXCLUDED.created_at END
		  , updated_at = EXCLUDED.updated_at
		  , deleted_at = NULL
		RETURNING created_at
	`

	err = r.db.QueryRowContext(ctx, query, templateArgs(template)...).Scan(&template.CreatedAt)
	if err != nil {
		return r.writeError("Save", template.ID, err)
	}

	return nil
}

func (r *TemplateRepository) writeError(op, id string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return persistence.NewTemplateError(op, id, persistence.ErrTemplateAlreadyExists)
	}

	r.logger.Error("failed to write template", "op", op, "template_id", id, "error", err)

	return fmt.Errorf("failed to write template %s: %w", id, err)
}

func prepare(template *models.Template) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	return nil
}

func templateArgs(template *models.Template) []any {
	return []any{
		template.ID,
		template.Name,
		template.Description,
		[]byte(template.Body),
		sql.NullString{String: template.Owner, Valid: template.Owner != ""},
		template.CreatedAt,
		template.UpdatedAt,
	}
}

// List returns paginated templates, optionally filtered by owner.
func (r *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) (*persistence.TemplateListResult, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	where := " WHERE deleted_at IS NULL AND ($1 = '' OR owner = $1)"

	var totalCount int64

	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM templates"+where, opts.Owner).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}

	// SortBy and SortOrder are allowlisted by Normalize.
	query := selectTemplate + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT $2 OFFSET $3", opts.SortBy, opts.SortOrder, opts.SortOrder)

	rows, err := r.db.QueryContext(ctx, query, opts.Owner, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func(ctx context.Context, r *TemplateRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	templates := make([]*models.Template, 0, opts.Limit)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return &persistence.TemplateListResult{
		Templates:   templates,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(templates)) < totalCount,
	}, nil
}

// Delete soft deletes a template by setting deleted_at timestamp.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE templates SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	return nil
}
