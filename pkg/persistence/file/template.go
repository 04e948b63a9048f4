package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/google/uuid"
)

const templatesDir = "templates"

// TemplateRepository stores each template as <root>/templates/<id>.json.
type TemplateRepository struct {
	root string
	mu   sync.Mutex
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

func (tr *TemplateRepository) dir() string {
	return path.Join(tr.root, templatesDir)
}

func (tr *TemplateRepository) filePath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid template id %q", id)
	}

	return filepath.Clean(path.Join(tr.dir(), id+".json")), nil
}

// GetByID retrieves a template by its ID from the file system.
func (tr *TemplateRepository) GetByID(_ context.Context, id string) (*models.Template, error) {
	filePath, err := tr.filePath(id)
	if err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to fetch template %s: %w", id, err)
	}

	var template models.Template

	err = json.Unmarshal(body, &template)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal template %s: %w", id, err)
	}

	return &template, nil
}

// Create stores a new template. An empty ID is filled with a fresh UUIDv7.
func (tr *TemplateRepository) Create(ctx context.Context, template *models.Template) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template id: %w", err)
		}

		template.ID = id.String()
	}

	filePath, err := tr.filePath(template.ID)
	if err != nil {
		return persistence.NewTemplateError("Create", template.ID, err)
	}

	if _, err := os.Stat(filePath); err == nil {
		return persistence.NewTemplateError("Create", template.ID, persistence.ErrTemplateAlreadyExists)
	}

	template.CreatedAt = time.Time{}

	return tr.write(ctx, template)
}

// Save inserts or replaces a template, keeping the original creation time.
func (tr *TemplateRepository) Save(ctx context.Context, template *models.Template) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if template.CreatedAt.IsZero() {
		existing, err := tr.GetByID(ctx, template.ID)
		if err == nil {
			template.CreatedAt = existing.CreatedAt
		}
	}

	return tr.write(ctx, template)
}

func (tr *TemplateRepository) write(_ context.Context, template *models.Template) error {
	filePath, err := tr.filePath(template.ID)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	err = os.MkdirAll(tr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create templates directory: %w", err)
	}

	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	var data bytes.Buffer

	encoder := json.NewEncoder(&data)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(template); err != nil {
		return fmt.Errorf("failed to marshal template %s: %w", template.ID, err)
	}

	return os.WriteFile(filePath, data.Bytes(), 0600)
}

// List returns paginated and filtered templates with in-memory operations.
func (tr *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) (*persistence.TemplateListResult, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	jsonFiles, err := fs.Glob(os.DirFS(tr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	filtered := make([]*models.Template, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		template, err := tr.GetByID(ctx, strings.TrimSuffix(file, ".json"))
		if err != nil {
			if persistence.IsTemplateNotFound(err) {
				continue
			}

			return nil, err
		}

		if opts.Owner != "" && template.Owner != opts.Owner {
			continue
		}

		filtered = append(filtered, template)
	}

	sortTemplates(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	if opts.Offset >= len(filtered) {
		return &persistence.TemplateListResult{
			Templates:  make([]*models.Template, 0),
			TotalCount: totalCount,
		}, nil
	}

	endIdx := min(opts.Offset+opts.Limit, len(filtered))

	return &persistence.TemplateListResult{
		Templates:   filtered[opts.Offset:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

func sortTemplates(templates []*models.Template, sortBy, sortOrder string) {
	sort.SliceStable(templates, func(i, j int) bool {
		a, b := templates[i], templates[j]
		if sortOrder == "desc" {
			a, b = b, a
		}

		switch sortBy {
		case persistence.SortByUpdatedAt:
			return a.UpdatedAt.Before(b.UpdatedAt)
		case persistence.SortByName:
			return a.Name < b.Name
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}

// Delete removes a template by its ID.
func (tr *TemplateRepository) Delete(_ context.Context, id string) error {
	filePath, err := tr.filePath(id)
	if err != nil {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	err = os.Remove(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	return nil
}
