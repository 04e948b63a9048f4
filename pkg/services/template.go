package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/graphsmith/pkg/eventbus"
	"github.com/dukex/graphsmith/pkg/events"
	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/dukex/graphsmith/pkg/validator"
	playground "github.com/go-playground/validator/v10"
)

type Template struct {
	persistence persistence.Persistence
	validator   *validator.Validator
	publisher   eventbus.EventPublisher
	fields      *playground.Validate
	logger      *slog.Logger
}

// NewTemplate creates the template CRUD service.
func NewTemplate(logger *slog.Logger, persistence persistence.Persistence, graphValidator *validator.Validator, publisher eventbus.EventPublisher) *Template {
	return &Template{
		persistence: persistence,
		validator:   graphValidator,
		publisher:   publisher,
		fields:      playground.New(playground.WithRequiredStructEnabled()),
		logger:      logger.With("module", "template"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and stores a new template. The body is stored as written;
// repairs are only used to prove it instantiates into a valid graph.
func (s *Template) Create(ctx context.Context, template *models.Template) (*models.Template, []validator.Diagnostic, error) {
	if template == nil {
		return nil, nil, NewValidationError("Create", "missing_template", "template is required", ErrInvalidRequest)
	}

	diags, err := s.check(template)
	if err != nil {
		return nil, nil, err
	}

	err = s.persistence.TemplateRepository().Create(ctx, template)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.logger.InfoContext(ctx, "template created", "template_id", template.ID, "owner", template.Owner)

	publish(ctx, s.logger, s.publisher, template.ID, events.TemplateSaved{
		BaseEvent:  events.NewBaseEvent(events.TemplateSavedEvent),
		TemplateID: template.ID,
		Name:       template.Name,
		Owner:      template.Owner,
	})

	return template, diags, nil
}

func (s *Template) check(template *models.Template) ([]validator.Diagnostic, error) {
	if err := s.fields.Struct(template); err != nil {
		return nil, NewValidationError("Create", "invalid_template", err.Error(), ErrInvalidRequest)
	}

	var body map[string]any
	if err := json.Unmarshal(template.Body, &body); err != nil || body == nil {
		return nil, NewValidationError("Create", "invalid_body", "template body must be a JSON object", ErrInvalidRequest)
	}

	_, diags, err := s.validator.Repair(body)
	if err != nil {
		return nil, fmt.Errorf("template body is not a valid graph: %w", err)
	}

	return diags, nil
}

func (s *Template) FetchByID(ctx context.Context, id string) (*models.Template, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch template: %w", err)
	}

	return template, nil
}

func (s *Template) List(ctx context.Context, opts persistence.ListTemplatesOptions) (*persistence.TemplateListResult, error) {
	result, err := s.persistence.TemplateRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return result, nil
}

func (s *Template) Delete(ctx context.Context, id string) error {
	err := s.persistence.TemplateRepository().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	s.logger.InfoContext(ctx, "template deleted", "template_id", id)

	publish(ctx, s.logger, s.publisher, id, events.TemplateDeleted{
		BaseEvent:  events.NewBaseEvent(events.TemplateDeletedEvent),
		TemplateID: id,
	})

	return nil
}
