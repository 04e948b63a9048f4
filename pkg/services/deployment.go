package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/graphsmith/pkg/eventbus"
	"github.com/dukex/graphsmith/pkg/events"
	"github.com/dukex/graphsmith/pkg/injector"
	"github.com/dukex/graphsmith/pkg/otelhelper"
	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/dukex/graphsmith/pkg/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstanceResult is a deployable instance of a template.
type InstanceResult struct {
	*injector.Result

	TemplateID string `json:"templateId"`
	Normalized bool   `json:"normalized"`
}

type Deployment struct {
	persistence persistence.Persistence
	injector    *injector.Injector
	normalizer  *schedule.Normalizer
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewDeployment creates the service that instantiates stored templates.
func NewDeployment(
	logger *slog.Logger,
	tracer trace.Tracer,
	persistence persistence.Persistence,
	inj *injector.Injector,
	normalizer *schedule.Normalizer,
	publisher eventbus.EventPublisher,
) *Deployment {
	return &Deployment{
		persistence: persistence,
		injector:    inj,
		normalizer:  normalizer,
		publisher:   publisher,
		tracer:      tracerOrDefault(tracer),
		logger:      logger.With("module", "deployment"),
	}
}

// Instantiate loads a template, resolves it for req and normalizes its schedules.
func (d *Deployment) Instantiate(ctx context.Context, templateID string, req injector.Request) (*InstanceResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "deployment.instantiate",
		attribute.String(otelhelper.TemplateIDKey, templateID),
		attribute.String(otelhelper.UserIDKey, req.UserID))
	defer span.End()

	if templateID == "" {
		return nil, NewValidationError("Instantiate", "missing_template_id", "template id is required", ErrInvalidRequest)
	}

	template, err := d.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
	}

	req.TemplateID = templateID

	return d.instantiate(ctx, span, templateID, template.Body, req)
}

// InstantiateBody resolves a template that is not stored, as the CLI does.
func (d *Deployment) InstantiateBody(ctx context.Context, body []byte, req injector.Request) (*InstanceResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "deployment.instantiate_body",
		attribute.String(otelhelper.UserIDKey, req.UserID))
	defer span.End()

	return d.instantiate(ctx, span, req.TemplateID, body, req)
}

func (d *Deployment) instantiate(ctx context.Context, span trace.Span, templateID string, body []byte, req injector.Request) (*InstanceResult, error) {
	result, err := d.injector.Inject(ctx, body, req)
	if err != nil {
		otelhelper.SetError(span, err)
		d.logger.WarnContext(ctx, "instantiation failed",
			"template_id", templateID,
			"user_id", req.UserID,
			"retryable", IsRetryable(err),
			"error", err)

		return nil, fmt.Errorf("failed to instantiate template %s: %w", templateID, err)
	}

	instance := &InstanceResult{Result: result, TemplateID: templateID}
	instance.Graph, instance.Normalized = d.normalizer.Normalize(result.Graph)

	credentialIDs := make([]string, 0, len(result.Credentials))
	for _, c := range result.Credentials {
		credentialIDs = append(credentialIDs, c.Reference.ID)
	}

	span.SetAttributes(attribute.Int(otelhelper.CredentialCountKey, len(credentialIDs)))

	d.logger.InfoContext(ctx, "template instantiated",
		"template_id", templateID,
		"user_id", req.UserID,
		"credentials", len(credentialIDs),
		"warnings", len(result.Warnings))

	publish(ctx, d.logger, d.publisher, templateID, events.GraphInstantiated{
		BaseEvent:     events.NewBaseEvent(events.GraphInstantiatedEvent),
		TemplateID:    templateID,
		UserID:        req.UserID,
		DeploymentKey: req.DeploymentKey,
		Graph:         instance.Graph,
		CredentialIDs: credentialIDs,
	})

	return instance, nil
}

func tracerOrDefault(tracer trace.Tracer) trace.Tracer {
	if tracer != nil {
		return tracer
	}

	return otel.Tracer("graphsmith")
}
