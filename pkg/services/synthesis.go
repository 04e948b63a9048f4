package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/graphsmith/pkg/eventbus"
	"github.com/dukex/graphsmith/pkg/events"
	"github.com/dukex/graphsmith/pkg/extractor"
	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/otelhelper"
	"github.com/dukex/graphsmith/pkg/schedule"
	"github.com/dukex/graphsmith/pkg/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphResult is a validated graph along with what was done to it.
type GraphResult struct {
	Graph       *models.Graph          `json:"graph"`
	Strategy    extractor.Strategy     `json:"strategy,omitempty"`
	Diagnostics []validator.Diagnostic `json:"diagnostics,omitempty"`
	// Normalized is true when a schedule rule was rewritten.
	Normalized bool `json:"normalized"`
}

// Warnings flattens the diagnostics into human-readable lines.
func (r *GraphResult) Warnings() []string {
	return diagnosticMessages(r.Diagnostics)
}

type Synthesis struct {
	extractor  *extractor.Extractor
	validator  *validator.Validator
	normalizer *schedule.Normalizer
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewSynthesis creates the service that turns model output into graphs.
// publisher may be nil, in which case no events are emitted.
func NewSynthesis(
	logger *slog.Logger,
	tracer trace.Tracer,
	ext *extractor.Extractor,
	graphValidator *validator.Validator,
	normalizer *schedule.Normalizer,
	publisher eventbus.EventPublisher,
) *Synthesis {
	return &Synthesis{
		extractor:  ext,
		validator:  graphValidator,
		normalizer: normalizer,
		publisher:  publisher,
		tracer:     tracerOrDefault(tracer),
		logger:     logger.With("module", "synthesis"),
	}
}

// FromModelOutput extracts a graph from free-form text, repairs it, normalizes
// its schedules and announces it.
func (s *Synthesis) FromModelOutput(ctx context.Context, text string) (*GraphResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "synthesis.from_model_output",
		attribute.Int(otelhelper.InputLengthKey, len(text)))
	defer span.End()

	candidate, strategy, err := s.extractor.ExtractWithStrategy(text)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to extract graph: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.StrategyKey, string(strategy)))

	graph, diags, err := s.validator.Repair(candidate)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to repair graph: %w", err)
	}

	result := &GraphResult{Graph: graph, Strategy: strategy, Diagnostics: diags}
	result.Graph, result.Normalized = s.normalizer.Normalize(graph)

	s.logger.InfoContext(ctx, "graph synthesized",
		"strategy", strategy,
		"nodes", len(result.Graph.Nodes),
		"warnings", len(diags),
		"normalized", result.Normalized)

	publish(ctx, s.logger, s.publisher, result.Graph.Name, events.GraphSynthesized{
		BaseEvent: events.NewBaseEvent(events.GraphSynthesizedEvent),
		Strategy:  string(strategy),
		Graph:     result.Graph,
		Warnings:  result.Warnings(),
	})

	return result, nil
}

// Validate parses and repairs a graph document without normalizing it.
func (s *Synthesis) Validate(ctx context.Context, document []byte) (*GraphResult, error) {
	_, span := otelhelper.StartSpan(ctx, s.tracer, "synthesis.validate")
	defer span.End()

	graph, diags, err := s.validator.ValidateJSON(document)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to validate graph: %w", err)
	}

	return &GraphResult{Graph: graph, Diagnostics: diags}, nil
}

// Normalize validates a graph document and rewrites its schedule rules.
func (s *Synthesis) Normalize(ctx context.Context, document []byte) (*GraphResult, error) {
	result, err := s.Validate(ctx, document)
	if err != nil {
		return nil, err
	}

	result.Graph, result.Normalized = s.normalizer.Normalize(result.Graph)

	return result, nil
}

func diagnosticMessages(diags []validator.Diagnostic) []string {
	if len(diags) == 0 {
		return nil
	}

	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, fmt.Sprintf("%s %s: %s", d.Code, d.Path, d.Message))
	}

	return out
}

// publish emits event and logs, without failing, when the bus rejects it.
func publish(ctx context.Context, logger *slog.Logger, publisher eventbus.EventPublisher, key string, event eventbus.Event) {
	if publisher == nil {
		return
	}

	err := publisher.Publish(ctx, key, event)
	if err != nil {
		logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
