package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/graphsmith/pkg/credentials"
	"github.com/dukex/graphsmith/pkg/eventbus"
	"github.com/dukex/graphsmith/pkg/events"
	"github.com/dukex/graphsmith/pkg/extractor"
	"github.com/dukex/graphsmith/pkg/injector"
	"github.com/dukex/graphsmith/pkg/mocks"
	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/dukex/graphsmith/pkg/persistence/file"
	"github.com/dukex/graphsmith/pkg/schedule"
	"github.com/dukex/graphsmith/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const modelOutput = "Here is your workflow:\n```json\n" + `{
  "nodes": [
    {"id": "1", "name": "Every morning", "type": "n8n-nodes-base.scheduleTrigger", "parameters": {"rule": {"interval": [{"field": "cronExpression", "expression": "30 7 * * 1-5"}]}}},
    {"id": "2", "name": "Post", "type": "n8n-nodes-base.slack", "parameters": {}}
  ],
  "connections": {"Every morning": {"main": [[{"node": "Post", "type": "main", "index": 0}]]}}
}` + "\n```\nLet me know if you need changes."

const digestTemplate = `{
  "name": "Digest",
  "nodes": [
    {"id": "a", "name": "Schedule", "type": "n8n-nodes-base.scheduleTrigger", "typeVersion": 1.2, "position": [250, 300], "parameters": {"rule": {"interval": [{"field": "hours", "hoursInterval": "{{USER_INTERVAL}}"}]}}},
    {"id": "b", "name": "Notify", "type": "n8n-nodes-base.slack", "typeVersion": 2, "position": [500, 300], "parameters": {"text": "{{channel}}"}}
  ],
  "connections": {"Schedule": {"main": [[{"node": "Notify", "type": "main", "index": 0}]]}},
  "settings": {},
  "active": false,
  "versionId": "1"
}`

type fixture struct {
	bus         *mocks.MockEventBus
	persistence persistence.Persistence
	synthesis   *Synthesis
	deployment  *Deployment
	templates   *Template
}

func newFixture(t *testing.T, opts ...injector.Option) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	catalog := models.DefaultCatalog()

	graphValidator, err := validator.New(logger, catalog)
	require.NoError(t, err)

	normalizer := schedule.NewNormalizer(logger, catalog)
	bus := &mocks.MockEventBus{}
	store := file.NewPersistence(t.TempDir())

	return &fixture{
		bus:         bus,
		persistence: store,
		synthesis:   NewSynthesis(logger, nil, extractor.New(logger), graphValidator, normalizer, bus),
		deployment: NewDeployment(logger, nil, store,
			injector.New(logger, catalog, graphValidator, opts...), normalizer, bus),
		templates: NewTemplate(logger, store, graphValidator, bus),
	}
}

func ofType(eventType events.EventType) any {
	return mock.MatchedBy(func(event eventbus.Event) bool { return event.GetType() == eventType })
}

func TestSynthesis_FromModelOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bus.On("Publish", mock.Anything, mock.Anything, ofType(events.GraphSynthesizedEvent)).Return(nil)

	result, err := f.synthesis.FromModelOutput(context.Background(), modelOutput)
	require.NoError(t, err)

	assert.Equal(t, extractor.StrategyFenced, result.Strategy)
	assert.True(t, result.Normalized)
	require.Len(t, result.Graph.Nodes, 2)
	assert.Equal(t, map[string]any{
		"interval": []any{map[string]any{"field": "cronExpression", "expression": "30 7 * * *"}},
	}, result.Graph.Nodes[0].Parameters["rule"])
	assert.False(t, result.Graph.Active)
	assert.NotEmpty(t, result.Graph.Name)

	f.bus.AssertNumberOfCalls(t, "Publish", 1)
}

func TestSynthesis_FromModelOutput_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		check func(error) bool
	}{
		{
			name:  "no object",
			text:  "I could not build that workflow.",
			check: func(err error) bool { return errors.Is(err, extractor.ErrExtractionFailure) },
		},
		{
			name:  "no nodes",
			text:  `{"nodes": [], "connections": {}}`,
			check: validator.IsSchemaViolation,
		},
		{
			name:  "dangling edge",
			text:  `{"nodes": [{"id": "a", "name": "A", "type": "trigger.manual"}], "connections": {"A": {"main": [[{"node": "B"}]]}}}`,
			check: validator.IsDanglingConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)

			_, err := f.synthesis.FromModelOutput(context.Background(), tt.text)
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.True(t, IsValidationError(err))
			f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSynthesis_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	result, err := f.synthesis.FromModelOutput(context.Background(), modelOutput)
	require.NoError(t, err)
	assert.NotNil(t, result.Graph)
}

func TestSynthesis_ValidateAndNormalize(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	document := []byte(`{"nodes": [{"id": "s", "name": "S", "type": "n8n-nodes-base.scheduleTrigger", "parameters": {"rule": "@daily"}}], "connections": {}}`)

	validated, err := f.synthesis.Validate(context.Background(), document)
	require.NoError(t, err)
	assert.False(t, validated.Normalized)
	assert.Equal(t, "@daily", validated.Graph.Nodes[0].Parameters["rule"])

	normalized, err := f.synthesis.Normalize(context.Background(), document)
	require.NoError(t, err)
	assert.True(t, normalized.Normalized)
	assert.Equal(t, map[string]any{
		"interval": []any{map[string]any{"field": "cronExpression", "expression": schedule.Daily}},
	}, normalized.Graph.Nodes[0].Parameters["rule"])

	_, err = f.synthesis.Validate(context.Background(), []byte(`[1, 2]`))
	assert.True(t, validator.IsSchemaViolation(err))
}

func createTemplate(t *testing.T, f *fixture, id string) *models.Template {
	t.Helper()

	f.bus.On("Publish", mock.Anything, id, ofType(events.TemplateSavedEvent)).Return(nil).Once()

	template, _, err := f.templates.Create(context.Background(), &models.Template{
		ID:   id,
		Name: "Digest",
		Body: json.RawMessage(digestTemplate),
	})
	require.NoError(t, err)

	return template
}

func TestTemplate_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	created := createTemplate(t, f, "tpl-1")
	assert.Equal(t, "tpl-1", created.ID)

	fetched, err := f.templates.FetchByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.JSONEq(t, digestTemplate, string(fetched.Body))

	list, err := f.templates.List(ctx, persistence.ListTemplatesOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.TotalCount)

	_, _, err = f.templates.Create(ctx, &models.Template{ID: "tpl-1", Name: "Again", Body: json.RawMessage(digestTemplate)})
	assert.True(t, IsConflictError(err))

	f.bus.On("Publish", mock.Anything, "tpl-1", ofType(events.TemplateDeletedEvent)).Return(nil).Once()
	require.NoError(t, f.templates.Delete(ctx, "tpl-1"))

	_, err = f.templates.FetchByID(ctx, "tpl-1")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "not_found", ErrorCode(err))

	f.bus.AssertExpectations(t)
}

func TestTemplate_CreateRejectsInvalidBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template *models.Template
		code     string
	}{
		{name: "nil", template: nil, code: "missing_template"},
		{name: "no name", template: &models.Template{Body: json.RawMessage(digestTemplate)}, code: "invalid_template"},
		{name: "array body", template: &models.Template{Name: "x", Body: json.RawMessage(`[]`)}, code: "invalid_body"},
		{name: "no nodes", template: &models.Template{Name: "x", Body: json.RawMessage(`{"nodes": []}`)}, code: "schema_violation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)

			_, _, err := f.templates.Create(context.Background(), tt.template)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}
}

func TestTemplate_HealthCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	message, ok := f.templates.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	p := mocks.NewMockPersistence()
	p.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	message, ok = NewTemplate(slog.New(slog.DiscardHandler), p, nil, nil).HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Contains(t, message, "connection refused")
}

func TestDeployment_Instantiate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	createTemplate(t, f, "tpl-1")
	f.bus.On("Publish", mock.Anything, "tpl-1", ofType(events.GraphInstantiatedEvent)).Return(nil).Once()

	interval := 6
	result, err := f.deployment.Instantiate(context.Background(), "tpl-1", injector.Request{
		UserID:     "user-1",
		Interval:   &interval,
		Parameters: map[string]string{"channel": "#general"},
	})
	require.NoError(t, err)

	assert.Equal(t, "tpl-1", result.TemplateID)
	assert.True(t, result.Normalized)

	trigger, ok := result.Graph.NodeByName("Schedule")
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"interval": []any{map[string]any{"field": "cronExpression", "expression": "0 */6 * * *"}},
	}, trigger.Parameters["rule"])

	notify, ok := result.Graph.NodeByName("Notify")
	require.True(t, ok)
	assert.Equal(t, "#general", notify.Parameters["text"])

	f.bus.AssertExpectations(t)
}

func TestDeployment_InstantiateFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	createTemplate(t, f, "tpl-1")

	_, err := f.deployment.Instantiate(context.Background(), "", injector.Request{})
	assert.True(t, IsValidationError(err))

	_, err = f.deployment.Instantiate(context.Background(), "missing", injector.Request{})
	assert.True(t, IsNotFound(err))

	_, err = f.deployment.Instantiate(context.Background(), "tpl-1", injector.Request{
		Parameters: map[string]string{"channel": "#general"},
	})
	require.Error(t, err)
	assert.True(t, injector.IsUnresolvedPlaceholder(err))
	assert.Equal(t, "unresolved_placeholder", ErrorCode(err))

	f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, ofType(events.GraphInstantiatedEvent))
}

func TestDeployment_RetryableCredentialFailure(t *testing.T) {
	t.Parallel()

	store := &mocks.MockCredentialStore{}
	store.On("Create", mock.Anything, mock.Anything).Return(credentials.Created{}, &credentials.CreationError{
		Kind:       models.CredentialKindIMAP,
		StatusCode: 503,
		Err:        errors.New("engine unavailable"),
	})

	f := newFixture(t, injector.WithCredentialStore(store))

	body := []byte(`{"nodes": [{"id": "i", "name": "Inbox", "type": "n8n-nodes-base.emailReadImap", "parameters": {}, "credentials": {"imap": {"id": "{{USER_IMAP_CREDENTIAL_ID}}", "name": "{{USER_IMAP_CREDENTIAL_NAME}}"}}}], "connections": {}}`)

	_, err := f.deployment.InstantiateBody(context.Background(), body, injector.Request{
		UserEmail: "ana@example.com",
		Mailbox:   &injector.MailboxSettings{Password: "pw", Host: "imap.example.com"},
	})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "credential_creation", ErrorCode(err))
}
