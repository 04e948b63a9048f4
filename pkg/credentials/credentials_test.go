package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/graphsmith/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *EngineClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewEngineClient(server.URL+"/", "engine-key", slog.New(slog.DiscardHandler))
}

func TestEngineClient_Create(t *testing.T) {
	t.Parallel()

	var received CreateRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/credentials", r.URL.Path)
		assert.Equal(t, "engine-key", r.Header.Get(APIKeyHeader))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cred-42","name":"IMAP ana@example.com","type":"imap"}`))
	})

	created, err := c.Create(context.Background(), CreateRequest{
		Name: "IMAP ana@example.com",
		Type: models.CredentialKindIMAP,
		Data: map[string]any{"user": "ana@example.com", "port": 993},
	})
	require.NoError(t, err)
	assert.Equal(t, Created{ID: "cred-42", Name: "IMAP ana@example.com"}, created)

	assert.Equal(t, "imap", received.Type)
	assert.Equal(t, "ana@example.com", received.Data["user"])
	assert.InDelta(t, 993, received.Data["port"], 0)
}

func TestEngineClient_CreateFallsBackToRequestedName(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"7"}`))
	})

	created, err := c.Create(context.Background(), CreateRequest{Name: "SMTP", Type: "smtp", Data: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "SMTP", created.Name)
}

func TestEngineClient_CreateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"message":"bad data"}`, retryable: false},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"unauthorized"}`, retryable: false},
		{name: "throttled", status: http.StatusTooManyRequests, body: ``, retryable: true},
		{name: "server error", status: http.StatusBadGateway, body: `upstream`, retryable: true},
		{name: "missing id", status: http.StatusOK, body: `{"name":"x"}`, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Create(context.Background(), CreateRequest{Name: "n", Type: "smtp", Data: map[string]any{}})
			require.Error(t, err)
			require.ErrorIs(t, err, ErrCredentialCreation)

			var creationErr *CreationError
			require.True(t, errors.As(err, &creationErr))
			assert.Equal(t, "smtp", creationErr.Kind)
			assert.Equal(t, tt.status, creationErr.StatusCode)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestEngineClient_CreateUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewEngineClient(url, "k", slog.New(slog.DiscardHandler)).WithTimeout(time.Second)

	_, err := c.Create(context.Background(), CreateRequest{Name: "n", Type: "imap", Data: map[string]any{}})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestEngineClient_ListFollowsCursor(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "engine-key", r.Header.Get(APIKeyHeader))

		if r.URL.Query().Get("cursor") == "page-2" {
			_, _ = w.Write([]byte(`{"data":[{"id":"3","name":"Slack bot","type":"slackApi"}]}`))

			return
		}

		_, _ = w.Write([]byte(`{"data":[{"id":"1","name":"OpenAI shared","type":"openAiApi"},{"id":"2","name":"Mail","type":"smtp"}],"nextCursor":"page-2"}`))
	})

	list, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Summary{
		{ID: "1", Name: "OpenAI shared", Type: "openAiApi"},
		{ID: "2", Name: "Mail", Type: "smtp"},
		{ID: "3", Name: "Slack bot", Type: "slackApi"},
	}, list)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEngineClient_ListError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.List(context.Background())
	require.Error(t, err)
}

func TestMatchOperatorCredential(t *testing.T) {
	t.Parallel()

	list := []Summary{
		{ID: "1", Name: "Team mailbox", Type: "imap"},
		{ID: "2", Name: "Shared GPT key", Type: "httpHeaderAuth"},
		{ID: "3", Name: "OpenAI prod", Type: "openAiApi"},
		{ID: "4", Name: "Anthropic", Type: "anthropicApi"},
		{ID: "5", Name: "Ops alerts", Type: "mattermostApi"},
	}

	tests := []struct {
		service string
		wantID  string
		found   bool
	}{
		{service: "openai", wantID: "2", found: true},
		{service: "OpenAI", wantID: "2", found: true},
		{service: "anthropic", wantID: "4", found: true},
		{service: "mattermost", wantID: "5", found: true},
		{service: "slack", found: false},
		{service: "", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			t.Parallel()

			got, ok := MatchOperatorCredential(list, tt.service)
			assert.Equal(t, tt.found, ok)

			if tt.found {
				assert.Equal(t, tt.wantID, got.ID)
			}
		})
	}
}

func TestMatchOperatorCredential_SkipsUserCredentials(t *testing.T) {
	t.Parallel()

	list := []Summary{
		{ID: "user-42", Name: "IMAP alice@gmail.com", Type: "imap"},
		{ID: "user-43", Name: "SMTP bob@google.com", Type: "smtp"},
		{ID: "user-44", Name: "imap carol@openai.com", Type: "httpHeaderAuth"},
		{ID: "op-1", Name: "Operator Google Sheets", Type: "googleSheetsOAuth2Api"},
		{ID: "op-2", Name: "OpenAI prod", Type: "openAiApi"},
	}

	got, ok := MatchOperatorCredential(list, "google")
	require.True(t, ok)
	assert.Equal(t, "op-1", got.ID)

	got, ok = MatchOperatorCredential(list, "openai")
	require.True(t, ok)
	assert.Equal(t, "op-2", got.ID)

	_, ok = MatchOperatorCredential(list[:3], "google")
	assert.False(t, ok)
}

func TestUserCredentialName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "IMAP ana@example.com", UserCredentialName("imap", "ana@example.com"))
	assert.Equal(t, "SMTP ana@example.com", UserCredentialName("smtp", "ana@example.com"))
}

func TestMemoryLedger(t *testing.T) {
	t.Parallel()

	ledger := NewMemoryLedger()
	ctx := context.Background()
	key := LedgerKey("deploy-1", models.CredentialKindIMAP)

	assert.Equal(t, "deploy-1:imap", key)

	_, ok, err := ledger.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	ref := models.CredentialReference{ID: "9", Name: "IMAP"}
	require.NoError(t, ledger.Record(ctx, key, ref))

	got, ok, err := ledger.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ref, got)
}

func TestCreationError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := &CreationError{Kind: "imap", Err: cause}

	assert.ErrorIs(t, err, ErrCredentialCreation)
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable())
	assert.Contains(t, err.Error(), "imap")

	assert.False(t, IsRetryable(cause))
}
