package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3/client"
)

// APIKeyHeader carries the engine API key.
const APIKeyHeader = "X-N8N-API-KEY"

const credentialsPath = "/api/v1/credentials"

const defaultTimeout = 10 * time.Second

// EngineClient is a Store backed by the execution engine's public REST API.
type EngineClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *client.Client
	logger  *slog.Logger
}

type listResponse struct {
	Data       []Summary `json:"data"`
	NextCursor string    `json:"nextCursor"`
}

func NewEngineClient(baseURL, apiKey string, logger *slog.Logger) *EngineClient {
	return &EngineClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: defaultTimeout,
		http:    client.New(),
		logger:  logger.With("module", "engine_credentials"),
	}
}

// WithTimeout sets the per-request timeout used when ctx carries no deadline.
func (c *EngineClient) WithTimeout(timeout time.Duration) *EngineClient {
	c.timeout = timeout

	return c
}

// Create issues POST /api/v1/credentials. Every failure is a *CreationError.
func (c *EngineClient) Create(ctx context.Context, req CreateRequest) (Created, error) {
	resp, err := c.http.Post(c.baseURL+credentialsPath, client.Config{
		Ctx:     ctx,
		Header:  c.headers(),
		Body:    req,
		Timeout: c.requestTimeout(ctx),
	})
	if err != nil {
		return Created{}, &CreationError{Kind: req.Type, Err: err}
	}
	defer resp.Close()

	if status := resp.StatusCode(); status < http.StatusOK || status >= http.StatusMultipleChoices {
		return Created{}, &CreationError{
			Kind:       req.Type,
			StatusCode: status,
			Err:        errors.New(strings.TrimSpace(string(resp.Body()))),
		}
	}

	var created Created
	if err := resp.JSON(&created); err != nil {
		return Created{}, &CreationError{Kind: req.Type, StatusCode: resp.StatusCode(), Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if created.ID == "" {
		return Created{}, &CreationError{Kind: req.Type, StatusCode: resp.StatusCode(), Err: errors.New("response has no credential id")}
	}

	if created.Name == "" {
		created.Name = req.Name
	}

	c.logger.InfoContext(ctx, "Created credential", "type", req.Type, "id", created.ID)

	return created, nil
}

// List issues GET /api/v1/credentials, following pagination cursors.
func (c *EngineClient) List(ctx context.Context) ([]Summary, error) {
	var (
		all    []Summary
		cursor string
	)

	for {
		params := map[string]string{}
		if cursor != "" {
			params["cursor"] = cursor
		}

		page, err := c.listPage(ctx, params)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Data...)

		if page.NextCursor == "" || page.NextCursor == cursor {
			return all, nil
		}

		cursor = page.NextCursor
	}
}

func (c *EngineClient) listPage(ctx context.Context, params map[string]string) (listResponse, error) {
	resp, err := c.http.Get(c.baseURL+credentialsPath, client.Config{
		Ctx:     ctx,
		Header:  c.headers(),
		Param:   params,
		Timeout: c.requestTimeout(ctx),
	})
	if err != nil {
		return listResponse{}, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer resp.Close()

	if status := resp.StatusCode(); status != http.StatusOK {
		return listResponse{}, fmt.Errorf("failed to list credentials: status %d: %s", status, strings.TrimSpace(string(resp.Body())))
	}

	var page listResponse
	if err := resp.JSON(&page); err != nil {
		return listResponse{}, fmt.Errorf("failed to decode credential list: %w", err)
	}

	return page, nil
}

func (c *EngineClient) headers() map[string]string {
	return map[string]string{
		APIKeyHeader: c.apiKey,
		"Accept":     "application/json",
	}
}

func (c *EngineClient) requestTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}

	return c.timeout
}
