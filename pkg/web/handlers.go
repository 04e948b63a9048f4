package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/graphsmith/pkg/injector"
	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/persistence"
	"github.com/dukex/graphsmith/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// KeyReloader reloads the operator key file.
type KeyReloader interface {
	Reload() error
	Services() []string
}

type APIHandlers struct {
	synthesis  *services.Synthesis
	deployment *services.Deployment
	templates  *services.Template
	keys       KeyReloader
	validator  *validator.Validate
	adminToken string
	logger     *slog.Logger
}

func NewAPIHandlers(
	logger *slog.Logger,
	synthesis *services.Synthesis,
	deployment *services.Deployment,
	templates *services.Template,
	keys KeyReloader,
	validator *validator.Validate,
	adminToken string,
) *APIHandlers {
	return &APIHandlers{
		synthesis:  synthesis,
		deployment: deployment,
		templates:  templates,
		keys:       keys,
		validator:  validator,
		adminToken: adminToken,
		logger:     logger.With("module", "web"),
	}
}

// Register mounts every route on app.
func (h *APIHandlers) Register(app *fiber.App) {
	g := app.Group("/graphs")
	g.Post("/extract", h.ExtractGraph)
	g.Post("/validate", h.ValidateGraph)
	g.Post("/normalize", h.NormalizeGraph)

	t := app.Group("/templates")
	t.Get("/", h.GetTemplates)
	t.Post("/", h.CreateTemplate)
	t.Get("/:id", h.GetTemplate)
	t.Delete("/:id", h.DeleteTemplate)
	t.Post("/:id/instances", h.InstantiateTemplate)

	app.Post("/admin/secrets/reload", h.ReloadSecrets)
	app.Get("/health", h.HealthCheck)
}

// ExtractGraph turns a raw model response into a validated, normalized graph.
func (h *APIHandlers) ExtractGraph(c fiber.Ctx) error {
	text := string(c.Body())
	if strings.TrimSpace(text) == "" {
		return badRequest(c, "Request body must contain the model output")
	}

	result, err := h.synthesis.FromModelOutput(c.Context(), text)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"graph":       result.Graph,
		"strategy":    result.Strategy,
		"normalized":  result.Normalized,
		"diagnostics": result.Diagnostics,
		"warnings":    result.Warnings(),
	})
}

func (h *APIHandlers) ValidateGraph(c fiber.Ctx) error {
	result, err := h.synthesis.Validate(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) NormalizeGraph(c fiber.Ctx) error {
	result, err := h.synthesis.Normalize(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	opts, err := parseListTemplatesOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.templates.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ListTemplatesResponse{
		Templates:   result.Templates,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
}

func parseListTemplatesOptions(c fiber.Ctx) (persistence.ListTemplatesOptions, error) {
	opts := persistence.ListTemplatesOptions{
		Owner:     c.Query("owner"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return opts, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return opts, err
		}

		opts.Offset = offset
	}

	return opts.Normalize()
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, diags, err := h.templates.Create(c.Context(), &models.Template{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Body:        req.Body,
		Owner:       req.Owner,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TemplateResponse{Template: created, Diagnostics: diags})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	template, err := h.templates.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	err := h.templates.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// InstantiateTemplate resolves a stored template for the user in the request body.
func (h *APIHandlers) InstantiateTemplate(c fiber.Ctx) error {
	var req injector.Request
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if key := c.Get("Idempotency-Key"); key != "" && req.DeploymentKey == "" {
		req.DeploymentKey = key
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.deployment.Instantiate(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// ReloadSecrets rereads the operator key file.
func (h *APIHandlers) ReloadSecrets(c fiber.Ctx) error {
	if !h.authorized(c) {
		return unauthorized(c)
	}

	if h.keys == nil {
		return badRequest(c, "No key file configured")
	}

	if err := h.keys.Reload(); err != nil {
		h.logger.ErrorContext(c.Context(), "failed to reload operator keys", "error", err)

		return handleServiceError(c, err)
	}

	return c.JSON(ReloadResponse{Services: h.keys.Services()})
}

func (h *APIHandlers) authorized(c fiber.Ctx) bool {
	if h.adminToken == "" {
		return true
	}

	token, found := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !found {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.templates.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Graphsmith API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Graphsmith API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
