// Package web provides HTTP request and response types for the graph API.
package web

import (
	"encoding/json"

	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/validator"
)

// CreateTemplateRequest represents the request body for storing a template.
type CreateTemplateRequest struct {
	ID          string          `json:"id,omitempty"          validate:"omitempty,max=255,excludesall=/\\"`
	Name        string          `json:"name"                  validate:"required,max=255"`
	Description string          `json:"description"`
	Body        json.RawMessage `json:"body"                  validate:"required"`
	Owner       string          `json:"owner,omitempty"`
}

// TemplateResponse is a stored template with the warnings raised while checking it.
type TemplateResponse struct {
	*models.Template

	Diagnostics []validator.Diagnostic `json:"diagnostics,omitempty"`
}

// ListTemplatesResponse is a page of templates.
type ListTemplatesResponse struct {
	Templates   []*models.Template `json:"templates"`
	TotalCount  int64              `json:"totalCount"`
	HasNextPage bool               `json:"hasNextPage"`
	Limit       int                `json:"limit"`
	Offset      int                `json:"offset"`
}

// ReloadResponse reports the services holding an active key after a reload.
type ReloadResponse struct {
	Services []string `json:"services"`
}
