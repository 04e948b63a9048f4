package models

import (
	"encoding/json"
	"time"
)

// Template is a stored workflow graph carrying placeholders, instantiated per user.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,max=255"`
	Description string          `json:"description"`
	Body        json.RawMessage `json:"body"        validate:"required"`
	Owner       string          `json:"owner,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
