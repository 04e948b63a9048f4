// Package events defines the notifications emitted when graphs are produced or templates change.
package events

import (
	"time"

	"github.com/dukex/graphsmith/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every graphsmith event.
const Topic = "graphsmith.graphs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	GraphSynthesizedEvent  EventType = "graph.synthesized"
	GraphInstantiatedEvent EventType = "graph.instantiated"
	TemplateSavedEvent     EventType = "template.saved"
	TemplateDeletedEvent   EventType = "template.deleted"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// GraphSynthesized is emitted after a model response was turned into a valid graph.
type GraphSynthesized struct {
	BaseEvent

	Strategy string        `json:"strategy"`
	Graph    *models.Graph `json:"graph"`
	Warnings []string      `json:"warnings,omitempty"`
}

func (g GraphSynthesized) GetType() EventType {
	return GraphSynthesizedEvent
}

// GraphInstantiated is emitted after a template was instantiated for a user.
type GraphInstantiated struct {
	BaseEvent

	TemplateID    string        `json:"template_id"`
	UserID        string        `json:"user_id"`
	DeploymentKey string        `json:"deployment_key,omitempty"`
	Graph         *models.Graph `json:"graph"`
	CredentialIDs []string      `json:"credential_ids,omitempty"`
}

func (g GraphInstantiated) GetType() EventType {
	return GraphInstantiatedEvent
}

type TemplateSaved struct {
	BaseEvent

	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
	Owner      string `json:"owner,omitempty"`
}

func (t TemplateSaved) GetType() EventType {
	return TemplateSavedEvent
}

type TemplateDeleted struct {
	BaseEvent

	TemplateID string `json:"template_id"`
}

func (t TemplateDeleted) GetType() EventType {
	return TemplateDeletedEvent
}

// NewEvent returns an empty event value for eventType, ready to be decoded into.
func NewEvent(eventType EventType) (any, bool) {
	switch eventType {
	case GraphSynthesizedEvent:
		return &GraphSynthesized{}, true
	case GraphInstantiatedEvent:
		return &GraphInstantiated{}, true
	case TemplateSavedEvent:
		return &TemplateSaved{}, true
	case TemplateDeletedEvent:
		return &TemplateDeleted{}, true
	default:
		return nil, false
	}
}
