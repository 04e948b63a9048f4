// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/graphsmith/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:          uuid.New().String(),
		Name:        "Test Node",
		Type:        "n8n-nodes-base.set",
		TypeVersion: models.DefaultTypeVersion,
		Position:    []float64{250, 300},
		Parameters:  map[string]any{},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithScheduleRule configures the node as a schedule trigger firing on rule.
func WithScheduleRule(rule any) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeScheduleTrigger
		n.Parameters = map[string]any{"rule": rule}
	}
}

// WithCronExpression configures the node as a schedule trigger with a single cron rule.
func WithCronExpression(expression string) func(*models.Node) {
	return WithScheduleRule(map[string]any{
		"interval": []any{map[string]any{"field": "cronExpression", "expression": expression}},
	})
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithParameters sets the node parameters.
func WithParameters(parameters map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Parameters = parameters
	}
}

// WithCredential attaches a credential reference of kind.
func WithCredential(kind, id, name string) func(*models.Node) {
	return func(n *models.Node) {
		n.AttachCredential(kind, models.CredentialReference{ID: id, Name: name})
	}
}

// CreateTestGraph creates a graph holding nodes with no connections.
func CreateTestGraph(nodes ...*models.Node) *models.Graph {
	return &models.Graph{
		Name:        "Test Graph",
		Nodes:       nodes,
		Connections: models.Connections{},
		Settings:    map[string]any{},
		VersionID:   models.DefaultVersionID,
	}
}

// Connect adds a main edge from source to target.
func Connect(graph *models.Graph, source, target string) *models.Graph {
	if graph.Connections == nil {
		graph.Connections = models.Connections{}
	}

	ports, ok := graph.Connections[source]
	if !ok {
		ports = map[string][][]models.Edge{}
		graph.Connections[source] = ports
	}

	if len(ports["main"]) == 0 {
		ports["main"] = [][]models.Edge{{}}
	}

	ports["main"][0] = append(ports["main"][0], models.Edge{Node: target, Type: "main", Index: 0})

	return graph
}
