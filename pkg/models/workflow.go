// Package models defines the workflow graph model exchanged with the execution engine.
package models

import (
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"slices"
)

// Default values applied to graphs that omit them.
const (
	DefaultVersionID   = "1"
	DefaultTypeVersion = 1
)

// Graph is a workflow template or instance in the engine's wire format.
type Graph struct {
	Name        string         `json:"name"        validate:"required"`
	Nodes       []*Node        `json:"nodes"       validate:"required,min=1,dive"`
	Connections Connections    `json:"connections"`
	Settings    map[string]any `json:"settings"`
	Active      bool           `json:"active"`
	VersionID   string         `json:"versionId"   validate:"required"`
}

// Connections maps a source node name to its output ports. Each port kind holds
// one slot per output index, and each slot holds the edges leaving it.
type Connections map[string]map[string][][]Edge

// Edge is a single directed link to a target node, addressed by node name.
type Edge struct {
	Node  string `json:"node"  validate:"required"`
	Type  string `json:"type"  validate:"required"`
	Index int    `json:"index" validate:"min=0"`
}

// EdgeRef is an edge together with the place it was found in Connections.
type EdgeRef struct {
	Source   string
	PortKind string
	Slot     int
	Edge     Edge
}

// NodeByName returns the node addressed by name.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	for _, node := range g.Nodes {
		if node.Name == name {
			return node, true
		}
	}

	return nil, false
}

// NodeNames returns the set of node names in the graph.
func (g *Graph) NodeNames() map[string]bool {
	names := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		names[node.Name] = true
	}

	return names
}

// Edges iterates over every edge in the graph, sources and port kinds in
// lexical order.
func (g *Graph) Edges() iter.Seq[EdgeRef] {
	return func(yield func(EdgeRef) bool) {
		for _, source := range slices.Sorted(maps.Keys(g.Connections)) {
			ports := g.Connections[source]
			for _, kind := range slices.Sorted(maps.Keys(ports)) {
				for slot, edges := range ports[kind] {
					for _, edge := range edges {
						if !yield(EdgeRef{Source: source, PortKind: kind, Slot: slot, Edge: edge}) {
							return
						}
					}
				}
			}
		}
	}
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() (*Graph, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graph: %w", err)
	}

	var clone Graph
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	return &clone, nil
}
