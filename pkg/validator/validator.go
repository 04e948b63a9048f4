// Package validator checks candidate workflow graphs against the node/connection
// schema and repairs cosmetic defects such as missing positions or type versions.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dukex/graphsmith/pkg/models"
	playground "github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// Layout used for nodes without a usable position.
const (
	LayoutOriginX  = 250
	LayoutSpacingX = 250
	LayoutY        = 300
)

// DefaultNamePrefix prefixes the generated name of graphs that arrive without one.
const DefaultNamePrefix = "Generated workflow"

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the clock used for default graph names.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// Validator repairs and validates graph candidates. It is safe for concurrent use.
type Validator struct {
	logger           *slog.Logger
	catalog          *models.Catalog
	structs          *playground.Validate
	graphSchema      *gojsonschema.Schema
	parameterSchemas map[string]*gojsonschema.Schema
	now              func() time.Time
}

// New creates a Validator. Parameter schemas of the catalog are compiled up front.
func New(logger *slog.Logger, catalog *models.Catalog, opts ...Option) (*Validator, error) {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(graphSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile graph schema: %w", err)
	}

	v := &Validator{
		logger:           logger.With("module", "validator"),
		catalog:          catalog,
		structs:          playground.New(playground.WithRequiredStructEnabled()),
		graphSchema:      compiled,
		parameterSchemas: make(map[string]*gojsonschema.Schema),
		now:              time.Now,
	}

	for _, nodeType := range catalog.Types() {
		if nodeType.ParameterSchema == nil {
			continue
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(nodeType.ParameterSchema))
		if err != nil {
			return nil, fmt.Errorf("failed to compile parameter schema for %s: %w", nodeType.Type, err)
		}

		v.parameterSchemas[nodeType.Type] = schema
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// ValidateJSON parses data and runs Repair on the result.
func (v *Validator) ValidateJSON(data []byte) (*models.Graph, []Diagnostic, error) {
	var candidate map[string]any
	if err := json.Unmarshal(data, &candidate); err != nil {
		return nil, nil, &SchemaError{Message: "graph is not a JSON object: " + err.Error()}
	}

	if candidate == nil {
		return nil, nil, &SchemaError{Message: "graph is null"}
	}

	return v.Repair(candidate)
}

// Repair validates a candidate graph, filling safe defaults, and returns the typed
// graph with any warnings. The candidate itself is not modified.
func (v *Validator) Repair(candidate map[string]any) (*models.Graph, []Diagnostic, error) {
	doc, err := deepCopy(candidate)
	if err != nil {
		return nil, nil, &SchemaError{Message: err.Error()}
	}

	nodes, err := v.checkNodes(doc)
	if err != nil {
		return nil, nil, err
	}

	if err := v.repairConnections(doc); err != nil {
		return nil, nil, err
	}

	var diags []Diagnostic

	for i, node := range nodes {
		diags = append(diags, v.repairNode(i, node)...)
	}

	v.repairGraphFields(doc)

	if err := v.checkSchema(doc); err != nil {
		return nil, nil, err
	}

	graph, err := decode(doc)
	if err != nil {
		return nil, nil, err
	}

	if err := v.Validate(graph); err != nil {
		return nil, nil, err
	}

	diags = append(diags, v.catalogDiagnostics(graph)...)

	return graph, diags, nil
}

// Validate checks an already typed graph without repairing it.
func (v *Validator) Validate(graph *models.Graph) error {
	if graph == nil || len(graph.Nodes) == 0 {
		return &SchemaError{Path: "nodes", Message: "graph must have at least one node"}
	}

	seen := make(map[string]bool, len(graph.Nodes))

	for i, node := range graph.Nodes {
		if node == nil {
			return &SchemaError{Path: fmt.Sprintf("nodes[%d]", i), Message: "node is null"}
		}

		if seen[node.Name] {
			return &SchemaError{
				Path:     fmt.Sprintf("nodes[%d].name", i),
				NodeName: node.Name,
				Message:  "node names must be unique",
			}
		}

		seen[node.Name] = true
	}

	if err := v.structs.Struct(graph); err != nil {
		return structError(err)
	}

	return checkConnections(graph, seen)
}

// checkNodes enforces the fatal node invariants: a non-empty node list where
// every node carries id, type and name.
func (v *Validator) checkNodes(doc map[string]any) ([]map[string]any, error) {
	raw, ok := doc["nodes"].([]any)
	if !ok || len(raw) == 0 {
		return nil, &SchemaError{Path: "nodes", Message: "graph must have a non-empty nodes array"}
	}

	nodes := make([]map[string]any, 0, len(raw))
	names := make(map[string]bool, len(raw))

	for i, item := range raw {
		node, ok := item.(map[string]any)
		if !ok {
			return nil, &SchemaError{Path: fmt.Sprintf("nodes[%d]", i), Message: "node must be an object"}
		}

		label := nodeLabel(node)

		for _, field := range []string{"id", "type", "name"} {
			value, ok := node[field].(string)
			if !ok || strings.TrimSpace(value) == "" {
				return nil, &SchemaError{
					Path:     fmt.Sprintf("nodes[%d].%s", i, field),
					NodeName: label,
					Message:  fmt.Sprintf("node is missing mandatory field %q", field),
				}
			}
		}

		name := node["name"].(string)
		if names[name] {
			return nil, &SchemaError{
				Path:     fmt.Sprintf("nodes[%d].name", i),
				NodeName: name,
				Message:  "node names must be unique",
			}
		}

		names[name] = true

		if params, exists := node["parameters"]; exists && params != nil {
			if _, ok := params.(map[string]any); !ok {
				return nil, &SchemaError{
					Path:     fmt.Sprintf("nodes[%d].parameters", i),
					NodeName: name,
					Message:  "parameters must be an object",
				}
			}
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

func (v *Validator) repairNode(index int, node map[string]any) []Diagnostic {
	var diags []Diagnostic

	name := node["name"].(string)

	if !wellFormedPosition(node["position"]) {
		position := []any{float64(LayoutOriginX + LayoutSpacingX*index), float64(LayoutY)}
		v.logger.Debug("Repaired node position", "node", name, "position", position)
		node["position"] = position
	}

	switch tv := node["typeVersion"].(type) {
	case float64:
		if tv <= 0 {
			node["typeVersion"] = float64(models.DefaultTypeVersion)
		}
	case nil:
		v.logger.Debug("Defaulted node typeVersion", "node", name)
		node["typeVersion"] = float64(models.DefaultTypeVersion)
	default:
		node["typeVersion"] = float64(models.DefaultTypeVersion)
		diags = append(diags, Diagnostic{
			Code:     CodeTypeVersionReset,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("Node %q had a non-numeric typeVersion %v, reset to %d", name, tv, models.DefaultTypeVersion),
			Path:     fmt.Sprintf("nodes[%d].typeVersion", index),
		})
	}

	if node["parameters"] == nil {
		node["parameters"] = map[string]any{}
	}

	if creds, exists := node["credentials"]; exists && creds == nil {
		delete(node, "credentials")
	}

	return diags
}

func (v *Validator) repairGraphFields(doc map[string]any) {
	if name, ok := doc["name"].(string); !ok || strings.TrimSpace(name) == "" {
		generated := fmt.Sprintf("%s %s", DefaultNamePrefix, v.now().UTC().Format(time.RFC3339))
		v.logger.Debug("Defaulted graph name", "name", generated)
		doc["name"] = generated
	}

	if _, ok := doc["settings"].(map[string]any); !ok {
		doc["settings"] = map[string]any{}
	}

	if versionID, ok := doc["versionId"].(string); !ok || versionID == "" {
		doc["versionId"] = models.DefaultVersionID
	}

	doc["active"] = false
}

// repairConnections defaults a missing connections object and normalizes edge
// lists. Edges are never created or dropped.
func (v *Validator) repairConnections(doc map[string]any) error {
	raw, exists := doc["connections"]
	if !exists || raw == nil {
		v.logger.Debug("Defaulted missing connections")
		doc["connections"] = map[string]any{}

		return nil
	}

	connections, ok := raw.(map[string]any)
	if !ok {
		return &SchemaError{Path: "connections", Message: "connections must be an object"}
	}

	for _, source := range slices.Sorted(maps.Keys(connections)) {
		ports, ok := connections[source].(map[string]any)
		if !ok {
			return &SchemaError{
				Path:    fmt.Sprintf("connections[%q]", source),
				Message: "connection entry must map port kinds to edge lists",
			}
		}

		for _, kind := range slices.Sorted(maps.Keys(ports)) {
			path := fmt.Sprintf("connections[%q].%s", source, kind)

			slots, err := normalizeSlots(ports[kind], kind, path)
			if err != nil {
				return err
			}

			ports[kind] = slots
		}
	}

	return nil
}

// normalizeSlots accepts either the engine's nested [][]edge form or a flat
// []edge list, which is treated as a single output slot.
func normalizeSlots(raw any, kind, path string) ([]any, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, &SchemaError{Path: path, Message: "port must hold a list of edges"}
	}

	flat := len(list) > 0
	for _, item := range list {
		if _, isEdge := item.(map[string]any); !isEdge {
			flat = false

			break
		}
	}

	if flat {
		list = []any{list}
	}

	slots := make([]any, 0, len(list))

	for slotIndex, rawSlot := range list {
		if rawSlot == nil {
			slots = append(slots, []any{})

			continue
		}

		slot, ok := rawSlot.([]any)
		if !ok {
			return nil, &SchemaError{
				Path:    fmt.Sprintf("%s[%d]", path, slotIndex),
				Message: "output slot must be a list of edges",
			}
		}

		for edgeIndex, rawEdge := range slot {
			edgePath := fmt.Sprintf("%s[%d][%d]", path, slotIndex, edgeIndex)

			edge, ok := rawEdge.(map[string]any)
			if !ok {
				return nil, &SchemaError{Path: edgePath, Message: "edge must be an object"}
			}

			if target, ok := edge["node"].(string); !ok || target == "" {
				return nil, &SchemaError{Path: edgePath + ".node", Message: "edge must name its target node"}
			}

			if t, ok := edge["type"].(string); !ok || t == "" {
				edge["type"] = kind
			}

			if _, exists := edge["index"]; !exists {
				edge["index"] = float64(0)
			}
		}

		slots = append(slots, slot)
	}

	return slots, nil
}

func (v *Validator) checkSchema(doc map[string]any) error {
	result, err := v.graphSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &SchemaError{Message: "schema validation failed: " + err.Error()}
	}

	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]

	return &SchemaError{Path: first.Field(), Message: first.Description()}
}

func (v *Validator) catalogDiagnostics(graph *models.Graph) []Diagnostic {
	var diags []Diagnostic

	for i, node := range graph.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		if !v.catalog.IsKnown(node.Type) {
			v.logger.Warn("Unknown node type", "node", node.Name, "type", node.Type)
			diags = append(diags, Diagnostic{
				Code:     CodeUnknownNodeType,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Node %q uses type %q which is not in the catalog", node.Name, node.Type),
				Path:     path + ".type",
			})

			continue
		}

		schema, ok := v.parameterSchemas[node.Type]
		if !ok {
			continue
		}

		result, err := schema.Validate(gojsonschema.NewGoLoader(node.Parameters))
		if err != nil || result.Valid() {
			continue
		}

		for _, resultErr := range result.Errors() {
			diags = append(diags, Diagnostic{
				Code:     CodeParameterSchema,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Node %q parameters: %s", node.Name, resultErr.String()),
				Path:     path + ".parameters." + resultErr.Field(),
			})
		}
	}

	return diags
}

func checkConnections(graph *models.Graph, names map[string]bool) error {
	for ref := range graph.Edges() {
		if !names[ref.Source] {
			return &DanglingConnectionError{Source: ref.Source, PortKind: ref.PortKind, Missing: "source"}
		}

		if !names[ref.Edge.Node] {
			return &DanglingConnectionError{
				Source:   ref.Source,
				Target:   ref.Edge.Node,
				PortKind: ref.PortKind,
				Missing:  "target",
			}
		}
	}

	// Sources without edges are not reached by the iterator above.
	for _, source := range slices.Sorted(maps.Keys(graph.Connections)) {
		if !names[source] {
			return &DanglingConnectionError{Source: source, Missing: "source"}
		}
	}

	return nil
}

func structError(err error) error {
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &SchemaError{Message: err.Error()}
	}

	first := fieldErrs[0]

	return &SchemaError{
		Path:    first.Namespace(),
		Message: fmt.Sprintf("failed %q constraint", first.Tag()),
	}
}

func wellFormedPosition(raw any) bool {
	position, ok := raw.([]any)
	if !ok || len(position) != 2 {
		return false
	}

	for _, coordinate := range position {
		if _, ok := coordinate.(float64); !ok {
			return false
		}
	}

	return true
}

func nodeLabel(node map[string]any) string {
	if name, ok := node["name"].(string); ok && name != "" {
		return name
	}

	if id, ok := node["id"].(string); ok {
		return id
	}

	return ""
}

func deepCopy(candidate map[string]any) (map[string]any, error) {
	data, err := json.Marshal(candidate)
	if err != nil {
		return nil, fmt.Errorf("candidate is not serializable: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("candidate is not serializable: %w", err)
	}

	return doc, nil
}

func decode(doc map[string]any) (*models.Graph, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &SchemaError{Message: "failed to encode repaired graph: " + err.Error()}
	}

	var graph models.Graph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, &SchemaError{Message: "failed to decode repaired graph: " + err.Error()}
	}

	return &graph, nil
}
