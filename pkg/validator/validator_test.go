package validator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T, opts ...Option) *Validator {
	t.Helper()

	v, err := New(slog.New(slog.DiscardHandler), models.DefaultCatalog(), opts...)
	require.NoError(t, err)

	return v
}

func candidate(t *testing.T, raw string) map[string]any {
	t.Helper()

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	return doc
}

func TestRepair_FillsNodeDefaults(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	graph, diags, err := v.Repair(candidate(t,
		`{"name":"X","nodes":[{"id":"n1","name":"Start","type":"trigger.manual"}],"connections":{}}`))
	require.NoError(t, err)
	assert.Empty(t, diags)

	require.Len(t, graph.Nodes, 1)
	node := graph.Nodes[0]
	assert.Equal(t, "n1", node.ID)
	assert.Equal(t, []float64{250, 300}, node.Position)
	assert.InDelta(t, 1.0, node.TypeVersion, 0)
	assert.NotNil(t, node.Parameters)
	assert.Empty(t, node.Parameters)

	assert.Equal(t, "X", graph.Name)
	assert.Equal(t, models.DefaultVersionID, graph.VersionID)
	assert.NotNil(t, graph.Settings)
	assert.False(t, graph.Active)
}

func TestRepair_LayoutIsSpacedHorizontally(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	graph, _, err := v.Repair(candidate(t, `{
		"nodes": [
			{"id":"a","name":"A","type":"trigger.manual"},
			{"id":"b","name":"B","type":"n8n-nodes-base.set","position":[10]},
			{"id":"c","name":"C","type":"n8n-nodes-base.set","position":"left"},
			{"id":"d","name":"D","type":"n8n-nodes-base.set"}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, graph.Nodes, 4)

	for i, node := range graph.Nodes {
		require.Len(t, node.Position, 2)
		assert.InDelta(t, float64(LayoutOriginX+LayoutSpacingX*i), node.Position[0], 0, "node %s", node.Name)
		assert.InDelta(t, float64(LayoutY), node.Position[1], 0, "node %s", node.Name)

		if i > 0 {
			assert.InDelta(t, LayoutSpacingX, node.Position[0]-graph.Nodes[i-1].Position[0], 0)
		}
	}
}

func TestRepair_KeepsWellFormedPositions(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	graph, _, err := v.Repair(candidate(t, `{
		"nodes": [
			{"id":"a","name":"A","type":"trigger.manual","position":[-40,12.5]},
			{"id":"b","name":"B","type":"n8n-nodes-base.set"}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, []float64{-40, 12.5}, graph.Nodes[0].Position)
	assert.Equal(t, []float64{500, 300}, graph.Nodes[1].Position)
}

func TestRepair_DefaultGraphFields(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("BRT", -3*60*60))
	v := newValidator(t, WithClock(func() time.Time { return fixed }))

	graph, _, err := v.Repair(candidate(t, `{
		"active": true,
		"nodes": [{"id":"a","name":"A","type":"trigger.manual"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Generated workflow 2026-01-02T06:04:05Z", graph.Name)
	assert.False(t, graph.Active)
	assert.Equal(t, "1", graph.VersionID)
	assert.NotNil(t, graph.Connections)
	assert.Empty(t, graph.Connections)
}

func TestRepair_DoesNotMutateCandidate(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	doc := candidate(t, `{"nodes":[{"id":"a","name":"A","type":"trigger.manual"}]}`)

	_, _, err := v.Repair(doc)
	require.NoError(t, err)

	node := doc["nodes"].([]any)[0].(map[string]any)
	assert.NotContains(t, node, "position")
	assert.NotContains(t, doc, "connections")
	assert.NotContains(t, doc, "name")
}

func TestRepair_NormalizesEdgeLists(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	graph, _, err := v.Repair(candidate(t, `{
		"nodes": [
			{"id":"a","name":"A","type":"trigger.manual"},
			{"id":"b","name":"B","type":"@n8n/n8n-nodes-langchain.agent"},
			{"id":"c","name":"Model","type":"@n8n/n8n-nodes-langchain.lmChatOpenAi"}
		],
		"connections": {
			"A": {"main": [{"node":"B"}]},
			"Model": {"ai_languageModel": [[{"node":"B","type":"ai_languageModel","index":0}], null]}
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, [][]models.Edge{{{Node: "B", Type: "main", Index: 0}}}, graph.Connections["A"]["main"])
	assert.Equal(t, [][]models.Edge{
		{{Node: "B", Type: "ai_languageModel", Index: 0}},
		{},
	}, graph.Connections["Model"]["ai_languageModel"])
}

func TestRepair_NoDanglingEdgesSurvive(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	graph, _, err := v.Repair(candidate(t, `{
		"nodes": [
			{"id":"a","name":"A","type":"trigger.manual"},
			{"id":"b","name":"B","type":"n8n-nodes-base.set"},
			{"id":"c","name":"C","type":"n8n-nodes-base.set"}
		],
		"connections": {
			"A": {"main": [[{"node":"B","type":"main","index":0},{"node":"C","type":"main","index":0}]]},
			"B": {"main": [[{"node":"C","type":"main","index":0}]]}
		}
	}`))
	require.NoError(t, err)

	names := graph.NodeNames()
	count := 0

	for ref := range graph.Edges() {
		assert.True(t, names[ref.Source], "source %q", ref.Source)
		assert.True(t, names[ref.Edge.Node], "target %q", ref.Edge.Node)

		count++
	}

	assert.Equal(t, 3, count)
}

func TestRepair_DanglingConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		connections string
		want        DanglingConnectionError
	}{
		{
			name:        "missing target",
			connections: `{"Start":{"main":[[{"node":"Missing Node","type":"main","index":0}]]}}`,
			want:        DanglingConnectionError{Source: "Start", Target: "Missing Node", PortKind: "main", Missing: "target"},
		},
		{
			name:        "unknown source",
			connections: `{"Ghost":{"main":[[{"node":"Start","type":"main","index":0}]]}}`,
			want:        DanglingConnectionError{Source: "Ghost", PortKind: "main", Missing: "source"},
		},
		{
			name:        "unknown source without edges",
			connections: `{"Ghost":{"main":[]}}`,
			want:        DanglingConnectionError{Source: "Ghost", Missing: "source"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := newValidator(t)

			_, _, err := v.Repair(candidate(t,
				`{"nodes":[{"id":"n1","name":"Start","type":"trigger.manual"}],"connections":`+tt.connections+`}`))
			require.Error(t, err)
			assert.True(t, IsDanglingConnection(err))
			assert.False(t, IsSchemaViolation(err))

			var dangling *DanglingConnectionError
			require.True(t, errors.As(err, &dangling))
			assert.Equal(t, tt.want, *dangling)
		})
	}
}

func TestRepair_DanglingConnectionIsDeterministic(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	doc := `{"nodes":[{"id":"n1","name":"Start","type":"trigger.manual"},{"id":"n2","name":"Next","type":"trigger.manual"}],
		"connections":{
			"Start":{"main":[[{"node":"Missing B"}]],"ai_tool":[[{"node":"Missing A"}]]},
			"Next":{"main":[[{"node":"Missing C"}]]},
			"Zed":{"main":[]}
		}}`

	for range 20 {
		_, _, err := v.Repair(candidate(t, doc))
		require.Error(t, err)

		var dangling *DanglingConnectionError
		require.True(t, errors.As(err, &dangling))
		assert.Equal(t, DanglingConnectionError{Source: "Next", Target: "Missing C", PortKind: "main", Missing: "target"}, *dangling)
	}
}

func TestRepair_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		path     string
		nodeName string
	}{
		{
			name:  "nodes missing",
			input: `{"name":"X","connections":{}}`,
			path:  "nodes",
		},
		{
			name:  "nodes empty",
			input: `{"nodes":[]}`,
			path:  "nodes",
		},
		{
			name:  "nodes not a list",
			input: `{"nodes":{"id":"a"}}`,
			path:  "nodes",
		},
		{
			name:  "node not an object",
			input: `{"nodes":["start"]}`,
			path:  "nodes[0]",
		},
		{
			name:     "node without type",
			input:    `{"nodes":[{"id":"a","name":"A","type":"trigger.manual"},{"id":"b","name":"B"}]}`,
			path:     "nodes[1].type",
			nodeName: "B",
		},
		{
			name:     "node without name",
			input:    `{"nodes":[{"id":"a","type":"trigger.manual"}]}`,
			path:     "nodes[0].name",
			nodeName: "a",
		},
		{
			name:     "node with blank id",
			input:    `{"nodes":[{"id":" ","name":"A","type":"trigger.manual"}]}`,
			path:     "nodes[0].id",
			nodeName: "A",
		},
		{
			name:     "duplicate names",
			input:    `{"nodes":[{"id":"a","name":"A","type":"trigger.manual"},{"id":"b","name":"A","type":"n8n-nodes-base.set"}]}`,
			path:     "nodes[1].name",
			nodeName: "A",
		},
		{
			name:     "parameters not an object",
			input:    `{"nodes":[{"id":"a","name":"A","type":"trigger.manual","parameters":"x"}]}`,
			path:     "nodes[0].parameters",
			nodeName: "A",
		},
		{
			name:  "connections not an object",
			input: `{"nodes":[{"id":"a","name":"A","type":"trigger.manual"}],"connections":[]}`,
			path:  "connections",
		},
		{
			name:  "edge without target",
			input: `{"nodes":[{"id":"a","name":"A","type":"trigger.manual"}],"connections":{"A":{"main":[[{"type":"main"}]]}}}`,
			path:  `connections["A"].main[0][0].node`,
		},
		{
			name:  "port not a list",
			input: `{"nodes":[{"id":"a","name":"A","type":"trigger.manual"}],"connections":{"A":{"main":"B"}}}`,
			path:  `connections["A"].main`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := newValidator(t)

			graph, _, err := v.Repair(candidate(t, tt.input))
			require.Error(t, err)
			assert.Nil(t, graph)
			assert.True(t, IsSchemaViolation(err))

			var schemaErr *SchemaError
			require.True(t, errors.As(err, &schemaErr))
			assert.Equal(t, tt.path, schemaErr.Path)
			assert.Equal(t, tt.nodeName, schemaErr.NodeName)
		})
	}
}

func TestRepair_SchemaGateRejectsBadEdgeIndex(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	_, _, err := v.Repair(candidate(t, `{
		"nodes": [{"id":"a","name":"A","type":"trigger.manual"},{"id":"b","name":"B","type":"n8n-nodes-base.set"}],
		"connections": {"A": {"main": [[{"node":"B","type":"main","index":-1}]]}}
	}`))
	require.Error(t, err)
	assert.True(t, IsSchemaViolation(err))
}

func TestRepair_Diagnostics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		node  string
		code  string
		level string
	}{
		{
			name:  "unknown node type",
			node:  `{"id":"a","name":"A","type":"acme.customThing"}`,
			code:  CodeUnknownNodeType,
			level: SeverityWarning,
		},
		{
			name:  "non-numeric typeVersion",
			node:  `{"id":"a","name":"A","type":"trigger.manual","typeVersion":"2"}`,
			code:  CodeTypeVersionReset,
			level: SeverityInfo,
		},
		{
			name:  "schedule rule with wrong shape",
			node:  `{"id":"a","name":"A","type":"n8n-nodes-base.scheduleTrigger","parameters":{"rule":"every day"}}`,
			code:  CodeParameterSchema,
			level: SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := newValidator(t)

			graph, diags, err := v.Repair(candidate(t, `{"nodes":[`+tt.node+`]}`))
			require.NoError(t, err)
			require.NotNil(t, graph)
			require.Len(t, diags, 1)
			assert.Equal(t, tt.code, diags[0].Code)
			assert.Equal(t, tt.level, diags[0].Severity)
		})
	}
}

func TestRepair_PrefixedTypesAreKnown(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	_, diags, err := v.Repair(candidate(t, `{"nodes":[{"id":"a","name":"A","type":"n8n-nodes-base.hubspot"}]}`))
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestRepair_IsIdempotent(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	first, _, err := v.Repair(candidate(t, `{
		"name": "Digest",
		"nodes": [
			{"id":"a","name":"A","type":"n8n-nodes-base.scheduleTrigger","parameters":{"rule":{"interval":[{"field":"cronExpression","expression":"0 9 * * *"}]}}},
			{"id":"b","name":"B","type":"n8n-nodes-base.emailSend","credentials":{"smtp":{"id":"7","name":"Mail"}}}
		],
		"connections": {"A": {"main": [{"node":"B"}]}}
	}`))
	require.NoError(t, err)

	data, err := json.Marshal(first)
	require.NoError(t, err)

	second, _, err := v.ValidateJSON(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidateJSON_RejectsNonObjects(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	for _, input := range []string{`[]`, `null`, `"graph"`, `{`} {
		_, _, err := v.ValidateJSON([]byte(input))
		require.Error(t, err, input)
		assert.True(t, IsSchemaViolation(err), input)
	}
}

func TestValidate_TypedGraph(t *testing.T) {
	t.Parallel()

	v := newValidator(t)

	valid := func() *models.Graph {
		return testutil.Connect(testutil.CreateTestGraph(
			testutil.CreateTestNode(testutil.WithName("A"), testutil.WithType("trigger.manual")),
			testutil.CreateTestNode(testutil.WithName("B")),
		), "A", "B")
	}

	require.NoError(t, v.Validate(valid()))

	noPosition := valid()
	noPosition.Nodes[1].Position = nil
	assert.True(t, IsSchemaViolation(v.Validate(noPosition)))

	dangling := valid()
	dangling.Connections["B"] = map[string][][]models.Edge{"main": {{{Node: "C", Type: "main"}}}}
	assert.True(t, IsDanglingConnection(v.Validate(dangling)))

	duplicate := valid()
	duplicate.Nodes[1].Name = "A"
	assert.True(t, IsSchemaViolation(v.Validate(duplicate)))

	assert.True(t, IsSchemaViolation(v.Validate(&models.Graph{})))
}
