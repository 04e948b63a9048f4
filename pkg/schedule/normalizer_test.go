package schedule

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/dukex/graphsmith/pkg/models"
	"github.com/dukex/graphsmith/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNormalizer() *Normalizer {
	return NewNormalizer(slog.New(slog.DiscardHandler), models.DefaultCatalog())
}

func triggerGraph(t *testing.T, nodeType, parameters string) *models.Graph {
	t.Helper()

	var params map[string]any
	require.NoError(t, json.Unmarshal([]byte(parameters), &params))

	return testutil.Connect(testutil.CreateTestGraph(
		testutil.CreateTestNode(testutil.WithName("Trigger"), testutil.WithType(nodeType), testutil.WithParameters(params)),
		testutil.CreateTestNode(testutil.WithName("Send"), testutil.WithType(models.NodeTypeEmailSend)),
	), "Trigger", "Send")
}

func expressionOf(t *testing.T, node *models.Node) string {
	t.Helper()

	rule, ok, err := models.DecodeScheduleRule(node.Parameters)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rule.Interval, 1)
	assert.Equal(t, models.ScheduleFieldCron, rule.Interval[0].Field)

	return rule.Interval[0].Expression
}

func TestNormalize_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		parameters string
		want       string
	}{
		{name: "absent rule", parameters: `{}`, want: Hourly},
		{name: "null rule", parameters: `{"rule":null}`, want: Hourly},
		{name: "empty interval list", parameters: `{"rule":{"interval":[]}}`, want: Hourly},
		{name: "unresolved interval token", parameters: `{"rule":{"interval":[{"field":"minutes","minutesInterval":"{{USER_INTERVAL}}"}]}}`, want: Hourly},
		{name: "placeholder sentinel", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"__PLACEHOLDER__"}]}}`, want: Hourly},
		{name: "daily descriptor", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"@daily"}]}}`, want: Daily},
		{name: "midnight descriptor", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"@midnight"}]}}`, want: Daily},
		{name: "hourly descriptor", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"@hourly"}]}}`, want: Hourly},
		{name: "days at midnight", parameters: `{"rule":{"interval":[{"field":"days"}]}}`, want: Daily},
		{name: "days at nine thirty", parameters: `{"rule":{"interval":[{"field":"days","triggerAtHour":9,"triggerAtMinute":30}]}}`, want: "30 9 * * *"},
		{name: "hallucinated day and month", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"0 0 0 0 *"}]}}`, want: Daily},
		{name: "weekday constraint dropped", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"15 8 * * 1-5"}]}}`, want: "15 8 * * *"},
		{name: "extra whitespace", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"  */10   6-18 1 * *  "}]}}`, want: "*/10 6-18 * * *"},
		{name: "interval without field", parameters: `{"rule":{"interval":[{"expression":"5 4 * * *"}]}}`, want: "5 4 * * *"},
		{name: "bare string rule", parameters: `{"rule":"45 23 * * 0"}`, want: "45 23 * * *"},
		{name: "out of range hour", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"0 25 * * *"}]}}`, want: Daily},
		{name: "six fields", parameters: `{"rule":{"interval":[{"field":"cronExpression","expression":"0 0 9 * * *"}]}}`, want: Daily},
		{name: "minutes interval", parameters: `{"rule":{"interval":[{"field":"minutes","minutesInterval":15}]}}`, want: "*/15 * * * *"},
		{name: "zero minutes interval", parameters: `{"rule":{"interval":[{"field":"minutes","minutesInterval":0}]}}`, want: Daily},
		{name: "hours interval", parameters: `{"rule":{"interval":[{"field":"hours","hoursInterval":4}]}}`, want: "0 */4 * * *"},
		{name: "hours interval with minute", parameters: `{"rule":{"interval":[{"field":"hours","hoursInterval":2,"triggerAtMinute":20}]}}`, want: "20 */2 * * *"},
		{name: "unknown field", parameters: `{"rule":{"interval":[{"field":"weeks","weeksInterval":1}]}}`, want: Daily},
		{name: "rule of the wrong shape", parameters: `{"rule":{"interval":"daily"}}`, want: Daily},
		{name: "numeric rule", parameters: `{"rule":42}`, want: Daily},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			graph := triggerGraph(t, models.NodeTypeScheduleTrigger, tt.parameters)

			out, changed := newNormalizer().Normalize(graph)
			require.True(t, changed)
			assert.Equal(t, tt.want, expressionOf(t, out.Nodes[0]))
		})
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	graph := triggerGraph(t, models.NodeTypeScheduleTrigger,
		`{"rule":{"interval":[{"field":"cronExpression","expression":"0 0 0 0 *"}]},"notice":"keep"}`)

	before, err := json.Marshal(graph)
	require.NoError(t, err)

	out, changed := newNormalizer().Normalize(graph)
	require.True(t, changed)

	after, err := json.Marshal(graph)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))

	assert.Equal(t, "keep", out.Nodes[0].Parameters["notice"])
	assert.Same(t, graph.Nodes[1], out.Nodes[1])
}

func TestNormalize_IsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{}`,
		`{"rule":{"interval":[{"field":"cronExpression","expression":"0 0 0 0 *"}]}}`,
		`{"rule":{"interval":[{"field":"minutes","minutesInterval":5}]}}`,
		`{"rule":{"interval":[{"field":"days","triggerAtHour":7}]}}`,
		`{"rule":"nonsense"}`,
	}

	normalizer := newNormalizer()

	for _, input := range inputs {
		once, _ := normalizer.Normalize(triggerGraph(t, models.NodeTypeScheduleTrigger, input))

		twice, changed := normalizer.Normalize(once)
		assert.False(t, changed, input)
		assert.Same(t, once, twice, input)

		// Decoded from the wire the canonical rule must still be stable.
		data, err := json.Marshal(once)
		require.NoError(t, err)

		var decoded models.Graph
		require.NoError(t, json.Unmarshal(data, &decoded))

		_, changed = normalizer.Normalize(&decoded)
		assert.False(t, changed, input)
	}
}

func TestNormalize_SkipsNonScheduleNodes(t *testing.T) {
	t.Parallel()

	graph := triggerGraph(t, models.NodeTypeManualTrigger, `{}`)

	out, changed := newNormalizer().Normalize(graph)
	assert.False(t, changed)
	assert.Same(t, graph, out)
	assert.NotContains(t, out.Nodes[0].Parameters, "rule")
}

func TestNormalize_ScheduleTriggerKinds(t *testing.T) {
	t.Parallel()

	for _, nodeType := range []string{models.NodeTypeScheduleTrigger, models.NodeTypeCronTrigger, "trigger.schedule", "acme.scheduleTrigger"} {
		out, changed := newNormalizer().Normalize(triggerGraph(t, nodeType, `{}`))
		require.True(t, changed, nodeType)
		assert.Equal(t, Hourly, expressionOf(t, out.Nodes[0]), nodeType)
	}
}

func TestNormalize_NilGraph(t *testing.T) {
	t.Parallel()

	out, changed := newNormalizer().Normalize(nil)
	assert.Nil(t, out)
	assert.False(t, changed)
}
