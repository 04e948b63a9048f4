// Package schedule rewrites the schedule rules of trigger nodes into the single
// cron-expression form the execution engine accepts.
package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/graphsmith/pkg/models"
	"github.com/robfig/cron/v3"
)

// Canonical expressions.
const (
	Hourly = "0 * * * *"
	Daily  = "0 0 * * *"
)

// PlaceholderSentinel marks a schedule value that was never filled in.
const PlaceholderSentinel = "__PLACEHOLDER__"

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Normalizer rewrites schedule rules of trigger nodes. It holds no mutable state.
type Normalizer struct {
	logger  *slog.Logger
	catalog *models.Catalog
}

func NewNormalizer(logger *slog.Logger, catalog *models.Catalog) *Normalizer {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}

	return &Normalizer{
		logger:  logger.With("module", "schedule_normalizer"),
		catalog: catalog,
	}
}

// Normalize returns the graph with every schedule trigger carrying a canonical
// rule and whether any node was rewritten. The input graph is never modified;
// when nothing changes the input itself is returned.
func (n *Normalizer) Normalize(graph *models.Graph) (*models.Graph, bool) {
	if graph == nil {
		return nil, false
	}

	var out *models.Graph

	for i, node := range graph.Nodes {
		if node == nil || !n.catalog.IsScheduleTrigger(node.Type) {
			continue
		}

		expression := n.Expression(node.Parameters)
		canonical := models.CronRule(expression).Parameter()

		if sameRule(node.Parameters["rule"], canonical) {
			continue
		}

		if out == nil {
			copied := *graph
			copied.Nodes = append([]*models.Node(nil), graph.Nodes...)
			out = &copied
		}

		rewritten := *node
		rewritten.Parameters = make(map[string]any, len(node.Parameters)+1)

		for key, value := range node.Parameters {
			rewritten.Parameters[key] = value
		}

		rewritten.Parameters["rule"] = canonical
		out.Nodes[i] = &rewritten

		n.logger.Debug("Normalized schedule rule", "node", node.Name, "expression", expression)
	}

	if out == nil {
		return graph, false
	}

	return out, true
}

// Expression classifies the schedule parameters of a trigger node and returns
// the canonical cron expression for them.
func (n *Normalizer) Expression(parameters map[string]any) string {
	raw, exists := parameters["rule"]
	if !exists || raw == nil {
		return Hourly
	}

	if containsPlaceholder(raw) {
		return Hourly
	}

	if text, ok := raw.(string); ok {
		return classifyExpression(text)
	}

	rule, _, err := models.DecodeScheduleRule(parameters)
	if err != nil {
		n.logger.Debug("Unrecognized schedule rule", "error", err)

		return Daily
	}

	if len(rule.Interval) == 0 {
		return Hourly
	}

	return classifyInterval(rule.Interval[0])
}

func classifyInterval(interval models.ScheduleInterval) string {
	switch interval.Field {
	case models.ScheduleFieldCron, "":
		if interval.Expression == "" {
			return Daily
		}

		return classifyExpression(interval.Expression)
	case models.ScheduleFieldMinutes:
		if interval.MinutesInterval == nil {
			return Daily
		}

		return verified(fmt.Sprintf("*/%d * * * *", *interval.MinutesInterval))
	case models.ScheduleFieldHours:
		if interval.HoursInterval == nil {
			return Daily
		}

		return verified(fmt.Sprintf("%d */%d * * *", valueOr(interval.TriggerAtMinute, 0), *interval.HoursInterval))
	case models.ScheduleFieldDays:
		return verified(fmt.Sprintf("%d %d * * *", valueOr(interval.TriggerAtMinute, 0), valueOr(interval.TriggerAtHour, 0)))
	default:
		return Daily
	}
}

func classifyExpression(expression string) string {
	clean := strings.TrimSpace(expression)

	switch strings.ToLower(clean) {
	case "@daily", "@midnight":
		return Daily
	case "@hourly":
		return Hourly
	}

	if strings.Contains(clean, "{{") || strings.Contains(clean, PlaceholderSentinel) {
		return Hourly
	}

	fields := strings.Fields(clean)
	if len(fields) != 5 {
		return Daily
	}

	return verified(fields[0] + " " + fields[1] + " * * *")
}

// verified keeps expression when the standard parser accepts it and falls back
// to the daily rule otherwise.
func verified(expression string) string {
	if _, err := standardParser.Parse(expression); err != nil {
		return Daily
	}

	return expression
}

func containsPlaceholder(raw any) bool {
	data, err := json.Marshal(raw)
	if err != nil {
		return false
	}

	return bytes.Contains(data, []byte("{{")) || bytes.Contains(data, []byte(PlaceholderSentinel))
}

func sameRule(current any, canonical map[string]any) bool {
	if current == nil {
		return false
	}

	a, err := json.Marshal(current)
	if err != nil {
		return false
	}

	b, err := json.Marshal(canonical)
	if err != nil {
		return false
	}

	return bytes.Equal(a, b)
}

func valueOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}

	return *value
}
