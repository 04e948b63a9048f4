package models

import (
	"encoding/json"
	"fmt"
)

// Schedule interval fields understood by the engine's schedule trigger.
const (
	ScheduleFieldCron    = "cronExpression"
	ScheduleFieldMinutes = "minutes"
	ScheduleFieldHours   = "hours"
	ScheduleFieldDays    = "days"
)

// ScheduleRule is the typed view of a schedule trigger's "rule" parameter.
type ScheduleRule struct {
	Interval []ScheduleInterval `json:"interval"`
}

// ScheduleInterval is one entry of a schedule rule. Only the fields relevant to
// Field are populated.
type ScheduleInterval struct {
	Field           string `json:"field,omitempty"`
	Expression      string `json:"expression,omitempty"`
	MinutesInterval *int   `json:"minutesInterval,omitempty"`
	HoursInterval   *int   `json:"hoursInterval,omitempty"`
	TriggerAtHour   *int   `json:"triggerAtHour,omitempty"`
	TriggerAtMinute *int   `json:"triggerAtMinute,omitempty"`
}

// CronRule builds the canonical single-expression rule.
func CronRule(expression string) ScheduleRule {
	return ScheduleRule{Interval: []ScheduleInterval{{Field: ScheduleFieldCron, Expression: expression}}}
}

// DecodeScheduleRule reads the "rule" parameter of a schedule trigger node.
// ok is false when the parameter is absent.
func DecodeScheduleRule(parameters map[string]any) (rule ScheduleRule, ok bool, err error) {
	raw, exists := parameters["rule"]
	if !exists || raw == nil {
		return ScheduleRule{}, false, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return ScheduleRule{}, true, fmt.Errorf("failed to marshal schedule rule: %w", err)
	}

	if err := json.Unmarshal(data, &rule); err != nil {
		return ScheduleRule{}, true, fmt.Errorf("failed to decode schedule rule: %w", err)
	}

	return rule, true, nil
}

// Parameter returns the rule in the opaque parameter representation.
func (r ScheduleRule) Parameter() map[string]any {
	intervals := make([]any, 0, len(r.Interval))

	for _, interval := range r.Interval {
		entry := map[string]any{}
		if interval.Field != "" {
			entry["field"] = interval.Field
		}

		if interval.Expression != "" {
			entry["expression"] = interval.Expression
		}

		intervals = append(intervals, entry)
	}

	return map[string]any{"interval": intervals}
}
