// Package extractor recovers a workflow graph object from free-form model output.
package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// DiagnosticWindow is the number of characters kept from each end of the input
// when extraction fails.
const DiagnosticWindow = 500

// ErrExtractionFailure is returned when no strategy recovers a JSON object.
var ErrExtractionFailure = errors.New("no structured graph data could be extracted")

// ExtractionError carries diagnostics about input that could not be parsed.
type ExtractionError struct {
	HasOpenBrace  bool   `json:"has_open_brace"`
	HasCloseBrace bool   `json:"has_close_brace"`
	Head          string `json:"head"`
	Tail          string `json:"tail"`
	Length        int    `json:"length"`
}

func (e *ExtractionError) Error() string {
	if !e.HasOpenBrace && !e.HasCloseBrace {
		return fmt.Sprintf("%v: input contains no braces (%d chars)", ErrExtractionFailure, e.Length)
	}

	return fmt.Sprintf("%v: braces present but no parseable object (open=%t close=%t, %d chars)",
		ErrExtractionFailure, e.HasOpenBrace, e.HasCloseBrace, e.Length)
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtractionFailure
}

// Strategy names the technique that recovered the object.
type Strategy string

const (
	StrategyFenced   Strategy = "fenced"
	StrategyBalanced Strategy = "balanced"
	StrategyWidest   Strategy = "widest"
	StrategyDirect   Strategy = "direct"
)

var fencedJSON = regexp.MustCompile("(?is)```(?:jsonc|json)[ \\t]*\\r?\\n?(.*?)```")

// Extractor tries each strategy in order and returns the first object that parses.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("module", "extractor")}
}

// Extract returns the first JSON object recovered from text.
func (e *Extractor) Extract(text string) (map[string]any, error) {
	obj, strategy, err := e.ExtractWithStrategy(text)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Extracted graph candidate", "strategy", strategy)

	return obj, nil
}

// ExtractWithStrategy is Extract that also reports which strategy succeeded.
func (e *Extractor) ExtractWithStrategy(text string) (map[string]any, Strategy, error) {
	if obj, ok := fromFencedBlock(text); ok {
		return obj, StrategyFenced, nil
	}

	if obj, ok := fromBalancedSpan(text); ok {
		return obj, StrategyBalanced, nil
	}

	if obj, ok := fromWidestSpan(text); ok {
		return obj, StrategyWidest, nil
	}

	if obj, ok := parseObject(strings.TrimSpace(text)); ok {
		return obj, StrategyDirect, nil
	}

	return nil, "", diagnose(text)
}

// Extract runs the default extractor.
func Extract(text string) (map[string]any, error) {
	return New(slog.Default()).Extract(text)
}

func fromFencedBlock(text string) (map[string]any, bool) {
	for _, match := range fencedJSON.FindAllStringSubmatch(text, -1) {
		if obj, ok := parseObject(strings.TrimSpace(match[1])); ok {
			return obj, true
		}
	}

	return nil, false
}

// fromBalancedSpan parses the first top-level span whose braces balance to zero.
// The counter is a plain delimiter count: braces inside string values are
// counted too, and spans they unbalance are left to the widest-span strategy.
func fromBalancedSpan(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0

	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return parseObject(text[start : i+1])
			}
		}
	}

	return nil, false
}

// fromWidestSpan takes the first '{' to the last '}' and walks the closing
// position backwards until the span parses.
func fromWidestSpan(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}

	end := strings.LastIndexByte(text, '}')
	for end > start {
		if obj, ok := parseObject(text[start : end+1]); ok {
			return obj, true
		}

		end = strings.LastIndexByte(text[:end], '}')
	}

	return nil, false
}

func parseObject(candidate string) (map[string]any, bool) {
	if candidate == "" {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
		return nil, false
	}

	return obj, true
}

func diagnose(text string) *ExtractionError {
	runes := []rune(text)

	head := runes
	if len(head) > DiagnosticWindow {
		head = head[:DiagnosticWindow]
	}

	tail := runes
	if len(tail) > DiagnosticWindow {
		tail = tail[len(tail)-DiagnosticWindow:]
	}

	return &ExtractionError{
		HasOpenBrace:  strings.Contains(text, "{"),
		HasCloseBrace: strings.Contains(text, "}"),
		Head:          string(head),
		Tail:          string(tail),
		Length:        len(runes),
	}
}
