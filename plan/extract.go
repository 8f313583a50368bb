package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhubert/plural-client/mcp"
)

// Servers have shipped several result shapes for the same tools: the raw
// result may be the value itself, a wrapper object, or an MCP content
// envelope whose text item holds the value as a JSON string. Each known
// shape is one named extractor; extractors run in order until one
// recognizes the payload, so compatibility behavior stays auditable and
// each shape testable on its own.

type listExtractor struct {
	name string
	fn   func(raw json.RawMessage) ([]Plan, bool)
}

var listExtractors = []listExtractor{
	{"content text", listFromContentText},
	{"plans field", listFromPlansField},
	{"bare array", listFromBareArray},
}

func extractPlans(raw json.RawMessage) ([]Plan, error) {
	for _, e := range listExtractors {
		if plans, ok := e.fn(raw); ok {
			return plans, nil
		}
	}
	return nil, fmt.Errorf("unrecognized plan list shape: %s", clip(raw))
}

// listFromContentText unwraps an MCP content envelope and re-runs the
// plainer extractors on each text item.
func listFromContentText(raw json.RawMessage) ([]Plan, bool) {
	for _, text := range contentTexts(raw) {
		payload := json.RawMessage(text)
		if plans, ok := listFromPlansField(payload); ok {
			return plans, true
		}
		if plans, ok := listFromBareArray(payload); ok {
			return plans, true
		}
	}
	return nil, false
}

func listFromPlansField(raw json.RawMessage) ([]Plan, bool) {
	// The pointer distinguishes a missing field from an empty list
	var probe struct {
		Plans *[]Plan `json:"plans"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Plans == nil {
		return nil, false
	}
	return *probe.Plans, true
}

func listFromBareArray(raw json.RawMessage) ([]Plan, bool) {
	if !startsWith(raw, '[') {
		return nil, false
	}
	var plans []Plan
	if err := json.Unmarshal(raw, &plans); err != nil {
		return nil, false
	}
	return plans, true
}

type planExtractor struct {
	name string
	fn   func(raw json.RawMessage) (*Plan, bool)
}

var planExtractors = []planExtractor{
	{"content text", planFromContentText},
	{"plan field", planFromPlanField},
	{"bare object", planFromBareObject},
}

func extractPlan(raw json.RawMessage) (*Plan, error) {
	for _, e := range planExtractors {
		if p, ok := e.fn(raw); ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unrecognized plan shape: %s", clip(raw))
}

func planFromContentText(raw json.RawMessage) (*Plan, bool) {
	for _, text := range contentTexts(raw) {
		payload := json.RawMessage(text)
		if p, ok := planFromPlanField(payload); ok {
			return p, true
		}
		if p, ok := planFromBareObject(payload); ok {
			return p, true
		}
	}
	return nil, false
}

func planFromPlanField(raw json.RawMessage) (*Plan, bool) {
	var probe struct {
		Plan *Plan `json:"plan"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Plan == nil {
		return nil, false
	}
	return probe.Plan, true
}

func planFromBareObject(raw json.RawMessage) (*Plan, bool) {
	if !startsWith(raw, '{') {
		return nil, false
	}
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, false
	}
	return &p, true
}

// contentTexts returns the text items of an MCP content envelope, or nil
// when the payload isn't one.
func contentTexts(raw json.RawMessage) []string {
	var result mcp.ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Content) == 0 {
		return nil
	}
	var texts []string
	for _, item := range result.Content {
		if item.Type == "text" && item.Text != "" {
			texts = append(texts, item.Text)
		}
	}
	return texts
}

func startsWith(raw json.RawMessage, b byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return len(trimmed) > 0 && trimmed[0] == b
}

func clip(raw json.RawMessage) string {
	const max = 120
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
