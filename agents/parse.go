package agents

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Judgment models ask for a bare JSON object, but models routinely wrap it
// in markdown fences or prose. The parsers here extract and decode strictly;
// callers handle the not-ok case with the conservative fallbacks.

type relevancePayload struct {
	IsRelevant bool    `json:"is_relevant"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type consistencyPayload struct {
	Score         float64  `json:"consistency_score"`
	IsConsistent  bool     `json:"is_consistent"`
	FactualErrors []string `json:"factual_errors"`
	Reasoning     string   `json:"reasoning"`
}

func parseRelevancePayload(raw string) (relevancePayload, bool) {
	var payload relevancePayload
	body, ok := extractJSONObject(raw)
	if !ok {
		return payload, false
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return relevancePayload{}, false
	}
	return payload, true
}

func parseConsistencyPayload(raw string) (consistencyPayload, bool) {
	var payload consistencyPayload
	body, ok := extractJSONObject(raw)
	if !ok {
		return payload, false
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return consistencyPayload{}, false
	}
	return payload, true
}

// extractJSONObject returns the outermost {...} span of raw, with any
// markdown code fences removed first.
func extractJSONObject(raw string) (string, bool) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return cleaned[start : end+1], true
}

func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if idx := strings.Index(raw, "\n"); idx >= 0 {
		raw = raw[idx+1:]
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

var scorePattern = regexp.MustCompile(`(?i)score["'\s:]*(-?[0-9]+(?:\.[0-9]+)?)`)

// extractScore rescues a numeric score from free text when JSON parsing
// failed, falling back to the given default.
func extractScore(raw string, fallback float64) float64 {
	match := scorePattern.FindStringSubmatch(raw)
	if len(match) < 2 {
		return fallback
	}
	var score float64
	if err := json.Unmarshal([]byte(match[1]), &score); err != nil {
		return fallback
	}
	return score
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
