package agents

import "testing"

func TestParseRelevancePayload(t *testing.T) {
	raw := `{"is_relevant": true, "confidence": 0.85, "reasoning": "mentions the topic"}`
	payload, ok := parseRelevancePayload(raw)
	if !ok {
		t.Fatal("expected payload to parse")
	}
	if !payload.IsRelevant || payload.Confidence != 0.85 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParseRelevancePayloadFenced(t *testing.T) {
	raw := "```json\n{\"is_relevant\": false, \"confidence\": 0.2, \"reasoning\": \"off topic\"}\n```"
	payload, ok := parseRelevancePayload(raw)
	if !ok {
		t.Fatal("expected fenced payload to parse")
	}
	if payload.IsRelevant {
		t.Fatal("expected is_relevant false")
	}
}

func TestParseRelevancePayloadWithSurroundingProse(t *testing.T) {
	raw := "Sure, here is the evaluation:\n{\"is_relevant\": true, \"confidence\": 0.9, \"reasoning\": \"direct match\"}\nLet me know if you need more."
	payload, ok := parseRelevancePayload(raw)
	if !ok {
		t.Fatal("expected payload embedded in prose to parse")
	}
	if payload.Confidence != 0.9 {
		t.Fatalf("unexpected confidence: %v", payload.Confidence)
	}
}

func TestParseRelevancePayloadGarbage(t *testing.T) {
	if _, ok := parseRelevancePayload("the passage seems fine to me"); ok {
		t.Fatal("expected parse failure for non-JSON output")
	}
}

func TestParseConsistencyPayload(t *testing.T) {
	raw := `{"consistency_score": 8.5, "is_consistent": true, "factual_errors": [], "reasoning": "all claims supported"}`
	payload, ok := parseConsistencyPayload(raw)
	if !ok {
		t.Fatal("expected payload to parse")
	}
	if payload.Score != 8.5 || !payload.IsConsistent {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestExtractScore(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"I would give this a score: 8 out of 10", 8},
		{`The "consistency_score": 6.5 overall`, 6.5},
		{"no number here at all", 5},
	}

	for _, tc := range cases {
		if got := extractScore(tc.raw, 5); got != tc.want {
			t.Fatalf("extractScore(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(-1, 0, 10); got != 0 {
		t.Fatalf("expected clamp to floor at 0, got %v", got)
	}
	if got := clamp(12, 0, 10); got != 10 {
		t.Fatalf("expected clamp to cap at 10, got %v", got)
	}
	if got := clamp(0.5, 0, 1); got != 0.5 {
		t.Fatalf("expected clamp to pass through, got %v", got)
	}
}
