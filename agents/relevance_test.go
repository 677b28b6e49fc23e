package agents

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/retrieval"
)

type stubLLM struct {
	responses []string
	err       error
	calls     int
	messages  [][]llm.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.messages = append(s.messages, messages)
	idx := s.calls
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

var _ llm.Client = (*stubLLM)(nil)

type failingLLM struct{ err error }

func (f *failingLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return "", f.err
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRelevanceJudgeEvaluate(t *testing.T) {
	client := &stubLLM{responses: []string{`{"is_relevant": true, "confidence": 0.9, "reasoning": "mentions the topic"}`}}
	judge := NewRelevanceJudge(client, testLogger())

	verdict := judge.Evaluate(context.Background(), "what is the topic?", "a passage about the topic")
	if !verdict.IsRelevant {
		t.Fatal("expected relevant verdict")
	}
	if verdict.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", verdict.Confidence)
	}
}

func TestRelevanceJudgeClampsConfidence(t *testing.T) {
	client := &stubLLM{responses: []string{`{"is_relevant": true, "confidence": 1.5, "reasoning": "overconfident"}`}}
	judge := NewRelevanceJudge(client, testLogger())

	verdict := judge.Evaluate(context.Background(), "question", "passage")
	if verdict.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", verdict.Confidence)
	}
}

func TestRelevanceJudgeUnparsableOutput(t *testing.T) {
	client := &stubLLM{responses: []string{"Yes, this passage is relevant to the question."}}
	judge := NewRelevanceJudge(client, testLogger())

	verdict := judge.Evaluate(context.Background(), "question", "passage")
	if !verdict.IsRelevant {
		t.Fatal("expected heuristic to read the output as relevant")
	}
	if verdict.Confidence != fallbackConfidence {
		t.Fatalf("expected fallback confidence, got %v", verdict.Confidence)
	}
}

func TestRelevanceJudgeUnparsableNegativeOutput(t *testing.T) {
	client := &stubLLM{responses: []string{"This passage is not relevant."}}
	judge := NewRelevanceJudge(client, testLogger())

	if verdict := judge.Evaluate(context.Background(), "question", "passage"); verdict.IsRelevant {
		t.Fatal("expected heuristic to read the output as not relevant")
	}
}

func TestRelevanceJudgeModelUnavailable(t *testing.T) {
	judge := NewRelevanceJudge(&failingLLM{err: context.DeadlineExceeded}, testLogger())

	verdict := judge.Evaluate(context.Background(), "adoption strategy", "a passage discussing the adoption plan")
	if !verdict.IsRelevant {
		t.Fatal("expected keyword overlap to keep the passage")
	}
	if verdict.Confidence != fallbackConfidence {
		t.Fatalf("expected fallback confidence, got %v", verdict.Confidence)
	}

	if verdict := judge.Evaluate(context.Background(), "adoption strategy", "completely unrelated text"); verdict.IsRelevant {
		t.Fatal("expected no keyword overlap for unrelated text")
	}
}

func TestFilterKeepsOnlyConfidentPassages(t *testing.T) {
	client := &stubLLM{responses: []string{
		`{"is_relevant": true, "confidence": 0.9, "reasoning": "strong match"}`,
		`{"is_relevant": true, "confidence": 0.4, "reasoning": "weak match"}`,
		`{"is_relevant": false, "confidence": 0.95, "reasoning": "off topic"}`,
	}}
	judge := NewRelevanceJudge(client, testLogger())

	passages := []retrieval.Passage{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
		{ID: "c", Text: "third"},
	}

	kept := judge.Filter(context.Background(), "question", passages, 0.7)
	if len(kept) != 1 {
		t.Fatalf("expected 1 passage to pass the gate, got %d", len(kept))
	}
	if kept[0].Passage.ID != "a" {
		t.Fatalf("expected passage a, got %s", kept[0].Passage.ID)
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	client := &stubLLM{responses: []string{`{"is_relevant": true, "confidence": 0.9, "reasoning": "ok"}`}}
	judge := NewRelevanceJudge(client, testLogger())

	passages := []retrieval.Passage{
		{ID: "first", Text: "one"},
		{ID: "second", Text: "two"},
	}

	kept := judge.Filter(context.Background(), "question", passages, 0.7)
	if len(kept) != 2 {
		t.Fatalf("expected both passages kept, got %d", len(kept))
	}
	if kept[0].Passage.ID != "first" || kept[1].Passage.ID != "second" {
		t.Fatal("expected retrieval order to be preserved")
	}
}
