// Package agents implements the three LLM-backed capabilities consumed by
// the pipeline: relevance judgment, answer generation, and consistency
// checking. The judgment agents never fail; when the model output cannot be
// parsed or the model is unreachable, they degrade to conservative verdicts.
package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/pipeline"
	"github.com/veridex/veridex/retrieval"
)

const relevanceSystemPrompt = `You are a relevance evaluation agent. Your job is to determine if a retrieved passage is relevant to answering the user's question.

You must respond with ONLY a JSON object in this exact format:
{
    "is_relevant": true/false,
    "confidence": 0.0-1.0,
    "reasoning": "Brief explanation"
}

A passage is relevant if it contains information that could help answer the question, even partially.
Be strict but fair - err on the side of inclusion if there's any potential relevance.`

const fallbackConfidence = 0.5

// RelevanceJudge scores individual (question, passage) pairs and applies the
// keep/drop threshold gate.
type RelevanceJudge struct {
	llm    llm.Client
	logger *log.Logger
}

func NewRelevanceJudge(client llm.Client, logger *log.Logger) *RelevanceJudge {
	if logger == nil {
		logger = log.Default()
	}
	return &RelevanceJudge{llm: client, logger: logger}
}

// Evaluate judges one passage against the question. It always returns a
// verdict with confidence in [0, 1].
func (j *RelevanceJudge) Evaluate(ctx context.Context, question, passage string) pipeline.RelevanceVerdict {
	prompt := fmt.Sprintf("Question: %s\n\nPassage:\n%s\n\nEvaluate if this passage is relevant to answering the question.", question, passage)

	raw, err := j.llm.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: relevanceSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		j.logger.Printf("relevance judgment unavailable, using fallback: %v", err)
		return pipeline.RelevanceVerdict{
			IsRelevant: keywordOverlap(question, passage),
			Confidence: fallbackConfidence,
			Reasoning:  fmt.Sprintf("relevance judgment unavailable: %v", err),
		}
	}

	payload, ok := parseRelevancePayload(raw)
	if !ok {
		return pipeline.RelevanceVerdict{
			IsRelevant: rawSuggestsRelevant(raw),
			Confidence: fallbackConfidence,
			Reasoning:  "fallback parsing used",
		}
	}

	return pipeline.RelevanceVerdict{
		IsRelevant: payload.IsRelevant,
		Confidence: clamp(payload.Confidence, 0, 1),
		Reasoning:  payload.Reasoning,
	}
}

// Filter judges every passage in order and keeps those that are relevant
// with confidence at or above threshold. Order is preserved.
func (j *RelevanceJudge) Filter(ctx context.Context, question string, passages []retrieval.Passage, threshold float64) []pipeline.FilteredPassage {
	kept := make([]pipeline.FilteredPassage, 0, len(passages))
	for _, passage := range passages {
		verdict := j.Evaluate(ctx, question, passage.Text)
		if verdict.IsRelevant && verdict.Confidence >= threshold {
			kept = append(kept, pipeline.FilteredPassage{Passage: passage, Verdict: verdict})
		}
	}
	return kept
}

// rawSuggestsRelevant applies the lightweight keyword heuristic to
// unparsable judgment output.
func rawSuggestsRelevant(raw string) bool {
	lowered := strings.ToLower(raw)
	if strings.Contains(lowered, "not relevant") || strings.Contains(lowered, "irrelevant") {
		return false
	}
	return strings.Contains(lowered, "true") || strings.Contains(lowered, "relevant")
}

// keywordOverlap reports whether the passage shares any substantive word
// with the question. Used when no judgment output exists at all.
func keywordOverlap(question, passage string) bool {
	passageLower := strings.ToLower(passage)
	for _, word := range strings.Fields(strings.ToLower(question)) {
		word = strings.Trim(word, ".,;:!?\"'")
		if len(word) < 4 {
			continue
		}
		if strings.Contains(passageLower, word) {
			return true
		}
	}
	return false
}

var _ pipeline.RelevanceFilter = (*RelevanceJudge)(nil)
