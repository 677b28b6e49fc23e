package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/pipeline"
)

const factcheckSystemPrompt = `You are a fact-checking agent. Your job is to evaluate if a generated answer is factually consistent with the source passages.

You must respond with ONLY a JSON object in this exact format:
{
    "consistency_score": 0-10,
    "is_consistent": true/false,
    "factual_errors": ["list of any errors found"],
    "reasoning": "Detailed explanation of your evaluation"
}

Scoring guide:
- 10: Perfect consistency, all claims supported by sources
- 8-9: High consistency, minor unsupported details
- 6-7: Mostly consistent, some unsupported claims
- 4-5: Partially consistent, significant unsupported content
- 2-3: Low consistency, major factual errors
- 0-1: Completely inconsistent or fabricated

Check for:
1. Every claim in the answer is supported by the sources
2. No information added from outside sources
3. No misinterpretation of source material
4. Proper representation of any uncertainties`

const (
	// fallbackScore is the mid-scale default when judgment output is
	// unusable.
	fallbackScore = 5.0
	// fallbackConsistentFloor mirrors the judgment prompt's scoring guide:
	// 7 and above counts as consistent when only a bare score is available.
	fallbackConsistentFloor = 7.0
)

// FactChecker scores an answer against the exact passages used to generate
// it. Scores are clamped to [0, 10].
type FactChecker struct {
	llm    llm.Client
	logger *log.Logger
}

func NewFactChecker(client llm.Client, logger *log.Logger) *FactChecker {
	if logger == nil {
		logger = log.Default()
	}
	return &FactChecker{llm: client, logger: logger}
}

func (c *FactChecker) Evaluate(ctx context.Context, question, answer string, sources []string) pipeline.ConsistencyVerdict {
	// An ungrounded answer cannot be fact-checked; do not call the model.
	if len(sources) == 0 {
		return pipeline.ConsistencyVerdict{
			Score:         0,
			IsConsistent:  false,
			FactualErrors: []string{"no source passages provided"},
			Reasoning:     "cannot evaluate consistency without source passages",
		}
	}

	var sb strings.Builder
	for i, source := range sources {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString(fmt.Sprintf("Source %d:\n%s", i+1, source))
	}

	prompt := fmt.Sprintf("Question: %s\n\nGenerated Answer:\n%s\n\nSource Passages:\n%s\n\nEvaluate if the answer is factually consistent with the source passages.", question, answer, sb.String())

	raw, err := c.llm.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: factcheckSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		c.logger.Printf("consistency judgment unavailable, using fallback: %v", err)
		return pipeline.ConsistencyVerdict{
			Score:        fallbackScore,
			IsConsistent: false,
			Reasoning:    fmt.Sprintf("consistency judgment unavailable: %v", err),
		}
	}

	payload, ok := parseConsistencyPayload(raw)
	if !ok {
		score := clamp(extractScore(raw, fallbackScore), 0, 10)
		return pipeline.ConsistencyVerdict{
			Score:        score,
			IsConsistent: score >= fallbackConsistentFloor,
			Reasoning:    "fallback parsing used: " + truncate(raw, 200),
		}
	}

	return pipeline.ConsistencyVerdict{
		Score:         clamp(payload.Score, 0, 10),
		IsConsistent:  payload.IsConsistent,
		FactualErrors: payload.FactualErrors,
		Reasoning:     payload.Reasoning,
	}
}

var _ pipeline.ConsistencyChecker = (*FactChecker)(nil)
