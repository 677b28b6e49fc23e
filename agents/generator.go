package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/pipeline"
)

const generatorSystemPrompt = `You are an expert answer generation agent. Your job is to answer questions based ONLY on the provided context passages.

CRITICAL RULES:
1. Base your answer STRICTLY on the provided context
2. If the context doesn't contain enough information, say so explicitly
3. Do NOT add information from your training data
4. Quote or reference specific parts of the context when possible
5. Be concise but complete
6. If multiple passages provide conflicting information, mention this

Your response should be factual, well-structured, and directly answer the question.`

// Generator produces answers grounded only in the filtered passages.
type Generator struct {
	llm llm.Client
}

func NewGenerator(client llm.Client) *Generator {
	return &Generator{llm: client}
}

func (g *Generator) Generate(ctx context.Context, question string, passages []pipeline.FilteredPassage) (pipeline.Answer, error) {
	if g.llm == nil {
		return pipeline.Answer{}, fmt.Errorf("llm client is not configured")
	}
	if len(passages) == 0 {
		return pipeline.Answer{}, fmt.Errorf("no passages to ground the answer")
	}

	var sb strings.Builder
	for i, fp := range passages {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString(fmt.Sprintf("Passage %d:\n%s", i+1, fp.Passage.Text))
	}

	prompt := fmt.Sprintf("Question: %s\n\nContext Passages:\n%s\n\nPlease answer the question based on the provided context.", question, sb.String())

	raw, err := g.llm.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: generatorSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return pipeline.Answer{}, fmt.Errorf("llm generate: %w", err)
	}

	return pipeline.Answer{Text: strings.TrimSpace(raw)}, nil
}

var _ pipeline.AnswerGenerator = (*Generator)(nil)
