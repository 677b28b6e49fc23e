// Package pipeline drives a question through retrieve, filter, generate, and
// evaluate, retrying generation a bounded number of times when the evaluated
// answer falls below the consistency threshold.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/veridex/veridex/retrieval"
)

const (
	defaultTopK                 = 5
	defaultRelevanceThreshold   = 0.7
	defaultConsistencyThreshold = 7.0

	noRelevantPassagesAnswer = "No relevant passages found to answer your question."
	warningBelowThreshold    = "answer did not pass consistency threshold"
)

// Retriever returns up to k candidate passages for a query, ranked by
// similarity. Failures here abort the run.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Passage, error)
}

// RelevanceFilter judges each passage against the query and keeps those
// passing the threshold gate. It never fails; unparsable judgments degrade
// to conservative verdicts.
type RelevanceFilter interface {
	Filter(ctx context.Context, query string, passages []retrieval.Passage, threshold float64) []FilteredPassage
}

// AnswerGenerator produces an answer grounded only in the given passages.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, passages []FilteredPassage) (Answer, error)
}

// ConsistencyChecker scores an answer against the exact passages used to
// generate it. It never fails; unparsable judgments degrade to a mid-scale
// default.
type ConsistencyChecker interface {
	Evaluate(ctx context.Context, query, answer string, sources []string) ConsistencyVerdict
}

// Options is the immutable run configuration, fixed at construction.
type Options struct {
	TopK                 int
	RelevanceThreshold   float64
	ConsistencyThreshold float64
	MaxCorrectionLoops   int
	SelfCorrection       bool
	StepTimeout          time.Duration
	QueryTimeout         time.Duration
}

type Pipeline struct {
	retriever Retriever
	relevance RelevanceFilter
	generator AnswerGenerator
	checker   ConsistencyChecker
	opts      Options
	logger    *log.Logger
}

func New(retriever Retriever, relevance RelevanceFilter, generator AnswerGenerator, checker ConsistencyChecker, opts Options, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	if opts.TopK < 1 {
		opts.TopK = defaultTopK
	}
	if opts.RelevanceThreshold <= 0 {
		opts.RelevanceThreshold = defaultRelevanceThreshold
	}
	if opts.ConsistencyThreshold <= 0 {
		opts.ConsistencyThreshold = defaultConsistencyThreshold
	}
	if opts.MaxCorrectionLoops < 0 {
		opts.MaxCorrectionLoops = 0
	}

	return &Pipeline{
		retriever: retriever,
		relevance: relevance,
		generator: generator,
		checker:   checker,
		opts:      opts,
		logger:    logger,
	}
}

// Run drives one question through the self-correction loop. It returns an
// error only for infrastructure failures (retrieval or generation
// unavailable); every other outcome is a Result, possibly carrying a warning.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Result{}, fmt.Errorf("question cannot be empty")
	}
	if p.retriever == nil {
		return Result{}, fmt.Errorf("retriever is not configured")
	}
	if p.relevance == nil {
		return Result{}, fmt.Errorf("relevance filter is not configured")
	}
	if p.generator == nil {
		return Result{}, fmt.Errorf("answer generator is not configured")
	}
	if p.checker == nil {
		return Result{}, fmt.Errorf("consistency checker is not configured")
	}

	if p.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.QueryTimeout)
		defer cancel()
	}

	var attempts []Attempt

	for ordinal := 1; ; ordinal++ {
		p.logger.Printf("attempt %d: retrieving up to %d passages", ordinal, p.opts.TopK)

		passages, err := p.retrievePassages(ctx, question)
		if err != nil {
			return Result{}, fmt.Errorf("retrieve passages: %w", err)
		}

		filtered := p.filterPassages(ctx, question, passages)
		p.logger.Printf("attempt %d: %d of %d passages passed relevance", ordinal, len(filtered), len(passages))

		if len(filtered) == 0 {
			// Regenerating without grounding text is pointless, so the run
			// stops here even when correction loops remain.
			attempts = append(attempts, Attempt{Ordinal: ordinal, RetrievedCount: len(passages)})
			result := Result{
				Answer:          noRelevantPassagesAnswer,
				ConfidenceScore: 0,
				Reasoning:       "relevance filtering removed all retrieved passages",
				CorrectionLoops: ordinal - 1,
			}
			if req.IncludeAttempts {
				result.Attempts = attempts
			}
			return result, nil
		}

		answer, err := p.generateAnswer(ctx, question, filtered)
		if err != nil {
			return Result{}, fmt.Errorf("generate answer: %w", err)
		}

		verdict := p.evaluateAnswer(ctx, question, answer.Text, filtered)
		p.logger.Printf("attempt %d: consistency %.1f/10 (threshold %.1f)", ordinal, verdict.Score, p.opts.ConsistencyThreshold)

		attempts = append(attempts, Attempt{
			Ordinal:        ordinal,
			RetrievedCount: len(passages),
			FilteredCount:  len(filtered),
			Answer:         answer.Text,
			Verdict:        &verdict,
		})

		accepted := verdict.Score >= p.opts.ConsistencyThreshold
		exhausted := !p.opts.SelfCorrection || ordinal > p.opts.MaxCorrectionLoops
		if accepted || exhausted {
			result := Result{
				Answer:          answer.Text,
				ConfidenceScore: verdict.Score,
				IsConsistent:    verdict.IsConsistent,
				Reasoning:       verdict.Reasoning,
				FactualErrors:   verdict.FactualErrors,
				SourcesUsed:     len(filtered),
				Sources:         buildSources(filtered),
				CorrectionLoops: ordinal - 1,
			}
			if !accepted {
				result.Warning = warningBelowThreshold
			}
			if req.IncludeAttempts {
				result.Attempts = attempts
			}
			return result, nil
		}

		p.logger.Printf("attempt %d: below threshold, retrying with fresh retrieval", ordinal)
	}
}

func (p *Pipeline) retrievePassages(ctx context.Context, question string) ([]retrieval.Passage, error) {
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.retriever.Retrieve(stepCtx, question, p.opts.TopK)
}

func (p *Pipeline) filterPassages(ctx context.Context, question string, passages []retrieval.Passage) []FilteredPassage {
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.relevance.Filter(stepCtx, question, passages, p.opts.RelevanceThreshold)
}

func (p *Pipeline) generateAnswer(ctx context.Context, question string, filtered []FilteredPassage) (Answer, error) {
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.generator.Generate(stepCtx, question, filtered)
}

func (p *Pipeline) evaluateAnswer(ctx context.Context, question, answer string, filtered []FilteredPassage) ConsistencyVerdict {
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.checker.Evaluate(stepCtx, question, answer, PassageTexts(filtered))
}

func (p *Pipeline) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.StepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.opts.StepTimeout)
}

// PassageTexts extracts the passage texts in filter order. The consistency
// check must see exactly the passages the generator saw.
func PassageTexts(filtered []FilteredPassage) []string {
	texts := make([]string, len(filtered))
	for i, fp := range filtered {
		texts[i] = fp.Passage.Text
	}
	return texts
}

func buildSources(filtered []FilteredPassage) []Source {
	sources := make([]Source, len(filtered))
	for i, fp := range filtered {
		snippet := strings.TrimSpace(fp.Passage.Text)
		if len(snippet) > 500 {
			snippet = snippet[:500] + "..."
		}
		sources[i] = Source{
			DocumentID: fp.Passage.DocumentID,
			Title:      fp.Passage.Title,
			Path:       fp.Passage.Path,
			Snippet:    snippet,
			Similarity: fp.Passage.Score,
			Relevance:  fp.Verdict.Confidence,
		}
	}
	return sources
}
