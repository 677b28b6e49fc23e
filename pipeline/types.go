package pipeline

import "github.com/veridex/veridex/retrieval"

// RelevanceVerdict is the per-passage judgment produced by the relevance
// filter. Confidence is always in [0, 1].
type RelevanceVerdict struct {
	IsRelevant bool    `json:"is_relevant"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// FilteredPassage is a retrieved passage that passed the relevance gate,
// carrying its verdict for downstream reporting.
type FilteredPassage struct {
	Passage retrieval.Passage
	Verdict RelevanceVerdict
}

// Answer is the generated answer text, grounded in the filtered passages.
type Answer struct {
	Text string
}

// ConsistencyVerdict scores how well an answer is supported by its source
// passages. Score is always in [0, 10].
type ConsistencyVerdict struct {
	Score         float64  `json:"consistency_score"`
	IsConsistent  bool     `json:"is_consistent"`
	FactualErrors []string `json:"factual_errors"`
	Reasoning     string   `json:"reasoning"`
}

// Attempt records one full retrieve/filter/generate/evaluate pass. Appended
// to the run history and never mutated afterwards.
type Attempt struct {
	Ordinal        int                 `json:"attempt_number"`
	RetrievedCount int                 `json:"retrieved_count"`
	FilteredCount  int                 `json:"filtered_count"`
	Answer         string              `json:"answer,omitempty"`
	Verdict        *ConsistencyVerdict `json:"evaluation,omitempty"`
}

// Source is the provenance of one passage used to ground the final answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Path       string  `json:"path"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
	Relevance  float64 `json:"relevance"`
}

// Result is the terminal output of a pipeline run. A run always produces a
// Result once generation has succeeded at least once; low confidence is
// reported through Warning and ConfidenceScore, never as an error.
type Result struct {
	Answer          string    `json:"answer"`
	ConfidenceScore float64   `json:"confidence_score"`
	IsConsistent    bool      `json:"is_consistent"`
	Reasoning       string    `json:"reasoning"`
	FactualErrors   []string  `json:"factual_errors,omitempty"`
	SourcesUsed     int       `json:"sources_used"`
	Sources         []Source  `json:"sources,omitempty"`
	CorrectionLoops int       `json:"correction_loops"`
	Warning         string    `json:"warning,omitempty"`
	Attempts        []Attempt `json:"attempts,omitempty"`
}

// Request is one user question plus diagnostic options.
type Request struct {
	Question        string
	IncludeAttempts bool
}
