// Package retrieval provides similarity search over the ingested passage
// store, plus graph-backed provenance lookups for retrieved documents.
package retrieval

import "errors"

// Passage is one retrieved candidate: a text chunk with its similarity score
// and the provenance of the document it came from.
type Passage struct {
	ID         string
	DocumentID string
	Title      string
	Path       string
	Text       string
	Score      float64
	Metadata   map[string]string
}

var (
	// ErrNotInitialized indicates the passage store has no usable backend.
	ErrNotInitialized = errors.New("passage store not initialized")
	// ErrUnavailable indicates the passage store could not be reached.
	ErrUnavailable = errors.New("passage store unavailable")
)
