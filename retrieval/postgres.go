package retrieval

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/veridex/veridex/embeddings"
)

const defaultTopK = 5

// PostgresRetriever embeds the query and runs a pgvector nearest-neighbour
// search over the passages table.
type PostgresRetriever struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
}

func NewPostgresRetriever(pool *pgxpool.Pool, embedder embeddings.Embedder) *PostgresRetriever {
	return &PostgresRetriever{pool: pool, embedder: embedder}
}

func (r *PostgresRetriever) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	if r.pool == nil || r.embedder == nil {
		return nil, ErrNotInitialized
	}
	if k <= 0 {
		k = defaultTopK
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	probes := k * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("%w: set ivfflat probes: %v", ErrUnavailable, err)
	}

	rows, err := conn.Query(ctx, `
        SELECT
            p.id,
            p.document_id,
            d.title,
            d.source_path,
            p.content,
            (p.embedding <-> $1::vector) AS distance
        FROM passages p
        JOIN documents d ON d.id = p.document_id
        ORDER BY p.embedding <-> $1::vector
        LIMIT $2
    `, pgvector.NewVector(vectors[0]), k)
	if err != nil {
		return nil, fmt.Errorf("%w: query passages: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	results := make([]Passage, 0, k)
	for rows.Next() {
		var item Passage
		var distance float64
		if scanErr := rows.Scan(&item.ID, &item.DocumentID, &item.Title, &item.Path, &item.Text, &distance); scanErr != nil {
			return nil, fmt.Errorf("scan passage: %w", scanErr)
		}
		item.Score = similarityFromDistance(distance)
		item.Metadata = map[string]string{
			"document_id": item.DocumentID,
			"title":       item.Title,
			"path":        item.Path,
		}
		results = append(results, item)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, rows.Err())
	}

	return results, nil
}

// similarityFromDistance maps an L2 distance onto (0, 1], larger is closer.
func similarityFromDistance(distance float64) float64 {
	return 1 / (1 + distance)
}
