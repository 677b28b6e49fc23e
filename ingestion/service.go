package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	stdpath "path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pgvector/pgvector-go"

	"github.com/veridex/veridex/database"
	"github.com/veridex/veridex/embeddings"
	"github.com/veridex/veridex/knowledge"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

type Service struct {
	pool      *pgxpool.Pool
	driver    neo4j.DriverWithContext
	embedder  embeddings.Embedder
	logger    *log.Logger
	dimension int
	parsers   map[DocumentFormat]DocumentParser
}

func NewService(pool *pgxpool.Pool, driver neo4j.DriverWithContext, embedder embeddings.Embedder, logger *log.Logger, dimension int) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		pool:      pool,
		driver:    driver,
		embedder:  embedder,
		logger:    logger,
		dimension: dimension,
		parsers: map[DocumentFormat]DocumentParser{
			FormatMarkdown: markdownParser{},
			FormatPDF:      pdfParser{},
			FormatCSV:      csvParser{},
		},
	}
}

// IngestDirectory walks dir and ingests every supported document it finds.
// Per-file failures are logged and skipped so one bad document does not abort
// the run.
func (s *Service) IngestDirectory(ctx context.Context, dir string) error {
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	if err := database.EnsurePassageSchema(ctx, s.pool, s.dimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	entries := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if DetectFormat(d.Name()) != FormatUnknown {
			entries = append(entries, path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walk data directory: %w", err)
	}

	if len(entries) == 0 {
		s.logger.Printf("no supported documents found in %s", dir)
		return nil
	}

	for _, path := range entries {
		if err := s.ingestFile(ctx, dir, path); err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
		}
	}

	return nil
}

func (s *Service) ingestFile(ctx context.Context, root, path string) (err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	relPath, relErr := filepath.Rel(root, path)
	if relErr != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)
	folder := stdpath.Dir(relPath)
	if folder == "." || folder == "/" {
		folder = ""
	}

	parser, ok := s.parsers[DetectFormat(path)]
	if !ok {
		return fmt.Errorf("unsupported document format")
	}

	parsed, err := parser.Parse(ctx, DocumentPayload{Path: path, Data: data})
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if len(parsed.Fragments) == 0 {
		s.logger.Printf("skip empty document %s", path)
		return nil
	}

	hash := sha256.Sum256(data)
	hashHex := hex.EncodeToString(hash[:])

	texts := make([]string, len(parsed.Fragments))
	for i, fragment := range parsed.Fragments {
		texts[i] = fragment.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(parsed.Fragments) {
		return fmt.Errorf("embedding count mismatch: have %d fragments, %d embeddings", len(parsed.Fragments), len(vectors))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Printf("rollback error: %v", rbErr)
			}
		}
	}()

	docID, changed, err := upsertDocument(ctx, tx, relPath, parsed.Title, hashHex)
	if err != nil {
		return err
	}

	if !changed {
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return fmt.Errorf("commit transaction: %w", commitErr)
		}
		s.logger.Printf("no updates required for %s", relPath)
		return nil
	}

	sectionIDs := make(map[int]string, len(parsed.Sections))
	sectionNodes := make([]knowledge.Section, 0, len(parsed.Sections))
	for _, section := range parsed.Sections {
		id := uuid.New().String()
		sectionIDs[section.Order] = id
		sectionNodes = append(sectionNodes, knowledge.Section{
			ID:    id,
			Title: section.Title,
			Level: section.Level,
			Order: section.Order,
		})
	}

	if _, err = tx.Exec(ctx, "DELETE FROM passages WHERE document_id = $1", docID); err != nil {
		return fmt.Errorf("clear existing passages: %w", err)
	}

	passageNodes := make([]knowledge.Passage, 0, len(parsed.Fragments))
	for idx, fragment := range parsed.Fragments {
		passageID := uuid.New()
		node := knowledge.Passage{
			ID:    passageID.String(),
			Index: idx,
			Text:  fragment.Text,
		}
		if fragment.Section.Title != "" {
			node.SectionID = sectionIDs[fragment.Section.Order]
		}
		passageNodes = append(passageNodes, node)

		vec := pgvector.NewVector(vectors[idx])
		if _, err := tx.Exec(ctx, `
			INSERT INTO passages (id, document_id, passage_index, section_order, section_level, section_title, content, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		`, passageID, docID, idx, fragment.Section.Order, fragment.Section.Level, fragment.Section.Title, fragment.Text, vec); err != nil {
			return fmt.Errorf("insert passage %d: %w", idx, err)
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit transaction: %w", commitErr)
	}

	topicNodes := make([]knowledge.Topic, 0, len(parsed.Topics))
	for _, topic := range parsed.Topics {
		topicNodes = append(topicNodes, knowledge.Topic{Name: topic.Name})
	}

	doc := knowledge.Document{
		ID:       docID.String(),
		Path:     relPath,
		Title:    parsed.Title,
		SHA:      hashHex,
		Folder:   folder,
		Passages: passageNodes,
		Sections: sectionNodes,
		Topics:   topicNodes,
	}

	if err := knowledge.SyncDocument(ctx, s.driver, doc); err != nil {
		return fmt.Errorf("sync knowledge graph: %w", err)
	}

	s.logger.Printf("ingested %s (%d passages)", relPath, len(passageNodes))
	return nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, path, title, sha string) (uuid.UUID, bool, error) {
	var (
		docID        uuid.UUID
		existingHash string
	)

	err := tx.QueryRow(ctx, "SELECT id, sha256 FROM documents WHERE source_path = $1", path).Scan(&docID, &existingHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			newID := uuid.New()
			_, execErr := tx.Exec(ctx, `
				INSERT INTO documents (id, source_path, title, sha256, created_at, updated_at)
				VALUES ($1, $2, $3, $4, NOW(), NOW())
			`, newID, path, title, sha)
			if execErr != nil {
				return uuid.Nil, false, fmt.Errorf("insert document: %w", execErr)
			}
			return newID, true, nil
		}
		return uuid.Nil, false, fmt.Errorf("query document: %w", err)
	}

	if existingHash == sha {
		return docID, false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET title = $2,
		    sha256 = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, docID, title, sha); err != nil {
		return uuid.Nil, false, fmt.Errorf("update document: %w", err)
	}

	return docID, true, nil
}
