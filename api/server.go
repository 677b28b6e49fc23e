package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/veridex/veridex/agents"
	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/database"
	"github.com/veridex/veridex/embeddings"
	"github.com/veridex/veridex/ingestion"
	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/pipeline"
	"github.com/veridex/veridex/retrieval"
)

// Server exposes HTTP handlers for ingestion and the self-correcting query
// pipeline.
type Server struct {
	cfg     config.Config
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestRequest struct {
	Dir string `json:"dir"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

type queryRequest struct {
	Question             string  `json:"question"`
	TopK                 int     `json:"top_k"`
	RelevanceThreshold   float64 `json:"relevance_threshold"`
	ConsistencyThreshold float64 `json:"consistency_threshold"`
	MaxCorrectionLoops   *int    `json:"max_correction_loops"`
	SelfCorrection       *bool   `json:"self_correction"`
	IncludeAttempts      bool    `json:"include_attempts"`
}

type queryResponse struct {
	Answer          string             `json:"answer"`
	ConfidenceScore float64            `json:"confidenceScore"`
	IsConsistent    bool               `json:"isConsistent"`
	Reasoning       string             `json:"reasoning"`
	FactualErrors   []string           `json:"factualErrors,omitempty"`
	SourcesUsed     int                `json:"sourcesUsed"`
	Sources         []querySource      `json:"sources,omitempty"`
	CorrectionLoops int                `json:"correctionLoops"`
	Warning         string             `json:"warning,omitempty"`
	Attempts        []pipeline.Attempt `json:"attempts,omitempty"`
}

type querySource struct {
	DocumentID string           `json:"documentId"`
	Title      string           `json:"title"`
	Path       string           `json:"path"`
	Snippet    string           `json:"snippet"`
	Similarity float64          `json:"similarity"`
	Relevance  float64          `json:"relevance"`
	Insight    *documentInsight `json:"insight,omitempty"`
}

type documentInsight struct {
	PassageCount     int               `json:"passageCount"`
	Folders          []string          `json:"folders"`
	Sections         []sectionInfo     `json:"sections"`
	Topics           []string          `json:"topics"`
	RelatedDocuments []relatedDocument `json:"relatedDocuments"`
}

type sectionInfo struct {
	Title string `json:"title"`
	Level int    `json:"level"`
	Order int    `json:"order"`
}

type relatedDocument struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// New constructs a Server that serves the HTTP API using the provided configuration.
func New(cfg config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{cfg: cfg, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/query", s.handleQuery)
	mux.HandleFunc("/v1/clear", s.handleClear)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		dir = s.cfg.DataDir
	}

	ctx := r.Context()

	pgPool, err := database.NewPostgresPool(ctx, s.cfg.PostgresDSN)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("postgres connection: %w", err))
		return
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, s.cfg.Neo4jURI, s.cfg.Neo4jUser, s.cfg.Neo4jPass)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("neo4j connection: %w", err))
		return
	}
	defer neo4jDriver.Close(ctx)

	embedder, err := embeddings.NewEmbedder(s.cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("embedder setup: %w", err))
		return
	}

	svc := ingestion.NewService(pgPool, neo4jDriver, embedder, s.logger, s.cfg.Embeddings.Dimension)
	s.logger.Printf("ingesting documents from %s using %s/%s embeddings", dir, strings.ToUpper(s.cfg.Embeddings.Provider), s.cfg.Embeddings.Model)

	if err := svc.IngestDirectory(ctx, dir); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("ingestion failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ingestion complete"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	ctx := r.Context()

	pgPool, err := database.NewPostgresPool(ctx, s.cfg.PostgresDSN)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("postgres connection: %w", err))
		return
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, s.cfg.Neo4jURI, s.cfg.Neo4jUser, s.cfg.Neo4jPass)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("neo4j connection: %w", err))
		return
	}
	defer neo4jDriver.Close(ctx)

	embedder, err := embeddings.NewEmbedder(s.cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("embedder setup: %w", err))
		return
	}

	llmClient, err := llm.NewClient(s.cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("llm setup: %w", err))
		return
	}

	retriever := retrieval.NewPostgresRetriever(pgPool, embedder)
	judge := agents.NewRelevanceJudge(llmClient, s.logger)
	generator := agents.NewGenerator(llmClient)
	checker := agents.NewFactChecker(llmClient, s.logger)

	pipe := pipeline.New(retriever, judge, generator, checker, s.buildOptions(req), s.logger)

	result, err := pipe.Run(ctx, pipeline.Request{
		Question:        req.Question,
		IncludeAttempts: req.IncludeAttempts,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	graphStore := retrieval.NewNeo4jGraphStore(neo4jDriver)
	s.writeJSON(w, http.StatusOK, s.transformResult(ctx, graphStore, result))
}

// buildOptions starts from the configured pipeline options and applies any
// per-request overrides.
func (s *Server) buildOptions(req queryRequest) pipeline.Options {
	opts := pipeline.Options{
		TopK:                 s.cfg.Pipeline.TopK,
		RelevanceThreshold:   s.cfg.Pipeline.RelevanceThreshold,
		ConsistencyThreshold: s.cfg.Pipeline.ConsistencyThreshold,
		MaxCorrectionLoops:   s.cfg.Pipeline.MaxCorrectionLoops,
		SelfCorrection:       s.cfg.Pipeline.SelfCorrection,
		StepTimeout:          s.cfg.Pipeline.StepTimeout,
		QueryTimeout:         s.cfg.Pipeline.QueryTimeout,
	}

	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.RelevanceThreshold > 0 {
		opts.RelevanceThreshold = req.RelevanceThreshold
	}
	if req.ConsistencyThreshold > 0 {
		opts.ConsistencyThreshold = req.ConsistencyThreshold
	}
	if req.MaxCorrectionLoops != nil && *req.MaxCorrectionLoops >= 0 {
		opts.MaxCorrectionLoops = *req.MaxCorrectionLoops
	}
	if req.SelfCorrection != nil {
		opts.SelfCorrection = *req.SelfCorrection
	}

	return opts
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}

	ctx := r.Context()

	pgPool, err := database.NewPostgresPool(ctx, s.cfg.PostgresDSN)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("postgres connection: %w", err))
		return
	}
	defer pgPool.Close()

	if _, err := pgPool.Exec(ctx, "TRUNCATE passages, documents"); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("truncate postgres tables: %w", err))
		return
	}
	s.logger.Println("cleared Postgres documents and passages")

	neo4jDriver, err := database.NewNeo4jDriver(ctx, s.cfg.Neo4jURI, s.cfg.Neo4jUser, s.cfg.Neo4jPass)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("neo4j connection: %w", err))
		return
	}
	defer neo4jDriver.Close(ctx)

	session := neo4jDriver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	if err := purgeNeo4j(ctx, session); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("clear neo4j: %w", err))
		return
	}

	s.logger.Println("knowledge base cleared")

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "knowledge base cleared"})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

// transformResult converts a pipeline result to the wire shape, attaching
// knowledge graph insights to each source. Insight failures are logged and
// omitted, never fatal.
func (s *Server) transformResult(ctx context.Context, graphStore retrieval.GraphStore, result pipeline.Result) queryResponse {
	resp := queryResponse{
		Answer:          result.Answer,
		ConfidenceScore: result.ConfidenceScore,
		IsConsistent:    result.IsConsistent,
		Reasoning:       result.Reasoning,
		FactualErrors:   result.FactualErrors,
		SourcesUsed:     result.SourcesUsed,
		CorrectionLoops: result.CorrectionLoops,
		Warning:         result.Warning,
		Attempts:        result.Attempts,
	}

	if len(result.Sources) == 0 {
		return resp
	}

	docIDs := make([]string, 0, len(result.Sources))
	seen := make(map[string]bool, len(result.Sources))
	for _, src := range result.Sources {
		if src.DocumentID != "" && !seen[src.DocumentID] {
			seen[src.DocumentID] = true
			docIDs = append(docIDs, src.DocumentID)
		}
	}

	insights, err := graphStore.DocumentInsights(ctx, docIDs)
	if err != nil {
		s.logger.Printf("document insights unavailable: %v", err)
		insights = nil
	}

	sources := make([]querySource, len(result.Sources))
	for i, src := range result.Sources {
		converted := querySource{
			DocumentID: src.DocumentID,
			Title:      src.Title,
			Path:       src.Path,
			Snippet:    src.Snippet,
			Similarity: src.Similarity,
			Relevance:  src.Relevance,
		}
		if insight, ok := insights[src.DocumentID]; ok {
			converted.Insight = transformInsight(insight)
		}
		sources[i] = converted
	}
	resp.Sources = sources
	return resp
}

func transformInsight(insight retrieval.DocumentInsight) *documentInsight {
	sections := make([]sectionInfo, len(insight.Sections))
	for i, section := range insight.Sections {
		sections[i] = sectionInfo{
			Title: section.Title,
			Level: section.Level,
			Order: section.Order,
		}
	}

	related := make([]relatedDocument, len(insight.RelatedDocuments))
	for i, doc := range insight.RelatedDocuments {
		related[i] = relatedDocument{
			ID:    doc.ID,
			Title: doc.Title,
			Path:  doc.Path,
		}
	}

	return &documentInsight{
		PassageCount:     insight.PassageCount,
		Folders:          append([]string(nil), insight.Folders...),
		Sections:         sections,
		Topics:           append([]string(nil), insight.Topics...),
		RelatedDocuments: related,
	}
}

func purgeNeo4j(ctx context.Context, session neo4j.SessionWithContext) error {
	queries := []string{
		"MATCH (p:Passage) DETACH DELETE p",
		"MATCH (s:Section) DETACH DELETE s",
		"MATCH (t:Topic) DETACH DELETE t",
		"MATCH (d:Document) DETACH DELETE d",
		"MATCH (f:Folder) DETACH DELETE f",
	}

	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		if _, err := result.Consume(ctx); err != nil {
			return err
		}
	}

	return nil
}
