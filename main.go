package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/veridex/veridex/agents"
	"github.com/veridex/veridex/api"
	"github.com/veridex/veridex/config"
	"github.com/veridex/veridex/database"
	"github.com/veridex/veridex/embeddings"
	"github.com/veridex/veridex/ingestion"
	"github.com/veridex/veridex/llm"
	"github.com/veridex/veridex/pipeline"
	"github.com/veridex/veridex/retrieval"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "query":
		queryCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "path to directory containing documents (markdown, pdf, csv)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer neo4jDriver.Close(ctx)

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	svc := ingestion.NewService(pgPool, neo4jDriver, embedder, logger, cfg.Embeddings.Dimension)
	logger.Printf("ingesting documents from %s using %s/%s embeddings", *dataDir, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	if err := svc.IngestDirectory(ctx, *dataDir); err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func queryCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("query", flag.ExitOnError)
	question := flags.String("question", "", "question to answer from the ingested knowledge base")
	topK := flags.Int("top-k", cfg.Pipeline.TopK, "number of passages to retrieve per attempt")
	relevanceThreshold := flags.Float64("relevance-threshold", cfg.Pipeline.RelevanceThreshold, "minimum relevance confidence to keep a passage (0-1)")
	consistencyThreshold := flags.Float64("consistency-threshold", cfg.Pipeline.ConsistencyThreshold, "minimum consistency score to accept an answer (0-10)")
	maxLoops := flags.Int("max-loops", cfg.Pipeline.MaxCorrectionLoops, "maximum correction loops after the first attempt")
	noCorrection := flags.Bool("no-correction", false, "disable self-correction, answer with a single attempt")
	showAttempts := flags.Bool("show-attempts", false, "print the per-attempt history")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse query flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read question: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer neo4jDriver.Close(ctx)

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	retriever := retrieval.NewPostgresRetriever(pgPool, embedder)
	judge := agents.NewRelevanceJudge(llmClient, logger)
	generator := agents.NewGenerator(llmClient)
	checker := agents.NewFactChecker(llmClient, logger)

	opts := pipeline.Options{
		TopK:                 *topK,
		RelevanceThreshold:   *relevanceThreshold,
		ConsistencyThreshold: *consistencyThreshold,
		MaxCorrectionLoops:   *maxLoops,
		SelfCorrection:       cfg.Pipeline.SelfCorrection && !*noCorrection,
		StepTimeout:          cfg.Pipeline.StepTimeout,
		QueryTimeout:         cfg.Pipeline.QueryTimeout,
	}

	pipe := pipeline.New(retriever, judge, generator, checker, opts, logger)

	result, err := pipe.Run(ctx, pipeline.Request{
		Question:        *question,
		IncludeAttempts: *showAttempts,
	})
	if err != nil {
		logger.Fatalf("query failed: %v", err)
	}

	printResult(ctx, result, retrieval.NewNeo4jGraphStore(neo4jDriver), logger)
}

func printResult(ctx context.Context, result pipeline.Result, graphStore retrieval.GraphStore, logger *log.Logger) {
	fmt.Println(result.Answer)
	fmt.Println()
	fmt.Printf("Confidence: %.1f/10\n", result.ConfidenceScore)
	fmt.Printf("Correction loops: %d\n", result.CorrectionLoops)
	fmt.Printf("Sources used: %d\n", result.SourcesUsed)
	if result.Warning != "" {
		fmt.Printf("Warning: %s\n", result.Warning)
	}
	if len(result.FactualErrors) > 0 {
		fmt.Println("Factual errors:")
		for _, e := range result.FactualErrors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if len(result.Sources) > 0 {
		docIDs := make([]string, 0, len(result.Sources))
		seen := make(map[string]bool, len(result.Sources))
		for _, source := range result.Sources {
			if source.DocumentID != "" && !seen[source.DocumentID] {
				seen[source.DocumentID] = true
				docIDs = append(docIDs, source.DocumentID)
			}
		}
		insights, err := graphStore.DocumentInsights(ctx, docIDs)
		if err != nil {
			logger.Printf("document insights unavailable: %v", err)
			insights = nil
		}

		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range result.Sources {
			fmt.Printf("%d. %s (%s) similarity %.2f, relevance %.2f\n", idx+1, source.Title, source.Path, source.Similarity, source.Relevance)
			insight, ok := insights[source.DocumentID]
			if !ok {
				continue
			}
			if insight.PassageCount > 0 {
				fmt.Printf("   Indexed passages: %d\n", insight.PassageCount)
			}
			if len(insight.Folders) > 0 {
				fmt.Printf("   Folders: %s\n", strings.Join(insight.Folders, ", "))
			}
			if len(insight.Sections) > 0 {
				sectionParts := make([]string, 0, len(insight.Sections))
				for _, section := range insight.Sections {
					if section.Title == "" {
						continue
					}
					sectionParts = append(sectionParts, fmt.Sprintf("%s (level %d)", section.Title, section.Level))
				}
				if len(sectionParts) > 0 {
					fmt.Printf("   Sections: %s\n", strings.Join(sectionParts, "; "))
				}
			}
			if len(insight.Topics) > 0 {
				fmt.Printf("   Topics: %s\n", strings.Join(insight.Topics, ", "))
			}
			if len(insight.RelatedDocuments) > 0 {
				fmt.Println("   Related documents:")
				for _, related := range insight.RelatedDocuments {
					fmt.Printf("     - %s (%s)\n", related.Title, related.Path)
				}
			}
		}
	}

	if len(result.Attempts) > 0 {
		fmt.Println()
		fmt.Println("Attempts:")
		for _, attempt := range result.Attempts {
			line := fmt.Sprintf("%d. retrieved %d, kept %d", attempt.Ordinal, attempt.RetrievedCount, attempt.FilteredCount)
			if attempt.Verdict != nil {
				line += fmt.Sprintf(", score %.1f/10", attempt.Verdict.Score)
			}
			fmt.Println(line)
		}
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ServerAddr, "address for the HTTP server to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(cfg, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", *addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Fatalf("shutdown: %v", err)
		}
		logger.Println("server stopped")
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete the ingested knowledge base from Postgres and Neo4j. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	if _, err := pgPool.Exec(ctx, "TRUNCATE passages, documents"); err != nil {
		logger.Fatalf("truncate postgres tables: %v", err)
	}
	logger.Println("cleared Postgres documents and passages")

	neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer neo4jDriver.Close(ctx)

	session := neo4jDriver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	if err := purgeGraph(ctx, session); err != nil {
		logger.Fatalf("clear neo4j: %v", err)
	}

	logger.Println("knowledge base cleared")
}

func purgeGraph(ctx context.Context, session neo4j.SessionWithContext) error {
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

func printUsage() {
	fmt.Println("Usage: veridex <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Ingest documents into Postgres/Neo4j (use --dir to override data directory)")
	fmt.Println("  query    Answer a question with self-correcting retrieval")
	fmt.Println("  serve    Run the HTTP API server")
	fmt.Println("  clear    Remove ingested data from Postgres/Neo4j")
}
