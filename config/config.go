package config

import (
	"os"
	"strconv"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	LLM        LLMConfig
	Embeddings EmbeddingConfig
	Pipeline   PipelineConfig

	DataDir    string
	ServerAddr string
}

type LLMConfig struct {
	Provider string
	Model    string
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

// PipelineConfig carries the self-correction knobs. The environment is read
// exactly once in Load; the pipeline itself receives an explicit options
// struct and never touches env vars.
type PipelineConfig struct {
	TopK                 int
	RelevanceThreshold   float64
	ConsistencyThreshold float64
	MaxCorrectionLoops   int
	SelfCorrection       bool
	StepTimeout          time.Duration
	QueryTimeout         time.Duration
}

func Load() Config {
	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/veridex?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOllama),
			Model:    getEnv("LLM_MODEL", "llama3.1:8b"),
		},
		Embeddings: EmbeddingConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOllama),
			Model:     getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 768),
		},
		Pipeline: PipelineConfig{
			TopK:                 getEnvInt("TOP_K", 5),
			RelevanceThreshold:   getEnvFloat("RELEVANCE_THRESHOLD", 0.7),
			ConsistencyThreshold: getEnvFloat("CONSISTENCY_THRESHOLD", 7.0),
			MaxCorrectionLoops:   getEnvInt("MAX_CORRECTION_LOOPS", 2),
			SelfCorrection:       getEnvBool("SELF_CORRECTION", true),
			StepTimeout:          getEnvDuration("STEP_TIMEOUT", 60*time.Second),
			QueryTimeout:         getEnvDuration("QUERY_TIMEOUT", 5*time.Minute),
		},

		DataDir:    getEnv("DATA_DIR", "./data"),
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
