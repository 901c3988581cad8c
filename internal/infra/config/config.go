package config

import (
	"os"
	"strconv"
	"strings"
)

// Config carries every tunable of the retrieval service, loaded from the
// environment with sensible defaults.
type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	OllamaURL      string
	ChatModel      string
	EmbeddingModel string
	OllamaTimeout  int // seconds
	OllamaMaxRPS   float64

	ChunkSize    int
	ChunkOverlap int

	RetrievalTopK  int
	RerankTopN     int
	BM25Weight     float64
	EmbedBatchSize int
	EmbedCacheSize int

	EnableQueryRewrite bool
	EnableHybridSearch bool
	EnableReranking    bool

	RewriteTimeout int // seconds
	RerankTimeout  int // seconds

	MaxHistoryMessages int

	// Prompts are deployment-configurable; empty means built-in defaults.
	RewritePrompt string
	RerankPrompt  string
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "atlas-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "atlas_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "atlas_password"),
		DBName:     getEnv("DB_NAME", "atlas_db"),

		OllamaURL:      getEnv("OLLAMA_URL", "http://127.0.0.1:11434"),
		ChatModel:      getEnv("CHAT_MODEL", "qwen3:14b"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "qwen3-embedding:4b"),
		OllamaTimeout:  getEnvInt("OLLAMA_TIMEOUT", 300),
		OllamaMaxRPS:   getEnvFloat("OLLAMA_MAX_RPS", 0), // 0 = unlimited

		ChunkSize:    getEnvInt("CHUNK_SIZE", 600),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 100),

		RetrievalTopK:  getEnvInt("RETRIEVAL_TOP_K", 5),
		RerankTopN:     getEnvInt("RERANK_TOP_N", 15),
		BM25Weight:     getEnvFloat("BM25_WEIGHT", 0.5),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 50),
		EmbedCacheSize: getEnvInt("EMBED_CACHE_SIZE", 256),

		EnableQueryRewrite: getEnvBool("RAG_ENABLE_QUERY_REWRITE", true),
		EnableHybridSearch: getEnvBool("RAG_ENABLE_HYBRID_SEARCH", true),
		EnableReranking:    getEnvBool("RAG_ENABLE_RERANKING", true),

		RewriteTimeout: getEnvInt("REWRITE_TIMEOUT", 30),
		RerankTimeout:  getEnvInt("RERANK_TIMEOUT", 60),

		MaxHistoryMessages: getEnvInt("MAX_HISTORY_MESSAGES", 10),

		RewritePrompt: getEnv("RAG_REWRITE_PROMPT", ""),
		RerankPrompt:  getEnv("RAG_RERANK_PROMPT", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
