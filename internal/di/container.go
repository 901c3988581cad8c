package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"atlas-rag/internal/adapter/lexical"
	"atlas-rag/internal/adapter/ollama"
	"atlas-rag/internal/adapter/vectorstore"
	"atlas-rag/internal/domain"
	"atlas-rag/internal/infra/config"
	"atlas-rag/internal/infra/httpclient"
	"atlas-rag/internal/usecase"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	Embedder  domain.Embedder
	Generator domain.Generator
	Index     domain.VectorIndex
	Health    *ollama.HealthChecker

	RetrieveUsecase usecase.RetrieveContextUsecase
	AnswerUsecase   usecase.AnswerUsecase
	IndexUsecase    usecase.IndexDocumentUsecase
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	ollamaTimeout := time.Duration(cfg.OllamaTimeout) * time.Second
	ollamaHTTP := httpclient.NewPooledClient(ollamaTimeout)

	var embedder domain.Embedder = ollama.NewEmbedder(
		cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbedBatchSize, ollamaTimeout, log, ollamaHTTP)
	if cfg.EmbedCacheSize > 0 {
		if cached, err := ollama.NewCachedEmbedder(embedder, cfg.EmbedCacheSize); err == nil {
			embedder = cached
		} else {
			log.Warn("embedding_cache_disabled", slog.String("error", err.Error()))
		}
	}
	generator := ollama.NewGenerator(
		cfg.OllamaURL, cfg.ChatModel, cfg.OllamaMaxRPS, ollamaTimeout, log, ollamaHTTP)
	health := ollama.NewHealthChecker(cfg.OllamaURL, ollamaTimeout, ollamaHTTP)

	index := vectorstore.NewStore(pool, log)
	lexicalSearcher := lexical.NewSearcher(log)
	chunker := domain.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)

	retrievalConfig := usecase.RetrievalConfig{
		TopK:               cfg.RetrievalTopK,
		RerankTopN:         cfg.RerankTopN,
		BM25Weight:         cfg.BM25Weight,
		EnableQueryRewrite: cfg.EnableQueryRewrite,
		EnableHybridSearch: cfg.EnableHybridSearch,
		EnableReranking:    cfg.EnableReranking,
		RewriteTimeout:     time.Duration(cfg.RewriteTimeout) * time.Second,
		RerankTimeout:      time.Duration(cfg.RerankTimeout) * time.Second,
		RewritePrompt:      cfg.RewritePrompt,
		RerankPrompt:       cfg.RerankPrompt,
	}

	retrieveUsecase := usecase.NewRetrieveContextUsecase(
		embedder, index, lexicalSearcher, generator, retrievalConfig, log)
	promptBuilder := usecase.NewPromptBuilder(cfg.MaxHistoryMessages)
	answerUsecase := usecase.NewAnswerUsecase(retrieveUsecase, promptBuilder, generator, log)
	indexUsecase := usecase.NewIndexDocumentUsecase(chunker, embedder, index, log)

	return &ApplicationComponents{
		Embedder:        embedder,
		Generator:       generator,
		Index:           index,
		Health:          health,
		RetrieveUsecase: retrieveUsecase,
		AnswerUsecase:   answerUsecase,
		IndexUsecase:    indexUsecase,
	}
}
