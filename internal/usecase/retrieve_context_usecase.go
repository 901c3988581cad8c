package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"atlas-rag/internal/domain"
	"atlas-rag/internal/usecase/retrieval"
)

// RetrievalConfig carries the tunables of the retrieval pipeline.
type RetrievalConfig struct {
	TopK       int
	RerankTopN int
	BM25Weight float64

	EnableQueryRewrite bool
	EnableHybridSearch bool
	EnableReranking    bool

	RewriteTimeout time.Duration
	RerankTimeout  time.Duration

	RewritePrompt string
	RerankPrompt  string
}

// RetrieveContextInput defines the input parameters for RetrieveContext.
type RetrieveContextInput struct {
	Query       string
	TopK        int      // 0 = configured default
	DocumentIDs []string // empty = search the whole index
}

// RetrieveContextOutput defines the output for RetrieveContext.
type RetrieveContextOutput struct {
	Contexts     []domain.ExpandedContext
	SubQueries   []string
	Degradations []retrieval.Degradation
}

// RetrieveContextUsecase is the public entry point of the retrieval pipeline.
type RetrieveContextUsecase interface {
	Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error)
}

type retrieveContextUsecase struct {
	embedder  domain.Embedder
	index     domain.VectorIndex
	lexical   domain.LexicalSearcher
	generator domain.Generator
	cfg       RetrievalConfig
	logger    *slog.Logger
}

// NewRetrieveContextUsecase creates a new RetrieveContextUsecase.
func NewRetrieveContextUsecase(
	embedder domain.Embedder,
	index domain.VectorIndex,
	lexical domain.LexicalSearcher,
	generator domain.Generator,
	cfg RetrievalConfig,
	logger *slog.Logger,
) RetrieveContextUsecase {
	return &retrieveContextUsecase{
		embedder:  embedder,
		index:     index,
		lexical:   lexical,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

func (u *retrieveContextUsecase) Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	finalTopK := input.TopK
	if finalTopK <= 0 {
		finalTopK = u.cfg.TopK
	}

	sc := &retrieval.StageContext{
		RetrievalID: uuid.New().String(),
		Query:       input.Query,
		DocumentIDs: input.DocumentIDs,
	}
	retrievalStart := time.Now()

	// Stage 1: query planning.
	retrieval.RewriteQuery(ctx, sc, u.generator, retrieval.RewriteConfig{
		Enabled: u.cfg.EnableQueryRewrite,
		Prompt:  u.cfg.RewritePrompt,
		Timeout: u.cfg.RewriteTimeout,
	}, u.logger)

	// Reranking gets a wider candidate set to re-score.
	searchTopK := finalTopK
	if u.cfg.EnableReranking && u.cfg.RerankTopN > searchTopK {
		searchTopK = u.cfg.RerankTopN
	}

	// Stage 2: per-sub-query hybrid search, fanned out in parallel. Results
	// are collected by sub-query position so the merge stays deterministic.
	perQuery := make([][]domain.ScoredPassage, len(sc.SubQueries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range sc.SubQueries {
		g.Go(func() error {
			results, err := u.searchOne(gctx, sc, q, searchTopK)
			if err != nil {
				return err
			}
			perQuery[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("retrieval search failed: %w", err)
	}

	// Dedup-merge across sub-queries, first occurrence wins.
	seen := make(map[domain.PassageKey]bool)
	var candidates []domain.ScoredPassage
	for _, results := range perQuery {
		for _, sp := range results {
			if !seen[sp.Key()] {
				seen[sp.Key()] = true
				candidates = append(candidates, sp)
			}
		}
	}
	sc.Candidates = candidates

	u.logger.Info("search_completed",
		slog.String("retrieval_id", sc.RetrievalID),
		slog.Int("sub_query_count", len(sc.SubQueries)),
		slog.Int("candidate_count", len(candidates)),
		slog.Int64("duration_ms", time.Since(retrievalStart).Milliseconds()))

	// Stage 3: rerank against the original query, not the rewrites.
	ranked := retrieval.Rerank(ctx, sc, candidates, u.generator, retrieval.RerankConfig{
		Enabled: u.cfg.EnableReranking,
		TopK:    finalTopK,
		Prompt:  u.cfg.RerankPrompt,
		Timeout: u.cfg.RerankTimeout,
	}, u.logger)

	// Stage 4: adjacency expansion.
	contexts, err := retrieval.ExpandContext(ctx, sc, ranked, u.index, u.logger)
	if err != nil {
		return nil, fmt.Errorf("context expansion failed: %w", err)
	}
	sc.Contexts = contexts

	u.logger.Info("retrieval_completed",
		slog.String("retrieval_id", sc.RetrievalID),
		slog.Int("context_count", len(contexts)),
		slog.Int("degradation_count", len(sc.Degradations)),
		slog.Int64("duration_ms", time.Since(retrievalStart).Milliseconds()))

	return &RetrieveContextOutput{
		Contexts:     contexts,
		SubQueries:   sc.SubQueries,
		Degradations: sc.Degradations,
	}, nil
}

// searchOne runs the hybrid (or plain vector) search for one sub-query. An
// embedding failure degrades to lexical-only scoring; a vector index failure
// is fatal because no fallback data source exists.
func (u *retrieveContextUsecase) searchOne(ctx context.Context, sc *retrieval.StageContext, query string, topK int) ([]domain.ScoredPassage, error) {
	embedding, embedErr := u.embedder.Embed(ctx, query)
	if embedErr != nil {
		sc.Degrade("embedding", embedErr.Error())
		u.logger.Warn("embedding_failed_degrading_to_lexical",
			slog.String("retrieval_id", sc.RetrievalID),
			slog.String("error", embedErr.Error()))
		if !u.cfg.EnableHybridSearch {
			return nil, nil
		}
		lexical := u.lexicalResults(ctx, sc, query)
		if len(lexical) > topK {
			lexical = lexical[:topK]
		}
		return lexical, nil
	}

	if !u.cfg.EnableHybridSearch {
		return u.index.Query(ctx, embedding, topK, sc.DocumentIDs)
	}

	// Vector leg over-fetches so fusion has room to reorder.
	vector, err := u.index.Query(ctx, embedding, topK*3, sc.DocumentIDs)
	if err != nil {
		return nil, err
	}
	lexical := u.lexicalResults(ctx, sc, query)

	fused := retrieval.Fuse(vector, lexical, u.cfg.BM25Weight)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	u.logger.Debug("hybrid_fusion_completed",
		slog.String("retrieval_id", sc.RetrievalID),
		slog.Int("vector_count", len(vector)),
		slog.Int("lexical_count", len(lexical)),
		slog.Int("fused_count", len(fused)))
	return fused, nil
}

// lexicalResults scores the candidate corpus lexically. Failures degrade to
// an empty list so hybrid search falls back to vector-only.
func (u *retrieveContextUsecase) lexicalResults(ctx context.Context, sc *retrieval.StageContext, query string) []domain.ScoredPassage {
	if u.lexical == nil {
		return nil
	}
	corpus, err := u.index.Passages(ctx, sc.DocumentIDs)
	if err != nil {
		sc.Degrade("lexical_search", err.Error())
		u.logger.Warn("lexical_corpus_fetch_failed",
			slog.String("retrieval_id", sc.RetrievalID),
			slog.String("error", err.Error()))
		return nil
	}
	scored, err := u.lexical.Score(ctx, query, corpus)
	if err != nil {
		sc.Degrade("lexical_search", err.Error())
		u.logger.Warn("lexical_scoring_failed",
			slog.String("retrieval_id", sc.RetrievalID),
			slog.String("error", err.Error()))
		return nil
	}
	return scored
}
