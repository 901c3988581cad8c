package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"atlas-rag/internal/domain"
)

const defaultRewritePrompt = `Rewrite the user's question into queries better suited for semantic retrieval. Requirements:
1. Preserve the original meaning but make the wording explicit and specific.
2. If the question is compound, split it into independent retrieval queries, one per line.
3. Drop conversational filler and use key terminology.
4. Output only the rewritten queries, nothing else.

User question: {query}`

// RewriteConfig holds query planning stage parameters.
type RewriteConfig struct {
	Enabled bool
	Prompt  string // {query} placeholder, empty = built-in default
	Timeout time.Duration
}

// RewriteQuery asks the LLM to rewrite the user query into one or more
// retrieval sub-queries (Stage 1). Any failure or empty response falls back
// to the original query unchanged.
func RewriteQuery(
	ctx context.Context,
	sc *StageContext,
	generator domain.Generator,
	cfg RewriteConfig,
	logger *slog.Logger,
) {
	sc.SubQueries = []string{sc.Query}
	if !cfg.Enabled || generator == nil {
		return
	}

	prompt := cfg.Prompt
	if prompt == "" {
		prompt = defaultRewritePrompt
	}
	prompt = strings.ReplaceAll(prompt, "{query}", sc.Query)

	rewriteStart := time.Now()
	rewriteCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	result, err := generator.Complete(rewriteCtx, []domain.Message{
		{Role: domain.RoleUser, Content: prompt},
	}, "")
	cancel()

	if err != nil {
		sc.Degrade("query_rewrite", err.Error())
		logger.Warn("query_rewrite_failed_using_original",
			slog.String("retrieval_id", sc.RetrievalID),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(rewriteStart).Milliseconds()))
		return
	}

	var queries []string
	for _, line := range strings.Split(result.Content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			queries = append(queries, trimmed)
		}
	}
	if len(queries) == 0 {
		sc.Degrade("query_rewrite", "empty rewrite response")
		logger.Warn("query_rewrite_empty_using_original",
			slog.String("retrieval_id", sc.RetrievalID))
		return
	}

	sc.SubQueries = queries
	logger.Info("query_rewritten",
		slog.String("retrieval_id", sc.RetrievalID),
		slog.String("original", sc.Query),
		slog.Any("sub_queries", queries),
		slog.Int64("duration_ms", time.Since(rewriteStart).Milliseconds()))
}
