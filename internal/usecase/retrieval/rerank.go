package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"atlas-rag/internal/domain"
)

const defaultRerankPrompt = `Score each retrieved result below for relevance to the user's question on a 0-10 scale, 10 being most relevant.
Output only one line per result in the form "number:score", nothing else.

User question: {query}

Retrieved results:
{results}`

// previewLength bounds the per-candidate text sent to the reranking model.
const previewLength = 200

// RerankConfig holds reranking stage parameters.
type RerankConfig struct {
	Enabled bool
	TopK    int
	Prompt  string // {query} and {results} placeholders, empty = built-in default
	Timeout time.Duration
}

// Rerank asks the LLM to re-score the candidate set and returns the topK
// passages (Stage 3). When the candidate set already fits in topK the
// candidates are returned as-is with no LLM call. Any gateway failure or a
// response with no parseable score lines falls back to the first topK
// candidates, so reranking never fails the request.
func Rerank(
	ctx context.Context,
	sc *StageContext,
	candidates []domain.ScoredPassage,
	generator domain.Generator,
	cfg RerankConfig,
	logger *slog.Logger,
) []domain.ScoredPassage {
	if len(candidates) <= cfg.TopK {
		return candidates
	}
	if !cfg.Enabled || generator == nil {
		return candidates[:cfg.TopK]
	}

	var results strings.Builder
	for i, c := range candidates {
		preview := c.Content
		if runes := []rune(preview); len(runes) > previewLength {
			preview = string(runes[:previewLength])
		}
		fmt.Fprintf(&results, "[%d] %s\n\n", i+1, preview)
	}

	prompt := cfg.Prompt
	if prompt == "" {
		prompt = defaultRerankPrompt
	}
	prompt = strings.ReplaceAll(prompt, "{query}", sc.Query)
	prompt = strings.ReplaceAll(prompt, "{results}", results.String())

	rerankStart := time.Now()
	rerankCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	result, err := generator.Complete(rerankCtx, []domain.Message{
		{Role: domain.RoleUser, Content: prompt},
	}, "")
	cancel()

	if err != nil {
		sc.Degrade("rerank", err.Error())
		logger.Warn("reranking_failed_using_original_order",
			slog.String("retrieval_id", sc.RetrievalID),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(rerankStart).Milliseconds()))
		return candidates[:cfg.TopK]
	}

	scores := parseScores(result.Content, len(candidates))
	if len(scores) == 0 {
		sc.Degrade("rerank", "no parseable score lines")
		logger.Warn("reranking_unparseable_using_original_order",
			slog.String("retrieval_id", sc.RetrievalID))
		return candidates[:cfg.TopK]
	}

	// Unscored candidates rank last with score 0 but are not dropped.
	reranked := make([]domain.ScoredPassage, len(candidates))
	for i, c := range candidates {
		reranked[i] = domain.ScoredPassage{
			Passage: c.Passage,
			Score:   scores[i],
			Kind:    domain.ScoreRerank,
		}
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	logger.Info("reranking_completed",
		slog.String("retrieval_id", sc.RetrievalID),
		slog.Int("candidate_count", len(candidates)),
		slog.Int("scored_count", len(scores)),
		slog.String("model", generator.Model()),
		slog.Int64("duration_ms", time.Since(rerankStart).Milliseconds()))

	return reranked[:cfg.TopK]
}

// parseScores extracts "number:score" lines from the model output. Malformed
// lines, out-of-range indices and non-numeric scores are skipped. Indices in
// the output are 1-based.
func parseScores(content string, candidateCount int) map[int]float64 {
	scores := make(map[int]float64)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, ":") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		idxText := strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[0]), "[]"))
		idx, err := strconv.Atoi(idxText)
		if err != nil {
			continue
		}
		idx-- // to 0-based
		if idx < 0 || idx >= candidateCount {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		scores[idx] = score
	}
	return scores
}
