package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"atlas-rag/internal/domain"
)

// contextBlock accumulates an anchor and its merged neighbors while
// expansion runs.
type contextBlock struct {
	anchor   domain.Passage
	score    float64
	passages []domain.Passage
}

// ExpandContext merges each ranked passage with its index-adjacent neighbors
// into enlarged context blocks (Stage 4). A global seen-set over
// (document_id, index) guarantees no passage text appears in more than one
// block; when two anchors are themselves adjacent, the later anchor's
// neighbors extend the block that already absorbed it instead of opening an
// overlapping block. Blocks come back in the anchors' rank order.
func ExpandContext(
	ctx context.Context,
	sc *StageContext,
	ranked []domain.ScoredPassage,
	store domain.VectorIndex,
	logger *slog.Logger,
) ([]domain.ExpandedContext, error) {
	blocks := make([]*contextBlock, 0, len(ranked))
	blockByKey := make(map[domain.PassageKey]*contextBlock)

	for _, anchor := range ranked {
		block, seen := blockByKey[anchor.Key()]
		if !seen {
			block = &contextBlock{
				anchor:   anchor.Passage,
				score:    anchor.Score,
				passages: []domain.Passage{anchor.Passage},
			}
			blocks = append(blocks, block)
			blockByKey[anchor.Key()] = block
		}

		// Summary passages have no meaningful neighbors.
		if anchor.Index == domain.SummaryIndex {
			continue
		}

		neighbors, err := store.Adjacent(ctx, anchor.DocumentID, anchor.Index)
		if err != nil {
			sc.Degrade("context_expansion", err.Error())
			logger.Warn("adjacent_fetch_failed",
				slog.String("retrieval_id", sc.RetrievalID),
				slog.String("document_id", anchor.DocumentID),
				slog.Int("chunk_index", anchor.Index),
				slog.String("error", err.Error()))
			continue
		}
		for _, n := range neighbors {
			if _, taken := blockByKey[n.Key()]; taken {
				continue
			}
			blockByKey[n.Key()] = block
			block.passages = append(block.passages, n)
		}
	}

	out := make([]domain.ExpandedContext, 0, len(blocks))
	for _, block := range blocks {
		sort.Slice(block.passages, func(i, j int) bool {
			return block.passages[i].Index < block.passages[j].Index
		})
		contents := make([]string, len(block.passages))
		indices := make([]int, len(block.passages))
		for i, p := range block.passages {
			contents[i] = p.Content
			indices[i] = p.Index
		}
		out = append(out, domain.ExpandedContext{
			Anchor:  block.anchor,
			Content: strings.Join(contents, "\n"),
			Score:   block.score,
			Indices: indices,
		})
	}

	logger.Info("context_expansion_completed",
		slog.String("retrieval_id", sc.RetrievalID),
		slog.Int("anchor_count", len(ranked)),
		slog.Int("block_count", len(out)))
	return out, nil
}
