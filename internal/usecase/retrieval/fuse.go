package retrieval

import (
	"sort"

	"atlas-rag/internal/domain"
)

const (
	// rrfK is the RRF smoothing constant. Kept at 60 for behavioral parity
	// with the retrieval quality this pipeline was tuned against; candidate
	// for empirical re-tuning.
	rrfK = 60.0

	// absentRankOffset is added to a list's length to form the rank of a
	// passage missing from that list. A large penalty rather than exclusion,
	// so single-signal hits still surface.
	absentRankOffset = 100
)

// Fuse merges a vector-ranked list and a lexical-ranked list with Reciprocal
// Rank Fusion:
//
//	score = (1 - bm25Weight) / (rrfK + rank_vector) + bm25Weight / (rrfK + rank_lexical)
//
// with 1-based ranks. The result is sorted descending by fused score; ties
// break by vector rank, then by passage key, so fusion is fully
// deterministic. An empty lexical list skips fusion and returns the vector
// list unchanged.
func Fuse(vector, lexical []domain.ScoredPassage, bm25Weight float64) []domain.ScoredPassage {
	if len(lexical) == 0 {
		return vector
	}

	vectorRank := make(map[domain.PassageKey]int, len(vector))
	for i, sp := range vector {
		if _, ok := vectorRank[sp.Key()]; !ok {
			vectorRank[sp.Key()] = i + 1
		}
	}
	lexicalRank := make(map[domain.PassageKey]int, len(lexical))
	for i, sp := range lexical {
		if _, ok := lexicalRank[sp.Key()]; !ok {
			lexicalRank[sp.Key()] = i + 1
		}
	}

	absentVector := len(vector) + absentRankOffset
	absentLexical := len(lexical) + absentRankOffset

	// Vector entries win the passage lookup so the fused result keeps the
	// vector hit's metadata when a passage appears in both lists.
	passages := make(map[domain.PassageKey]domain.Passage, len(vector)+len(lexical))
	for _, sp := range lexical {
		passages[sp.Key()] = sp.Passage
	}
	for _, sp := range vector {
		passages[sp.Key()] = sp.Passage
	}

	fused := make([]domain.ScoredPassage, 0, len(passages))
	for key, p := range passages {
		rv, ok := vectorRank[key]
		if !ok {
			rv = absentVector
		}
		rl, ok := lexicalRank[key]
		if !ok {
			rl = absentLexical
		}
		fused = append(fused, domain.ScoredPassage{
			Passage: p,
			Score:   (1-bm25Weight)/(rrfK+float64(rv)) + bm25Weight/(rrfK+float64(rl)),
			Kind:    domain.ScoreFused,
		})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		ri, ok := vectorRank[fused[i].Key()]
		if !ok {
			ri = absentVector
		}
		rj, ok := vectorRank[fused[j].Key()]
		if !ok {
			rj = absentVector
		}
		if ri != rj {
			return ri < rj
		}
		return fused[i].Key().String() < fused[j].Key().String()
	})

	return fused
}
