package retrieval

import (
	"sync"

	"atlas-rag/internal/domain"
)

// StageContext carries data between pipeline stages of one retrieval call.
type StageContext struct {
	// Input
	RetrievalID string
	Query       string
	DocumentIDs []string

	// Planner output
	SubQueries []string

	// Search output: deduplicated candidates across all sub-queries,
	// fused scores when hybrid search ran.
	Candidates []domain.ScoredPassage

	// Final output
	Contexts []domain.ExpandedContext

	mu           sync.Mutex
	Degradations []Degradation
}

// Degradation records a stage that fell back to simpler behavior instead of
// failing the request.
type Degradation struct {
	Stage  string
	Reason string
}

// Degrade appends a degradation record for observability. Search fans out
// across goroutines, so the append is guarded.
func (sc *StageContext) Degrade(stage, reason string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.Degradations = append(sc.Degradations, Degradation{Stage: stage, Reason: reason})
}
