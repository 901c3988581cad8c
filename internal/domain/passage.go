package domain

import "fmt"

// SummaryIndex is the reserved passage index for a document-level summary.
const SummaryIndex = -1

// Metadata keys every indexed passage carries. The persistence and transport
// layers depend on these exact names, so they form a fixed schema even though
// the metadata map itself stays open.
const (
	MetaDocumentID  = "document_id"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaType        = "type"
	MetaFilename    = "filename"

	// PassageTypeSummary marks a document-level summary passage.
	PassageTypeSummary = "summary"
)

// Passage is an immutable unit of document text indexed for retrieval.
// Identity is (DocumentID, Index); passages are owned by their document and
// removed together with it.
type Passage struct {
	DocumentID string
	Index      int // ordinal within the document, SummaryIndex for a summary
	Content    string
	Metadata   map[string]string
}

// Key returns the passage identity used for deduplication.
func (p Passage) Key() PassageKey {
	return PassageKey{DocumentID: p.DocumentID, Index: p.Index}
}

// IsSummary reports whether the passage is a document-level summary.
func (p Passage) IsSummary() bool {
	return p.Index == SummaryIndex || p.Metadata[MetaType] == PassageTypeSummary
}

// PassageKey identifies a passage within one retrieval call.
type PassageKey struct {
	DocumentID string
	Index      int
}

func (k PassageKey) String() string {
	return fmt.Sprintf("%s_%d", k.DocumentID, k.Index)
}

// ScoreKind records which scoring convention a ScoredPassage carries.
// Vector scores are cosine distances (lower = more relevant); lexical, fused
// and rerank scores are relevance scores (higher = more relevant). Scores of
// different kinds must never be compared directly.
type ScoreKind int

const (
	ScoreVectorDistance ScoreKind = iota
	ScoreLexical
	ScoreFused
	ScoreRerank
)

// ScoredPassage pairs a passage with the score assigned by one pipeline stage.
type ScoredPassage struct {
	Passage
	Score float64
	Kind  ScoreKind
}

// RetrievalQuery is a single retrieval request against the indices,
// created per planner sub-query and consumed once.
type RetrievalQuery struct {
	Text        string
	TopK        int
	DocumentIDs []string // empty = unfiltered
}

// ExpandedContext is an anchor passage merged with its index-adjacent
// neighbors into a single text block.
type ExpandedContext struct {
	Anchor  Passage
	Content string
	Score   float64
	Indices []int // passage indices merged into this block, ascending
}

// Reference describes a passage that grounded an answer.
type Reference struct {
	DocumentID   string
	PassageIndex int
	Filename     string
	Score        float64
}
