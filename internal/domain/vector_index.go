package domain

import "context"

// VectorIndex is the contract to the external nearest-neighbor service.
// The pipeline never inspects index internals; it only composes these
// primitives with embeddings from the Embedder.
type VectorIndex interface {
	// Add stores passages with their embeddings and returns the stored ids.
	// passages and embeddings must be the same length.
	Add(ctx context.Context, passages []Passage, embeddings [][]float32) ([]string, error)

	// Query returns the topK nearest passages by cosine distance, ascending
	// (lower distance = more relevant). documentIDs, when non-empty,
	// restricts the search to those documents.
	Query(ctx context.Context, embedding []float32, topK int, documentIDs []string) ([]ScoredPassage, error)

	// Delete removes every passage of a document, returning the count removed.
	Delete(ctx context.Context, documentID string) (int, error)

	// Adjacent returns the passages at index-1 and index+1 within a document,
	// in ascending index order. Missing neighbors are simply absent.
	Adjacent(ctx context.Context, documentID string, index int) ([]Passage, error)

	// Passages lists the stored passages of the given documents (all
	// documents when the filter is empty), used as the lexical corpus.
	Passages(ctx context.Context, documentIDs []string) ([]Passage, error)
}

// LexicalSearcher ranks a query against a passage corpus by keyword overlap.
// Implementations return only passages with a positive score, descending.
// An unavailable backend returns an empty list, never an error that would
// abort hybrid search.
type LexicalSearcher interface {
	Score(ctx context.Context, query string, corpus []Passage) ([]ScoredPassage, error)
}
