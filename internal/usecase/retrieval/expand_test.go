package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-rag/internal/domain"
)

func docPassage(docID string, index int, content string) domain.Passage {
	return domain.Passage{DocumentID: docID, Index: index, Content: content}
}

func TestExpandContext_MergesNeighbors(t *testing.T) {
	store := newStubStore(
		docPassage("a", 1, "one"),
		docPassage("a", 2, "two"),
		docPassage("a", 3, "three"),
	)
	sc := &StageContext{RetrievalID: "r1"}
	ranked := []domain.ScoredPassage{
		{Passage: docPassage("a", 2, "two"), Score: 0.9, Kind: domain.ScoreRerank},
	}

	got, err := ExpandContext(context.Background(), sc, ranked, store, discardLogger())
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "one\ntwo\nthree", got[0].Content)
	assert.Equal(t, []int{1, 2, 3}, got[0].Indices)
	assert.Equal(t, 2, got[0].Anchor.Index)
	assert.Equal(t, 0.9, got[0].Score)
}

func TestExpandContext_AdjacentAnchorsShareOneBlock(t *testing.T) {
	store := newStubStore(
		docPassage("a", 4, "four"),
		docPassage("a", 5, "five"),
		docPassage("a", 6, "six"),
		docPassage("a", 7, "seven"),
	)
	sc := &StageContext{RetrievalID: "r1"}
	ranked := []domain.ScoredPassage{
		{Passage: docPassage("a", 5, "five"), Score: 0.9, Kind: domain.ScoreRerank},
		{Passage: docPassage("a", 6, "six"), Score: 0.8, Kind: domain.ScoreRerank},
	}

	got, err := ExpandContext(context.Background(), sc, ranked, store, discardLogger())
	require.NoError(t, err)

	require.Len(t, got, 1, "adjacent anchors must merge into one block")
	assert.Equal(t, []int{4, 5, 6, 7}, got[0].Indices)
	assert.Equal(t, "four\nfive\nsix\nseven", got[0].Content)
}

func TestExpandContext_NoDuplicateKeysAcrossBlocks(t *testing.T) {
	store := newStubStore(
		docPassage("a", 0, "a0"),
		docPassage("a", 1, "a1"),
		docPassage("a", 2, "a2"),
		docPassage("a", 3, "a3"),
		docPassage("a", 4, "a4"),
	)
	sc := &StageContext{RetrievalID: "r1"}
	ranked := []domain.ScoredPassage{
		{Passage: docPassage("a", 1, "a1"), Score: 0.9, Kind: domain.ScoreRerank},
		{Passage: docPassage("a", 3, "a3"), Score: 0.8, Kind: domain.ScoreRerank},
	}

	got, err := ExpandContext(context.Background(), sc, ranked, store, discardLogger())
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, block := range got {
		for _, idx := range block.Indices {
			assert.False(t, seen[idx], "index %d appears in more than one block", idx)
			seen[idx] = true
		}
	}
}

func TestExpandContext_RepeatedAnchorEmittedOnce(t *testing.T) {
	store := newStubStore(docPassage("a", 1, "a1"))
	sc := &StageContext{RetrievalID: "r1"}
	ranked := []domain.ScoredPassage{
		{Passage: docPassage("a", 1, "a1"), Score: 0.9, Kind: domain.ScoreRerank},
		{Passage: docPassage("a", 1, "a1"), Score: 0.5, Kind: domain.ScoreRerank},
	}

	got, err := ExpandContext(context.Background(), sc, ranked, store, discardLogger())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.9, got[0].Score, "first-ranked anchor wins the block")
}

func TestExpandContext_SummaryPassageSkipsAdjacency(t *testing.T) {
	store := newStubStore(docPassage("a", 0, "a0"))
	sc := &StageContext{RetrievalID: "r1"}
	summary := domain.Passage{
		DocumentID: "a",
		Index:      domain.SummaryIndex,
		Content:    "overview",
		Metadata:   map[string]string{domain.MetaType: domain.PassageTypeSummary},
	}
	ranked := []domain.ScoredPassage{
		{Passage: summary, Score: 0.9, Kind: domain.ScoreRerank},
	}

	got, err := ExpandContext(context.Background(), sc, ranked, store, discardLogger())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "overview", got[0].Content)
	assert.Equal(t, []int{domain.SummaryIndex}, got[0].Indices)
}

func TestExpandContext_AdjacencyFailureDegrades(t *testing.T) {
	store := newStubStore(docPassage("a", 1, "a1"))
	store.adjErr = errors.New("store down")
	sc := &StageContext{RetrievalID: "r1"}
	ranked := []domain.ScoredPassage{
		{Passage: docPassage("a", 1, "a1"), Score: 0.9, Kind: domain.ScoreRerank},
	}

	got, err := ExpandContext(context.Background(), sc, ranked, store, discardLogger())
	require.NoError(t, err)

	require.Len(t, got, 1, "anchor survives without neighbors")
	assert.Equal(t, "a1", got[0].Content)
	assert.NotEmpty(t, sc.Degradations)
}

func TestExpandContext_RankOrderPreserved(t *testing.T) {
	store := newStubStore(
		docPassage("a", 1, "a1"),
		docPassage("b", 9, "b9"),
	)
	sc := &StageContext{RetrievalID: "r1"}
	ranked := []domain.ScoredPassage{
		{Passage: docPassage("b", 9, "b9"), Score: 0.9, Kind: domain.ScoreRerank},
		{Passage: docPassage("a", 1, "a1"), Score: 0.7, Kind: domain.ScoreRerank},
	}

	got, err := ExpandContext(context.Background(), sc, ranked, store, discardLogger())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Anchor.DocumentID)
	assert.Equal(t, "a", got[1].Anchor.DocumentID)
}
