package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"atlas-rag/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGenerator returns a canned completion and counts calls.
type stubGenerator struct {
	content string
	err     error
	calls   int
}

func (g *stubGenerator) Complete(ctx context.Context, messages []domain.Message, systemPrompt string) (*domain.ChatResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &domain.ChatResult{Content: g.content}, nil
}

func (g *stubGenerator) CompleteStream(ctx context.Context, messages []domain.Message, systemPrompt string) (<-chan domain.StreamChunk, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (g *stubGenerator) Model() string { return "stub-model" }

// stubStore serves adjacency lookups from an in-memory passage set.
type stubStore struct {
	passages map[domain.PassageKey]domain.Passage
	adjErr   error
}

func newStubStore(passages ...domain.Passage) *stubStore {
	s := &stubStore{passages: make(map[domain.PassageKey]domain.Passage)}
	for _, p := range passages {
		s.passages[p.Key()] = p
	}
	return s
}

func (s *stubStore) Add(ctx context.Context, passages []domain.Passage, embeddings [][]float32) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStore) Query(ctx context.Context, embedding []float32, topK int, documentIDs []string) ([]domain.ScoredPassage, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStore) Delete(ctx context.Context, documentID string) (int, error) {
	return 0, errors.New("not implemented")
}

func (s *stubStore) Adjacent(ctx context.Context, documentID string, index int) ([]domain.Passage, error) {
	if s.adjErr != nil {
		return nil, s.adjErr
	}
	var out []domain.Passage
	for _, idx := range []int{index - 1, index + 1} {
		if p, ok := s.passages[domain.PassageKey{DocumentID: documentID, Index: idx}]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) Passages(ctx context.Context, documentIDs []string) ([]domain.Passage, error) {
	return nil, errors.New("not implemented")
}

var (
	_ domain.Generator   = (*stubGenerator)(nil)
	_ domain.VectorIndex = (*stubStore)(nil)
)
