package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"atlas-rag/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEmbedder struct {
	vec        []float32
	err        error
	batchCalls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embedder" }

type fakeIndex struct {
	queryResults []domain.ScoredPassage
	queryErr     error
	corpus       []domain.Passage
	adjacency    map[domain.PassageKey]domain.Passage

	added        []domain.Passage
	addedVectors [][]float32
	deletedIDs   []string

	// Query runs from fanned-out goroutines.
	mu         sync.Mutex
	queryCalls int
}

func (f *fakeIndex) Add(ctx context.Context, passages []domain.Passage, embeddings [][]float32) ([]string, error) {
	f.added = append(f.added, passages...)
	f.addedVectors = append(f.addedVectors, embeddings...)
	ids := make([]string, len(passages))
	for i, p := range passages {
		ids[i] = p.Key().String()
	}
	return ids, nil
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, topK int, documentIDs []string) ([]domain.ScoredPassage, error) {
	f.mu.Lock()
	f.queryCalls++
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryResults) > topK {
		return f.queryResults[:topK], nil
	}
	return f.queryResults, nil
}

func (f *fakeIndex) Delete(ctx context.Context, documentID string) (int, error) {
	f.deletedIDs = append(f.deletedIDs, documentID)
	return 1, nil
}

func (f *fakeIndex) Adjacent(ctx context.Context, documentID string, index int) ([]domain.Passage, error) {
	var out []domain.Passage
	for _, idx := range []int{index - 1, index + 1} {
		if p, ok := f.adjacency[domain.PassageKey{DocumentID: documentID, Index: idx}]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeIndex) Passages(ctx context.Context, documentIDs []string) ([]domain.Passage, error) {
	return f.corpus, nil
}

type fakeLexical struct {
	results []domain.ScoredPassage
	err     error
}

func (f *fakeLexical) Score(ctx context.Context, query string, corpus []domain.Passage) ([]domain.ScoredPassage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	content   string
	reasoning string
	err       error
	chunks    []domain.StreamChunk
	streamErr error
	calls     int
}

func (f *fakeGenerator) Complete(ctx context.Context, messages []domain.Message, systemPrompt string) (*domain.ChatResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatResult{Content: f.content, Reasoning: f.reasoning}, nil
}

func (f *fakeGenerator) CompleteStream(ctx context.Context, messages []domain.Message, systemPrompt string) (<-chan domain.StreamChunk, <-chan error, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	chunks := make(chan domain.StreamChunk, len(f.chunks))
	errs := make(chan error, 1)
	for _, c := range f.chunks {
		chunks <- c
	}
	close(chunks)
	errs <- f.streamErr
	return chunks, errs, nil
}

func (f *fakeGenerator) Model() string { return "fake-generator" }

type fakeChunker struct {
	chunks []string
}

func (f *fakeChunker) Split(text string) []string     { return f.chunks }
func (f *fakeChunker) Version() domain.ChunkerVersion { return domain.ChunkerVersionV1 }

type fakeRetriever struct {
	output *RetrieveContextOutput
	err    error
	inputs []RetrieveContextInput
}

func (f *fakeRetriever) Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

// slowIndex detects overlapping Add calls for the write-serialization test.
type slowIndex struct {
	*fakeIndex
	inFlight atomic.Int32
	overlaps atomic.Int32
	addMu    sync.Mutex
}

func (s *slowIndex) Add(ctx context.Context, passages []domain.Passage, embeddings [][]float32) ([]string, error) {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	time.Sleep(time.Millisecond)
	s.inFlight.Add(-1)

	s.addMu.Lock()
	defer s.addMu.Unlock()
	return s.fakeIndex.Add(ctx, passages, embeddings)
}

var (
	_ domain.Embedder        = (*fakeEmbedder)(nil)
	_ domain.VectorIndex     = (*fakeIndex)(nil)
	_ domain.LexicalSearcher = (*fakeLexical)(nil)
	_ domain.Generator       = (*fakeGenerator)(nil)
	_ domain.Chunker         = (*fakeChunker)(nil)
	_ RetrieveContextUsecase = (*fakeRetriever)(nil)
)

var errUnavailable = errors.New("unavailable")
