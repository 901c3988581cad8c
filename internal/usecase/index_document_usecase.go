package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"atlas-rag/internal/domain"
)

// IndexDocumentInput carries one document to be split and indexed. Summary
// is optional document-level overview text stored as a dedicated passage.
type IndexDocumentInput struct {
	DocumentID string
	Filename   string
	Text       string
	Summary    string
}

// IndexDocumentOutput reports what was indexed.
type IndexDocumentOutput struct {
	PassageIDs   []string
	PassageCount int
}

// IndexDocumentUsecase splits documents into passages and writes them to the
// vector index. Writes for the same document are serialized so overlapping
// add/delete calls cannot interleave partial passage sets.
type IndexDocumentUsecase interface {
	Execute(ctx context.Context, input IndexDocumentInput) (*IndexDocumentOutput, error)
	Delete(ctx context.Context, documentID string) (int, error)
}

type indexDocumentUsecase struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	index    domain.VectorIndex
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIndexDocumentUsecase creates a new IndexDocumentUsecase.
func NewIndexDocumentUsecase(
	chunker domain.Chunker,
	embedder domain.Embedder,
	index domain.VectorIndex,
	logger *slog.Logger,
) IndexDocumentUsecase {
	return &indexDocumentUsecase{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (u *indexDocumentUsecase) Execute(ctx context.Context, input IndexDocumentInput) (*IndexDocumentOutput, error) {
	if input.DocumentID == "" {
		return nil, fmt.Errorf("document id is required")
	}

	unlock := u.lockDocument(input.DocumentID)
	defer unlock()

	indexStart := time.Now()
	chunks := u.chunker.Split(input.Text)

	passages := make([]domain.Passage, 0, len(chunks)+1)
	if input.Summary != "" {
		passages = append(passages, domain.Passage{
			DocumentID: input.DocumentID,
			Index:      domain.SummaryIndex,
			Content:    input.Summary,
			Metadata: map[string]string{
				domain.MetaDocumentID:  input.DocumentID,
				domain.MetaChunkIndex:  strconv.Itoa(domain.SummaryIndex),
				domain.MetaTotalChunks: strconv.Itoa(len(chunks)),
				domain.MetaFilename:    input.Filename,
				domain.MetaType:        domain.PassageTypeSummary,
			},
		})
	}
	for i, content := range chunks {
		passages = append(passages, domain.Passage{
			DocumentID: input.DocumentID,
			Index:      i,
			Content:    content,
			Metadata: map[string]string{
				domain.MetaDocumentID:  input.DocumentID,
				domain.MetaChunkIndex:  strconv.Itoa(i),
				domain.MetaTotalChunks: strconv.Itoa(len(chunks)),
				domain.MetaFilename:    input.Filename,
			},
		})
	}
	if len(passages) == 0 {
		return &IndexDocumentOutput{}, nil
	}

	contents := make([]string, len(passages))
	for i, p := range passages {
		contents[i] = p.Content
	}
	embeddings, err := u.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to embed passages: %w", err)
	}

	ids, err := u.index.Add(ctx, passages, embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to index passages: %w", err)
	}

	u.logger.Info("document_indexed",
		slog.String("document_id", input.DocumentID),
		slog.String("filename", input.Filename),
		slog.Int("passage_count", len(passages)),
		slog.Int64("duration_ms", time.Since(indexStart).Milliseconds()))

	return &IndexDocumentOutput{PassageIDs: ids, PassageCount: len(passages)}, nil
}

func (u *indexDocumentUsecase) Delete(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	unlock := u.lockDocument(documentID)
	defer unlock()

	deleted, err := u.index.Delete(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document passages: %w", err)
	}
	return deleted, nil
}

// lockDocument acquires the per-document write lock.
func (u *indexDocumentUsecase) lockDocument(documentID string) func() {
	u.mu.Lock()
	lock, ok := u.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		u.locks[documentID] = lock
	}
	u.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
