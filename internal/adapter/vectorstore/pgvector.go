package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"atlas-rag/internal/domain"
)

// Store persists passages and their embeddings in Postgres with pgvector.
// Similarity search uses cosine distance, so lower scores are better.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Add bulk-inserts passages with their embeddings and returns the generated
// row IDs in input order.
func (s *Store) Add(ctx context.Context, passages []domain.Passage, embeddings [][]float32) ([]string, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	if len(passages) != len(embeddings) {
		return nil, fmt.Errorf("passage/embedding count mismatch: %d != %d", len(passages), len(embeddings))
	}

	ids := make([]string, len(passages))
	rows := make([][]interface{}, len(passages))
	now := time.Now().UTC()
	for i, p := range passages {
		id := uuid.New()
		ids[i] = id.String()
		rows[i] = []interface{}{
			id,
			p.DocumentID,
			p.Index,
			p.Content,
			p.Metadata,
			pgvector.NewVector(embeddings[i]),
			now,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"passages"},
		[]string{"id", "document_id", "chunk_index", "content", "metadata", "embedding", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk insert passages: %w", err)
	}

	s.logger.Info("passages_inserted",
		slog.String("document_id", passages[0].DocumentID),
		slog.Int("count", len(passages)))
	return ids, nil
}

// Query returns the topK nearest passages by cosine distance, optionally
// restricted to the given document IDs.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, documentIDs []string) ([]domain.ScoredPassage, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := `
		SELECT document_id, chunk_index, content, metadata, embedding <=> $1 AS distance
		FROM passages
	`
	args := []interface{}{pgvector.NewVector(embedding)}
	if len(documentIDs) > 0 {
		query += ` WHERE document_id = ANY($2)`
		args = append(args, documentIDs)
	}
	query += fmt.Sprintf(` ORDER BY distance ASC LIMIT %d`, topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredPassage
	for rows.Next() {
		var sp domain.ScoredPassage
		if err := rows.Scan(&sp.DocumentID, &sp.Index, &sp.Content, &sp.Metadata, &sp.Score); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		sp.Kind = domain.ScoreVectorDistance
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Delete removes all passages of a document and returns how many rows went
// away.
func (s *Store) Delete(ctx context.Context, documentID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM passages WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete passages: %w", err)
	}
	deleted := int(tag.RowsAffected())
	s.logger.Info("passages_deleted",
		slog.String("document_id", documentID),
		slog.Int("count", deleted))
	return deleted, nil
}

// Adjacent returns the passages directly before and after the given chunk
// index within one document, ordered by index.
func (s *Store) Adjacent(ctx context.Context, documentID string, index int) ([]domain.Passage, error) {
	query := `
		SELECT document_id, chunk_index, content, metadata
		FROM passages
		WHERE document_id = $1 AND chunk_index = ANY($2)
		ORDER BY chunk_index ASC
	`
	rows, err := s.pool.Query(ctx, query, documentID, []int{index - 1, index + 1})
	if err != nil {
		return nil, fmt.Errorf("failed to query adjacent passages: %w", err)
	}
	defer rows.Close()

	return scanPassages(rows)
}

// Passages lists every passage of the given documents ordered by document
// and chunk index. With no IDs it lists the whole store.
func (s *Store) Passages(ctx context.Context, documentIDs []string) ([]domain.Passage, error) {
	query := `
		SELECT document_id, chunk_index, content, metadata
		FROM passages
	`
	var args []interface{}
	if len(documentIDs) > 0 {
		query += ` WHERE document_id = ANY($1)`
		args = append(args, documentIDs)
	}
	query += ` ORDER BY document_id ASC, chunk_index ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list passages: %w", err)
	}
	defer rows.Close()

	return scanPassages(rows)
}

func scanPassages(rows pgx.Rows) ([]domain.Passage, error) {
	var out []domain.Passage
	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.DocumentID, &p.Index, &p.Content, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

var _ domain.VectorIndex = (*Store)(nil)
