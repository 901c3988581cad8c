package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"atlas-rag/internal/domain"
)

// defaultEmbedBatchSize bounds the texts sent per request so large documents
// do not overflow the gateway's request limits.
const defaultEmbedBatchSize = 50

// Embedder converts text into vectors via Ollama's /api/embed endpoint.
type Embedder struct {
	BaseURL   string
	ModelName string
	BatchSize int
	Client    *http.Client
	logger    *slog.Logger
}

// NewEmbedder constructs an Embedder. When client is nil a default client
// with the given timeout is created.
func NewEmbedder(baseURL, model string, batchSize int, timeout time.Duration, logger *slog.Logger, client ...*http.Client) *Embedder {
	var c *http.Client
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &Embedder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: model,
		BatchSize: batchSize,
		Client:    c,
		logger:    logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()
	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.BatchSize {
		end := i + e.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}
	e.logger.Info("embed_batch_completed",
		slog.Int("text_count", len(texts)),
		slog.String("model", e.ModelName),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return all, nil
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: e.ModelName, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embed", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
	}

	var respBody embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(respBody.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(respBody.Embeddings))
	}
	return respBody.Embeddings, nil
}

func (e *Embedder) Model() string {
	return e.ModelName
}

var _ domain.Embedder = (*Embedder)(nil)
