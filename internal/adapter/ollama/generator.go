package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"atlas-rag/internal/domain"
)

// Generator talks to an OpenAI-compatible /v1/chat/completions endpoint
// (Ollama exposes one), separating answer content from the model's
// reasoning stream when the backend reports it.
type Generator struct {
	BaseURL   string
	ModelName string
	Client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewGenerator constructs a Generator. maxRPS > 0 enables client-side rate
// limiting toward the gateway; 0 disables it.
func NewGenerator(baseURL, model string, maxRPS float64, timeout time.Duration, logger *slog.Logger, client ...*http.Client) *Generator {
	var c *http.Client
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if maxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxRPS), 1)
	}
	return &Generator{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: model,
		Client:    c,
		limiter:   limiter,
		logger:    logger,
	}
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

type chatChoiceMessage struct {
	Content          string `json:"content"`
	Reasoning        string `json:"reasoning"`
	ReasoningContent string `json:"reasoning_content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatChoiceMessage `json:"message"`
		Delta   chatChoiceMessage `json:"delta"`
	} `json:"choices"`
}

func (g *Generator) Complete(ctx context.Context, messages []domain.Message, systemPrompt string) (*domain.ChatResult, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.send(ctx, messages, systemPrompt, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("chat response contained no choices")
	}

	msg := chatResp.Choices[0].Message
	return &domain.ChatResult{
		Content:   msg.Content,
		Reasoning: firstNonEmpty(msg.Reasoning, msg.ReasoningContent),
	}, nil
}

// CompleteStream issues a streaming request and relays SSE deltas. The chunk
// channel closes once the stream ends; a transport failure mid-stream is
// reported on the error channel.
func (g *Generator) CompleteStream(ctx context.Context, messages []domain.Message, systemPrompt string) (<-chan domain.StreamChunk, <-chan error, error) {
	if err := g.wait(ctx); err != nil {
		return nil, nil, err
	}

	resp, err := g.send(ctx, messages, systemPrompt, true)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	chunks := make(chan domain.StreamChunk, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimSpace(line[len("data: "):])
			if data == "[DONE]" {
				return
			}
			var chatResp chatResponse
			if err := json.Unmarshal([]byte(data), &chatResp); err != nil || len(chatResp.Choices) == 0 {
				// Malformed frames are skipped, matching the gateway contract.
				continue
			}
			delta := chatResp.Choices[0].Delta
			chunk := domain.StreamChunk{
				Content:   delta.Content,
				Reasoning: firstNonEmpty(delta.Reasoning, delta.ReasoningContent),
			}
			if chunk.Content == "" && chunk.Reasoning == "" {
				continue
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("chat stream read failed: %w", err)
		}
	}()

	return chunks, errs, nil
}

func (g *Generator) send(ctx context.Context, messages []domain.Message, systemPrompt string, stream bool) (*http.Response, error) {
	chatMessages := make([]domain.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		chatMessages = append(chatMessages, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}
	chatMessages = append(chatMessages, messages...)

	payload, err := json.Marshal(chatRequest{
		Model:    g.ModelName,
		Messages: chatMessages,
		Stream:   stream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat endpoint: %w", err)
	}
	return resp, nil
}

func (g *Generator) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return nil
}

func (g *Generator) Model() string {
	return g.ModelName
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ domain.Generator = (*Generator)(nil)
