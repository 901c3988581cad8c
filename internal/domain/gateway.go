package domain

import "context"

// Chat roles used across the pipeline and the generation gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResult is a complete generation response. Reasoning carries the model's
// thinking stream when the backend separates it from the answer.
type ChatResult struct {
	Content   string
	Reasoning string
}

// StreamChunk is an incremental piece of a streaming generation.
type StreamChunk struct {
	Content   string
	Reasoning string
}

// Embedder converts text into dense vectors via the embedding gateway.
type Embedder interface {
	// Embed converts a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch converts many texts, batching requests to bound size.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Generator is the contract to the generation gateway.
type Generator interface {
	// Complete returns the full response for the given conversation.
	Complete(ctx context.Context, messages []Message, systemPrompt string) (*ChatResult, error)
	// CompleteStream yields incremental chunks; the chunk channel closes when
	// generation finishes, the error channel reports a mid-stream failure.
	CompleteStream(ctx context.Context, messages []Message, systemPrompt string) (<-chan StreamChunk, <-chan error, error)
	Model() string
}
