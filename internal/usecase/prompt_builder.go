package usecase

import (
	"fmt"
	"strings"

	"atlas-rag/internal/domain"
)

const groundedSystemPrompt = `You are a knowledge base assistant. Answer the user's question from the reference material below.
If the reference material contains no relevant information, tell the user plainly that you could not find any.
Keep answers accurate and concise, and quote the reference material where possible.

## Reference material
{context}`

const plainSystemPrompt = `You are the Atlas assistant and can answer general questions.
Keep answers accurate, concise and helpful. If the user wants document-grounded answers, suggest selecting knowledge base documents in settings.`

const noContextMarker = "(no relevant reference material)"

// PromptBuilder assembles the system prompt and message list sent to the
// generation gateway.
type PromptBuilder interface {
	Build(query string, history []domain.Message, contexts []domain.ExpandedContext, grounded bool) (string, []domain.Message)
}

type promptBuilder struct {
	maxHistory int
}

// NewPromptBuilder creates a PromptBuilder that truncates conversation
// history to the most recent maxHistory messages.
func NewPromptBuilder(maxHistory int) PromptBuilder {
	return &promptBuilder{maxHistory: maxHistory}
}

// Build returns the system prompt and the chat messages for one turn. In
// grounded mode the system prompt embeds the assembled context; otherwise a
// generic conversational prompt is used.
func (b *promptBuilder) Build(query string, history []domain.Message, contexts []domain.ExpandedContext, grounded bool) (string, []domain.Message) {
	systemPrompt := plainSystemPrompt
	if grounded {
		systemPrompt = strings.ReplaceAll(groundedSystemPrompt, "{context}", BuildContext(contexts))
	}

	start := 0
	if b.maxHistory > 0 && len(history) > b.maxHistory {
		start = len(history) - b.maxHistory
	}
	messages := make([]domain.Message, 0, len(history)-start+1)
	messages = append(messages, history[start:]...)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: query})

	return systemPrompt, messages
}

// BuildContext formats expanded context blocks into the reference section of
// the grounded prompt. Document summaries come first so the model sees the
// overall shape before the detail passages.
func BuildContext(contexts []domain.ExpandedContext) string {
	if len(contexts) == 0 {
		return noContextMarker
	}

	var summaries, details []domain.ExpandedContext
	for _, c := range contexts {
		if c.Anchor.IsSummary() {
			summaries = append(summaries, c)
		} else {
			details = append(details, c)
		}
	}

	var parts []string
	if len(summaries) > 0 {
		parts = append(parts, "### Document summaries")
		for i, c := range summaries {
			filename := c.Anchor.Metadata[domain.MetaFilename]
			if filename == "" {
				filename = "unknown file"
			}
			parts = append(parts, fmt.Sprintf("[summary %d] (%s)\n%s", i+1, filename, c.Content))
		}
	}
	if len(details) > 0 {
		if len(summaries) > 0 {
			parts = append(parts, "\n### Relevant passages")
		}
		for i, c := range details {
			parts = append(parts, fmt.Sprintf("[%d] (document: %s, passage: %d)\n%s",
				i+1, shortDocID(c.Anchor.DocumentID), c.Anchor.Index, c.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}

func shortDocID(id string) string {
	if runes := []rune(id); len(runes) > 8 {
		return string(runes[:8]) + "..."
	}
	return id
}
