package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"atlas-rag/internal/domain"
)

// AnswerInput drives one answer request, grounded when DocumentIDs is set.
type AnswerInput struct {
	Query       string
	History     []domain.Message
	DocumentIDs []string
}

// AnswerOutput is the non-streaming answer response.
type AnswerOutput struct {
	Content    string
	Reasoning  string
	Contexts   []domain.ExpandedContext
	References []domain.Reference
}

// StreamEventKind discriminates the events on an answer stream.
type StreamEventKind string

const (
	StreamEventKindMeta     StreamEventKind = "meta"
	StreamEventKindDelta    StreamEventKind = "delta"
	StreamEventKindThinking StreamEventKind = "thinking"
	StreamEventKindDone     StreamEventKind = "done"
	StreamEventKindError    StreamEventKind = "error"
)

// StreamEvent is one element of an answer stream.
type StreamEvent struct {
	Kind    StreamEventKind
	Payload interface{}
}

// StreamMeta is the payload of the meta event emitted before generation.
type StreamMeta struct {
	Contexts   []domain.ExpandedContext
	SubQueries []string
}

// StreamDone is the payload of the terminal done event.
type StreamDone struct {
	References []domain.Reference
}

// AnswerUsecase generates grounded or plain conversational answers.
type AnswerUsecase interface {
	Execute(ctx context.Context, input AnswerInput) (*AnswerOutput, error)
	Stream(ctx context.Context, input AnswerInput) <-chan StreamEvent
}

type answerUsecase struct {
	retrieve      RetrieveContextUsecase
	promptBuilder PromptBuilder
	generator     domain.Generator
	logger        *slog.Logger
}

// NewAnswerUsecase wires the retrieval pipeline to the generation gateway.
func NewAnswerUsecase(
	retrieve RetrieveContextUsecase,
	promptBuilder PromptBuilder,
	generator domain.Generator,
	logger *slog.Logger,
) AnswerUsecase {
	return &answerUsecase{
		retrieve:      retrieve,
		promptBuilder: promptBuilder,
		generator:     generator,
		logger:        logger,
	}
}

func (u *answerUsecase) Execute(ctx context.Context, input AnswerInput) (*AnswerOutput, error) {
	contexts, _, err := u.retrieveWithPlan(ctx, input)
	if err != nil {
		return nil, err
	}

	grounded := len(input.DocumentIDs) > 0
	systemPrompt, messages := u.promptBuilder.Build(input.Query, input.History, contexts, grounded)

	result, err := u.generator.Complete(ctx, messages, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return &AnswerOutput{
		Content:    result.Content,
		Reasoning:  result.Reasoning,
		Contexts:   contexts,
		References: buildReferences(contexts),
	}, nil
}

// Stream retrieves context, emits a meta event, relays generation chunks and
// finishes with a done event carrying the reference list. The channel is
// closed when the stream ends for any reason.
func (u *answerUsecase) Stream(ctx context.Context, input AnswerInput) <-chan StreamEvent {
	events := make(chan StreamEvent, 8)

	go func() {
		defer close(events)

		contexts, subQueries, err := u.retrieveWithPlan(ctx, input)
		if err != nil {
			u.emit(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: err.Error()})
			return
		}
		u.emit(ctx, events, StreamEvent{Kind: StreamEventKindMeta, Payload: StreamMeta{
			Contexts:   contexts,
			SubQueries: subQueries,
		}})

		grounded := len(input.DocumentIDs) > 0
		systemPrompt, messages := u.promptBuilder.Build(input.Query, input.History, contexts, grounded)

		chunks, errs, err := u.generator.CompleteStream(ctx, messages, systemPrompt)
		if err != nil {
			u.emit(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: err.Error()})
			return
		}

		for chunk := range chunks {
			if chunk.Reasoning != "" {
				if !u.emit(ctx, events, StreamEvent{Kind: StreamEventKindThinking, Payload: chunk.Reasoning}) {
					return
				}
			}
			if chunk.Content != "" {
				if !u.emit(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: chunk.Content}) {
					return
				}
			}
		}
		if err := <-errs; err != nil {
			u.emit(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: err.Error()})
			return
		}

		u.emit(ctx, events, StreamEvent{Kind: StreamEventKindDone, Payload: StreamDone{
			References: buildReferences(contexts),
		}})
	}()

	return events
}

func (u *answerUsecase) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// retrieveWithPlan runs the retrieval pipeline in grounded mode, or returns
// nothing when no document filter is set (plain conversation mode).
func (u *answerUsecase) retrieveWithPlan(ctx context.Context, input AnswerInput) ([]domain.ExpandedContext, []string, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, nil, fmt.Errorf("query is required")
	}
	if len(input.DocumentIDs) == 0 {
		return nil, nil, nil
	}
	out, err := u.retrieve.Execute(ctx, RetrieveContextInput{
		Query:       input.Query,
		DocumentIDs: input.DocumentIDs,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval failed: %w", err)
	}
	return out.Contexts, out.SubQueries, nil
}

// buildReferences describes which passages grounded the answer.
func buildReferences(contexts []domain.ExpandedContext) []domain.Reference {
	if len(contexts) == 0 {
		return nil
	}
	refs := make([]domain.Reference, 0, len(contexts))
	for _, c := range contexts {
		refs = append(refs, domain.Reference{
			DocumentID:   c.Anchor.DocumentID,
			PassageIndex: c.Anchor.Index,
			Filename:     c.Anchor.Metadata[domain.MetaFilename],
			Score:        c.Score,
		})
	}
	return refs
}
