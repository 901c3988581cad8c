package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-rag/internal/domain"
)

func answerDeps(retriever RetrieveContextUsecase, gen *fakeGenerator) AnswerUsecase {
	return NewAnswerUsecase(retriever, NewPromptBuilder(10), gen, discardLogger())
}

func collectEvents(events <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestAnswerExecute_GroundedCarriesReferences(t *testing.T) {
	retriever := &fakeRetriever{output: &RetrieveContextOutput{
		Contexts: []domain.ExpandedContext{
			{
				Anchor: domain.Passage{
					DocumentID: "doc-1",
					Index:      4,
					Metadata:   map[string]string{domain.MetaFilename: "notes.txt"},
				},
				Content: "passage",
				Score:   0.8,
			},
		},
	}}
	gen := &fakeGenerator{content: "the answer", reasoning: "thought"}
	u := answerDeps(retriever, gen)

	out, err := u.Execute(context.Background(), AnswerInput{
		Query:       "question",
		DocumentIDs: []string{"doc-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "the answer", out.Content)
	assert.Equal(t, "thought", out.Reasoning)
	require.Len(t, out.References, 1)
	assert.Equal(t, "doc-1", out.References[0].DocumentID)
	assert.Equal(t, 4, out.References[0].PassageIndex)
	assert.Equal(t, "notes.txt", out.References[0].Filename)
	assert.Equal(t, 0.8, out.References[0].Score)
}

func TestAnswerExecute_PlainModeSkipsRetrieval(t *testing.T) {
	retriever := &fakeRetriever{}
	gen := &fakeGenerator{content: "hello"}
	u := answerDeps(retriever, gen)

	out, err := u.Execute(context.Background(), AnswerInput{Query: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "hello", out.Content)
	assert.Empty(t, out.References)
	assert.Empty(t, retriever.inputs, "no retrieval without a document filter")
}

func TestAnswerExecute_EmptyQueryFails(t *testing.T) {
	u := answerDeps(&fakeRetriever{}, &fakeGenerator{})

	_, err := u.Execute(context.Background(), AnswerInput{Query: " "})
	assert.Error(t, err)
}

func TestAnswerStream_EmitsMetaDeltasAndDone(t *testing.T) {
	retriever := &fakeRetriever{output: &RetrieveContextOutput{
		Contexts: []domain.ExpandedContext{
			{Anchor: domain.Passage{DocumentID: "doc-1", Index: 0}, Content: "ctx", Score: 0.5},
		},
		SubQueries: []string{"question"},
	}}
	gen := &fakeGenerator{chunks: []domain.StreamChunk{
		{Reasoning: "thinking..."},
		{Content: "partial "},
		{Content: "answer"},
	}}
	u := answerDeps(retriever, gen)

	events := collectEvents(u.Stream(context.Background(), AnswerInput{
		Query:       "question",
		DocumentIDs: []string{"doc-1"},
	}))

	require.Len(t, events, 5)
	assert.Equal(t, StreamEventKindMeta, events[0].Kind)
	meta := events[0].Payload.(StreamMeta)
	assert.Len(t, meta.Contexts, 1)

	assert.Equal(t, StreamEventKindThinking, events[1].Kind)
	assert.Equal(t, StreamEventKindDelta, events[2].Kind)
	assert.Equal(t, "partial ", events[2].Payload)
	assert.Equal(t, StreamEventKindDelta, events[3].Kind)

	require.Equal(t, StreamEventKindDone, events[4].Kind)
	done := events[4].Payload.(StreamDone)
	require.Len(t, done.References, 1)
	assert.Equal(t, "doc-1", done.References[0].DocumentID)
}

func TestAnswerStream_RetrievalFailureEmitsError(t *testing.T) {
	retriever := &fakeRetriever{err: errUnavailable}
	u := answerDeps(retriever, &fakeGenerator{})

	events := collectEvents(u.Stream(context.Background(), AnswerInput{
		Query:       "question",
		DocumentIDs: []string{"doc-1"},
	}))

	require.Len(t, events, 1)
	assert.Equal(t, StreamEventKindError, events[0].Kind)
}

func TestAnswerStream_GenerationFailureEmitsError(t *testing.T) {
	gen := &fakeGenerator{err: errUnavailable}
	u := answerDeps(&fakeRetriever{}, gen)

	events := collectEvents(u.Stream(context.Background(), AnswerInput{Query: "hi"}))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StreamEventKindError, last.Kind)
}

func TestAnswerStream_MidStreamErrorSurfaced(t *testing.T) {
	gen := &fakeGenerator{
		chunks:    []domain.StreamChunk{{Content: "par"}},
		streamErr: errUnavailable,
	}
	u := answerDeps(&fakeRetriever{}, gen)

	events := collectEvents(u.Stream(context.Background(), AnswerInput{Query: "hi"}))

	last := events[len(events)-1]
	assert.Equal(t, StreamEventKindError, last.Kind)
}
