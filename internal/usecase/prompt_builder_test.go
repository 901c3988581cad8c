package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-rag/internal/domain"
)

func detailContext(docID string, index int, content string) domain.ExpandedContext {
	return domain.ExpandedContext{
		Anchor:  domain.Passage{DocumentID: docID, Index: index, Content: content},
		Content: content,
		Indices: []int{index},
	}
}

func summaryContext(filename, content string) domain.ExpandedContext {
	return domain.ExpandedContext{
		Anchor: domain.Passage{
			DocumentID: "doc",
			Index:      domain.SummaryIndex,
			Content:    content,
			Metadata: map[string]string{
				domain.MetaType:     domain.PassageTypeSummary,
				domain.MetaFilename: filename,
			},
		},
		Content: content,
		Indices: []int{domain.SummaryIndex},
	}
}

func TestBuild_GroundedEmbedsContext(t *testing.T) {
	b := NewPromptBuilder(10)
	contexts := []domain.ExpandedContext{detailContext("doc-1", 3, "relevant passage text")}

	systemPrompt, messages := b.Build("question", nil, contexts, true)

	assert.Contains(t, systemPrompt, "relevant passage text")
	assert.Contains(t, systemPrompt, "Reference material")
	require.Len(t, messages, 1)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, "question", messages[0].Content)
}

func TestBuild_UngroundedUsesPlainPrompt(t *testing.T) {
	b := NewPromptBuilder(10)

	systemPrompt, _ := b.Build("question", nil, nil, false)

	assert.Equal(t, plainSystemPrompt, systemPrompt)
}

func TestBuild_GroundedWithNoContextCarriesMarker(t *testing.T) {
	b := NewPromptBuilder(10)

	systemPrompt, _ := b.Build("question", nil, nil, true)

	assert.Contains(t, systemPrompt, noContextMarker)
}

func TestBuild_HistoryWindowKeepsMostRecent(t *testing.T) {
	b := NewPromptBuilder(2)
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "oldest"},
		{Role: domain.RoleAssistant, Content: "old answer"},
		{Role: domain.RoleUser, Content: "recent"},
	}

	_, messages := b.Build("current", history, nil, false)

	require.Len(t, messages, 3)
	assert.Equal(t, "old answer", messages[0].Content)
	assert.Equal(t, "recent", messages[1].Content)
	assert.Equal(t, "current", messages[2].Content)
}

func TestBuildContext_SummariesComeFirst(t *testing.T) {
	contexts := []domain.ExpandedContext{
		detailContext("doc-1", 2, "detail text"),
		summaryContext("report.pdf", "overview text"),
	}

	got := BuildContext(contexts)

	summaryPos := strings.Index(got, "overview text")
	detailPos := strings.Index(got, "detail text")
	require.NotEqual(t, -1, summaryPos)
	require.NotEqual(t, -1, detailPos)
	assert.Less(t, summaryPos, detailPos)
	assert.Contains(t, got, "report.pdf")
	assert.Contains(t, got, "Document summaries")
	assert.Contains(t, got, "Relevant passages")
}

func TestBuildContext_LongDocumentIDShortened(t *testing.T) {
	contexts := []domain.ExpandedContext{
		detailContext("0123456789abcdef", 0, "text"),
	}

	got := BuildContext(contexts)

	assert.Contains(t, got, "01234567...")
	assert.NotContains(t, got, "0123456789abcdef")
}
