package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rewriteConfig() RewriteConfig {
	return RewriteConfig{Enabled: true, Timeout: time.Second}
}

func TestRewriteQuery_SplitsLines(t *testing.T) {
	gen := &stubGenerator{content: "postgres connection pool sizing\n\n  pgbouncer transaction pooling  \n"}
	sc := &StageContext{RetrievalID: "r1", Query: "how big should my pool be"}

	RewriteQuery(context.Background(), sc, gen, rewriteConfig(), discardLogger())

	assert.Equal(t, []string{
		"postgres connection pool sizing",
		"pgbouncer transaction pooling",
	}, sc.SubQueries)
}

func TestRewriteQuery_FailureFallsBackToOriginal(t *testing.T) {
	gen := &stubGenerator{err: errors.New("gateway down")}
	sc := &StageContext{RetrievalID: "r1", Query: "original question"}

	RewriteQuery(context.Background(), sc, gen, rewriteConfig(), discardLogger())

	assert.Equal(t, []string{"original question"}, sc.SubQueries)
	assert.NotEmpty(t, sc.Degradations)
}

func TestRewriteQuery_EmptyResponseFallsBackToOriginal(t *testing.T) {
	gen := &stubGenerator{content: "   \n\n  "}
	sc := &StageContext{RetrievalID: "r1", Query: "original question"}

	RewriteQuery(context.Background(), sc, gen, rewriteConfig(), discardLogger())

	assert.Equal(t, []string{"original question"}, sc.SubQueries)
}

func TestRewriteQuery_DisabledKeepsOriginal(t *testing.T) {
	gen := &stubGenerator{content: "rewritten"}
	sc := &StageContext{RetrievalID: "r1", Query: "original question"}

	cfg := rewriteConfig()
	cfg.Enabled = false
	RewriteQuery(context.Background(), sc, gen, cfg, discardLogger())

	assert.Equal(t, []string{"original question"}, sc.SubQueries)
	assert.Zero(t, gen.calls)
}

func TestRewriteQuery_CustomPromptUsed(t *testing.T) {
	gen := &stubGenerator{content: "rewritten"}
	sc := &StageContext{RetrievalID: "r1", Query: "q"}

	cfg := rewriteConfig()
	cfg.Prompt = "Rewrite: {query}"
	RewriteQuery(context.Background(), sc, gen, cfg, discardLogger())

	assert.Equal(t, []string{"rewritten"}, sc.SubQueries)
	assert.Equal(t, 1, gen.calls)
}
