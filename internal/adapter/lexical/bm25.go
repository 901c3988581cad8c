package lexical

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"

	"atlas-rag/internal/domain"
)

// Okapi BM25 parameters, the rank_bm25 defaults.
const (
	k1 = 1.5
	b  = 0.75
)

// Searcher ranks passages against a query with Okapi BM25. The index is
// built per call from the candidate corpus; tokenization is delegated to a
// CJK-aware segmenter so mixed Chinese/English content ranks sensibly.
type Searcher struct {
	logger *slog.Logger

	once    sync.Once
	seg     gse.Segmenter
	loadErr error
}

func NewSearcher(logger *slog.Logger) *Searcher {
	return &Searcher{logger: logger}
}

// Score tokenizes the corpus and the query and returns passages with a
// positive BM25 score, descending. Ties keep corpus order so ranking is
// deterministic. If the segmenter cannot load, an empty list is returned
// and hybrid search degrades to vector-only.
func (s *Searcher) Score(ctx context.Context, query string, corpus []domain.Passage) ([]domain.ScoredPassage, error) {
	if len(corpus) == 0 {
		return nil, nil
	}
	s.once.Do(func() {
		s.loadErr = s.seg.LoadDict()
	})
	if s.loadErr != nil {
		s.logger.Warn("lexical_backend_unavailable",
			slog.String("error", s.loadErr.Error()))
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := s.tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	docs := make([][]string, len(corpus))
	totalLen := 0
	for i, p := range corpus {
		docs[i] = s.tokenize(p.Content)
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		return nil, nil
	}

	// Document frequency per query term.
	df := make(map[string]int, len(queryTerms))
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, term := range doc {
			seen[term] = true
		}
		for _, term := range queryTerms {
			if seen[term] {
				df[term]++
			}
		}
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, freq := range df {
		idf[term] = math.Log((n-float64(freq)+0.5)/(float64(freq)+0.5) + 1)
	}

	var scored []domain.ScoredPassage
	for i, doc := range docs {
		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		var score float64
		norm := k1 * (1 - b + b*float64(len(doc))/avgLen)
		for _, term := range queryTerms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			score += idf[term] * f * (k1 + 1) / (f + norm)
		}
		if score > 0 {
			scored = append(scored, domain.ScoredPassage{
				Passage: corpus[i],
				Score:   score,
				Kind:    domain.ScoreLexical,
			})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	s.logger.Debug("bm25_scored",
		slog.Int("corpus_size", len(corpus)),
		slog.Int("hit_count", len(scored)))
	return scored, nil
}

// tokenize segments text and keeps lowercased tokens that carry at least one
// letter or digit.
func (s *Searcher) tokenize(text string) []string {
	var terms []string
	for _, token := range s.seg.CutSearch(text, true) {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" || !hasWordRune(token) {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

var _ domain.LexicalSearcher = (*Searcher)(nil)
