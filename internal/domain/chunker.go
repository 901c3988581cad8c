package domain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkerVersion identifies the chunking algorithm revision, so future
// changes can be tracked against already-indexed documents.
type ChunkerVersion string

const (
	// ChunkerVersionV1 is the recursive character splitter with overlap repair.
	ChunkerVersionV1 ChunkerVersion = "v1"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 600
	// DefaultChunkOverlap is the trailing context carried between chunks.
	DefaultChunkOverlap = 100
	// defaultMinChunkLength is the shortest span emitted standalone; shorter
	// spans are merged into a neighbor. Capped at half the chunk size so
	// small chunk sizes remain usable.
	defaultMinChunkLength = 20
)

// separators ordered coarse to fine, tuned for mixed CJK and Latin text.
// The empty string is the character-level fallback and must stay last.
var separators = []string{
	"\n\n",
	"\n",
	"。",
	"！",
	"？",
	"；",
	". ",
	"! ",
	"? ",
	"; ",
	"，",
	", ",
	" ",
	"",
}

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(` {2,}`)
)

// Chunker splits document text into overlapping passages ready for indexing.
type Chunker interface {
	Split(text string) []string
	Version() ChunkerVersion
}

type recursiveChunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkLen  int
}

// NewChunker creates a Chunker with the given size and overlap in runes.
// Non-positive sizes fall back to defaults; an overlap at or above the chunk
// size is a caller configuration error and is capped at chunkSize-1.
func NewChunker(chunkSize, chunkOverlap int) Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	minLen := defaultMinChunkLength
	if minLen > chunkSize/2 {
		minLen = chunkSize / 2
	}
	if minLen < 1 {
		minLen = 1
	}
	return &recursiveChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		minChunkLen:  minLen,
	}
}

func (c *recursiveChunker) Version() ChunkerVersion {
	return ChunkerVersionV1
}

// Split normalizes whitespace, recursively splits on separators from coarse
// to fine, then post-processes the spans: noise-only spans are dropped,
// spans below the minimum length are merged into a neighbor, and every
// adjacent pair is checked for a shared boundary run so the configured
// overlap survives hard separator boundaries.
//
// The same (text, size, overlap) input always yields the same output.
func (c *recursiveChunker) Split(text string) []string {
	cleaned := normalizeWhitespace(text)
	if cleaned == "" {
		return nil
	}

	raw := c.splitRecursive(cleaned, separators)

	spans, ok := c.postProcess(raw)
	if !ok {
		// Post-processing failed on malformed input; serve the raw spans
		// rather than failing the caller.
		spans = spans[:0]
		for _, s := range raw {
			if t := strings.TrimSpace(s); t != "" {
				spans = append(spans, t)
			}
		}
	}
	return spans
}

func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// splitRecursive splits text on the first separator present, recursing with
// finer separators into any piece still longer than the chunk size.
func (c *recursiveChunker) splitRecursive(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, s := range seps {
		if s == "" {
			sep = ""
			rest = nil
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	if sep == "" {
		// Character-level fallback: no structural separator left.
		if utf8.RuneCountInString(text) <= c.chunkSize {
			return []string{text}
		}
		return c.hardSplit(text)
	}

	pieces := splitKeepSeparator(text, sep)

	var final []string
	var fitting []string
	for _, piece := range pieces {
		if utf8.RuneCountInString(piece) <= c.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			final = append(final, c.mergeSplits(fitting)...)
			fitting = nil
		}
		final = append(final, c.splitRecursive(piece, rest)...)
	}
	if len(fitting) > 0 {
		final = append(final, c.mergeSplits(fitting)...)
	}
	return final
}

// splitKeepSeparator splits on sep, keeping the separator attached to the
// end of the preceding piece so no text is lost.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeSplits accumulates pieces into chunks of at most chunkSize runes,
// carrying up to chunkOverlap runes of trailing pieces into the next chunk.
func (c *recursiveChunker) mergeSplits(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	flush := func() {
		if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
			chunks = append(chunks, doc)
		}
	}

	for _, piece := range pieces {
		pl := utf8.RuneCountInString(piece)
		if total+pl > c.chunkSize && len(window) > 0 {
			flush()
			// Shrink the window until it fits within the overlap and
			// leaves room for the incoming piece.
			for len(window) > 0 && (total > c.chunkOverlap || total+pl > c.chunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += pl
	}
	if len(window) > 0 {
		flush()
	}
	return chunks
}

// hardSplit cuts text into fixed windows of chunkSize runes stepping by
// chunkSize-chunkOverlap, the unconditional last-resort splitter.
func (c *recursiveChunker) hardSplit(text string) []string {
	runes := []rune(text)
	step := c.chunkSize - c.chunkOverlap
	if step < 1 {
		step = 1
	}
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// postProcess trims spans, drops separator-only noise, merges spans shorter
// than the minimum length into a neighbor, and repairs missing boundary
// overlap. The bool result is false when processing panicked on malformed
// input, in which case the caller falls back to the raw spans.
func (c *recursiveChunker) postProcess(raw []string) (result []string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			result, ok = nil, false
		}
	}()

	var spans []string
	for _, s := range raw {
		t := strings.TrimSpace(s)
		if t == "" || !hasSubstance(t) {
			continue
		}
		spans = append(spans, t)
	}

	spans = c.mergeShortSpans(spans)
	c.repairOverlap(spans)
	return spans, true
}

// hasSubstance reports whether the span contains at least one letter or
// digit, including CJK ideographs. Separator-only spans fail this test.
func hasSubstance(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// mergeShortSpans folds spans shorter than the minimum length into the next
// real span, or into the previous one when at the tail.
func (c *recursiveChunker) mergeShortSpans(spans []string) []string {
	var out []string
	carry := ""
	for _, span := range spans {
		if carry != "" {
			span = carry + " " + span
			carry = ""
		}
		if utf8.RuneCountInString(span) < c.minChunkLen {
			carry = span
			continue
		}
		out = append(out, span)
	}
	if carry != "" {
		if len(out) > 0 {
			out[len(out)-1] = out[len(out)-1] + " " + carry
		} else {
			out = append(out, carry)
		}
	}
	return out
}

// repairOverlap guarantees a shared character run between adjacent spans.
// When a pair shares no suffix/prefix run of any length up to the overlap,
// the earlier span's tail is spliced onto the front of the later span.
func (c *recursiveChunker) repairOverlap(spans []string) {
	if c.chunkOverlap == 0 {
		return
	}
	for i := 1; i < len(spans); i++ {
		prev := []rune(spans[i-1])
		if sharedBoundaryRun(prev, []rune(spans[i]), c.chunkOverlap) {
			continue
		}
		tail := prev
		if len(tail) > c.chunkOverlap {
			tail = tail[len(tail)-c.chunkOverlap:]
		}
		spans[i] = string(tail) + spans[i]
	}
}

// sharedBoundaryRun reports whether any suffix of prev within the overlap
// window is a prefix of next.
func sharedBoundaryRun(prev, next []rune, overlap int) bool {
	max := overlap
	if len(prev) < max {
		max = len(prev)
	}
	if len(next) < max {
		max = len(next)
	}
	for l := max; l >= 1; l-- {
		if string(prev[len(prev)-l:]) == string(next[:l]) {
			return true
		}
	}
	return false
}
