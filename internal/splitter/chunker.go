package splitter

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, then single runes.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// LengthFunc measures a piece of text in the unit chunk sizes are expressed in.
type LengthFunc func(string) int

// RuneLength counts characters.
func RuneLength(s string) int { return utf8.RuneCountInString(s) }

// Span is a chunk of the source text. Start and End are byte offsets, End exclusive.
type Span struct {
	Text  string
	Start int
	End   int
}

// ChunkerConfig configures a Chunker.
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string   // default DefaultSeparators
	Length       LengthFunc // default RuneLength
}

// Chunker splits text recursively on a list of separators and merges the pieces
// back into chunks of at most ChunkSize with up to ChunkOverlap carried over.
// Separators stay attached to the end of the piece they terminate, so chunks are
// always verbatim substrings of the input and carry exact offsets.
type Chunker struct {
	size       int
	overlap    int
	separators []string
	length     LengthFunc
}

// NewChunker validates the configuration and creates a Chunker.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	if seps[len(seps)-1] != "" {
		return nil, errors.New("separator list must end with the empty separator")
	}
	length := cfg.Length
	if length == nil {
		length = RuneLength
	}
	return &Chunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap, separators: seps, length: length}, nil
}

// ChunkSize returns the configured upper bound.
func (c *Chunker) ChunkSize() int { return c.size }

// ChunkOverlap returns the configured overlap.
func (c *Chunker) ChunkOverlap() int { return c.overlap }

// Split returns the chunks of text in source order.
func (c *Chunker) Split(text string) []Span {
	return c.split(text, 0, c.separators)
}

// SplitText returns only the chunk texts.
func (c *Chunker) SplitText(text string) []string {
	spans := c.Split(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

func (c *Chunker) split(text string, base int, separators []string) []Span {
	sep, rest := pickSeparator(text, separators)
	pieces := splitKeep(text, base, sep)

	var out, good []Span
	for _, p := range pieces {
		if c.length(p.Text) < c.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, c.hardSlice(p)...)
			continue
		}
		out = append(out, c.split(p.Text, p.Start, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge packs contiguous pieces into chunks no longer than size. After a chunk is
// emitted, pieces are dropped from its head until what remains fits the overlap.
func (c *Chunker) merge(pieces []Span) []Span {
	var (
		docs  []Span
		cur   []Span
		total int
	)
	for _, p := range pieces {
		l := c.length(p.Text)
		if total+l > c.size && len(cur) > 0 {
			if d, ok := joinSpans(cur); ok {
				docs = append(docs, d)
			}
			for len(cur) > 0 && (total > c.overlap || total+l > c.size) {
				total -= c.length(cur[0].Text)
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += l
	}
	if d, ok := joinSpans(cur); ok {
		docs = append(docs, d)
	}
	return docs
}

// hardSlice cuts a piece that no separator could break into size-bounded runs of runes.
func (c *Chunker) hardSlice(p Span) []Span {
	var out []Span
	start := 0
	for start < len(p.Text) {
		end := start
		for end < len(p.Text) {
			_, w := utf8.DecodeRuneInString(p.Text[end:])
			if end > start && c.length(p.Text[start:end+w]) > c.size {
				break
			}
			end += w
		}
		if d, ok := trimSpan(Span{Text: p.Text[start:end], Start: p.Start + start, End: p.Start + end}); ok {
			out = append(out, d)
		}
		start = end
	}
	return out
}

func pickSeparator(text string, separators []string) (string, []string) {
	for i, s := range separators {
		if s == "" {
			return "", nil
		}
		if strings.Contains(text, s) {
			return s, separators[i+1:]
		}
	}
	return "", nil
}

// splitKeep splits text after every occurrence of sep; "" splits into runes.
func splitKeep(text string, base int, sep string) []Span {
	var out []Span
	if sep == "" {
		for i, r := range text {
			w := utf8.RuneLen(r)
			if w < 0 {
				w = 1
			}
			out = append(out, Span{Text: text[i : i+w], Start: base + i, End: base + i + w})
		}
		return out
	}
	start := 0
	for {
		idx := strings.Index(text[start:], sep)
		if idx < 0 {
			break
		}
		end := start + idx + len(sep)
		out = append(out, Span{Text: text[start:end], Start: base + start, End: base + end})
		start = end
	}
	if start < len(text) {
		out = append(out, Span{Text: text[start:], Start: base + start, End: base + len(text)})
	}
	return out
}

func joinSpans(spans []Span) (Span, bool) {
	if len(spans) == 0 {
		return Span{}, false
	}
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Text)
	}
	return trimSpan(Span{Text: b.String(), Start: spans[0].Start, End: spans[len(spans)-1].End})
}

func trimSpan(s Span) (Span, bool) {
	left := strings.TrimLeftFunc(s.Text, unicode.IsSpace)
	s.Start += len(s.Text) - len(left)
	trimmed := strings.TrimRightFunc(left, unicode.IsSpace)
	s.End -= len(left) - len(trimmed)
	s.Text = trimmed
	return s, trimmed != ""
}
