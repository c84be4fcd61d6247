package splitter

import (
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain/document"
)

// MetadataSink receives the metadata of every chunk produced by one SplitDocuments call.
type MetadataSink interface {
	WriteMetadata(metas []document.Metadata) error
}

// Splitter turns loaded documents into chunk documents. Object-shaped content
// (first non-space rune is '{') is parsed and every chunk is annotated with the
// key scopes at its boundaries; other content is chunked with position metadata only.
type Splitter struct {
	chunker *Chunker
	sink    MetadataSink
	logger  *zap.Logger
}

// New creates a Splitter. sink may be nil.
func New(chunker *Chunker, sink MetadataSink, logger *zap.Logger) *Splitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Splitter{chunker: chunker, sink: sink, logger: logger}
}

// SplitDocuments splits every document and returns the chunks in order.
// A malformed object-shaped document fails the whole call.
func (s *Splitter) SplitDocuments(docs []document.Document) ([]document.Document, error) {
	var out []document.Document
	for i := range docs {
		var (
			chunks []document.Document
			err    error
		)
		if LooksLikeObject(docs[i].PageContent) {
			chunks, err = s.SplitObject(docs[i])
		} else {
			chunks = s.SplitPlain(docs[i])
		}
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", docs[i].Metadata.Source, err)
		}
		out = append(out, chunks...)
	}

	if s.sink != nil {
		metas := make([]document.Metadata, len(out))
		for i := range out {
			metas[i] = out[i].Metadata
		}
		if err := s.sink.WriteMetadata(metas); err != nil {
			s.logger.Warn("Failed to write chunk metadata", zap.Error(err))
		}
	}
	return out, nil
}

// SplitObject splits an object-shaped document and wraps every chunk with its scopes.
func (s *Splitter) SplitObject(doc document.Document) ([]document.Document, error) {
	tree, err := ParseObject(doc.PageContent)
	if err != nil {
		return nil, err
	}

	spans := s.chunker.Split(doc.PageContent)
	out := make([]document.Document, 0, len(spans))
	for i, span := range spans {
		start := document.Scope{Offset: span.Start}
		// The first chunk has no keys but keeps its real end offset.
		end := document.Scope{Offset: span.End}
		if i > 0 {
			start.Keys = tree.ScopeAt(span.Start)
			end.Keys = tree.ScopeAt(span.End)
		}

		meta := doc.Metadata.Clone()
		meta.Loc.Lines = lineRange(doc.PageContent, span)
		meta.StartScope = start.String()
		meta.EndScope = end.String()

		out = append(out, document.Document{
			PageContent: WrapScopes(start, end, span.Text),
			Metadata:    meta,
		})
	}
	return out, nil
}

// SplitPlain splits a non-object document; scopes carry offsets only.
func (s *Splitter) SplitPlain(doc document.Document) []document.Document {
	spans := s.chunker.Split(doc.PageContent)
	out := make([]document.Document, 0, len(spans))
	for _, span := range spans {
		meta := doc.Metadata.Clone()
		meta.Loc.Lines = lineRange(doc.PageContent, span)
		meta.StartScope = document.Scope{Offset: span.Start}.String()
		meta.EndScope = document.Scope{Offset: span.End}.String()
		out = append(out, document.Document{PageContent: span.Text, Metadata: meta})
	}
	return out
}

// WrapScopes renders chunk text between its start and end scope markers.
func WrapScopes(start, end document.Scope, text string) string {
	return `>>>startScopeStr:"` + start.Path() + `"<<< content:` + text +
		` >>>endScopeStr:"` + end.Path() + `"<<<`
}

// LooksLikeObject reports whether content should go through the object splitter.
func LooksLikeObject(content string) bool {
	trimmed := strings.TrimLeftFunc(content, unicode.IsSpace)
	return strings.HasPrefix(trimmed, "{")
}

// lineRange counts newlines before the span (first line is 1) and inside it.
// From is absolute, so overlapping spans may share lines.
func lineRange(text string, span Span) *document.LineRange {
	from := 1 + strings.Count(text[:span.Start], "\n")
	return &document.LineRange{From: from, To: from + strings.Count(span.Text, "\n")}
}
