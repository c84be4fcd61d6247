package document

import (
	"strconv"
	"strings"
)

// ScopeSeparator joins scope keys and the trailing offset in metadata strings.
const ScopeSeparator = ">"

// Document is a unit of text produced by a loader or a splitter.
type Document struct {
	PageContent string   `json:"pageContent"`
	Metadata    Metadata `json:"metadata"`
}

// Metadata carries source location and, for chunks, structural position.
type Metadata struct {
	Source     string            `json:"source,omitempty"`
	Loc        Location          `json:"loc"`
	StartScope string            `json:"startScope,omitempty"`
	EndScope   string            `json:"endScope,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Location points into the source file.
type Location struct {
	Lines      *LineRange `json:"lines,omitempty"`
	PageNumber int        `json:"pageNumber,omitempty"`
	Line       int        `json:"line,omitempty"` // csv row
}

// LineRange is an inclusive 1-based line span.
type LineRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// StartOffset returns the absolute offset trailing StartScope; missing or unparsable yields 0.
func (m Metadata) StartOffset() int {
	s, err := ParseScope(m.StartScope)
	if err != nil {
		return 0
	}
	return s.Offset
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Loc.Lines != nil {
		lr := *m.Loc.Lines
		out.Loc.Lines = &lr
	}
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Scope is the chain of object keys enclosing an offset, outermost first.
type Scope struct {
	Keys   []string
	Offset int
}

// String encodes the scope as "key1>key2>offset"; an empty chain encodes as ">offset".
func (s Scope) String() string {
	return strings.Join(s.Keys, ScopeSeparator) + ScopeSeparator + strconv.Itoa(s.Offset)
}

// Path returns the keys joined with ">" without the offset.
func (s Scope) Path() string {
	return strings.Join(s.Keys, ScopeSeparator)
}

// ParseScope decodes a string produced by Scope.String.
func ParseScope(raw string) (Scope, error) {
	idx := strings.LastIndex(raw, ScopeSeparator)
	if idx < 0 {
		off, err := strconv.Atoi(raw)
		if err != nil {
			return Scope{}, err
		}
		return Scope{Offset: off}, nil
	}
	off, err := strconv.Atoi(raw[idx+1:])
	if err != nil {
		return Scope{}, err
	}
	var keys []string
	if idx > 0 {
		keys = strings.Split(raw[:idx], ScopeSeparator)
	}
	return Scope{Keys: keys, Offset: off}, nil
}
