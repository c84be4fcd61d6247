package db

import (
	"errors"
	"testing"
)

func TestIndexBuilder_Chunks(t *testing.T) {
	idx, err := NewIndex("kb:doc1").
		Prefix("kb:doc1:").
		Text("text").
		Tag("source").
		Numeric("start_offset").
		VectorHNSW("vector", 1536, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idx.Fields) != 4 {
		t.Fatalf("fields count = %d, want 4", len(idx.Fields))
	}
	vf := idx.VectorField()
	if vf == nil || vf.Name != "vector" || vf.VectorDim != 1536 || vf.VectorAlgo != VectorHNSW {
		t.Errorf("unexpected vector field %+v", vf)
	}
}

func TestIndexDefinition_Validate(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
	}{
		{"empty name", NewIndex("").Text("t")},
		{"bad name", NewIndex("kb doc").Text("t")},
		{"no fields", NewIndex("kb")},
		{"duplicate", NewIndex("kb").Text("t").Tag("t")},
		{"zero dim", NewIndex("kb").VectorHNSW("v", 0, DistanceCosine, 0, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.b.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"kb:doc_1-a": true,
		"":           false,
		"a b":        false,
		"a.txt":      false,
	} {
		if got := IsValidIdentifier(s); got != want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestVectorBytes_RoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := BytesToVector(VectorToBytes(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("component %d = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := BytesToVector("abc"); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestError_Unwrap(t *testing.T) {
	err := &Error{Op: OpSearch, Err: ErrIndexNotFound}
	if !errors.Is(err, ErrIndexNotFound) {
		t.Error("expected errors.Is to see through db.Error")
	}
	if err.Error() != "FT.SEARCH: db: index not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
