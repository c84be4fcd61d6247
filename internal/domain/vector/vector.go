package vector

import (
	"errors"
	"math"

	"github.com/kailas-cloud/kbchat/internal/domain/document"
)

// TextField is the fixed field name chunk text is stored under.
const TextField = "text"

// Record is one embedded chunk stored in a namespace.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata document.Metadata
}

// Match is a retrieved record with its similarity score (higher is closer).
type Match struct {
	ID       string
	Text     string
	Metadata document.Metadata
	Score    float64
}

// Document converts the match back to a chunk document.
func (m Match) Document() document.Document {
	return document.Document{PageContent: m.Text, Metadata: m.Metadata}
}

// CosineSimilarity returns the cosine of the angle between a and b.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New("vector length mismatch")
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
