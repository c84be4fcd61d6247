package db

// DefaultVectorField is the hash field holding the embedding blob.
const DefaultVectorField = "vector"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // default DefaultVectorField
	Vector       []float32
	K            int
	ReturnFields []string
}

// Field returns the vector field name, applying the default.
func (q *KNNQuery) Field() string {
	if q.VectorField == "" {
		return DefaultVectorField
	}
	return q.VectorField
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is cosine similarity in [0,1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
