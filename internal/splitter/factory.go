package splitter

import (
	"fmt"

	"go.uber.org/zap"
)

// Factory builds per-request Splitters that share a length function, sink and logger.
type Factory struct {
	Length LengthFunc   // nil counts runes
	Sink   MetadataSink // nil disables the metadata dump
	Logger *zap.Logger
}

// New creates a Splitter for one chunk size and overlap.
func (f Factory) New(chunkSize, chunkOverlap int) (*Splitter, error) {
	c, err := NewChunker(ChunkerConfig{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Length:       f.Length,
	})
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	return New(c, f.Sink, f.Logger), nil
}
