package knowledge

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File describes an uploaded source file.
type File struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
}

// Entry is one registered knowledge base.
type Entry struct {
	Namespace        string `json:"namespace"`
	KnowledgeName    string `json:"knowledgeName"`
	ChunkSize        int    `json:"chunkSize"`
	ChunkSizeOverlap int    `json:"chunkSizeOverlap"`
	File             File   `json:"file"`
}

// Ref points a chat request at a knowledge base.
type Ref struct {
	Namespace        string `json:"namespace"`
	ChunkSize        int    `json:"chunkSize,omitempty"`
	ChunkSizeOverlap int    `json:"chunkSizeOverlap,omitempty"`
}

// NamespaceFromURL derives a namespace from an uploaded file location (its base name).
func NamespaceFromURL(url string) (string, error) {
	clean := strings.TrimSpace(url)
	if clean == "" {
		return "", fmt.Errorf("file url is required")
	}
	base := filepath.Base(filepath.FromSlash(clean))
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("file url %q has no file name", url)
	}
	return base, nil
}

// ExtensionFromURL returns the lower-case extension without the dot ("" when absent).
func ExtensionFromURL(url string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(url), "."))
}
