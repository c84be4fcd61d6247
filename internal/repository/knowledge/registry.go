package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
)

// Registry is the knowledge.json list of ingested knowledge bases.
// Writes go through a temp file and rename; the mutex serialises
// read-modify-write inside one process only.
type Registry struct {
	path string
	mu   sync.Mutex
}

// NewRegistry creates a registry backed by path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// List returns all entries in insertion order, creating an empty list file when absent.
func (r *Registry) List() ([]knowledge.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(true)
}

// Register appends an entry.
func (r *Registry) Register(entry knowledge.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.read(false)
	if err != nil {
		return err
	}
	return r.write(append(entries, entry))
}

// Remove drops every entry of namespace and reports how many were removed.
func (r *Registry) Remove(namespace string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.read(false)
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Namespace != namespace {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, r.write(kept)
}

func (r *Registry) read(create bool) ([]knowledge.Entry, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		if create {
			if err := r.write([]knowledge.Entry{}); err != nil {
				return nil, err
			}
		}
		return []knowledge.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}

	entries := []knowledge.Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return entries, nil
}

func (r *Registry) write(entries []knowledge.Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode knowledge list: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}
