// Package memory is an in-process db.Store. KNN is brute-force cosine over the
// hashes an index covers; it backs local runs, tests and per-request stores.
package memory

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/kbchat/internal/db"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
)

var _ db.Store = (*Store)(nil)

type kvEntry struct {
	value   []byte
	expires time.Time // zero means no expiry
}

// Store keeps everything in maps guarded by one RWMutex.
type Store struct {
	mu      sync.RWMutex
	hashes  map[string]map[string]string
	kv      map[string]kvEntry
	indexes map[string]*db.IndexDefinition
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		hashes:  make(map[string]map[string]string),
		kv:      make(map[string]kvEntry),
		indexes: make(map[string]*db.IndexDefinition),
		now:     time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// HSetMulti merges fields into each hash.
func (s *Store) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		h, ok := s.hashes[item.Key]
		if !ok {
			h = make(map[string]string, len(item.Fields))
			s.hashes[item.Key] = h
		}
		for k, v := range item.Fields {
			h[k] = v
		}
	}
	return nil
}

// HGetAll returns a copy of the hash.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

// Del removes hashes and plain values.
func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.hashes, k)
		delete(s.kv, k)
	}
	return nil
}

// Scan returns keys matching a glob pattern (path.Match syntax) in sorted order.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.hashes {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	for k := range s.kv {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns a plain value; expired values are reported missing.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.kv[key]
	if !ok || (!e.expires.IsZero() && !s.now().Before(e.expires)) {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a plain value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a plain value; ttl <= 0 never expires.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := kvEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.kv[key] = e
	return nil
}

// CreateIndex registers an index definition.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	cp := *def
	s.indexes[def.Name] = &cp
	return nil
}

// DropIndex forgets the index and, with deleteDocs, every hash under its prefixes.
func (s *Store) DropIndex(_ context.Context, name string, deleteDocs bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.indexes[name]
	if !ok {
		return db.ErrIndexNotFound
	}
	delete(s.indexes, name)
	if deleteDocs {
		for k := range s.hashes {
			if covers(def, k) {
				delete(s.hashes, k)
			}
		}
	}
	return nil
}

// IndexExists reports whether the index is registered.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[name]
	return ok, nil
}

// SearchKNN scores every covered hash that carries a vector of the right dimension.
func (s *Store) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.indexes[q.IndexName]
	if !ok {
		return nil, db.ErrIndexNotFound
	}
	if q.K <= 0 {
		return &db.SearchResult{}, nil
	}

	var entries []db.SearchEntry
	for key, h := range s.hashes {
		if !covers(def, key) {
			continue
		}
		blob, ok := h[q.Field()]
		if !ok {
			continue
		}
		v, err := db.BytesToVector(blob)
		if err != nil {
			continue
		}
		sim, err := vector.CosineSimilarity(q.Vector, v)
		if err != nil {
			continue
		}
		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  max(0, sim),
			Fields: project(h, q.Field(), q.ReturnFields),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > q.K {
		entries = entries[:q.K]
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

// SearchCount counts the hashes an index covers.
func (s *Store) SearchCount(_ context.Context, index string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.indexes[index]
	if !ok {
		return 0, db.ErrIndexNotFound
	}
	n := 0
	for k := range s.hashes {
		if covers(def, k) {
			n++
		}
	}
	return n, nil
}

func covers(def *db.IndexDefinition, key string) bool {
	if len(def.Prefixes) == 0 {
		return true
	}
	for _, p := range def.Prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func project(h map[string]string, vectorField string, fields []string) map[string]string {
	out := make(map[string]string)
	if len(fields) == 0 {
		for k, v := range h {
			if k != vectorField {
				out[k] = v
			}
		}
		return out
	}
	for _, f := range fields {
		if v, ok := h[f]; ok {
			out[f] = v
		}
	}
	return out
}
