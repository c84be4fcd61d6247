package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/kbchat/internal/domain"
)

func newTestSearcher(t *testing.T, h http.HandlerFunc) *Searcher {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	s, err := NewSearcher(context.Background(), Config{
		APIKey:     "key",
		EngineID:   "cx-1",
		Endpoint:   server.URL + "/",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearcher_Search(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("cx") != "cx-1" || q.Get("q") != "go generics" || q.Get("num") != "1" {
			t.Errorf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"title": "Generics", "link": "https://go.dev/doc/tutorial/generics", "snippet": "Tutorial"},
				{"title": "no link"},
			},
		})
	})

	got, err := s.Search(context.Background(), "go generics", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Link != "https://go.dev/doc/tutorial/generics" || got[0].Title != "Generics" {
		t.Errorf("unexpected results %+v", got)
	}
}

func TestSearcher_APIError(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 403, "message": "API key not valid"},
		})
	})

	_, err := s.Search(context.Background(), "q", 1)
	if !errors.Is(err, domain.ErrSearchUnavailable) {
		t.Fatalf("expected ErrSearchUnavailable, got %v", err)
	}
}

func TestNewSearcher_RequiresCredentials(t *testing.T) {
	_, err := NewSearcher(context.Background(), Config{APIKey: "key"})
	if !errors.Is(err, domain.ErrSearchUnavailable) {
		t.Fatalf("expected ErrSearchUnavailable, got %v", err)
	}
}
