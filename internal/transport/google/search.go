package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/chat"
)

// Searcher queries a Google Programmable Search Engine.
type Searcher struct {
	svc      *customsearch.Service
	engineID string
	logger   *zap.Logger
}

// Config holds Custom Search credentials. Endpoint and HTTPClient are for tests.
type Config struct {
	APIKey     string
	EngineID   string
	Endpoint   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewSearcher creates a Custom Search client.
func NewSearcher(ctx context.Context, cfg Config) (*Searcher, error) {
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil, fmt.Errorf("api key and engine id are required: %w", domain.ErrSearchUnavailable)
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch service: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{svc: svc, engineID: cfg.EngineID, logger: logger}, nil
}

// Search returns up to num results for query. Google caps num at 10.
func (s *Searcher) Search(ctx context.Context, query string, num int) ([]chat.SearchResult, error) {
	if num < 1 {
		num = 1
	}
	if num > 10 {
		num = 10
	}
	res, err := s.svc.Cse.List().Cx(s.engineID).Q(query).Num(int64(num)).Context(ctx).Do()
	if err != nil {
		return nil, searchError(err)
	}

	out := make([]chat.SearchResult, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil || item.Link == "" {
			continue
		}
		out = append(out, chat.SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	s.logger.Debug("Web search done", zap.String("query", query), zap.Int("results", len(out)))
	return out, nil
}

func searchError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("custom search %d: %s: %w", gerr.Code, gerr.Message, domain.ErrSearchUnavailable)
	}
	return fmt.Errorf("custom search: %v: %w", err, domain.ErrSearchUnavailable)
}
