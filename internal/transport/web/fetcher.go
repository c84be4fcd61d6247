package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/chat"
)

// Fetcher downloads pages and extracts their visible text.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBody   int64
	logger    *zap.Logger
}

// Config holds fetch limits.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxBody   int64 // bytes
	Client    *http.Client
	Logger    *zap.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 2 << 20
	}
	return &Fetcher{
		client:    client,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// Fetch downloads url and returns its text. The whole call, body read
// included, is bounded by the configured timeout.
func (f *Fetcher) Fetch(ctx context.Context, url string) (chat.Page, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return chat.Page{}, fmt.Errorf("%w: %s: %v", domain.ErrWebFetch, url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return chat.Page{}, fmt.Errorf("%w: %s: timed out after %s", domain.ErrWebFetch, url, f.timeout)
		}
		return chat.Page{}, fmt.Errorf("%w: %s: %v", domain.ErrWebFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chat.Page{}, fmt.Errorf("%w: %s: status %d", domain.ErrWebFetch, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return chat.Page{}, fmt.Errorf("%w: %s: read body: %v", domain.ErrWebFetch, url, err)
	}

	page := chat.Page{URL: url}
	if isHTML(resp.Header.Get("Content-Type"), body) {
		page.Title, page.Text = ExtractText(string(body))
	} else {
		page.Text = strings.TrimSpace(string(body))
	}
	f.logger.Debug("Fetched page",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return page, nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			return mt == "text/html" || mt == "application/xhtml+xml"
		}
	}
	return strings.HasPrefix(http.DetectContentType(body), "text/html")
}
