package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/db/memory"
	"github.com/kailas-cloud/kbchat/internal/domain"
	domchat "github.com/kailas-cloud/kbchat/internal/domain/chat"
	"github.com/kailas-cloud/kbchat/internal/domain/document"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
	"github.com/kailas-cloud/kbchat/internal/metrics"
	"github.com/kailas-cloud/kbchat/internal/repository/chunk"
	"github.com/kailas-cloud/kbchat/internal/splitter"
)

// Retrieval parameters of the web routes.
const (
	PageChunkSize    = 1000
	PageChunkOverlap = 200
	PageTopK         = 4

	SearchChunkSize = 400
	SearchTopK      = 8
	SourceMaxRunes  = 2000

	ephemeralNamespace = "ephemeral"
)

// Deps are the collaborators of the chat service. Fetcher and Searcher may be
// nil, which makes the corresponding route fail with ErrWebFetch or
// ErrSearchUnavailable.
type Deps struct {
	Generator Generator
	Embedder  domain.Embedder
	Store     VectorStore
	Fetcher   PageFetcher
	Searcher  Searcher
	Splitters splitter.Factory
	// Ephemeral builds the throwaway store for page and search retrieval.
	// Defaults to an in-memory store.
	Ephemeral func() VectorStore
}

// Options tune prompting and retrieval.
type Options struct {
	TopK               int
	DefaultModel       string
	DefaultTemperature float32
	SystemPrompt       string
	KnowledgePrompt    string
	SearchResults      int
	FetchTimeout       time.Duration
	BufferSize         int
}

// Service answers chat requests by streaming model tokens.
type Service struct {
	deps   Deps
	opts   Options
	now    func() time.Time
	logger *zap.Logger
}

// New creates a chat Service.
func New(deps Deps, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Ephemeral == nil {
		deps.Ephemeral = func() VectorStore { return chunk.New(memory.NewStore(), chunk.Options{}) }
	}
	if opts.TopK <= 0 {
		opts.TopK = 6
	}
	if opts.SearchResults <= 0 {
		opts.SearchResults = 1
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	return &Service{deps: deps, opts: opts, now: time.Now, logger: logger}
}

// Stream validates the request, runs retrieval for its route and starts
// generation. Retrieval failures are returned directly; generation failures
// are reported by Stream.Err once the token channel is closed.
func (s *Service) Stream(ctx context.Context, req domchat.Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	cmd := domchat.ParseCommand(req.Question())
	if cmd.Route == domchat.RoutePlain && req.Knowledge != nil && strings.TrimSpace(req.Knowledge.Namespace) != "" {
		cmd.Route = domchat.RouteKnowledge
	}

	start := time.Now()
	completion, err := s.complete(ctx, req, cmd)
	if cmd.Route != domchat.RoutePlain {
		metrics.RetrievalDuration.WithLabelValues(string(cmd.Route)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		metrics.ChatStreamsTotal.WithLabelValues(string(cmd.Route), "error").Inc()
		return nil, err
	}

	fields := []zap.Field{
		zap.String("route", string(cmd.Route)),
		zap.String("model", completion.Model),
	}
	if cmd.Route == domchat.RouteKnowledge {
		fields = append(fields, zap.String("namespace", req.Knowledge.Namespace))
	}
	return s.start(ctx, cmd.Route, completion, fields), nil
}

func (s *Service) complete(ctx context.Context, req domchat.Request, cmd domchat.Command) (domchat.Completion, error) {
	c := domchat.Completion{Model: req.Model, Temperature: s.opts.DefaultTemperature}
	if c.Model == "" {
		c.Model = s.opts.DefaultModel
	}
	if req.Temperature != nil {
		c.Temperature = *req.Temperature
	}

	var err error
	switch cmd.Route {
	case domchat.RoutePage:
		c.Messages, err = s.pageMessages(ctx, cmd)
	case domchat.RouteSearch:
		c.Messages, err = s.searchMessages(ctx, cmd)
	case domchat.RouteKnowledge:
		c.Messages, err = s.knowledgeMessages(ctx, req)
	default:
		c.Messages = s.plainMessages(req)
	}
	return c, err
}

func (s *Service) plainMessages(req domchat.Request) []domchat.Message {
	prompt := req.Prompt
	if prompt == "" {
		prompt = s.opts.SystemPrompt
	}
	msgs := make([]domchat.Message, 0, len(req.Messages)+1)
	if prompt != "" {
		msgs = append(msgs, domchat.Message{Role: domchat.RoleSystem, Content: prompt})
	}
	return append(msgs, req.Messages...)
}

func (s *Service) knowledgeMessages(ctx context.Context, req domchat.Request) ([]domchat.Message, error) {
	question := req.Question()
	ns := req.Knowledge.Namespace

	emb, err := s.deps.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	matches, err := s.deps.Store.Query(ctx, ns, emb.Embedding, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", ns, err)
	}
	s.logger.Debug("Retrieved knowledge", zap.String("namespace", ns), zap.Int("matches", len(matches)))

	template := req.Prompt
	if template == "" {
		template = s.opts.KnowledgePrompt
	}
	return []domchat.Message{
		{Role: domchat.RoleSystem, Content: FillTemplate(template, JoinContext(RankByPosition(matches)))},
		{Role: domchat.RoleAssistant, Content: KnowledgeAck},
		{Role: domchat.RoleUser, Content: question},
	}, nil
}

func (s *Service) pageMessages(ctx context.Context, cmd domchat.Command) ([]domchat.Message, error) {
	if s.deps.Fetcher == nil {
		return nil, fmt.Errorf("%w: page fetching is disabled", domain.ErrWebFetch)
	}
	page, err := s.deps.Fetcher.Fetch(ctx, cmd.URL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(page.Text) == "" {
		return nil, fmt.Errorf("%w: %s has no text", domain.ErrWebFetch, cmd.URL)
	}

	matches, err := s.retrieveEphemeral(ctx, page.Text, PageChunkSize, PageChunkOverlap, cmd.Question, PageTopK)
	if err != nil {
		return nil, err
	}
	return []domchat.Message{
		{Role: domchat.RoleUser, Content: pagePrompt(cmd.Question, JoinContext(matches))},
	}, nil
}

func (s *Service) searchMessages(ctx context.Context, cmd domchat.Command) ([]domchat.Message, error) {
	if s.deps.Searcher == nil {
		return nil, fmt.Errorf("%w: search is not configured", domain.ErrSearchUnavailable)
	}
	results, err := s.deps.Searcher.Search(ctx, cmd.Question, s.opts.SearchResults)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no results for %q", domain.ErrSearchUnavailable, cmd.Question)
	}

	sources := s.fetchSources(ctx, results)
	matches, err := s.retrieveEphemeral(ctx, strings.Join(sources, "\n"), SearchChunkSize, 0, cmd.Question, SearchTopK)
	if err != nil {
		return nil, err
	}
	return []domchat.Message{
		{Role: domchat.RoleUser, Content: searchPrompt(s.now(), matches)},
		{Role: domchat.RoleAssistant, Content: KnowledgeAck},
		{Role: domchat.RoleUser, Content: cmd.Question},
	}, nil
}

// fetchSources downloads every result concurrently, each bounded by the fetch
// timeout. A failed or empty page falls back to the result snippet.
func (s *Service) fetchSources(ctx context.Context, results []domchat.SearchResult) []string {
	texts := make([]string, len(results))
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := results[i]
			texts[i] = r.Snippet
			if s.deps.Fetcher == nil || r.Link == "" {
				return
			}
			fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
			defer cancel()
			page, err := s.deps.Fetcher.Fetch(fctx, r.Link)
			if err != nil {
				s.logger.Warn("Source fetch failed", zap.String("url", r.Link), zap.Error(err))
				return
			}
			if text := strings.TrimSpace(page.Text); text != "" {
				texts[i] = truncateRunes(text, SourceMaxRunes)
			}
		}(i)
	}
	wg.Wait()

	out := texts[:0]
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

// retrieveEphemeral splits text, embeds the chunks into a throwaway store and
// returns the k chunks closest to question in similarity order.
func (s *Service) retrieveEphemeral(ctx context.Context, text string, size, overlap int, question string, k int) ([]vector.Match, error) {
	sp, err := s.deps.Splitters.New(size, overlap)
	if err != nil {
		return nil, err
	}
	chunks := sp.SplitPlain(document.Document{PageContent: text})
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks)+1)
	for i := range chunks {
		texts[i] = chunks[i].PageContent
	}
	texts[len(chunks)] = question
	res, err := domain.EmbedAll(ctx, s.deps.Embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embed sources: %w", err)
	}

	records := make([]vector.Record, len(chunks))
	for i := range chunks {
		records[i] = vector.Record{
			ID:       strconv.Itoa(i),
			Text:     chunks[i].PageContent,
			Vector:   res.Embeddings[i],
			Metadata: chunks[i].Metadata,
		}
	}
	store := s.deps.Ephemeral()
	if err := store.Upsert(ctx, ephemeralNamespace, records); err != nil {
		return nil, fmt.Errorf("index sources: %w", err)
	}
	return store.Query(ctx, ephemeralNamespace, res.Embeddings[len(chunks)], k)
}
