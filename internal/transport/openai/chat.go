package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/chat"
)

// ChatModel streams chat completions from an OpenAI-compatible endpoint.
type ChatModel struct {
	client   *openai.Client
	provider string
	logger   *zap.Logger
}

// ChatConfig holds one chat provider.
type ChatConfig struct {
	APIKey   string
	BaseURL  string
	Provider string
	Logger   *zap.Logger
}

// NewChatModel creates a streaming chat client.
func NewChatModel(cfg *ChatConfig) *ChatModel {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatModel{
		client:   openai.NewClientWithConfig(clientConfig(cfg.APIKey, cfg.BaseURL)),
		provider: cfg.Provider,
		logger:   logger,
	}
}

// Stream sends every content delta to tokens until the model finishes.
// It returns nil on normal completion, a *domain.UpstreamModelError when the
// provider rejects the call, or ctx.Err() when the consumer goes away.
// tokens is never closed here.
func (m *ChatModel) Stream(ctx context.Context, c chat.Completion, tokens chan<- string) error {
	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Temperature: c.Temperature,
		Stream:      true,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(c.Messages)),
	}
	for _, msg := range c.Messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return upstreamError(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return upstreamError(err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			select {
			case tokens <- choice.Delta.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// upstreamError converts go-openai errors into the provider error body.
func upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		out := &domain.UpstreamModelError{
			Message: apiErr.Message,
			Type:    apiErr.Type,
			Status:  apiErr.HTTPStatusCode,
		}
		if apiErr.Param != nil {
			out.Param = *apiErr.Param
		}
		if apiErr.Code != nil {
			out.Code = fmt.Sprint(apiErr.Code)
		}
		return out
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = strings.TrimSpace(string(reqErr.Body))
		}
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &domain.UpstreamModelError{
			Message: msg,
			Type:    "request_error",
			Status:  reqErr.HTTPStatusCode,
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.UpstreamModelError{Message: err.Error(), Type: "connection_error"}
}

// Route sends models whose id contains Match to Model.
type Route struct {
	Match string
	Model *ChatModel
}

// Router picks a provider by model id; the first matching route wins.
type Router struct {
	routes   []Route
	fallback *ChatModel
}

// NewRouter creates a router. fallback serves every model no route matches.
func NewRouter(fallback *ChatModel, routes ...Route) *Router {
	return &Router{routes: routes, fallback: fallback}
}

// Stream dispatches to the provider selected for c.Model.
func (r *Router) Stream(ctx context.Context, c chat.Completion, tokens chan<- string) error {
	return r.For(c.Model).Stream(ctx, c, tokens)
}

// For returns the provider serving model.
func (r *Router) For(model string) *ChatModel {
	for _, rt := range r.routes {
		if strings.Contains(model, rt.Match) {
			return rt.Model
		}
	}
	return r.fallback
}
