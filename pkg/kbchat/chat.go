package kbchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	domchat "github.com/kailas-cloud/kbchat/internal/domain/chat"
	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
)

// ErrNoChatModel is returned by Chat when the client was built without WithChatModel.
var ErrNoChatModel = errors.New("kbchat: chat model not configured (use WithChatModel)")

// Chat answers the last message of req, writing tokens to w as they arrive.
// A write error cancels generation.
func (c *Client) Chat(ctx context.Context, req ChatRequest, w io.Writer) (err error) {
	start := time.Now()
	tokens := 0
	defer func() { c.obs.observe("chat", start, err, "tokens", tokens) }()

	if c.chatSvc == nil {
		return ErrNoChatModel
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := c.chatSvc.Stream(ctx, toDomainRequest(req))
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	var werr error
	for tok := range st.Tokens() {
		if werr != nil {
			continue
		}
		if _, werr = io.WriteString(w, tok); werr != nil {
			cancel()
			continue
		}
		tokens++
	}
	if werr != nil {
		return fmt.Errorf("write token: %w", werr)
	}
	if serr := st.Err(); serr != nil {
		return fmt.Errorf("chat: %w", serr)
	}
	return nil
}

func toDomainRequest(req ChatRequest) domchat.Request {
	out := domchat.Request{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		Messages:    make([]domchat.Message, len(req.Messages)),
	}
	for i, m := range req.Messages {
		out.Messages[i] = domchat.Message{Role: domchat.Role(m.Role), Content: m.Content}
	}
	if req.Namespace != "" {
		out.Knowledge = &knowledge.Ref{Namespace: req.Namespace}
	}
	return out
}
