package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	domchat "github.com/kailas-cloud/kbchat/internal/domain/chat"
	"github.com/kailas-cloud/kbchat/internal/metrics"
)

// Stream is one in-flight generation. Tokens is closed when generation ends;
// Err then reports why.
type Stream struct {
	Route  domchat.Route
	tokens chan string
	done   chan struct{}
	err    error
	sent   int
}

// Tokens returns the bounded token channel.
func (s *Stream) Tokens() <-chan string { return s.tokens }

// Err blocks until generation ended and returns its error, if any.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Sent blocks until generation ended and returns the number of tokens delivered.
func (s *Stream) Sent() int {
	<-s.done
	return s.sent
}

func (s *Service) start(ctx context.Context, route domchat.Route, c domchat.Completion, fields []zap.Field) *Stream {
	st := &Stream{
		Route:  route,
		tokens: make(chan string, s.opts.BufferSize),
		done:   make(chan struct{}),
	}
	raw := make(chan string, s.opts.BufferSize)
	var genErr error
	go func() {
		genErr = s.deps.Generator.Stream(ctx, c, raw)
		close(raw)
	}()

	go func() {
		defer close(st.done)
		defer close(st.tokens)

		forwarding := true
		for tok := range raw {
			if !forwarding {
				continue
			}
			select {
			case st.tokens <- tok:
				st.sent++
			case <-ctx.Done():
				forwarding = false
			}
		}
		st.err = genErr
		if st.err == nil && ctx.Err() != nil {
			st.err = ctx.Err()
		}
		s.finish(route, st, fields)
	}()
	return st
}

func (s *Service) finish(route domchat.Route, st *Stream, fields []zap.Field) {
	metrics.ChatTokensTotal.WithLabelValues(string(route)).Add(float64(st.sent))
	fields = append(fields, zap.Int("tokens", st.sent))

	switch {
	case st.err == nil:
		metrics.ChatStreamsTotal.WithLabelValues(string(route), "ok").Inc()
		s.logger.Debug("Chat stream completed", fields...)
	case errors.Is(st.err, context.Canceled) || errors.Is(st.err, context.DeadlineExceeded):
		metrics.ChatStreamsTotal.WithLabelValues(string(route), "canceled").Inc()
		s.logger.Info("Chat stream canceled", fields...)
	default:
		metrics.ChatStreamsTotal.WithLabelValues(string(route), "error").Inc()
		s.logger.Error("Chat stream failed", append(fields, zap.Error(st.err))...)
	}
}
