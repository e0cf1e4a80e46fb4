package llm

import (
	"context"
	"log/slog"
	"time"
)

// LoggingClient decorates a Client with structured logging of every
// upstream call: model, message count, duration, usage and stop reason
// on success, classified error type on failure. Streams are logged when
// the upstream channel closes.
type LoggingClient struct {
	inner  Client
	logger *slog.Logger
}

// NewLoggingClient wraps client so every call is logged through logger.
// A nil logger falls back to slog.Default().
func NewLoggingClient(client Client, logger *slog.Logger) *LoggingClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingClient{inner: client, logger: logger}
}

// ChatCompletion implements Client.
func (c *LoggingClient) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	c.logger.Debug("chat completion started",
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools))

	resp, err := c.inner.ChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("chat completion failed",
			"model", req.Model,
			"duration", time.Since(start),
			"error", err)
		return nil, err
	}

	c.logger.Info("chat completion finished",
		"model", req.Model,
		"duration", time.Since(start),
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)
	return resp, nil
}

// StreamChatCompletion implements Client. Events pass through
// unmodified; the summary line is written once the upstream closes its
// channel.
func (c *LoggingClient) StreamChatCompletion(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	start := time.Now()
	c.logger.Debug("stream started",
		"model", req.Model,
		"messages", len(req.Messages))

	events, err := c.inner.StreamChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("stream failed to open",
			"model", req.Model,
			"error", err)
		return nil, err
	}

	out := make(chan StreamEvent, 10)
	go func() {
		defer close(out)

		var delivered int
		var failed bool
		for event := range events {
			if event.IsError() {
				failed = true
			}
			delivered++

			select {
			case out <- event:
			case <-ctx.Done():
				c.logger.Debug("stream abandoned",
					"model", req.Model,
					"duration", time.Since(start),
					"events", delivered)
				return
			}
		}

		c.logger.Info("stream finished",
			"model", req.Model,
			"duration", time.Since(start),
			"events", delivered,
			"errored", failed)
	}()
	return out, nil
}

// Remote implements Client.
func (c *LoggingClient) Remote() ClientRemoteInfo {
	return c.inner.Remote()
}

// Close implements Client.
func (c *LoggingClient) Close() error {
	return c.inner.Close()
}
