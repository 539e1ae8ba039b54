// Package client wraps a provider with chat logging and the answer
// conventions used by the chat and batch commands.
package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/chatlog"
)

// RequestError is returned when the provider call fails.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "API request failed: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Client sends questions to a provider and records successful exchanges.
type Client struct {
	provider ai.Provider
	log      *chatlog.Log
	user     string
	now      func() time.Time
}

// New creates a client. log may be nil to disable chat logging.
func New(provider ai.Provider, log *chatlog.Log, user string) *Client {
	return &Client{
		provider: provider,
		log:      log,
		user:     user,
		now:      time.Now,
	}
}

// Log returns the chat log, or nil.
func (c *Client) Log() *chatlog.Log {
	return c.log
}

// SendMessage sends message and logs the exchange on success.
func (c *Client) SendMessage(ctx context.Context, message, conversationID string) (ai.Reply, error) {
	slog.Info("client_send_start", "message_length", len(message), "conversation_id", conversationID)

	reply, err := c.provider.Send(ctx, ai.Query{
		Message:        message,
		User:           c.user,
		ConversationID: conversationID,
	})
	if err != nil {
		slog.Error("client_send_error", "error", err)
		return ai.Reply{}, &RequestError{Err: err}
	}

	c.record(message, reply)
	return reply, nil
}

// GetAnswer returns the answer text for question, or an "Error: ..." string.
func (c *Client) GetAnswer(ctx context.Context, question string) string {
	reply, err := c.SendMessage(ctx, question, "")
	if err != nil {
		return "Error: " + err.Error()
	}
	return ai.ExtractAnswer(reply.Raw)
}

// StreamMessage streams an answer, calling onDelta for each fragment. When ctx
// is cancelled mid-answer the generation is stopped server-side where the
// provider supports it. Only complete answers are logged.
func (c *Client) StreamMessage(ctx context.Context, message, conversationID string, onDelta func(string)) (ai.Reply, error) {
	slog.Info("client_stream_start", "message_length", len(message), "conversation_id", conversationID)

	stream, err := c.provider.Stream(ctx, ai.Query{
		Message:        message,
		User:           c.user,
		ConversationID: conversationID,
	})
	if err != nil {
		slog.Error("client_stream_error", "error", err)
		return ai.Reply{}, &RequestError{Err: err}
	}
	defer stream.Close()

	for stream.Next() {
		if onDelta != nil {
			onDelta(stream.Delta())
		}
	}

	reply := stream.Reply()
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			c.stopAfterCancel(reply.TaskID)
		}
		slog.Error("client_stream_error", "task_id", reply.TaskID, "error", err)
		return reply, &RequestError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		c.stopAfterCancel(reply.TaskID)
		return reply, &RequestError{Err: err}
	}

	c.record(message, reply)
	return reply, nil
}

// Feedback rates a message on providers that support it.
func (c *Client) Feedback(ctx context.Context, messageID string, rating ai.Rating) error {
	fs, ok := c.provider.(ai.FeedbackSender)
	if !ok {
		return ai.ErrUnsupported
	}
	if err := fs.Feedback(ctx, messageID, rating, c.user); err != nil {
		return &RequestError{Err: err}
	}
	return nil
}

// Stop aborts a running generation on providers that support it.
func (c *Client) Stop(ctx context.Context, taskID string) error {
	s, ok := c.provider.(ai.Stopper)
	if !ok {
		return ai.ErrUnsupported
	}
	if err := s.Stop(ctx, taskID, c.user); err != nil {
		return &RequestError{Err: err}
	}
	return nil
}

func (c *Client) stopAfterCancel(taskID string) {
	if taskID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Stop(ctx, taskID); err != nil && !errors.Is(err, ai.ErrUnsupported) {
		slog.Warn("client_stop_failed", "task_id", taskID, "error", err)
		return
	}
	slog.Info("client_stream_cancelled", "task_id", taskID)
}

func (c *Client) record(message string, reply ai.Reply) {
	if c.log == nil {
		return
	}
	if err := c.log.Append(chatlog.NewEntry(c.now(), message, reply.Raw)); err != nil {
		slog.Warn("client_log_append_failed", "error", err)
	}
}
