package ai

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnsupported is returned by providers that lack an optional endpoint.
var ErrUnsupported = errors.New("operation not supported by provider")

// Query is a single user message sent to a provider.
type Query struct {
	Message        string
	User           string
	ConversationID string
}

// Reply is a normalized provider answer. Raw holds the response body as the
// provider returned it (or as synthesized from a stream) and is what gets
// written to the chat log.
type Reply struct {
	Answer         string
	ConversationID string
	MessageID      string
	TaskID         string
	Raw            json.RawMessage
}

// Stream exposes an incremental answer. Reply is valid once Next returns false
// and Err is nil.
type Stream interface {
	Next() bool
	Delta() string
	Reply() Reply
	Err() error
	Close() error
}

// Provider defines the backend interface used by the client.
type Provider interface {
	Send(ctx context.Context, q Query) (Reply, error)
	Stream(ctx context.Context, q Query) (Stream, error)
}

// Rating is a feedback value for a message.
type Rating string

const (
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
	RatingNone    Rating = ""
)

// FeedbackSender is implemented by providers that accept message feedback.
type FeedbackSender interface {
	Feedback(ctx context.Context, messageID string, rating Rating, user string) error
}

// Stopper is implemented by providers that can abort a running generation.
type Stopper interface {
	Stop(ctx context.Context, taskID string, user string) error
}
