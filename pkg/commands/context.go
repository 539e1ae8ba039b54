package commands

import (
	"context"
	"io"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/chatlog"
)

// Client is the part of the chat client that commands use.
type Client interface {
	Log() *chatlog.Log
	Feedback(ctx context.Context, messageID string, rating ai.Rating) error
}

// Session is the mutable state of one interactive chat.
type Session struct {
	ConversationID string
	LastReply      ai.Reply
}

// HasReply reports whether an answer has been received in this session.
func (s *Session) HasReply() bool {
	return s != nil && (s.LastReply.Answer != "" || s.LastReply.MessageID != "")
}

// Context contains all the context needed for command execution
type Context struct {
	Ctx     context.Context
	Client  Client
	Session *Session

	// Terminal receives control sequences such as OSC 52.
	Terminal io.Writer
}

// NewContext creates a new command context
func NewContext(ctx context.Context, client Client, session *Session, terminal io.Writer) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if session == nil {
		session = &Session{}
	}
	return &Context{
		Ctx:      ctx,
		Client:   client,
		Session:  session,
		Terminal: terminal,
	}
}
