package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/chatlog"
)

type stubClient struct {
	log         *chatlog.Log
	feedbackErr error
	gotRating   ai.Rating
	gotMessage  string
}

func (s *stubClient) Log() *chatlog.Log { return s.log }

func (s *stubClient) Feedback(ctx context.Context, messageID string, rating ai.Rating) error {
	s.gotMessage = messageID
	s.gotRating = rating
	return s.feedbackErr
}

func TestNewContext(t *testing.T) {
	ctx := NewContext(nil, nil, nil, nil)

	if ctx.Ctx == nil {
		t.Error("Expected background context")
	}
	if ctx.Session == nil {
		t.Error("Expected Session to be set")
	}
}

func TestNewDispatcher(t *testing.T) {
	d := NewDispatcher()

	if d == nil {
		t.Fatal("NewDispatcher() returned nil")
	}

	commands := []string{"/logs", "/quit", "/help", "/copy", "/new", "/like", "/dislike"}
	handlers := d.Handlers()
	if len(handlers) != len(commands) {
		t.Fatalf("Expected %d handlers, got %d", len(commands), len(handlers))
	}
	for i, cmd := range commands {
		if _, ok := d.GetHandler(cmd); !ok {
			t.Errorf("Expected handler for %s to be registered", cmd)
		}
		if handlers[i].Name() != cmd {
			t.Errorf("Expected handler %d to be %s, got %s", i, cmd, handlers[i].Name())
		}
	}
}

func TestDispatcher_Lookup(t *testing.T) {
	d := NewDispatcher()

	tests := []struct {
		input string
		want  bool
	}{
		{"/logs", true},
		{"  /quit  ", true},
		{"/unknown", false},
		{"/logs please", false},
		{"hello", false},
	}
	for _, tt := range tests {
		if _, ok := d.Lookup(tt.input); ok != tt.want {
			t.Errorf("Lookup(%q) = %v, want %v", tt.input, ok, tt.want)
		}
	}
}

func TestDispatcher_Dispatch_UnknownCommand(t *testing.T) {
	d := NewDispatcher()

	result := d.Dispatch("/unknown", NewContext(nil, nil, nil, nil))

	if result.Title != "Error" || result.Error == nil {
		t.Errorf("Expected error result, got %+v", result)
	}
}

func TestDispatcher_Dispatch_HelpCommand(t *testing.T) {
	d := NewDispatcher()

	result := d.Dispatch("/help", NewContext(nil, nil, nil, nil))

	if result.Title != "Help" {
		t.Errorf("Expected title 'Help', got %q", result.Title)
	}
	wantPrefix := "Commands:\n  /logs - Show chat logs\n  /quit - Exit\n  /help - Show this help\n"
	if !strings.HasPrefix(result.Content, wantPrefix) {
		t.Errorf("Unexpected help text:\n%s", result.Content)
	}
}

func TestDispatcher_Dispatch_Quit(t *testing.T) {
	result := NewDispatcher().Dispatch("/quit", NewContext(nil, nil, nil, nil))
	if result.Action != ResultActionQuit {
		t.Errorf("Expected quit action, got %v", result.Action)
	}
}

func TestLogsHandler(t *testing.T) {
	dir := t.TempDir()
	log := chatlog.New(filepath.Join(dir, "log.json"), "", io.Discard)
	client := &stubClient{log: log}
	d := NewDispatcher()

	result := d.Dispatch("/logs", NewContext(nil, client, nil, nil))
	if result.Content != "No logs found." {
		t.Errorf("Expected empty log message, got %q", result.Content)
	}

	if err := log.Append(chatlog.Entry{Timestamp: "ts", Question: "q", Response: json.RawMessage(`{"answer":"a"}`)}); err != nil {
		t.Fatal(err)
	}
	result = d.Dispatch("/logs", NewContext(nil, client, nil, nil))
	if !strings.Contains(result.Content, "=== Chat Logs (1 entries) ===") || !strings.Contains(result.Content, "A: a") {
		t.Errorf("Unexpected logs output:\n%s", result.Content)
	}
}

func TestLogsHandler_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	client := &stubClient{log: chatlog.New(path, "", io.Discard)}

	result := NewDispatcher().Dispatch("/logs", NewContext(nil, client, nil, nil))
	if result.Error == nil || !strings.HasPrefix(result.Content, "Error reading logs: ") {
		t.Errorf("Expected read error, got %+v", result)
	}
}

func TestCopyHandler(t *testing.T) {
	d := NewDispatcher()

	var term bytes.Buffer
	session := &Session{}
	result := d.Dispatch("/copy", NewContext(nil, nil, session, &term))
	if result.Content != "Nothing to copy yet." || term.Len() != 0 {
		t.Errorf("Expected nothing copied, got %+v", result)
	}

	t.Setenv("TMUX", "")
	t.Setenv("STY", "")
	session.LastReply = ai.Reply{Answer: "hello"}
	result = d.Dispatch("/copy", NewContext(nil, nil, session, &term))
	if result.Error != nil {
		t.Fatalf("Unexpected error: %v", result.Error)
	}
	if !strings.Contains(term.String(), "aGVsbG8=") {
		t.Errorf("Expected OSC 52 sequence, got %q", term.String())
	}
}

func TestNewConversationHandler(t *testing.T) {
	session := &Session{ConversationID: "c1", LastReply: ai.Reply{Answer: "x", MessageID: "m"}}
	NewDispatcher().Dispatch("/new", NewContext(nil, nil, session, nil))

	if session.ConversationID != "" || session.HasReply() {
		t.Errorf("Expected session to be reset, got %+v", session)
	}
}

func TestFeedbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		cmd        string
		session    *Session
		clientErr  error
		wantRating ai.Rating
		wantText   string
	}{
		{"no reply", "/like", &Session{}, nil, "", "No answer to rate yet."},
		{"like", "/like", &Session{LastReply: ai.Reply{MessageID: "m1"}}, nil, ai.RatingLike, "Recorded like for the last answer."},
		{"dislike", "/dislike", &Session{LastReply: ai.Reply{MessageID: "m1"}}, nil, ai.RatingDislike, "Recorded dislike for the last answer."},
		{"unsupported", "/like", &Session{LastReply: ai.Reply{MessageID: "m1"}}, ai.ErrUnsupported, ai.RatingLike, "This provider does not accept feedback."},
		{"api error", "/like", &Session{LastReply: ai.Reply{MessageID: "m1"}}, errors.New("boom"), ai.RatingLike, "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{feedbackErr: tt.clientErr}
			result := NewDispatcher().Dispatch(tt.cmd, NewContext(nil, client, tt.session, nil))

			if result.Content != tt.wantText {
				t.Errorf("Content = %q, want %q", result.Content, tt.wantText)
			}
			if client.gotRating != tt.wantRating {
				t.Errorf("rating = %q, want %q", client.gotRating, tt.wantRating)
			}
		})
	}
}
