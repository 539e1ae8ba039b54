package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/ui"
)

// LogsHandler handles the /logs command
type LogsHandler struct{}

func (h *LogsHandler) Name() string        { return "/logs" }
func (h *LogsHandler) Description() string { return "Show chat logs" }

func (h *LogsHandler) Execute(ctx *Context) *Result {
	if ctx.Client == nil || ctx.Client.Log() == nil {
		return &Result{Title: "Logs", Content: ui.NoLogs}
	}

	entries, err := ctx.Client.Log().Load()
	if err != nil {
		return &Result{
			Title:   "Logs",
			Content: fmt.Sprintf("Error reading logs: %v", err),
			Error:   err,
		}
	}

	var sb strings.Builder
	ui.WriteLogs(&sb, entries)
	return &Result{
		Title:   "Logs",
		Content: strings.TrimSuffix(sb.String(), "\n"),
	}
}

// QuitHandler handles the /quit command
type QuitHandler struct{}

func (h *QuitHandler) Name() string        { return "/quit" }
func (h *QuitHandler) Description() string { return "Exit" }

func (h *QuitHandler) Execute(ctx *Context) *Result {
	return &Result{Title: "Quit", Action: ResultActionQuit}
}

// HelpHandler handles the /help command
type HelpHandler struct {
	dispatcher *Dispatcher
}

func (h *HelpHandler) Name() string        { return "/help" }
func (h *HelpHandler) Description() string { return "Show this help" }

func (h *HelpHandler) Execute(ctx *Context) *Result {
	return &Result{
		Title:   "Help",
		Content: h.dispatcher.HelpText(),
	}
}

// CopyHandler handles the /copy command
type CopyHandler struct{}

func (h *CopyHandler) Name() string        { return "/copy" }
func (h *CopyHandler) Description() string { return "Copy the last answer to the clipboard" }

func (h *CopyHandler) Execute(ctx *Context) *Result {
	if !ctx.Session.HasReply() {
		return &Result{Title: "Copy", Content: "Nothing to copy yet."}
	}
	if ctx.Terminal == nil {
		return &Result{Title: "Copy", Content: "Clipboard is not available.", Error: errors.New("no terminal")}
	}

	if err := ui.CopyToClipboard(ctx.Terminal, ctx.Session.LastReply.Answer); err != nil {
		slog.Error("copy_failed", "error", err)
		return &Result{Title: "Copy", Content: fmt.Sprintf("Copy failed: %v", err), Error: err}
	}
	return &Result{Title: "Copy", Content: "Copied last answer to clipboard."}
}

// NewConversationHandler handles the /new command
type NewConversationHandler struct{}

func (h *NewConversationHandler) Name() string        { return "/new" }
func (h *NewConversationHandler) Description() string { return "Start a new conversation" }

func (h *NewConversationHandler) Execute(ctx *Context) *Result {
	ctx.Session.ConversationID = ""
	ctx.Session.LastReply = ai.Reply{}
	return &Result{Title: "New", Content: "Started a new conversation."}
}

// FeedbackHandler handles /like and /dislike
type FeedbackHandler struct {
	Like bool
}

func (h *FeedbackHandler) rating() ai.Rating {
	if h.Like {
		return ai.RatingLike
	}
	return ai.RatingDislike
}

func (h *FeedbackHandler) Name() string {
	return "/" + string(h.rating())
}

func (h *FeedbackHandler) Description() string {
	if h.Like {
		return "Rate the last answer as helpful"
	}
	return "Rate the last answer as unhelpful"
}

func (h *FeedbackHandler) Execute(ctx *Context) *Result {
	messageID := ctx.Session.LastReply.MessageID
	if messageID == "" {
		return &Result{Title: "Feedback", Content: "No answer to rate yet."}
	}
	if ctx.Client == nil {
		return &Result{Title: "Feedback", Content: "Feedback is not available.", Error: ai.ErrUnsupported}
	}

	err := ctx.Client.Feedback(ctx.Ctx, messageID, h.rating())
	switch {
	case errors.Is(err, ai.ErrUnsupported):
		return &Result{Title: "Feedback", Content: "This provider does not accept feedback.", Error: err}
	case err != nil:
		return &Result{Title: "Feedback", Content: fmt.Sprintf("Error: %v", err), Error: err}
	}

	slog.Info("feedback_recorded", "message_id", messageID, "rating", string(h.rating()))
	return &Result{Title: "Feedback", Content: fmt.Sprintf("Recorded %s for the last answer.", h.rating())}
}
