// Package chat runs the interactive question/answer loop.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"dify_cli/pkg/ai"
	"dify_cli/pkg/commands"
	"dify_cli/pkg/ui"
	"dify_cli/pkg/ui/styles"

	"charm.land/lipgloss/v2"
)

// KeyPrompt is shown when no API key is configured.
const KeyPrompt = "Enter your Dify API key (or press Enter to use environment variable): "

// ReplacedNotice precedes the final text when a streamed answer was replaced.
const ReplacedNotice = "(answer replaced)"

// Client is what the loop needs from pkg/client.
type Client interface {
	commands.Client
	SendMessage(ctx context.Context, message, conversationID string) (ai.Reply, error)
	StreamMessage(ctx context.Context, message, conversationID string, onDelta func(string)) (ai.Reply, error)
}

// REPL is one interactive chat session.
type REPL struct {
	Client     Client
	Dispatcher *commands.Dispatcher
	Renderer   *ui.Renderer

	In  io.Reader
	Out io.Writer

	// Status receives the spinner and OSC 52 sequences. Nil disables both.
	Status io.Writer

	Stream           bool
	KeepConversation bool

	session commands.Session
}

type line struct {
	text string
	err  error
}

// PromptAPIKey asks for a key when in is a terminal. An empty answer means
// the configured environment is used.
func PromptAPIKey(in *os.File, reader *bufio.Reader, out io.Writer) (string, error) {
	if !ui.IsTerminal(in) {
		return "", nil
	}
	return ui.ReadSecret(KeyPrompt, in, reader, out)
}

// Run prints the banner and answers questions until /quit, EOF or ctx is
// cancelled.
func (r *REPL) Run(ctx context.Context) error {
	if r.Dispatcher == nil {
		r.Dispatcher = commands.NewDispatcher()
	}
	if r.Renderer == nil {
		r.Renderer = ui.NewRenderer(ui.DefaultWidth, false)
	}

	r.printBanner()
	done := make(chan struct{})
	defer close(done)
	lines := readLines(done, r.In)

	for {
		lipgloss.Fprint(r.Out, "\n"+styles.UserPromptStyle.Render("You: "))

		var in line
		select {
		case <-ctx.Done():
			r.goodbye()
			return nil
		case in = <-lines:
		}
		if in.err != nil {
			r.goodbye()
			if errors.Is(in.err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", in.err)
		}

		question := strings.TrimSpace(in.text)
		if question == "" {
			continue
		}

		if _, ok := r.Dispatcher.Lookup(question); ok {
			if r.runCommand(ctx, question) {
				return nil
			}
			continue
		}

		r.ask(ctx, question)
		if ctx.Err() != nil {
			r.goodbye()
			return nil
		}
	}
}

func (r *REPL) printBanner() {
	lipgloss.Fprintln(r.Out, styles.TitleStyle.Render("=== Dify Chat Client ==="))
	fmt.Fprintln(r.Out, r.Dispatcher.HelpText())
	fmt.Fprintln(r.Out, "\nEnter your questions below:")
}

func (r *REPL) goodbye() {
	fmt.Fprintln(r.Out, "\nGoodbye!")
}

// runCommand executes a slash command and reports whether the loop should end.
func (r *REPL) runCommand(ctx context.Context, name string) bool {
	result := r.Dispatcher.Dispatch(name, commands.NewContext(ctx, r.Client, &r.session, r.Status))
	slog.Debug("chat_command", "command", name, "error", result.Error)

	if result.Content != "" {
		if result.Error != nil {
			lipgloss.Fprintln(r.Out, styles.ErrorStyle.Render(result.Content))
		} else {
			fmt.Fprintln(r.Out, result.Content)
		}
	}
	return result.Action == commands.ResultActionQuit
}

func (r *REPL) ask(ctx context.Context, question string) {
	var (
		reply ai.Reply
		err   error
	)
	if r.Stream {
		reply, err = r.streamAnswer(ctx, question)
	} else {
		reply, err = r.blockingAnswer(ctx, question)
	}
	if err != nil {
		if ctx.Err() == nil {
			lipgloss.Fprintln(r.Out, styles.ErrorStyle.Render("Error: "+err.Error()))
		}
		return
	}

	r.session.LastReply = reply
	if r.KeepConversation && reply.ConversationID != "" {
		r.session.ConversationID = reply.ConversationID
	}
}

func (r *REPL) blockingAnswer(ctx context.Context, question string) (ai.Reply, error) {
	var spin *ui.Spinner
	if r.Status != nil {
		spin = ui.NewSpinner(r.Status, "Thinking...")
		spin.Start()
	}
	reply, err := r.Client.SendMessage(ctx, question, r.session.ConversationID)
	if spin != nil {
		spin.Stop()
	}

	lipgloss.Fprint(r.Out, styles.BotPromptStyle.Render("Bot: "))
	if err != nil {
		return reply, err
	}
	lipgloss.Fprintln(r.Out, r.Renderer.Render(ai.ExtractAnswer(reply.Raw)))
	return reply, nil
}

// streamAnswer shows a spinner until the first fragment arrives, then prints
// fragments as they come.
func (r *REPL) streamAnswer(ctx context.Context, question string) (ai.Reply, error) {
	var spin *ui.Spinner
	if r.Status != nil {
		spin = ui.NewPointsSpinner(r.Status, "Waiting for answer...")
		spin.Start()
	}

	var (
		started bool
		printed strings.Builder
	)
	begin := func() {
		if started {
			return
		}
		started = true
		if spin != nil {
			spin.Stop()
		}
		lipgloss.Fprint(r.Out, styles.BotPromptStyle.Render("Bot: "))
	}

	reply, err := r.Client.StreamMessage(ctx, question, r.session.ConversationID, func(delta string) {
		if delta == "" {
			return
		}
		begin()
		printed.WriteString(delta)
		fmt.Fprint(r.Out, delta)
	})
	begin()
	if printed.Len() > 0 {
		fmt.Fprintln(r.Out)
	}
	if err != nil {
		return reply, err
	}

	switch {
	case printed.Len() == 0:
		lipgloss.Fprintln(r.Out, r.Renderer.Render(ai.ExtractAnswer(reply.Raw)))
	case printed.String() != reply.Answer:
		// The server replaced the answer mid-stream.
		lipgloss.Fprintln(r.Out, styles.TextMutedStyle.Render(ReplacedNotice))
		lipgloss.Fprintln(r.Out, r.Renderer.Render(reply.Answer))
	}
	return reply, nil
}

// readLines feeds input lines to the loop so that a blocked read does not
// keep Ctrl-C from ending the session. The channel is closed once the input
// is exhausted or done is closed.
func readLines(done <-chan struct{}, in io.Reader) <-chan line {
	ch := make(chan line)
	send := func(l line) bool {
		select {
		case ch <- l:
			return true
		case <-done:
			return false
		}
	}
	go func() {
		defer close(ch)
		reader := bufio.NewReader(in)
		for {
			text, err := reader.ReadString('\n')
			if err != nil && (err != io.EOF || text == "") {
				send(line{err: err})
				return
			}
			if !send(line{text: text}) {
				return
			}
			if err != nil {
				send(line{err: io.EOF})
				return
			}
		}
	}()
	return ch
}
