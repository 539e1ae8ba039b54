package commands

import (
	"fmt"
	"strings"
)

// ResultAction tells the chat loop what to do after a command.
type ResultAction int

const (
	ResultActionNone ResultAction = iota
	ResultActionQuit
)

// Result represents the result of a command execution
type Result struct {
	Title   string
	Content string
	Error   error
	Action  ResultAction
}

// Handler is the interface for command handlers
type Handler interface {
	Execute(ctx *Context) *Result
	Name() string
	Description() string
}

// Dispatcher routes commands to their handlers
type Dispatcher struct {
	handlers map[string]Handler
	order    []string
}

// NewDispatcher creates a new command dispatcher
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
	}

	// Register default handlers
	d.Register(&LogsHandler{})
	d.Register(&QuitHandler{})
	d.Register(&HelpHandler{dispatcher: d})
	d.Register(&CopyHandler{})
	d.Register(&NewConversationHandler{})
	d.Register(&FeedbackHandler{Like: true})
	d.Register(&FeedbackHandler{})

	return d
}

// Register adds a handler to the dispatcher. Registering a name twice
// replaces the earlier handler and keeps its position in the help listing.
func (d *Dispatcher) Register(h Handler) {
	if _, exists := d.handlers[h.Name()]; !exists {
		d.order = append(d.order, h.Name())
	}
	d.handlers[h.Name()] = h
}

// Lookup returns the handler for a line of user input. Only an exact command
// name matches; anything else is a message for the bot.
func (d *Dispatcher) Lookup(input string) (Handler, bool) {
	h, ok := d.handlers[strings.TrimSpace(input)]
	return h, ok
}

// Dispatch executes a command by name
func (d *Dispatcher) Dispatch(cmdName string, ctx *Context) *Result {
	handler, ok := d.Lookup(cmdName)
	if !ok {
		return &Result{
			Title:   "Error",
			Content: "Unknown command: " + cmdName,
			Error:   fmt.Errorf("unknown command: %s", cmdName),
		}
	}

	return handler.Execute(ctx)
}

// GetHandler returns a handler by name
func (d *Dispatcher) GetHandler(cmdName string) (Handler, bool) {
	h, ok := d.handlers[cmdName]
	return h, ok
}

// Handlers returns the registered handlers in registration order.
func (d *Dispatcher) Handlers() []Handler {
	out := make([]Handler, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.handlers[name])
	}
	return out
}

// HelpText lists the commands the way the chat banner shows them.
func (d *Dispatcher) HelpText() string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, h := range d.Handlers() {
		fmt.Fprintf(&sb, "  %s - %s\n", h.Name(), h.Description())
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
