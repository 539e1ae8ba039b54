package main

import (
	"bufio"
	"os"

	"dify_cli/pkg/chat"
	"dify_cli/pkg/config"
	"dify_cli/pkg/ui"

	"github.com/spf13/cobra"
)

type chatOptions struct {
	markdown         bool
	keepConversation bool
}

func addChatFlags(cmd *cobra.Command, opts *chatOptions) {
	cmd.Flags().BoolVar(&opts.markdown, "markdown", false, "render answers as markdown")
	cmd.Flags().BoolVar(&opts.keepConversation, "keep-conversation", false, "continue the same conversation across questions")
}

func newChatCmd(a *app) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, opts)
		},
	}
	addChatFlags(cmd, opts)
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, opts *chatOptions) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	if !a.cfg.HasAPIKey() && a.cfg.LLMProvider == config.ProviderDify {
		key, err := chat.PromptAPIKey(os.Stdin, reader, out)
		if err != nil {
			return err
		}
		if key != "" {
			a.cfg.Dify.APIKey = key
		}
	}

	c, err := a.newClient(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	markdown := a.cfg.Chat.Markdown
	if cmd.Flags().Changed("markdown") {
		markdown = opts.markdown
	}
	keep := a.cfg.Chat.KeepConversation
	if cmd.Flags().Changed("keep-conversation") {
		keep = opts.keepConversation
	}

	repl := &chat.REPL{
		Client:           c,
		Renderer:         ui.NewRenderer(ui.Width(os.Stdout), markdown),
		In:               reader,
		Out:              out,
		Stream:           a.cfg.Dify.ResponseMode == config.ResponseModeStreaming,
		KeepConversation: keep,
	}
	if ui.IsTerminal(os.Stderr) {
		repl.Status = os.Stderr
	}
	return repl.Run(cmd.Context())
}
