package main

import (
	"fmt"
	"os"

	"dify_cli/pkg/ui"

	"github.com/spf13/cobra"
)

func newLogsCmd(a *app) *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the chat log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			entries, err := a.chatLog(cmd.ErrOrStderr()).Load()
			if err != nil {
				fmt.Fprintf(out, "Error reading logs: %v\n", err)
				return nil
			}
			if compact {
				ui.WriteLogSummary(out, entries, ui.Width(os.Stdout))
				return nil
			}
			ui.WriteLogs(out, entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "one line per entry")
	return cmd
}
