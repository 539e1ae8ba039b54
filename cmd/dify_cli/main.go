package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"dify_cli/pkg/version"

	"github.com/charmbracelet/fang"

	_ "dify_cli/pkg/ai/providers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := fang.Execute(ctx, newRootCmd(),
		fang.WithVersion(version.Summary()),
		fang.WithCommit(version.Commit),
	)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
