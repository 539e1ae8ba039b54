package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dify_cli/pkg/batch"

	"github.com/spf13/cobra"
)

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Answer every question in a file and save the answers as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd)
		},
	}
	cmd.Flags().String("questions", "", "questions file, one question per line (default \"questions.txt\")")
	_ = a.v.BindPFlag("batch.questions_file", cmd.Flags().Lookup("questions"))
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "=== Dify API クライアント開始 ===")
	if exe, err := os.Executable(); err == nil {
		fmt.Fprintf(out, "実行ファイルの場所: %s\n", exe)
	}
	if wd, err := os.Getwd(); err == nil {
		fmt.Fprintf(out, "現在の作業ディレクトリ: %s\n", wd)
	}

	if !a.cfg.HasAPIKey() {
		fmt.Fprintln(out, "❌ APIキーが設定されていません。")
		fmt.Fprintln(out, ".envファイルにDIFY_API_KEYを設定してください。")
		return nil
	}

	c, err := a.newClient(cmd.ErrOrStderr())
	if err != nil {
		fmt.Fprintf(out, "❌ DifyClient初期化エラー: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "✓ DifyClient初期化OK")

	path := a.cfg.Batch.QuestionsFile
	questions, err := batch.LoadQuestions(path)
	if err != nil {
		fmt.Fprintf(out, "❌ 質問ファイルの読み込みエラー: %v\n", err)
	}
	if len(questions) == 0 {
		fmt.Fprintf(out, "❌ 質問が見つかりません。%s を確認してください。\n", filepath.Base(path))
		return nil
	}

	fmt.Fprintln(out, "=== Dify API Test ===")
	runner := &batch.Runner{Client: c, Out: out}
	answers := runner.Run(cmd.Context(), questions)

	// The summary is printed even when the save failed.
	fmt.Fprintln(out, "\n=== ファイル保存処理 ===")
	if _, err := batch.SaveAndReport(out, a.cfg.Output.Dir, a.cfg.Output.FallbackDir, answers, time.Now()); err != nil {
		slog.Error("batch_save_failed", "dir", a.cfg.Output.Dir, "error", err)
	}

	batch.PrintSummary(out, answers)
	return nil
}
