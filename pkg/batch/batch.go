// Package batch runs a file of questions through the client and saves the
// answers as CSV.
package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dify_cli/pkg/chatlog"
	"dify_cli/pkg/savefile"
)

const (
	fileSuffix = "_dify_answers_only.csv"
	separator  = "--------------------------------------------------"
)

// CSVHeader is the first row of every answers file.
var CSVHeader = []string{"question_number", "timestamp", "question", "answer"}

// Answerer returns the answer text for a question. Failures are folded into
// the returned text.
type Answerer interface {
	GetAnswer(ctx context.Context, question string) string
}

// Answer is one row of the answers file.
type Answer struct {
	QuestionNumber int
	Timestamp      string
	Question       string
	Answer         string
}

// LoadQuestions reads one question per line, skipping blank lines.
func LoadQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open questions file: %w", err)
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		q := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if q != "" {
			questions = append(questions, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}

	slog.Info("batch_questions_loaded", "path", path, "count", len(questions))
	return questions, nil
}

// Runner sends questions one at a time and echoes progress to Out.
type Runner struct {
	Client Answerer
	Out    io.Writer
	Now    func() time.Time
}

// Run asks every question in order. Cancelling ctx stops before the next
// question and returns what was collected so far.
func (r *Runner) Run(ctx context.Context, questions []string) []Answer {
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	answers := make([]Answer, 0, len(questions))
	for i, question := range questions {
		if err := ctx.Err(); err != nil {
			slog.Warn("batch_cancelled", "answered", len(answers), "total", len(questions))
			break
		}

		n := i + 1
		fmt.Fprintf(out, "\n[%d] Question: %s\n", n, question)

		answer, err := r.ask(ctx, question)
		if err != nil {
			answer = fmt.Sprintf("質問%dでエラー: %v", n, err)
			slog.Error("batch_question_failed", "question_number", n, "error", err)
		}
		fmt.Fprintf(out, "Answer: %s\n", answer)

		answers = append(answers, Answer{
			QuestionNumber: n,
			Timestamp:      now().Format(chatlog.TimestampLayout),
			Question:       question,
			Answer:         answer,
		})
		fmt.Fprintln(out, separator)
	}

	slog.Info("batch_run_done", "answered", len(answers), "total", len(questions))
	return answers
}

func (r *Runner) ask(ctx context.Context, question string) (answer string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
		}
	}()
	return r.Client.GetAnswer(ctx, question), nil
}

// WriteCSV writes the header and one row per answer with CRLF line endings.
func WriteCSV(w io.Writer, answers []Answer) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, a := range answers {
		row := []string{strconv.Itoa(a.QuestionNumber), a.Timestamp, a.Question, a.Answer}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var saveFile = savefile.Write

// FileName returns the timestamped answers file name.
func FileName(now time.Time) string {
	return now.Format("20060102150405") + fileSuffix
}

// SaveCSV writes answers to dir, falling back to fallbackDir on a permission
// error, and returns the path written.
func SaveCSV(dir, fallbackDir string, answers []Answer, now time.Time) (string, error) {
	path := filepath.Join(dir, FileName(now))
	written, err := saveFile(path, fallbackDir, func(w io.Writer) error {
		return WriteCSV(w, answers)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save answers: %w", err)
	}
	slog.Info("batch_csv_saved", "path", written, "rows", len(answers))
	return written, nil
}

// SaveAndReport saves the answers like SaveCSV and narrates the outcome on w.
func SaveAndReport(w io.Writer, dir, fallbackDir string, answers []Answer, now time.Time) (string, error) {
	name := FileName(now)
	primary := filepath.Join(dir, name)
	fmt.Fprintf(w, "ファイル保存先: %s\n", primary)

	written, err := SaveCSV(dir, fallbackDir, answers, now)

	var fbErr *savefile.FallbackError
	switch {
	case errors.As(err, &fbErr):
		fmt.Fprintf(w, "\n❌ ファイル保存権限エラー: %v\n", fbErr.PrimaryErr)
		fmt.Fprintf(w, "保存先: %s\n", primary)
		fmt.Fprintln(w, "別の場所への保存を試みます...")
		fmt.Fprintf(w, "❌ デスクトップ保存も失敗: %v\n", fbErr.FallbackErr)
	case err != nil:
		fmt.Fprintf(w, "\n❌ ファイル保存エラー: %v\n", errors.Unwrap(err))
		fmt.Fprintf(w, "保存先: %s\n", primary)
	case written != primary:
		fmt.Fprintln(w, "\n❌ ファイル保存権限エラー")
		fmt.Fprintf(w, "保存先: %s\n", primary)
		fmt.Fprintln(w, "別の場所への保存を試みます...")
		fmt.Fprintf(w, "✓ デスクトップに保存しました: %s\n", written)
	default:
		fmt.Fprintf(w, "\n回答のみを %s に保存しました。\n", name)
	}
	return written, err
}

// PrintSummary lists every answer after the run.
func PrintSummary(w io.Writer, answers []Answer) {
	fmt.Fprintln(w, "\n=== 回答まとめ ===")
	for i, a := range answers {
		fmt.Fprintf(w, "[%d] %s\n\n", i+1, a.Answer)
	}
}
