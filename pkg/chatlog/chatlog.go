// Package chatlog keeps the JSON history of successful chat exchanges.
package chatlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"dify_cli/pkg/savefile"
)

// TimestampLayout matches an ISO-8601 local time with microseconds.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Entry is one question and the raw response it produced.
type Entry struct {
	Timestamp string          `json:"timestamp"`
	Question  string          `json:"question"`
	Response  json.RawMessage `json:"response"`
}

// NewEntry stamps an entry with t.
func NewEntry(t time.Time, question string, response json.RawMessage) Entry {
	return Entry{
		Timestamp: t.Format(TimestampLayout),
		Question:  question,
		Response:  response,
	}
}

// ErrCorrupt marks a log file that exists but is not a JSON array of entries.
var ErrCorrupt = errors.New("chat log is corrupt")

var (
	saveFile = savefile.WritePath
	readFile = os.ReadFile
)

// Log is an append-only chat log stored as a single JSON array.
type Log struct {
	mu          sync.Mutex
	path        string
	fallbackDir string
	warn        io.Writer
}

// New returns a log at path. Warnings about failed writes go to warn, which
// defaults to stderr.
func New(path, fallbackDir string, warn io.Writer) *Log {
	if warn == nil {
		warn = os.Stderr
	}
	return &Log{path: path, fallbackDir: fallbackDir, warn: warn}
}

// Path returns the file the log currently reads from and writes to.
func (l *Log) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Load returns every entry. A missing file yields no entries and no error.
// When the log has nothing readable at its path, entries that an earlier run
// left in the fallback directory are returned instead.
func (l *Log) Load() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := readEntries(l.path)
	if fb := l.fallbackFile(); fb != "" && (savefile.IsPermission(err) || (err == nil && len(entries) == 0)) {
		if prev, ferr := readEntries(fb); ferr == nil && len(prev) > 0 {
			return prev, nil
		}
	}
	return entries, err
}

// Append adds e and rewrites the whole file. A corrupt file starts over; a
// file that cannot be read for any other reason is left untouched. Failures
// are reported on the warn writer and returned, but the caller is expected to
// carry on.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := readEntries(l.path)
	switch {
	case err == nil:
	case errors.Is(err, ErrCorrupt):
		slog.Warn("chatlog_corrupt_reset", "path", l.path, "error", err)
		entries = nil
	case savefile.IsPermission(err) && l.fallbackFile() != "":
		return l.appendToFallback(e, err)
	default:
		fmt.Fprintf(l.warn, "警告: ログファイル保存エラー: %v\n", err)
		return err
	}

	written, err := saveFile(l.path, l.fallbackDir, l.writer(entries, e))
	l.report(written, len(entries)+1, err)
	return err
}

// appendToFallback writes straight to the fallback file when the primary
// cannot even be read, so its contents are never overwritten.
func (l *Log) appendToFallback(e Entry, readErr error) error {
	fb := l.fallbackFile()
	slog.Warn("chatlog_unreadable", "path", l.path, "fallback_path", fb, "error", readErr)

	written, err := saveFile(fb, "", l.writer(nil, e))
	if err != nil {
		err = &savefile.FallbackError{
			PrimaryPath:  l.path,
			FallbackPath: fb,
			PrimaryErr:   readErr,
			FallbackErr:  err,
		}
	}
	l.report(written, 0, err)
	return err
}

// writer encodes entries plus e into the active file. Written anywhere else,
// it continues what the fallback file held before the write, so a fallback log
// keeps growing across runs.
func (l *Log) writer(entries []Entry, e Entry) func(string, io.Writer) error {
	var carried []Entry
	if fb := l.fallbackFile(); fb != "" {
		carried, _ = readEntries(fb)
	}
	return func(path string, w io.Writer) error {
		base := entries
		if path != l.path && len(carried) > 0 {
			base = carried
		}
		return encode(w, append(slices.Clip(base), e))
	}
}

func (l *Log) report(written string, count int, err error) {
	var fbErr *savefile.FallbackError
	switch {
	case err == nil && written != l.path:
		fmt.Fprintln(l.warn, "警告: ログファイル保存権限エラー")
		fmt.Fprintf(l.warn, "ログファイルパス: %s\n", l.path)
		fmt.Fprintf(l.warn, "ログをデスクトップに保存しました: %s\n", written)
		slog.Info("chatlog_path_switched", "from", l.path, "to", written)
		l.path = written
	case errors.As(err, &fbErr):
		fmt.Fprintf(l.warn, "警告: ログファイル保存権限エラー: %v\n", fbErr.PrimaryErr)
		fmt.Fprintf(l.warn, "ログファイルパス: %s\n", l.path)
		fmt.Fprintf(l.warn, "デスクトップ保存も失敗: %v\n", fbErr.FallbackErr)
	case err != nil:
		fmt.Fprintf(l.warn, "警告: ログファイル保存エラー: %v\n", err)
	default:
		slog.Debug("chatlog_appended", "path", l.path, "entries", count)
	}
}

// fallbackFile is where entries go when the active path is not writable, or
// "" when there is no separate fallback.
func (l *Log) fallbackFile() string {
	if l.fallbackDir == "" {
		return ""
	}
	fb := savefile.FallbackPath(l.path, l.fallbackDir)
	if fb == l.path {
		return ""
	}
	return fb
}

func readEntries(path string) ([]Entry, error) {
	data, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse chat log: %w: %w", ErrCorrupt, err)
	}
	return entries, nil
}

func encode(w io.Writer, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
