package savefile

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// denyPaths makes openFile fail with a permission error for the given paths.
func denyPaths(t *testing.T, denied ...string) {
	t.Helper()
	orig := openFile
	t.Cleanup(func() { openFile = orig })

	openFile = func(path string) (io.WriteCloser, error) {
		for _, d := range denied {
			if path == d {
				return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
			}
		}
		return orig(path)
	}
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestWrite_Primary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "answers.csv")

	got, err := Write(path, filepath.Join(dir, "fallback"), writeString("hello"))
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if got != path {
		t.Fatalf("Expected %q, got %q", path, got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Expected 'hello', got %q", string(data))
	}
}

func TestWrite_TruncatesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.json")
	if err := os.WriteFile(path, []byte("previous longer content"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	if _, err := Write(path, "", writeString("new")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Fatalf("Expected file to be truncated, got %q", string(data))
	}
}

func TestWrite_PermissionFallsBack(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary", "answers.csv")
	fallbackDir := filepath.Join(dir, "desktop")
	if err := os.MkdirAll(fallbackDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	denyPaths(t, primary)

	got, err := Write(primary, fallbackDir, writeString("rows"))
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	want := filepath.Join(fallbackDir, "answers.csv")
	if got != want {
		t.Fatalf("Expected fallback path %q, got %q", want, got)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(data) != "rows" {
		t.Fatalf("Expected 'rows', got %q", string(data))
	}
}

func TestWrite_NonPermissionErrorDoesNotFallBack(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "missing-dir", "answers.csv")
	fallbackDir := t.TempDir()

	_, err := Write(primary, fallbackDir, writeString("rows"))
	if err == nil {
		t.Fatal("Expected error for missing directory")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Expected not-exist error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(fallbackDir, "answers.csv")); !os.IsNotExist(statErr) {
		t.Fatal("Fallback file must not be written for non-permission errors")
	}
}

func TestWrite_BothFail(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "answers.csv")
	fallbackDir := filepath.Join(dir, "desktop")
	denyPaths(t, primary, filepath.Join(fallbackDir, "answers.csv"))

	_, err := Write(primary, fallbackDir, writeString("rows"))
	if err == nil {
		t.Fatal("Expected error when both locations fail")
	}

	var fbErr *FallbackError
	if !errors.As(err, &fbErr) {
		t.Fatalf("Expected *FallbackError, got %T", err)
	}
	if !IsPermission(err) {
		t.Fatal("Expected wrapped permission error")
	}
	if !strings.Contains(err.Error(), "fallback") {
		t.Fatalf("Expected message to mention fallback, got %q", err.Error())
	}
}

func TestWrite_WriterErrorReturned(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("encode failed")

	_, err := Write(filepath.Join(dir, "x.json"), dir, func(io.Writer) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Expected writer error, got %v", err)
	}
}

func TestWritePath_ReportsTarget(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "log.json")
	fallbackDir := filepath.Join(dir, "desktop")
	if err := os.MkdirAll(fallbackDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	denyPaths(t, primary)

	var targets []string
	got, err := WritePath(primary, fallbackDir, func(path string, w io.Writer) error {
		targets = append(targets, path)
		_, err := io.WriteString(w, path)
		return err
	})
	if err != nil {
		t.Fatalf("WritePath() error: %v", err)
	}

	want := FallbackPath(primary, fallbackDir)
	if got != want {
		t.Fatalf("Expected %q, got %q", want, got)
	}
	if len(targets) != 1 || targets[0] != want {
		t.Fatalf("Expected fn to be called for the fallback only, got %v", targets)
	}
}

func TestDefaultFallbackDir(t *testing.T) {
	if got := DefaultFallbackDir(); filepath.Base(got) != "Desktop" {
		t.Errorf("Expected Desktop directory, got %q", got)
	}
}
