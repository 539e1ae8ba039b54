// Package savefile writes output files with a fallback location for when the
// primary directory is not writable.
package savefile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FallbackError is returned when both the primary and the fallback write fail.
type FallbackError struct {
	PrimaryPath  string
	FallbackPath string
	PrimaryErr   error
	FallbackErr  error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("write %s: %v; fallback %s: %v", e.PrimaryPath, e.PrimaryErr, e.FallbackPath, e.FallbackErr)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.PrimaryErr, e.FallbackErr}
}

// DefaultFallbackDir returns the user's Desktop directory.
func DefaultFallbackDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "Desktop"
	}
	return filepath.Join(homeDir, "Desktop")
}

// IsPermission reports whether err is a permission failure.
func IsPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

// Write creates primaryPath and fills it with fn. Only a permission failure
// triggers a retry at fallbackDir with the same base name; any other error is
// returned as is. The path actually written is returned.
func Write(primaryPath, fallbackDir string, fn func(io.Writer) error) (string, error) {
	return WritePath(primaryPath, fallbackDir, func(_ string, w io.Writer) error {
		return fn(w)
	})
}

// WritePath is Write with fn told which file it is filling, so callers can
// merge with what the fallback file already holds.
func WritePath(primaryPath, fallbackDir string, fn func(path string, w io.Writer) error) (string, error) {
	err := writeFile(primaryPath, fn)
	if err == nil {
		return primaryPath, nil
	}
	if !IsPermission(err) || fallbackDir == "" {
		return "", err
	}

	fallbackPath := FallbackPath(primaryPath, fallbackDir)
	slog.Warn("savefile_permission_denied",
		"path", primaryPath,
		"fallback_path", fallbackPath,
		"error", err,
	)

	if ferr := writeFile(fallbackPath, fn); ferr != nil {
		slog.Error("savefile_fallback_failed", "path", fallbackPath, "error", ferr)
		return "", &FallbackError{
			PrimaryPath:  primaryPath,
			FallbackPath: fallbackPath,
			PrimaryErr:   err,
			FallbackErr:  ferr,
		}
	}

	slog.Info("savefile_fallback_written", "path", fallbackPath)
	return fallbackPath, nil
}

// FallbackPath is where a permission-denied write of primaryPath ends up.
func FallbackPath(primaryPath, fallbackDir string) string {
	return filepath.Join(fallbackDir, filepath.Base(primaryPath))
}

var openFile = func(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func writeFile(path string, fn func(string, io.Writer) error) error {
	f, err := openFile(path)
	if err != nil {
		return err
	}
	if err := fn(path, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
