package ui

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"dify_cli/pkg/ui/styles"

	"charm.land/bubbles/v2/spinner"
)

// Spinner animates a waiting indicator on a single terminal line. It draws
// from its own goroutine so it can run while a blocking request is in flight.
type Spinner struct {
	out     io.Writer
	message string
	frames  []string
	fps     time.Duration

	started atomic.Bool
	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

// NewSpinner creates a spinner that writes to out (normally stderr).
func NewSpinner(out io.Writer, message string) *Spinner {
	return newSpinner(out, message, spinner.Dot)
}

// NewPointsSpinner uses the quieter points animation.
func NewPointsSpinner(out io.Writer, message string) *Spinner {
	return newSpinner(out, message, spinner.Points)
}

func newSpinner(out io.Writer, message string, s spinner.Spinner) *Spinner {
	fps := s.FPS
	if fps <= 0 {
		fps = time.Second / 10
	}
	return &Spinner{
		out:     out,
		message: message,
		frames:  s.Frames,
		fps:     fps,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Stop ends the animation and blocks until the line has been cleared. It is
// safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		if s.started.Load() {
			<-s.stopped
		}
	})
}

func (s *Spinner) run() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.fps)
	defer ticker.Stop()

	var frame int
	for {
		select {
		case <-s.done:
			fmt.Fprint(s.out, "\r\033[K")
			return
		case <-ticker.C:
			f := s.frames[frame%len(s.frames)]
			fmt.Fprintf(s.out, "\r%s %s",
				styles.SpinnerStyle.Render(f),
				styles.TextMutedStyle.Render(s.message))
			frame++
		}
	}
}
