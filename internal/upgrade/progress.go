package upgrade

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressReporter receives the transfer progress as a percentage.
// Implementations must be safe for concurrent use.
type ProgressReporter interface {
	Report(percent int)
}

// NopProgress discards every report. It is used in silent mode.
type NopProgress struct{}

func (NopProgress) Report(int) {}

const barWidth = 25

// BarProgress renders a single-line progress bar, redrawn in place with '\r'.
type BarProgress struct {
	mu   sync.Mutex
	w    io.Writer
	last int
}

// NewBarProgress returns a bar that writes to w.
func NewBarProgress(w io.Writer) *BarProgress {
	return &BarProgress{w: w, last: -1}
}

// Report draws the bar for percent, clamped to [0, 100]. Values lower than
// the last drawn one are ignored.
func (b *BarProgress) Report(percent int) {
	percent = min(max(percent, 0), 100)

	b.mu.Lock()
	defer b.mu.Unlock()

	if percent <= b.last {
		return
	}
	b.last = percent

	bar := strings.Repeat("=", percent/4)
	_, _ = fmt.Fprintf(b.w, "Sending WPK: [%-*s] %d%%   \r", barWidth, bar, percent)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(percent int)

func (f ProgressFunc) Report(percent int) { f(percent) }
