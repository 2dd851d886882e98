// Package progress redraws a one-line run status on a terminal while
// workers are in flight.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"loadswarm/internal/core"
)

const (
	refreshInterval = time.Second
	clearLine       = "\r\033[K"
)

// StatsSource reports live run counters.
type StatsSource interface {
	Stats() core.Stats
}

// IsTerminal reports whether w is a terminal, where redrawing a line works.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Progress prints StatsSource counters once per second. A quiet Progress
// prints nothing.
type Progress struct {
	source StatsSource
	quiet  bool

	mu      sync.Mutex
	out     io.Writer
	started time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewProgress(src StatsSource, quiet bool) *Progress {
	return &Progress{
		source: src,
		quiet:  quiet,
		out:    os.Stderr,
		done:   make(chan struct{}),
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = w
}

// Start begins redrawing. It must be called at most once.
func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.started = time.Now()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.redraw()
			}
		}
	}()
}

// Stop ends redrawing and clears the line. Safe to call more than once,
// or without Start.
func (p *Progress) Stop() {
	if p.quiet {
		return
	}
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.write(clearLine)
	})
}

// Write lets log output share the terminal with the status line: the line
// is cleared first and redrawn on the next tick.
func (p *Progress) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.quiet {
		io.WriteString(p.out, clearLine)
	}
	return p.out.Write(b)
}

func (p *Progress) redraw() {
	p.write(clearLine + Line(p.source.Stats(), time.Since(p.started)))
}

func (p *Progress) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.out, s)
}

// Line renders the status line, e.g.
// "[01:05] Active: 2 | Completed: 7 | Passed: 6 | Failed: 1".
func Line(s core.Stats, elapsed time.Duration) string {
	secs := int(elapsed.Round(time.Second).Seconds())

	var b strings.Builder
	fmt.Fprintf(&b, "[%02d:%02d] ", secs/60, secs%60)
	if s.Draining {
		b.WriteString("Draining | ")
	}
	fmt.Fprintf(&b, "Active: %d | Completed: %d | Passed: %d | Failed: %d",
		s.Active, s.Completed, s.Passed, s.Failed)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, " | Skipped: %d", s.Skipped)
	}
	return b.String()
}
