package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/unitbridge/unitbridge/types"
)

// ConsolePrinter renders per-test progress to a writer as result events
// arrive. It is safe for use from the run's event-delivery goroutine.
type ConsolePrinter struct {
	mu  sync.Mutex
	out io.Writer

	pass *color.Color
	fail *color.Color
	skip *color.Color
	dim  *color.Color
}

// NewConsolePrinter creates a printer writing to out.
func NewConsolePrinter(out io.Writer) *ConsolePrinter {
	return &ConsolePrinter{
		out:  out,
		pass: color.New(color.FgGreen),
		fail: color.New(color.FgRed, color.Bold),
		skip: color.New(color.FgYellow),
		dim:  color.New(color.Faint),
	}
}

// TestStarted prints the name of a test entering the running state.
func (p *ConsolePrinter) TestStarted(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dim.Fprintf(p.out, "  ... %s\n", name)
}

// TestFinished prints a test's terminal status and duration.
func (p *ConsolePrinter) TestFinished(name string, status types.NodeStatus, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch status {
	case types.NodeStatusPass:
		p.pass.Fprintf(p.out, "  ✓ %s", name)
	case types.NodeStatusFail:
		p.fail.Fprintf(p.out, "  ✗ %s", name)
	case types.NodeStatusSkip:
		p.skip.Fprintf(p.out, "  - %s (skipped)", name)
	default:
		fmt.Fprintf(p.out, "  ? %s", name)
	}
	p.dim.Fprintf(p.out, " (%.2fs)\n", duration.Seconds())
}

// RunFinished prints the end-of-stream marker.
func (p *ConsolePrinter) RunFinished() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
}
