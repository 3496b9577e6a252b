package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// isTerminal reports whether f is attached to a terminal.
var isTerminal = func(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// stageProgress prints "[n/m]" stage headers and a single rewritable status
// line under the current stage.
type stageProgress struct {
	out     io.Writer
	total   int
	current int
	enabled bool

	transient bool
	started   time.Time
}

func newStageProgress(out io.Writer, total int, enabled bool) *stageProgress {
	return &stageProgress{out: out, total: total, enabled: enabled}
}

func (p *stageProgress) start(step, desc string) {
	if !p.enabled {
		return
	}
	p.endTransient()
	p.current++
	p.started = time.Now()
	pct := (p.current - 1) * 100 / p.total
	fmt.Fprintf(p.out, "\n\033[35m[%d/%d]\033[0m \033[1m%s\033[0m \033[90m(%d%%)\033[0m\n", p.current, p.total, step, pct)
	fmt.Fprintf(p.out, "  \033[90m%s\033[0m\n", desc)
}

func (p *stageProgress) done(msg string) {
	if !p.enabled || p.current == 0 {
		return
	}
	p.endTransient()
	pct := p.current * 100 / p.total
	fmt.Fprintf(p.out, "  \033[32m✓ %s\033[0m in %s \033[90m[%d/%d %d%%]\033[0m\n",
		msg, time.Since(p.started).Truncate(time.Millisecond), p.current, p.total, pct)
}

func (p *stageProgress) failed(reason string) {
	if !p.enabled {
		return
	}
	p.endTransient()
	fmt.Fprintf(p.out, "  \033[31m✗ %s\033[0m\n", reason)
}

// line prints a permanent message under the current stage.
func (p *stageProgress) line(msg string) {
	if !p.enabled {
		return
	}
	p.endTransient()
	fmt.Fprintf(p.out, "  %s\n", msg)
}

// status replaces the rewritable status line.
func (p *stageProgress) status(msg string) {
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.out, "\r\033[K  \033[90m%s\033[0m", strings.TrimSpace(msg))
	p.transient = true
}

func (p *stageProgress) heartbeat(step string) {
	if !p.enabled || p.current == 0 {
		return
	}
	p.status(fmt.Sprintf("... %s running (%s)", step, time.Since(p.started).Truncate(time.Second)))
}

func (p *stageProgress) endTransient() {
	if p.transient {
		fmt.Fprintln(p.out)
		p.transient = false
	}
}
