package benchmark

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Bibi40k/subchunker/internal/failure"
	"github.com/Bibi40k/subchunker/internal/stats"
	"github.com/Bibi40k/subchunker/internal/supervisor"
	"github.com/Bibi40k/subchunker/internal/workspace"
)

const DefaultReadyMarker = "Done ("

// DefaultCommands start a 1000-block pregeneration once the server is ready.
var DefaultCommands = []string{"chunky radius 1000", "chunky start"}

// Workload describes how the server is driven during a run.
type Workload struct {
	Marker       string
	ReadyMarker  string
	Commands     []string
	StopCommand  string
	ExtraArgs    []string
	HeadlessFlag string
}

func (w Workload) withDefaults() Workload {
	if w.Marker == "" {
		w.Marker = DefaultMarker
	}
	if w.ReadyMarker == "" {
		w.ReadyMarker = DefaultReadyMarker
	}
	if w.Commands == nil {
		w.Commands = DefaultCommands
	}
	if w.StopCommand == "" {
		w.StopCommand = supervisor.DefaultStopCommand
	}
	return w
}

type Result struct {
	Score    float64
	Samples  uint64
	Duration time.Duration
}

// Runner launches one benchmark and reduces its rate samples to a score.
type Runner struct {
	Launcher supervisor.Launcher
	Layout   workspace.Layout
	Workload Workload
	Logger   *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run blocks until the server exits. Every parsed sample is passed to emit in
// output order before it is folded into the average. The run fails when the
// server exits without reporting completion.
func (r *Runner) Run(ctx context.Context, version, distribution string, memoryGB int, emit func(Sample)) (Result, error) {
	logger := r.logger().With("version", version, "runtime", strings.ToLower(distribution))
	w := r.Workload.withDefaults()
	parser := Parser{Marker: w.Marker}

	var (
		avg       stats.RunningAverage
		console   *supervisor.Console
		ready     bool
		completed bool
		skipped   int
	)

	onLine := func(line string) {
		if !ready && strings.Contains(line, w.ReadyMarker) {
			ready = true
			logger.Info("server ready, starting workload", "commands", strings.Join(w.Commands, "; "))
			for _, c := range w.Commands {
				if err := console.Send(c); err != nil {
					logger.Warn("send workload command failed", "command", c, "error", err)
				}
			}
			return
		}
		samples, err := parser.Parse(line)
		if err != nil {
			skipped++
			logger.Warn("skip malformed benchmark line", "line", line, "error", err)
			return
		}
		if len(samples) == 0 {
			logger.Debug("server output", "line", line)
			return
		}
		for _, s := range samples {
			if emit != nil {
				emit(s)
			}
			switch {
			case s.Kind == SampleRate:
				avg.Add(s.Value)
			case s.Terminal() && !completed:
				completed = true
				logger.Info("benchmark complete, stopping server", "samples", avg.Count(), "score", avg.Average())
				if err := console.Send(w.StopCommand); err != nil {
					logger.Warn("send stop command failed", "error", err)
				}
			}
		}
	}

	spec := supervisor.Spec{
		Dir:          r.Layout.VersionDir(version),
		Java:         r.Layout.JavaBinary(distribution),
		MemoryGB:     memoryGB,
		Args:         w.ExtraArgs,
		Headless:     true,
		HeadlessFlag: w.HeadlessFlag,
		OnStart:      func(c *supervisor.Console) { console = c },
		OnLine:       onLine,
		StopCommand:  w.StopCommand,
		CleanupDir:   r.Layout.WorldDir(version),
	}

	status, err := r.Launcher.Launch(ctx, spec)
	if err != nil {
		return Result{}, err
	}
	if !completed {
		return Result{}, failure.Newf(failure.KindLaunch, "server exited with code %d before the benchmark completed", status.Code)
	}
	if skipped > 0 {
		logger.Warn("benchmark finished with skipped lines", "skipped", skipped)
	}
	return Result{Score: avg.Average(), Samples: avg.Count(), Duration: status.Duration}, nil
}
