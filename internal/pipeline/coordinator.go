package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Bibi40k/subchunker/internal/benchmark"
	"github.com/Bibi40k/subchunker/internal/fetch"
	"github.com/Bibi40k/subchunker/internal/plugins"
	"github.com/Bibi40k/subchunker/internal/workspace"
	"github.com/Bibi40k/subchunker/pkg/model"
)

const (
	progressServerDone   = 0.25
	progressRuntimesDone = 0.65
	progressLicenseDone  = 1.0

	defaultBuffer = 256
)

type RuntimeProvisioner interface {
	Ensure(ctx context.Context, name string) error
}

type ServerProvisioner interface {
	Ensure(ctx context.Context, version, loader string) error
	AcceptLicense(ctx context.Context, version, distribution string, memoryGB int) error
}

type BenchmarkRunner interface {
	Run(ctx context.Context, version, distribution string, memoryGB int, emit func(benchmark.Sample)) (benchmark.Result, error)
}

// Coordinator owns the whole run, including the decision to leave
// InstallingPlugins: it waits on Run.Acknowledge and Run.Skip until the
// reconciler reports no gaps left.
type Coordinator struct {
	Layout    workspace.Layout
	Runtimes  RuntimeProvisioner
	Servers   ServerProvisioner
	Benchmark BenchmarkRunner
	Catalog   plugins.Catalog
	Logger    *slog.Logger
	// Buffer is the event channel capacity.
	Buffer int
}

type ack struct {
	id   string
	skip bool
}

// Run is a started job. Events must be drained until closed.
type Run struct {
	events chan Event
	acks   chan ack
	done   chan struct{}

	result model.BenchmarkResult
	err    error
}

func (r *Run) Events() <-chan Event { return r.events }

// Acknowledge reports that the pending plugin was installed out of band. The
// coordinator re-checks the plugin directory before moving on.
func (r *Run) Acknowledge(pluginID string) bool { return r.send(ack{id: pluginID}) }

// Skip declines the pending optional plugin.
func (r *Run) Skip(pluginID string) bool { return r.send(ack{id: pluginID, skip: true}) }

func (r *Run) send(a ack) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.acks <- a:
		return true
	default:
		return false
	}
}

// Wait blocks until the run ends and returns its result.
func (r *Run) Wait() (model.BenchmarkResult, error) {
	<-r.done
	return r.result, r.err
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Start validates and consumes job, then runs it on a new goroutine.
// Cancelling ctx aborts downloads and plugin waits and asks a running server
// to stop; the run then ends with EventFailed.
func (c *Coordinator) Start(ctx context.Context, job *Job) (*Run, error) {
	if err := job.validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	if err := job.consume(); err != nil {
		return nil, err
	}
	buf := c.Buffer
	if buf <= 0 {
		buf = defaultBuffer
	}
	r := &Run{
		events: make(chan Event, buf),
		acks:   make(chan ack, 1),
		done:   make(chan struct{}),
	}
	go c.work(ctx, job, r)
	return r, nil
}

// deliver prefers a free buffer slot even after cancellation so terminal
// events still reach an observer that is draining.
func deliver(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	default:
	}
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

type step struct {
	name  string
	desc  string
	stage Stage
	run   func(context.Context) error
}

func (c *Coordinator) work(ctx context.Context, job *Job, r *Run) {
	defer close(r.done)
	defer close(r.events)

	logger := c.logger().With("version", job.ServerVersion, "runtime", job.Runtime)
	emit := func(ev Event) { deliver(ctx, r.events, ev) }

	res := model.BenchmarkResult{
		Status:        "running",
		StartedAt:     time.Now().UTC(),
		ServerVersion: job.ServerVersion,
		LoaderVersion: job.LoaderVersion,
		Runtime:       job.Runtime,
		MemoryGB:      job.MemoryGB,
	}

	dctx := fetch.WithProgress(ctx, func(p fetch.Progress) { emit(installingEvent(p.String())) })
	runtimes := job.runtimes()

	steps := []step{
		{
			name:  "server_install",
			desc:  "Download the server jar if missing",
			stage: StageInstalling,
			run: func(context.Context) error {
				emit(installingEvent("Installing server " + job.ServerVersion))
				if err := c.Servers.Ensure(dctx, job.ServerVersion, job.LoaderVersion); err != nil {
					return err
				}
				emit(progressEvent(progressServerDone))
				return nil
			},
		},
		{
			name:  "runtime_install",
			desc:  "Download and unpack Java runtimes if missing",
			stage: StageInstalling,
			run: func(context.Context) error {
				band := progressRuntimesDone - progressServerDone
				for i, name := range runtimes {
					emit(installingEvent("Installing runtime " + name))
					if err := c.Runtimes.Ensure(dctx, name); err != nil {
						return err
					}
					f := progressServerDone + band*float64(i+1)/float64(len(runtimes))
					if i == len(runtimes)-1 {
						f = progressRuntimesDone
					}
					emit(progressEvent(f))
				}
				return nil
			},
		},
		{
			name:  "license_accept",
			desc:  "Accept the server license",
			stage: StageInstalling,
			run: func(ctx context.Context) error {
				emit(installingEvent("Accepting license"))
				if err := c.Servers.AcceptLicense(ctx, job.ServerVersion, job.Runtime, job.MemoryGB); err != nil {
					return err
				}
				emit(progressEvent(progressLicenseDone))
				return nil
			},
		},
		{
			name:  "plugin_reconcile",
			desc:  "Make sure required and selected plugins are installed",
			stage: StageInstallingPlugins,
			run: func(ctx context.Context) error {
				return c.reconcile(ctx, logger, job, r, emit)
			},
		},
		{
			name:  "benchmark",
			desc:  "Run the pregeneration benchmark",
			stage: StageRunning,
			run: func(ctx context.Context) error {
				out, err := c.Benchmark.Run(ctx, job.ServerVersion, job.Runtime, job.MemoryGB, func(s benchmark.Sample) {
					emit(sampleEvent(s))
				})
				if err != nil {
					return err
				}
				res.Score = out.Score
				res.Samples = out.Samples
				return nil
			},
		},
	}

	stage := StageIdle
	total := len(steps)
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			c.fail(ctx, logger, r, &res, s.name, err)
			return
		}
		if s.stage != stage {
			stage = s.stage
			emit(statusEvent(stage))
			emit(progressEvent(0))
		}
		current := i + 1
		logger.Info("progress",
			"step", fmt.Sprintf("[%d/%d]", current, total),
			"stage", stage.String(),
			"current", s.name,
			"description", s.desc,
		)
		started := time.Now()
		logger.Info("step start", "step", s.name)
		err := s.run(ctx)
		d := time.Since(started)
		if err != nil {
			res.Steps = append(res.Steps, model.StepResult{Name: s.name, Status: model.StepStatusFailed, Duration: d, Message: err.Error()})
			c.fail(ctx, logger, r, &res, s.name, err)
			return
		}
		res.Steps = append(res.Steps, model.StepResult{Name: s.name, Status: model.StepStatusSuccess, Duration: d})
		logger.Info("step success",
			"step", s.name,
			"duration", d.Truncate(time.Millisecond).String(),
			"progress", fmt.Sprintf("[%d/%d]", current, total),
		)
	}

	res.Status = "success"
	res.EndedAt = time.Now().UTC()
	r.result = res
	logger.Info("benchmark finished", "score", res.Score, "samples", res.Samples)
	emit(statusEvent(StageFinished))
	final := res
	emit(Event{Kind: EventFinished, Score: res.Score, Result: &final})
}

func (c *Coordinator) fail(ctx context.Context, logger *slog.Logger, r *Run, res *model.BenchmarkResult, stepName string, err error) {
	res.Status = "failed"
	res.Error = fmt.Sprintf("step %s failed: %v", stepName, err)
	res.EndedAt = time.Now().UTC()
	r.result = *res
	r.err = fmt.Errorf("step %s: %w", stepName, err)
	logger.Error("pipeline failed", "step", stepName, "error", err)

	final := *res
	deliver(ctx, r.events, errorEvent(err.Error()))
	deliver(ctx, r.events, Event{Kind: EventFailed, Message: res.Error, Result: &final})
}

func (c *Coordinator) reconcile(ctx context.Context, logger *slog.Logger, job *Job, r *Run, emit func(Event)) error {
	rec := &plugins.Reconciler{
		Catalog:   c.Catalog,
		Inspector: plugins.Inspector{Layout: c.Layout, Logger: logger},
		Version:   job.ServerVersion,
		Toggles:   job.Optional,
	}
	gaps, err := rec.Refresh()
	if err != nil {
		return err
	}
	if len(gaps) == 0 {
		logger.Info("all plugins present")
		emit(progressEvent(1))
		return nil
	}
	logger.Info("plugins missing", "count", len(gaps))

	position := make(map[string]int, len(gaps))
	for i, g := range gaps {
		position[g.Plugin.ID] = i
	}

	for {
		g, ok := rec.Current()
		if !ok {
			break
		}
		emit(progressEvent(float64(position[g.Plugin.ID]) / float64(len(gaps))))
		emit(installingEvent(fmt.Sprintf("Install %s for %s", g.Plugin.Name, job.ServerVersion)))
		emit(gapEvent(g))

		var a ack
		select {
		case a = <-r.acks:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !strings.EqualFold(a.id, g.Plugin.ID) {
			logger.Warn("ignoring acknowledgement for a plugin that is not pending", "got", a.id, "pending", g.Plugin.ID)
			continue
		}
		if a.skip {
			if err := rec.Skip(a.id); err != nil {
				emit(installingEvent(err.Error()))
				continue
			}
			logger.Info("plugin skipped", "plugin", g.Plugin.ID)
			continue
		}
		installed, err := rec.AcknowledgeInstalled(a.id)
		if err != nil {
			return err
		}
		if !installed {
			emit(installingEvent(fmt.Sprintf("%s not found in %s", g.Plugin.Name, c.Layout.PluginsDir(job.ServerVersion))))
			continue
		}
		logger.Info("plugin installed", "plugin", g.Plugin.ID)
	}
	emit(progressEvent(1))
	return nil
}
