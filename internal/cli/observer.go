package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Bibi40k/subchunker/internal/benchmark"
	"github.com/Bibi40k/subchunker/internal/pipeline"
	"github.com/Bibi40k/subchunker/internal/plugins"
	"github.com/Bibi40k/subchunker/internal/stats"
)

const heartbeatInterval = 5 * time.Second

type stageInfo struct {
	label string
	desc  string
	done  string
}

var stageInfos = map[pipeline.Stage]stageInfo{
	pipeline.StageInstalling:        {label: "install", desc: "Install server, runtimes and accept the license", done: "installed"},
	pipeline.StageInstallingPlugins: {label: "plugins", desc: "Check required and selected plugins", done: "plugins ready"},
	pipeline.StageRunning:           {label: "benchmark", desc: "Pregenerate chunks and measure the rate", done: "benchmark complete"},
}

type observerOptions struct {
	poll time.Duration
	// interactive allows prompting for plugin gaps. Without it optional gaps
	// are skipped and a required gap aborts the run.
	interactive bool
	pluginsDir  string
	progress    *stageProgress
	logger      *slog.Logger
}

// headlessObserver turns pipeline events into terminal output and answers
// plugin gaps.
type headlessObserver struct {
	run    *pipeline.Run
	cancel context.CancelFunc
	opts   observerOptions

	stage     pipeline.Stage
	fraction  float64
	avg       stats.RunningAverage
	lastEvent time.Time
	err       error
}

// observe polls run until its event channel closes. It returns a non-nil
// error only when the observer itself ended the run.
func observe(run *pipeline.Run, cancel context.CancelFunc, opts observerOptions) error {
	if opts.poll <= 0 {
		opts.poll = 50 * time.Millisecond
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	o := &headlessObserver{run: run, cancel: cancel, opts: opts, lastEvent: time.Now()}

	ticker := time.NewTicker(opts.poll)
	defer ticker.Stop()
	for range ticker.C {
		events, open := pipeline.Drain(run.Events())
		for _, ev := range events {
			o.lastEvent = time.Now()
			o.handle(ev)
		}
		if !open {
			return o.err
		}
		if time.Since(o.lastEvent) >= heartbeatInterval {
			o.lastEvent = time.Now()
			if info, ok := stageInfos[o.stage]; ok {
				o.opts.progress.heartbeat(info.label)
			}
		}
	}
	return o.err
}

func (o *headlessObserver) handle(ev pipeline.Event) {
	p := o.opts.progress
	switch ev.Kind {
	case pipeline.EventStatus:
		if prev, ok := stageInfos[o.stage]; ok {
			p.done(prev.done)
		}
		o.stage = ev.Stage
		o.fraction = 0
		if info, ok := stageInfos[ev.Stage]; ok {
			p.start(info.label, info.desc)
		}
	case pipeline.EventProgress:
		o.fraction = ev.Fraction
	case pipeline.EventInstalling:
		if strings.HasPrefix(ev.Message, "Downloading") {
			p.status(ev.Message)
			return
		}
		p.line(fmt.Sprintf("\033[90m[%3.0f%%]\033[0m %s", o.fraction*100, ev.Message))
	case pipeline.EventSample:
		o.sample(ev.Sample)
	case pipeline.EventPluginGap:
		o.gap(ev.Gap)
	case pipeline.EventError:
		p.failed(ev.Message)
	case pipeline.EventFailed:
		o.opts.logger.Debug("run failed", "reason", ev.Message)
	case pipeline.EventFinished:
		o.opts.logger.Debug("run finished", "score", ev.Score)
	}
}

func (o *headlessObserver) sample(s benchmark.Sample) {
	switch s.Kind {
	case benchmark.SampleProgress:
		o.fraction = s.Value
	case benchmark.SampleRate:
		o.avg.Add(s.Value)
	}
	o.opts.progress.status(fmt.Sprintf("%5.1f%%  %.1f chunks/s (avg %.1f over %d samples)",
		o.fraction*100, o.lastRate(s), o.avg.Average(), o.avg.Count()))
}

func (o *headlessObserver) lastRate(s benchmark.Sample) float64 {
	if s.Kind == benchmark.SampleRate {
		return s.Value
	}
	return o.avg.Average()
}

func (o *headlessObserver) gap(g plugins.Gap) {
	logger := o.opts.logger.With("plugin", g.Plugin.ID, "url", g.URL)
	if o.err != nil {
		return
	}
	if !o.opts.interactive {
		if g.Plugin.Required {
			logger.Error("required plugin missing")
			o.abort(&userError{
				msg:  fmt.Sprintf("required plugin %s is not installed", g.Plugin.Name),
				hint: fmt.Sprintf("Download %s into %s and run again.", g.URL, o.opts.pluginsDir),
			})
			return
		}
		logger.Warn("optional plugin missing, skipping")
		o.run.Skip(g.Plugin.ID)
		return
	}

	o.opts.progress.endTransient()
	for {
		action, err := askGapAction(g, o.opts.pluginsDir)
		if err != nil {
			o.abort(fmt.Errorf("plugin prompt: %w", err))
			return
		}
		switch action {
		case gapOpenPage:
			if err := openURL(g.URL); err != nil {
				logger.Warn("open download page failed", "error", err)
			}
		case gapOpenFolder:
			if err := openDir(o.opts.pluginsDir); err != nil {
				logger.Warn("open plugins folder failed", "error", err)
			}
		case gapInstalled:
			o.run.Acknowledge(g.Plugin.ID)
			return
		case gapSkip:
			o.run.Skip(g.Plugin.ID)
			return
		case gapAbort:
			ok, err := confirm("Abort the benchmark?")
			if err != nil || ok {
				o.abort(&userError{msg: "benchmark aborted", hint: "Install the missing plugins and run again."})
				return
			}
		}
	}
}

func (o *headlessObserver) abort(err error) {
	if o.err == nil {
		o.err = err
	}
	o.cancel()
}
