// Package pipeline sequences provisioning, plugin reconciliation and the
// benchmark run, and reports every step as an Event on a channel.
package pipeline

import (
	"fmt"

	"github.com/Bibi40k/subchunker/internal/benchmark"
	"github.com/Bibi40k/subchunker/internal/plugins"
	"github.com/Bibi40k/subchunker/pkg/model"
)

// Stage only moves forward: Idle, Installing, InstallingPlugins, Running,
// Finished. A failed run stops at the stage it failed in.
type Stage int

const (
	StageIdle Stage = iota
	StageInstalling
	StageInstallingPlugins
	StageRunning
	StageFinished
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageInstalling:
		return "installing"
	case StageInstallingPlugins:
		return "installing_plugins"
	case StageRunning:
		return "running"
	case StageFinished:
		return "finished"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

type EventKind int

const (
	// EventProgress carries Fraction in [0,1] for the current stage. A new
	// stage restarts at 0.
	EventProgress EventKind = iota + 1
	EventStatus
	// EventInstalling carries a human-readable Message.
	EventInstalling
	EventError
	EventSample
	// EventPluginGap asks the observer to get Gap installed, then call
	// Run.Acknowledge or Run.Skip.
	EventPluginGap
	// EventFinished and EventFailed are terminal; the channel closes after
	// either.
	EventFinished
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventStatus:
		return "status"
	case EventInstalling:
		return "installing"
	case EventError:
		return "error"
	case EventSample:
		return "sample"
	case EventPluginGap:
		return "plugin_gap"
	case EventFinished:
		return "finished"
	case EventFailed:
		return "failed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a tagged union; only the fields of its Kind are set.
type Event struct {
	Kind     EventKind
	Fraction float64
	Stage    Stage
	Message  string
	Sample   benchmark.Sample
	Gap      plugins.Gap
	Score    float64
	Result   *model.BenchmarkResult
}

func (e Event) Terminal() bool { return e.Kind == EventFinished || e.Kind == EventFailed }

func progressEvent(f float64) Event { return Event{Kind: EventProgress, Fraction: f} }
func statusEvent(s Stage) Event { return Event{Kind: EventStatus, Stage: s} }
func installingEvent(msg string) Event { return Event{Kind: EventInstalling, Message: msg} }
func errorEvent(msg string) Event { return Event{Kind: EventError, Message: msg} }
func sampleEvent(s benchmark.Sample) Event { return Event{Kind: EventSample, Sample: s} }
func gapEvent(g plugins.Gap) Event { return Event{Kind: EventPluginGap, Gap: g, Message: g.URL} }

// Drain returns every event already queued on ch without blocking. open is
// false once ch has been closed and fully drained.
func Drain(ch <-chan Event) (events []Event, open bool) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events, false
			}
			events = append(events, ev)
		default:
			return events, true
		}
	}
}
