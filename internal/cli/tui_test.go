package cli

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Bibi40k/subchunker/internal/pipeline"
)

// pollUntil feeds poll ticks to m until cond holds or the model quits.
func pollUntil(t *testing.T, m tuiModel, cond func(tuiModel) bool) tuiModel {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		next, _ := m.Update(pollMsg(time.Now()))
		m = next.(tuiModel)
		if cond(m) || m.closed {
			return m
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached; stage=%s gap=%v", m.stage, m.gap)
	return m
}

func press(m tuiModel, key tea.KeyMsg) tuiModel {
	next, _ := m.Update(key)
	return next.(tuiModel)
}

func runeKey(r rune) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}} }

func TestTUIModelResolvesRequiredGap(t *testing.T) {
	layout := testLayout(t)
	dir := layout.PluginsDir(testVersion)
	opened := recordOpens(t)
	run, cancel := startTestRun(t, layout, allOff())

	m := newTUIModel(run, cancel, time.Millisecond, testVersion, dir)
	m = pollUntil(t, m, func(m tuiModel) bool { return m.gap != nil })
	if m.gap == nil || m.gap.Plugin.ID != "chunky" {
		t.Fatalf("expected chunky gap, got %v", m.gap)
	}
	if m.stage != pipeline.StageInstallingPlugins {
		t.Fatalf("unexpected stage %s", m.stage)
	}
	if view := m.View(); !strings.Contains(view, "Chunky (required) is not installed") || strings.Contains(view, "s skip") {
		t.Fatalf("unexpected gap view:\n%s", view)
	}

	m = press(m, runeKey('s'))
	if !strings.Contains(m.notice, "cannot be skipped") {
		t.Fatalf("unexpected notice %q", m.notice)
	}
	m = press(m, runeKey('o'))
	if got := opened(); len(got) != 1 || got[0] != m.gap.URL {
		t.Fatalf("unexpected opens: %v", got)
	}

	writePluginJar(t, dir, "chunky")
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = pollUntil(t, m, func(tuiModel) bool { return false })

	if !m.closed || m.final == nil || m.final.Kind != pipeline.EventFinished {
		t.Fatalf("expected finished run, got %#v", m.final)
	}
	if m.avg.Count() != 2 || m.fraction != 1 {
		t.Fatalf("samples not applied: count=%d fraction=%v", m.avg.Count(), m.fraction)
	}
	if view := m.View(); !strings.Contains(view, "score 12.50 chunks/s") {
		t.Fatalf("missing score in view:\n%s", view)
	}
}

func TestTUIModelQuitCancelsRun(t *testing.T) {
	layout := testLayout(t)
	run, cancel := startTestRun(t, layout, allOff())

	m := newTUIModel(run, cancel, time.Millisecond, testVersion, layout.PluginsDir(testVersion))
	m = pollUntil(t, m, func(m tuiModel) bool { return m.gap != nil })
	m = press(m, runeKey('q'))
	if !m.quitting {
		t.Fatalf("expected quitting state")
	}
	m = pollUntil(t, m, func(tuiModel) bool { return false })
	if m.final == nil || m.final.Kind != pipeline.EventFailed {
		t.Fatalf("expected failed run, got %#v", m.final)
	}
}

func TestStageTitleAndClamp(t *testing.T) {
	if stageTitle(pipeline.StageIdle) != "Starting" || stageTitle(pipeline.StageRunning) != "Running benchmark" {
		t.Fatalf("unexpected stage titles")
	}
	if clamp01(-1) != 0 || clamp01(2) != 1 || clamp01(0.4) != 0.4 {
		t.Fatalf("clamp01 out of range")
	}
}
