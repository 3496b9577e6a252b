package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Bibi40k/subchunker/internal/benchmark"
	"github.com/Bibi40k/subchunker/internal/pipeline"
	"github.com/Bibi40k/subchunker/internal/plugins"
	"github.com/Bibi40k/subchunker/internal/stats"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stageStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	urlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Underline(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	maxBarWidth = 72
)

type pollMsg time.Time

// tuiModel renders a run and turns key presses into plugin acknowledgements.
// It never blocks on the run; it drains queued events on every poll tick.
type tuiModel struct {
	run        *pipeline.Run
	cancel     context.CancelFunc
	poll       time.Duration
	header     string
	pluginsDir string

	stage    pipeline.Stage
	fraction float64
	message  string
	rate     float64
	avg      stats.RunningAverage
	gap      *plugins.Gap
	notice   string
	errs     []string
	final    *pipeline.Event
	closed   bool
	quitting bool
	bar      progress.Model
}

func newTUIModel(run *pipeline.Run, cancel context.CancelFunc, poll time.Duration, header, pluginsDir string) tuiModel {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = maxBarWidth
	return tuiModel{
		run:        run,
		cancel:     cancel,
		poll:       poll,
		header:     header,
		pluginsDir: pluginsDir,
		bar:        bar,
	}
}

func (m tuiModel) tick() tea.Cmd {
	return tea.Tick(m.poll, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func (m tuiModel) Init() tea.Cmd { return m.tick() }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, maxBarWidth)
		return m, nil
	case tea.KeyMsg:
		return m.key(msg)
	case pollMsg:
		events, open := pipeline.Drain(m.run.Events())
		for _, ev := range events {
			m = m.apply(ev)
		}
		if !open {
			m.closed = true
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

func (m tuiModel) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.closed {
			return m, tea.Quit
		}
		if !m.quitting {
			m.quitting = true
			m.notice = "Stopping..."
			m.cancel()
		}
	case "o":
		if m.gap != nil {
			m.notice = noticeFor(openURL(m.gap.URL), "Opened "+m.gap.URL)
		}
	case "f":
		m.notice = noticeFor(openDir(m.pluginsDir), "Opened "+m.pluginsDir)
	case "enter":
		if m.gap != nil && m.run.Acknowledge(m.gap.Plugin.ID) {
			m.notice = "Checking for " + m.gap.Plugin.Name + "..."
		}
	case "s":
		if m.gap == nil {
			break
		}
		if m.gap.Plugin.Required {
			m.notice = m.gap.Plugin.Name + " is required and cannot be skipped"
			break
		}
		if m.run.Skip(m.gap.Plugin.ID) {
			m.notice = "Skipped " + m.gap.Plugin.Name
		}
	}
	return m, nil
}

func noticeFor(err error, ok string) string {
	if err != nil {
		return err.Error()
	}
	return ok
}

func (m tuiModel) apply(ev pipeline.Event) tuiModel {
	switch ev.Kind {
	case pipeline.EventStatus:
		m.stage = ev.Stage
		m.fraction = 0
		if ev.Stage == pipeline.StageFinished {
			m.fraction = 1
		}
		m.gap = nil
		m.message = ""
	case pipeline.EventProgress:
		m.fraction = ev.Fraction
	case pipeline.EventInstalling:
		m.message = ev.Message
	case pipeline.EventSample:
		switch ev.Sample.Kind {
		case benchmark.SampleProgress:
			m.fraction = ev.Sample.Value
		case benchmark.SampleRate:
			m.rate = ev.Sample.Value
			m.avg.Add(ev.Sample.Value)
		}
	case pipeline.EventPluginGap:
		g := ev.Gap
		m.gap = &g
	case pipeline.EventError:
		m.errs = append(m.errs, ev.Message)
	case pipeline.EventFinished, pipeline.EventFailed:
		final := ev
		m.final = &final
	}
	return m
}

func (m tuiModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("subchunker"))
	b.WriteString(" " + dimStyle.Render(m.header) + "\n\n")
	b.WriteString(stageStyle.Render(stageTitle(m.stage)) + "\n")
	b.WriteString(m.bar.ViewAs(clamp01(m.fraction)) + "\n")
	if m.message != "" {
		b.WriteString(dimStyle.Render(m.message) + "\n")
	}
	if m.stage == pipeline.StageRunning || m.avg.Count() > 0 {
		fmt.Fprintf(&b, "%.1f chunks/s  %s\n", m.rate,
			dimStyle.Render(fmt.Sprintf("avg %.1f over %d samples", m.avg.Average(), m.avg.Count())))
	}
	if m.gap != nil {
		b.WriteString("\n" + boxStyle.Render(m.gapView()) + "\n")
	}
	for _, e := range m.errs {
		b.WriteString(errStyle.Render("✗ "+e) + "\n")
	}
	if m.final != nil && m.final.Kind == pipeline.EventFinished {
		b.WriteString(okStyle.Render(fmt.Sprintf("✓ score %.2f chunks/s", m.final.Score)) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + warnStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(m.help()) + "\n")
	return b.String()
}

func (m tuiModel) gapView() string {
	g := m.gap
	kind := "optional"
	if g.Plugin.Required {
		kind = "required"
	}
	lines := []string{
		warnStyle.Render(fmt.Sprintf("%s (%s) is not installed", g.Plugin.Name, kind)),
		urlStyle.Render(g.URL),
		dimStyle.Render("Install into " + m.pluginsDir),
	}
	return strings.Join(lines, "\n")
}

func (m tuiModel) help() string {
	keys := []string{"q quit", "f plugins folder"}
	if m.gap != nil {
		keys = append([]string{"o open page", "enter installed"}, keys...)
		if !m.gap.Plugin.Required {
			keys = append(keys, "s skip")
		}
	}
	return strings.Join(keys, " • ")
}

func stageTitle(s pipeline.Stage) string {
	switch s {
	case pipeline.StageInstalling:
		return "Installing"
	case pipeline.StageInstallingPlugins:
		return "Checking plugins"
	case pipeline.StageRunning:
		return "Running benchmark"
	case pipeline.StageFinished:
		return "Finished"
	}
	return "Starting"
}

func clamp01(f float64) float64 {
	return max(0, min(f, 1))
}

// runTUI blocks until the run's event channel closes or the program fails.
func runTUI(run *pipeline.Run, cancel context.CancelFunc, poll time.Duration, header, pluginsDir string) error {
	p := tea.NewProgram(newTUIModel(run, cancel, poll, header, pluginsDir), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		cancel()
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}
