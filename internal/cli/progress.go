package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/jhowland/camsift/internal/pipeline"
)

const pollInterval = 250 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers reading the tracker counters.
type tickMsg time.Time

// runDoneMsg arrives when the dispatcher has drained every batch.
type runDoneMsg struct{}

// counters is a point-in-time copy of the tracker.
type counters struct {
	total      int64
	done       int64
	accepted   int64
	failed     int64
	duplicates int64
}

func readCounters(t *pipeline.Tracker) counters {
	return counters{
		total:      t.Total(),
		done:       t.Done(),
		accepted:   t.Accepted(),
		failed:     t.Failed(),
		duplicates: t.Duplicates(),
	}
}

// scanModel is the bubbletea model for a scan run. The dispatcher runs in
// its own goroutine; the model only reads counters and signals cancellation.
type scanModel struct {
	tracker  *pipeline.Tracker
	runDone  <-chan struct{}
	cancel   context.CancelFunc
	counts   counters
	progress progress.Model
	theme    Theme
	stopping bool
	finished bool
}

func newScanModel(tracker *pipeline.Tracker, runDone <-chan struct{}, cancel context.CancelFunc) scanModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return scanModel{
		tracker:  tracker,
		runDone:  runDone,
		cancel:   cancel,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m scanModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.waitForRun(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Cancel the run but keep the UI up until in-flight
			// workers unwind, so the final counters are accurate.
			m.stopping = true
			m.cancel()
			return m, nil
		}

	case tickMsg:
		m.counts = readCounters(m.tracker)
		return m, tickCmd()

	case runDoneMsg:
		m.counts = readCounters(m.tracker)
		m.finished = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m scanModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m scanModel) renderContent() string {
	if m.finished {
		return m.finalView()
	}

	var pct float64
	if m.counts.total > 0 {
		pct = float64(m.counts.done) / float64(m.counts.total)
	}

	label := "[scanning]"
	if m.stopping {
		label = "[stopping]"
	}
	status := m.theme.statusStyle().Render(label)

	progressBar := m.progress.ViewAs(pct)
	tally := fmt.Sprintf("%d/%d files, %d accepted", m.counts.done, m.counts.total, m.counts.accepted)

	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop; progress is saved")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, tally, hint)
}

// finalView renders the completion message.
func (m scanModel) finalView() string {
	var output string
	if m.stopping {
		output = m.theme.hintStyle().Render("\nStopped. Re-run scan to resume.\n")
	} else {
		output = m.theme.completedStyle().Render("✓ Scan complete") + "\n"
	}

	output += fmt.Sprintf("\n  Processed:  %d/%d\n", m.counts.done, m.counts.total)
	output += fmt.Sprintf("  Accepted:   %d\n", m.counts.accepted)
	if m.counts.duplicates > 0 {
		output += fmt.Sprintf("  Duplicates: %d\n", m.counts.duplicates)
	}
	if m.counts.failed > 0 {
		output += m.theme.errorStyle().Render(fmt.Sprintf("  Failed:     %d\n", m.counts.failed))
	}
	return output
}

// waitForRun blocks until the dispatcher goroutine finishes.
func (m scanModel) waitForRun() tea.Cmd {
	return func() tea.Msg {
		<-m.runDone
		return runDoneMsg{}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunScanProgress runs the interactive progress UI over a scan already in
// flight. It returns once the dispatcher goroutine closes runDone.
func RunScanProgress(tracker *pipeline.Tracker, runDone <-chan struct{}, cancel context.CancelFunc) error {
	model := newScanModel(tracker, runDone, cancel)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	return nil
}
