package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/shopworks/sched/internal/models"
	"github.com/shopworks/sched/internal/service"
)

const pollInterval = 100 * time.Millisecond

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

// tickMsg triggers polling the run state.
type tickMsg time.Time

// progressModel is the bubbletea model for solve progress.
type progressModel struct {
	run       *service.Run
	snap      service.RunSnapshot
	progress  progress.Model
	theme     Theme
	done      bool
	cancelled bool
}

func newProgressModel(run *service.Run) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return progressModel{
		run:      run,
		snap:     run.Snapshot(),
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancelled = true
			m.run.Cancel()
			// Keep polling so the run settles before we quit.
			return m, nil
		}

	case tickMsg:
		m.snap = m.run.Snapshot()
		if m.snap.Phase.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.Phase))
	bar := m.progress.ViewAs(float64(m.snap.Pct) / 100)
	hint := "Press Ctrl+C to cancel"
	if m.cancelled {
		hint = "Cancelling..."
	}

	return fmt.Sprintf("%s %s %d%%\n%s\n", status, bar, m.snap.Pct, m.theme.hintStyle().Render(hint))
}

func (m progressModel) finalView() string {
	switch m.snap.Phase {
	case service.PhaseCancelled:
		return m.theme.hintStyle().Render("\nSolve cancelled.\n")
	case service.PhaseFailed:
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Solve failed: %s\n", m.snap.Error))
	default:
		return m.theme.completedStyle().Render("✓ Solved") + "\n"
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunSolveProgress runs the interactive progress UI for a solve and
// returns the finished schedule. Ctrl+C cancels the solve.
func RunSolveProgress(run *service.Run) (*models.Schedule, error) {
	p := tea.NewProgram(newProgressModel(run))

	if _, err := p.Run(); err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}

	// The run is terminal (or about to be); Wait returns its outcome.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return run.Wait(ctx)
}
