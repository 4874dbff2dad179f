package cli

import (
	"context"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/passprotect-go/internal/agent"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	Status    lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
	Assistant lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:    lipgloss.Color("#5FAFD7"), // light blue
	Success:   lipgloss.Color("#00D787"), // green
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
	Assistant: lipgloss.Color("#D7D7FF"), // pale lavender
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

func (t Theme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Assistant)
}

// stepMsg carries an orchestrator step into the UI.
type stepMsg agent.Step

// turnDoneMsg ends the UI once the turn has been appended.
type turnDoneMsg struct{}

// progressModel is the bubbletea model for one running turn.
type progressModel struct {
	progress  progress.Model
	theme     Theme
	step      agent.Step
	started   bool
	cancel    context.CancelFunc
	cancelled bool
	done      bool
}

func newProgressModel(cancel context.CancelFunc) progressModel {
	return progressModel{
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(30),
		),
		theme:  defaultTheme,
		cancel: cancel,
	}
}

// Init returns the initial command.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			// Wait for the turn to record its cancellation before quitting.
			if !m.cancelled {
				m.cancelled = true
				m.cancel()
			}
		}

	case stepMsg:
		m.step = agent.Step(msg)
		m.started = true

	case turnDoneMsg:
		m.done = true
		return m, tea.Quit

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
		return ""
	}
	if !m.started {
		return m.theme.hintStyle().Render("Thinking...") + "\n"
	}

	var pct float64
	if m.step.MaxIterations > 0 {
		pct = float64(m.step.Iteration) / float64(m.step.MaxIterations)
	}

	label := stepLabel(m.step)
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", label))
	counts := fmt.Sprintf("step %d/%d", m.step.Iteration, m.step.MaxIterations)

	hint := "Press Ctrl+C to cancel this turn"
	if m.cancelled {
		hint = "Cancelling, waiting for running tools..."
	}
	return fmt.Sprintf("%s %s %s\n%s\n", status, m.progress.ViewAs(pct), counts, m.theme.hintStyle().Render(hint))
}

func stepLabel(s agent.Step) string {
	switch s.State {
	case agent.StateReasoning:
		return "thinking"
	case agent.StateToolExecution:
		if s.Calls == 1 {
			return "running 1 tool"
		}
		return fmt.Sprintf("running %d tools", s.Calls)
	case agent.StateResponded:
		return "answering"
	default:
		return string(s.State)
	}
}

type turnResult struct {
	turn agent.Turn
	err  error
}

// runTurnWithProgress sends message and shows the turn's steps while it
// runs. Ctrl+C cancels only this turn.
func runTurnWithProgress(ctx context.Context, orch *agent.Orchestrator, sessionID string, identity models.Identity, message string) (agent.Turn, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(cancel))
	unsubscribe := orch.Subscribe(func(s agent.Step) {
		if s.SessionID == sessionID {
			p.Send(stepMsg(s))
		}
	})
	defer unsubscribe()

	resCh := make(chan turnResult, 1)
	go func() {
		turn, err := orch.Send(ctx, sessionID, identity, message)
		resCh <- turnResult{turn: turn, err: err}
		p.Send(turnDoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		// Without a UI there is nobody to cancel; let the turn finish.
		res := <-resCh
		if res.err == nil {
			return res.turn, nil
		}
		return res.turn, fmt.Errorf("progress UI error: %w (turn: %w)", err, res.err)
	}
	res := <-resCh
	return res.turn, res.err
}
