package cli

import (
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/robfarr/markpilot/internal/workflow"
)

const (
	snapshotInterval = 100 * time.Millisecond

	// doneDelay is how long the completed summary stays up before the UI
	// returns to the prompt on its own. The timer belongs to the UI, not the
	// workflow, and any keypress cancels it.
	doneDelay = 2500 * time.Millisecond
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

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

// tickMsg triggers refreshing the workflow snapshot.
type tickMsg time.Time

// analysisDoneMsg and scoringDoneMsg carry phase results from the runner.
type analysisDoneMsg struct{ err error }
type scoringDoneMsg struct{ err error }

// navigateMsg fires when the done-timer expires.
type navigateMsg struct{}

// scoreModel is the bubbletea model driving one scoring workflow run.
type scoreModel struct {
	wf         *workflow.Workflow
	rubricPath string
	runner     func(phase workflow.State) tea.Cmd

	snap     workflow.Snapshot
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newScoreModel(wf *workflow.Workflow, rubricPath string, runner func(workflow.State) tea.Cmd) scoreModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return scoreModel{
		wf:         wf,
		rubricPath: rubricPath,
		runner:     runner,
		snap:       wf.Snapshot(),
		progress:   prog,
		theme:      defaultTheme,
	}
}

// Init starts the snapshot ticker and kicks off the analysis phase.
func (m scoreModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
		m.runner(workflow.StateAnalyzing),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(snapshotInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and returns the updated model.
func (m scoreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q", "enter":
			// Also cancels a pending done-timer: its navigateMsg is ignored
			// once quitting is set.
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.snap = m.wf.Snapshot()
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case analysisDoneMsg:
		m.snap = m.wf.Snapshot()
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		if m.rubricPath != "" {
			if err := m.wf.SelectRubric(m.rubricPath); err != nil {
				m.err = err
				m.done = true
				return m, tea.Quit
			}
		}
		return m, m.runner(workflow.StateScoring)

	case scoringDoneMsg:
		m.snap = m.wf.Snapshot()
		m.done = true
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		return m, tea.Tick(doneDelay, func(time.Time) tea.Msg {
			return navigateMsg{}
		})

	case navigateMsg:
		if !m.quitting {
			return m, tea.Quit
		}

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m scoreModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m scoreModel) renderContent() string {
	if m.err != nil {
		return m.theme.errorStyle().Render("✗ "+m.err.Error()) + "\n" +
			m.theme.hintStyle().Render("Fix the problem and run markpilot score again.") + "\n"
	}

	bar := m.progress.ViewAs(m.snap.Progress / 100)

	if m.done && m.snap.State == workflow.StateComplete {
		return fmt.Sprintf("%s %s\n%s\n",
			m.theme.completedStyle().Render("✓ Scoring complete"),
			bar,
			m.theme.hintStyle().Render("Press enter to continue"))
	}

	status := m.theme.statusStyle().Render(stateLabel(m.snap))
	return fmt.Sprintf("%s %s\n", status, bar)
}

func stateLabel(snap workflow.Snapshot) string {
	switch snap.State {
	case workflow.StateUpload:
		if snap.Processing {
			return "Uploading assignment..."
		}
		return "Preparing upload..."
	case workflow.StateAnalyzing:
		return "Analyzing assignment..."
	case workflow.StateRubric:
		if snap.Processing {
			return "Uploading rubric..."
		}
		return "Analysis complete"
	case workflow.StateScoring:
		return "Scoring against rubric..."
	case workflow.StateComplete:
		return "Complete"
	default:
		return string(snap.State)
	}
}
