package cli

import (
	"context"
	"errors"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/speechkit-go/internal/client"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/workflow"
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

// stageProgress places each stage on the progress bar.
var stageProgress = map[models.Stage]float64{
	models.StagePending:        0,
	models.StageDownloading:    0.1,
	models.StageConverting:     0.25,
	models.StageTranscribing:   0.45,
	models.StagePostprocessing: 0.75,
	models.StageSending:        0.9,
	models.StageCompleted:      1,
}

// eventMsg carries one workflow event from the stream.
type eventMsg workflow.Event

// streamEndMsg is sent when the event stream closes.
type streamEndMsg struct{ err error }

// progressModel is the bubbletea model for a running pipeline.
type progressModel struct {
	runID    string
	events   <-chan tea.Msg
	stage    models.Stage
	last     *workflow.Event
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(runID string, stage models.Stage, events <-chan tea.Msg) progressModel {
	return progressModel{
		runID:    runID,
		events:   events,
		stage:    stage,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.progress.Init())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case eventMsg:
		event := workflow.Event(msg)
		m.last = &event
		if event.Stage != "" {
			m.stage = event.Stage
		}
		switch event.Type {
		case workflow.EventCompleted:
			m.done = true
			return m, tea.Quit
		case workflow.EventFailed, workflow.EventCancelled:
			m.done = true
			m.err = eventError(event)
			return m, tea.Quit
		}
		return m, m.waitForEvent()

	case streamEndMsg:
		m.done = true
		if msg.err != nil {
			m.err = fmt.Errorf("event stream: %w", msg.err)
		}
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.stage))
	bar := m.progress.ViewAs(stageProgress[m.stage])

	detail := ""
	if m.last != nil && m.last.Type == workflow.EventRetry {
		detail = m.theme.errorStyle().Render(fmt.Sprintf("retry %d: %s", m.last.Attempt, m.last.Message))
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")
	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, detail, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nRun %s continues in background.\nUse 'speechkit status %s' to check it.\n",
			m.runID, m.runID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}
	return m.theme.completedStyle().Render("✓ Completed") +
		fmt.Sprintf("\n\nUse 'speechkit confirm %s' or 'speechkit reject %s' to review.\n", m.runID, m.runID)
}

// waitForEvent blocks on the stream channel in a command goroutine.
func (m progressModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.events
		if !ok {
			return streamEndMsg{}
		}
		return msg
	}
}

func eventError(e workflow.Event) error {
	if e.Type == workflow.EventCancelled {
		return errors.New("run cancelled")
	}
	if e.Message != "" {
		return fmt.Errorf("run failed: %s", e.Message)
	}
	return errors.New("run failed")
}

// RunProgress shows a live progress bar for a run until it finishes.
// Returns nil on success or Ctrl+C (background), error on failure or cancellation.
func RunProgress(ctx context.Context, c *client.Client, runID string, stage models.Stage) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 16)
	go func() {
		defer close(events)
		err := c.WatchEvents(ctx, runID, 0, func(e workflow.Event) error {
			select {
			case events <- eventMsg(e):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case events <- streamEndMsg{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	finalModel, err := tea.NewProgram(newProgressModel(runID, stage, events)).Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok && !m.quitting {
		return m.err
	}
	return nil
}
