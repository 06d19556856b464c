package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// refreshInterval is how often the dashboard reloads on its own
const refreshInterval = 2 * time.Second

// App is the main application model
type App struct {
	backend Backend
	state   *DashboardState
	err     error
	flash   string // result of the last action

	cursor int

	// Window size
	width  int
	height int
}

// NewApp creates a new application instance
func NewApp(backend Backend) *App {
	return &App{backend: backend}
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadState, tick())
}

// stateMsg is sent when state loading completes
type stateMsg struct {
	state *DashboardState
	err   error
}

// actionMsg is sent when a submit, cancel or reset finishes
type actionMsg struct {
	message string
	err     error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// loadState loads dashboard state from the backend
func (a *App) loadState() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	state, err := LoadState(ctx, a.backend)
	return stateMsg{state: state, err: err}
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tickMsg:
		return a, tea.Batch(a.loadState, tick())

	case stateMsg:
		a.err = msg.err
		if msg.err == nil {
			a.state = msg.state
			a.clampCursor()
		}
		return a, nil

	case actionMsg:
		if msg.err != nil {
			a.flash = "Error: " + msg.err.Error()
		} else {
			a.flash = msg.message
		}
		return a, a.loadState
	}

	return a, nil
}

// handleKeyPress handles keyboard input
func (a *App) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "r":
		// Refresh
		return a, a.loadState

	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil

	case "down", "j":
		a.cursor++
		a.clampCursor()
		return a, nil

	case "enter", "s":
		return a, a.selectedAction(a.submit)

	case "c":
		return a, a.selectedAction(a.cancel)

	case "x":
		return a, a.resetStuck
	}

	return a, nil
}

func (a *App) clampCursor() {
	maxCursor := 0
	if a.state != nil && len(a.state.Jobs) > 0 {
		maxCursor = len(a.state.Jobs) - 1
	}
	a.cursor = max(0, min(a.cursor, maxCursor))
}

// selectedAction binds an action to the job under the cursor
func (a *App) selectedAction(action func(id string) tea.Msg) tea.Cmd {
	if a.state == nil {
		return nil
	}
	job := a.state.JobAt(a.cursor)
	if job == nil {
		return nil
	}
	id := job.ID
	return func() tea.Msg { return action(id) }
}

func (a *App) submit(id string) tea.Msg {
	res, err := a.backend.Submit(context.Background(), id)
	if err != nil {
		return actionMsg{err: err}
	}
	if res.Started {
		return actionMsg{message: fmt.Sprintf("%s started", id)}
	}
	return actionMsg{message: fmt.Sprintf("%s queued at position %d", id, res.Position)}
}

func (a *App) cancel(id string) tea.Msg {
	if err := a.backend.Cancel(context.Background(), id); err != nil {
		return actionMsg{err: err}
	}
	return actionMsg{message: fmt.Sprintf("%s removed from queue", id)}
}

func (a *App) resetStuck() tea.Msg {
	res, err := a.backend.ResetStuck(context.Background())
	if err != nil {
		return actionMsg{err: err}
	}
	return actionMsg{message: fmt.Sprintf("reset %d stuck jobs", len(res.Reset))}
}

// View implements tea.Model
func (a *App) View() string {
	if a.err != nil && a.state == nil {
		return fmt.Sprintf("Error: %v\n\nPress 'r' to retry or 'q' to quit.", a.err)
	}

	if a.state == nil {
		return "Loading jobs..."
	}

	return a.renderDashboard()
}
