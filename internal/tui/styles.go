package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cuivienor/hls-ladder/internal/model"
)

var (
	colorPrimary   = lipgloss.Color("39")  // Blue
	colorSecondary = lipgloss.Color("241") // Gray
	colorSuccess   = lipgloss.Color("42")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
	colorError     = lipgloss.Color("196") // Red
	colorMuted     = lipgloss.Color("240") // Dark gray
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).MarginBottom(1)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorSecondary).MarginBottom(1)

	selectedItemStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	normalItemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	mutedItemStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	errorTextStyle    = lipgloss.NewStyle().Foreground(colorError)
	helpStyle         = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)

	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).MarginTop(1).MarginBottom(1)
	// frames the active conversion
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSecondary).
			Padding(0, 1)

	barFilledStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

type icon struct {
	glyph string
	color lipgloss.Color
}

func (i icon) render() string {
	return lipgloss.NewStyle().Foreground(i.color).Render(i.glyph)
}

var (
	iconDone    = icon{"✓", colorSuccess}
	iconRunning = icon{"●", colorWarning}
	iconFailed  = icon{"✗", colorError}
	iconQueued  = icon{"◷", colorPrimary}
	iconIdle    = icon{"○", colorMuted}
)

var jobIcons = map[model.JobStatus]icon{
	model.JobStatusDone:       iconDone,
	model.JobStatusInProgress: iconRunning,
	model.JobStatusError:      iconFailed,
	model.JobStatusQueued:     iconQueued,
	model.JobStatusNew:        iconIdle,
}

var taskIcons = map[model.TaskStatus]icon{
	model.TaskStatusDone:       iconDone,
	model.TaskStatusInProgress: iconRunning,
	model.TaskStatusError:      iconFailed,
	model.TaskStatusPending:    iconIdle,
}

// StatusIcon returns the glyph shown next to a job
func StatusIcon(status model.JobStatus) string {
	if i, ok := jobIcons[status]; ok {
		return i.render()
	}
	return iconIdle.render()
}

// TaskIcon returns the glyph shown next to a quality task
func TaskIcon(status model.TaskStatus) string {
	if i, ok := taskIcons[status]; ok {
		return i.render()
	}
	return iconIdle.render()
}

// RenderBar draws width cells with filled/total of them solid
func RenderBar(filled, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	solid := max(0, min(filled*width/total, width))
	return barFilledStyle.Render(strings.Repeat("█", solid)) +
		barEmptyStyle.Render(strings.Repeat("░", width-solid))
}
