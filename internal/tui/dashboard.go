package tui

import (
	"fmt"
	"strings"

	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/progress"
)

const barWidth = 30

// renderDashboard renders status counts, the active job and the job list
func (a *App) renderDashboard() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("HLS Ladder"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Updated at %s", a.state.LoadedAt.Format("15:04:05"))))
	b.WriteString("\n")

	b.WriteString(a.renderCounts())
	b.WriteString(a.renderActive())
	b.WriteString(a.renderJobs())

	if a.err != nil {
		b.WriteString("\n")
		b.WriteString(errorTextStyle.Render(fmt.Sprintf("Refresh failed: %v", a.err)))
	}
	if a.flash != "" {
		b.WriteString("\n")
		b.WriteString(mutedItemStyle.Render(a.flash))
	}

	// Help
	b.WriteString(helpStyle.Render("\n[↑/↓] Navigate  [Enter] Submit  [c] Cancel  [x] Reset stuck  [r] Refresh  [q] Quit"))

	return b.String()
}

func (a *App) renderCounts() string {
	var b strings.Builder

	counts := a.state.CountByStatus()
	maxCount := 0
	for _, count := range counts {
		maxCount = max(maxCount, count)
	}

	for _, status := range model.AllJobStatuses {
		count := counts[status]
		line := fmt.Sprintf("  %s %-12s %s  %d", StatusIcon(status), status, RenderBar(count, maxCount, 20), count)
		b.WriteString(normalItemStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) renderActive() string {
	active := a.state.Active
	if active == nil {
		return "\n" + mutedItemStyle.Render("No conversion running.") + "\n"
	}

	var b strings.Builder
	job := active.Job
	fmt.Fprintf(&b, "%s %s  %s\n", StatusIcon(job.Status), job.ID, job.Filename)
	fmt.Fprintf(&b, "Overall  %s %3d%%\n", RenderBar(job.Progress, 100, barWidth), job.Progress)

	if live := active.Live; live != nil && live.Quality != "" {
		fmt.Fprintf(&b, "%-8s %s %5.1f%%  ETA %s\n",
			live.Quality, RenderBar(int(live.Percent), 100, barWidth), live.Percent, etaOrUnknown(live))
	}

	for _, task := range active.Tasks {
		line := fmt.Sprintf("  %s %-6s %s", TaskIcon(task.Status), task.Quality, task.Status)
		if task.ErrorMessage != "" {
			line += "  " + errorTextStyle.Render(task.ErrorMessage)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return "\n" + sectionHeaderStyle.Render("Converting") + "\n" + boxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func etaOrUnknown(s *progress.Snapshot) string {
	if s.ETA == "" {
		return progress.UnknownETA
	}
	return s.ETA
}

func (a *App) renderJobs() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Jobs"))
	b.WriteString("\n")

	if len(a.state.Jobs) == 0 {
		b.WriteString(mutedItemStyle.Render("No jobs found. Run a scan to discover source files.\n"))
		return b.String()
	}

	// keep the cursor visible on short terminals
	start, end := 0, len(a.state.Jobs)
	if visible := a.height - 20; visible > 5 && end > visible {
		start = max(0, min(a.cursor-visible/2, end-visible))
		end = start + visible
	}

	for i := start; i < end; i++ {
		job := a.state.Jobs[i]
		prefix := "  "
		if a.cursor == i {
			prefix = "> "
		}

		name := job.Filename
		if job.Subdirectory != "" {
			name = job.Subdirectory + "/" + name
		}
		resolution := job.Resolution
		if resolution == "" {
			resolution = "?"
		}

		line := fmt.Sprintf("%s%s %-9s %-40s %-10s %3d%%", prefix, StatusIcon(job.Status), job.ID, truncate(name, 40), resolution, job.Progress)

		switch {
		case a.cursor == i:
			b.WriteString(selectedItemStyle.Render(line))
		case job.Status == model.JobStatusDone:
			b.WriteString(mutedItemStyle.Render(line))
		default:
			b.WriteString(normalItemStyle.Render(line))
		}
		if job.Status == model.JobStatusError && job.ErrorMessage != "" {
			b.WriteString("  " + errorTextStyle.Render(truncate(job.ErrorMessage, 60)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
