package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/service"
)

// listLimit caps how many jobs the dashboard loads per refresh
const listLimit = 200

// DashboardState holds the current state loaded from the backend.
// Active is the running job with its tasks and live progress, if any.
type DashboardState struct {
	Jobs     []model.Job
	Stats    *service.Stats
	Active   *service.JobView
	LoadedAt time.Time
}

// LoadState loads dashboard state from the backend
func LoadState(ctx context.Context, backend Backend) (*DashboardState, error) {
	jobs, err := backend.ListJobs(ctx, "", listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	stats, err := backend.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	state := &DashboardState{Jobs: jobs, Stats: stats, LoadedAt: time.Now()}

	if stats.Active != "" {
		view, err := backend.Job(ctx, stats.Active)
		if err != nil {
			return nil, fmt.Errorf("failed to load active job %s: %w", stats.Active, err)
		}
		state.Active = view
	}

	return state, nil
}

// CountByStatus returns the number of loaded jobs in each status
func (s *DashboardState) CountByStatus() map[model.JobStatus]int {
	if s.Stats != nil {
		return s.Stats.ByStatus
	}
	counts := make(map[model.JobStatus]int)
	for _, job := range s.Jobs {
		counts[job.Status]++
	}
	return counts
}

// JobsWithStatus returns the loaded jobs in one status
func (s *DashboardState) JobsWithStatus(status model.JobStatus) []model.Job {
	var result []model.Job
	for _, job := range s.Jobs {
		if job.Status == status {
			result = append(result, job)
		}
	}
	return result
}

// JobAt returns the job under the cursor, or nil
func (s *DashboardState) JobAt(index int) *model.Job {
	if index < 0 || index >= len(s.Jobs) {
		return nil
	}
	return &s.Jobs[index]
}
