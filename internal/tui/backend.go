package tui

import (
	"context"

	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/service"
)

// Backend is what the dashboard reads and drives. *client.Client satisfies
// it directly; FromService adapts an in-process service.
type Backend interface {
	ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error)
	Job(ctx context.Context, id string) (*service.JobView, error)
	Stats(ctx context.Context) (*service.Stats, error)
	Submit(ctx context.Context, id string) (*service.SubmitResult, error)
	Cancel(ctx context.Context, id string) error
	ResetStuck(ctx context.Context) (*service.ResetResult, error)
}

type serviceBackend struct {
	svc *service.Service
}

// FromService adapts an in-process service to Backend
func FromService(svc *service.Service) Backend {
	return serviceBackend{svc: svc}
}

func (b serviceBackend) ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	opts := db.ListOptions{Limit: limit}
	if status != "" {
		opts.Status = &status
	}
	return b.svc.List(ctx, opts)
}

func (b serviceBackend) Job(ctx context.Context, id string) (*service.JobView, error) {
	return b.svc.Status(ctx, id)
}

func (b serviceBackend) Stats(ctx context.Context) (*service.Stats, error) {
	return b.svc.Stats(ctx)
}

func (b serviceBackend) Submit(ctx context.Context, id string) (*service.SubmitResult, error) {
	return b.svc.Submit(ctx, id)
}

func (b serviceBackend) Cancel(ctx context.Context, id string) error {
	return b.svc.Cancel(ctx, id)
}

func (b serviceBackend) ResetStuck(ctx context.Context) (*service.ResetResult, error) {
	return b.svc.ResetStuck(ctx)
}
