package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/cuivienor/hls-ladder/internal/model"
)

func assertDenseQueue(t *testing.T, repo *SQLiteRepository) []model.QueueEntry {
	t.Helper()
	entries, err := repo.ListQueue(context.Background())
	if err != nil {
		t.Fatalf("ListQueue() error = %v", err)
	}
	for i, e := range entries {
		if e.Position != i+1 {
			t.Fatalf("queue not dense: entry %d (%s) has position %d", i, e.JobID, e.Position)
		}
	}
	return entries
}

func TestSQLiteRepository_EnqueueJob(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := createJob(t, repo, "a.mp4", "")
	b := createJob(t, repo, "b.mp4", "")

	for i, id := range []string{a.ID, b.ID} {
		pos, err := repo.EnqueueJob(ctx, id)
		if err != nil {
			t.Fatalf("EnqueueJob(%s) error = %v", id, err)
		}
		if pos != i+1 {
			t.Errorf("EnqueueJob(%s) position = %d, want %d", id, pos, i+1)
		}
	}

	if _, err := repo.EnqueueJob(ctx, a.ID); !errors.Is(err, model.ErrAlreadyQueued) {
		t.Errorf("second EnqueueJob() error = %v, want ErrAlreadyQueued", err)
	}
	if _, err := repo.EnqueueJob(ctx, "MOV00000"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("EnqueueJob(missing) error = %v, want ErrNotFound", err)
	}

	got, _ := repo.GetJob(ctx, a.ID)
	if got.Status != model.JobStatusQueued {
		t.Errorf("status = %s, want QUEUED", got.Status)
	}

	head, err := repo.NextQueued(ctx)
	if err != nil || head == nil || head.JobID != a.ID {
		t.Errorf("NextQueued() = %v, %v; want %s", head, err, a.ID)
	}
}

func TestSQLiteRepository_EnqueueRejectsRunningAndDone(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := createJob(t, repo, "a.mp4", "")
	mustAdmit(t, repo, a.ID)

	if _, err := repo.EnqueueJob(ctx, a.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("EnqueueJob(in progress) error = %v, want ErrInvalidTransition", err)
	}
	if err := repo.FinishJob(ctx, a.ID, model.JobStatusDone, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.EnqueueJob(ctx, a.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("EnqueueJob(done) error = %v, want ErrInvalidTransition", err)
	}
}

func TestSQLiteRepository_CancelRenumbers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for i := range 4 {
		job := createJob(t, repo, fmt.Sprintf("%d.mp4", i), "")
		if _, err := repo.EnqueueJob(ctx, job.ID); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, job.ID)
	}

	// cancel position 2
	if err := repo.CancelQueuedJob(ctx, ids[1]); err != nil {
		t.Fatalf("CancelQueuedJob() error = %v", err)
	}

	entries := assertDenseQueue(t, repo)
	want := []string{ids[0], ids[2], ids[3]}
	if len(entries) != len(want) {
		t.Fatalf("len(queue) = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.JobID != want[i] {
			t.Errorf("queue[%d] = %s, want %s", i, e.JobID, want[i])
		}
	}

	got, _ := repo.GetJob(ctx, ids[1])
	if got.Status != model.JobStatusNew {
		t.Errorf("cancelled job status = %s, want NEW", got.Status)
	}

	if err := repo.CancelQueuedJob(ctx, ids[1]); !errors.Is(err, model.ErrNotQueued) {
		t.Errorf("CancelQueuedJob(NEW) error = %v, want ErrNotQueued", err)
	}
}

func TestSQLiteRepository_AdmitDetachesFromQueue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := createJob(t, repo, "a.mp4", "")
	b := createJob(t, repo, "b.mp4", "")
	repo.EnqueueJob(ctx, a.ID)
	repo.EnqueueJob(ctx, b.ID)

	mustAdmit(t, repo, a.ID)
	entries := assertDenseQueue(t, repo)
	if len(entries) != 1 || entries[0].JobID != b.ID {
		t.Errorf("queue after admit = %+v", entries)
	}
	if pos, _ := repo.QueuePosition(ctx, a.ID); pos != 0 {
		t.Errorf("admitted job still has position %d", pos)
	}
}

func TestSQLiteRepository_QueueStaysDense(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	var jobs []string
	for i := range 12 {
		jobs = append(jobs, createJob(t, repo, fmt.Sprintf("%02d.mp4", i), "").ID)
	}

	for step := range 200 {
		id := jobs[rng.IntN(len(jobs))]
		var err error
		switch rng.IntN(4) {
		case 0, 1:
			_, err = repo.EnqueueJob(ctx, id)
		case 2:
			err = repo.CancelQueuedJob(ctx, id)
		case 3:
			if _, err = repo.RemoveQueueEntry(ctx, id); err == nil {
				// mirror a deletion-free removal by reverting status
				job, _ := repo.GetJob(ctx, id)
				if job.Status == model.JobStatusQueued {
					_, err = repo.db.db.ExecContext(ctx, `UPDATE jobs SET status = 'NEW' WHERE id = ?`, id)
				}
			}
		}
		if err != nil && !errors.Is(err, model.ErrAlreadyQueued) && !errors.Is(err, model.ErrNotQueued) {
			t.Fatalf("step %d: unexpected error %v", step, err)
		}

		entries := assertDenseQueue(t, repo)
		seen := make(map[string]bool)
		for _, e := range entries {
			if seen[e.JobID] {
				t.Fatalf("step %d: job %s queued twice", step, e.JobID)
			}
			seen[e.JobID] = true
		}
	}
}
