package executor

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/logging"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/notify"
	"github.com/cuivienor/hls-ladder/internal/progress"
	"github.com/cuivienor/hls-ladder/internal/queue"
	"github.com/cuivienor/hls-ladder/internal/testutil"
	"github.com/cuivienor/hls-ladder/internal/transcode"
	"github.com/cuivienor/hls-ladder/internal/transcode/transcodetest"
)

type harness struct {
	env      *testutil.TestEnv
	exec     *Executor
	ctrl     *queue.Controller
	recorder *notify.Recorder
	encoder  *transcodetest.Encoder
}

func newHarness(t *testing.T, prober transcode.Prober) *harness {
	t.Helper()
	env := testutil.NewTestEnv(t)
	rec := &notify.Recorder{}
	ctrl := queue.NewController(env.Repo, rec, logging.Discard())
	enc := transcodetest.NewEncoder()
	if prober == nil {
		prober = transcodetest.Prober{Info: &transcode.SourceInfo{Width: 1280, Height: 720, Duration: 10}}
	}
	ex := New(Deps{
		Config:   env.Config,
		Repo:     env.Repo,
		Queue:    ctrl,
		Tracker:  progress.NewTracker(),
		Encoder:  enc,
		Prober:   prober,
		Notifier: rec,
		Logger:   logging.Discard(),
	})
	return &harness{env: env, exec: ex, ctrl: ctrl, recorder: rec, encoder: enc}
}

// submitAndRun submits a job and executes it synchronously
func (h *harness) submitAndRun(t *testing.T, job *model.Job) string {
	t.Helper()
	adm, err := h.ctrl.Submit(context.Background(), job.ID)
	if err != nil || !adm.Started {
		t.Fatalf("Submit() = %+v, %v", adm, err)
	}
	return h.exec.Execute(context.Background(), job.ID)
}

func TestExecute_AllQualitiesSucceed(t *testing.T) {
	h := newHarness(t, nil)
	job := h.env.CreateJob("movie.mp4", "1280x720")
	h.encoder.Script(model.Quality720p, transcodetest.Run{Lines: []string{
		"frame=  10 fps=0.0 time=00:00:05.00 bitrate=1000kbits/s",
		"frame=  20 fps=0.0 time=00:00:10.00 bitrate=1000kbits/s",
	}})

	if next := h.submitAndRun(t, job); next != "" {
		t.Errorf("Execute() next = %q, want empty", next)
	}

	got := h.env.Job(job.ID)
	if got.Status != model.JobStatusDone || got.Progress != 100 {
		t.Errorf("job = %s %d%%, want DONE 100%%", got.Status, got.Progress)
	}
	if got.WorkerID != h.exec.WorkerID() {
		t.Errorf("WorkerID = %q, want %q", got.WorkerID, h.exec.WorkerID())
	}

	tasks := h.env.Tasks(job.ID)
	want := []model.Quality{model.Quality360p, model.Quality480p, model.Quality720p}
	if len(tasks) != len(want) {
		t.Fatalf("tasks = %+v", tasks)
	}
	for i, task := range tasks {
		if task.Quality != want[i] || task.Status != model.TaskStatusDone || task.SegmentCount != 1 {
			t.Errorf("task[%d] = %+v", i, task)
		}
	}

	master, err := os.ReadFile(h.env.OutputPath(job, transcode.MasterPlaylistName))
	if err != nil {
		t.Fatalf("master playlist missing: %v", err)
	}
	for _, q := range want {
		if !strings.Contains(string(master), string(q)+"/playlist.m3u8") {
			t.Errorf("master playlist missing %s", q)
		}
	}

	if testutil.FileExists(h.env.OutputPath(job, "720p", "segment_001.ts.tmp")) {
		t.Error("temporary files not cleaned up")
	}

	milestones := h.recorder.OfType(notify.EventMilestone)
	if len(milestones) != 10 {
		t.Fatalf("milestones = %+v, want every 10%% step for 720p", milestones)
	}
	for i, m := range milestones {
		if m.Percent != (i+1)*10 || m.Quality != model.Quality720p {
			t.Errorf("milestone[%d] = %+v, want 720p %d%%", i, m, (i+1)*10)
		}
	}

	raw, err := os.ReadFile(h.env.Config.ToolLogPath(job.ID, "ffmpeg-720p"))
	if err != nil || !strings.Contains(string(raw), "time=00:00:05.00") {
		t.Errorf("tool log = %q, %v", raw, err)
	}
	if !testutil.FileExists(h.env.Config.JobLogPath(job.ID)) {
		t.Error("job log not written")
	}
}

func TestExecute_ProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	job := h.env.CreateJob("movie.mp4", "1280x720")
	h.submitAndRun(t, job)

	last := -1
	var seen []int
	for _, e := range h.recorder.OfType(notify.EventStatusChanged) {
		if e.JobID != job.ID {
			continue
		}
		if e.Progress < last {
			t.Errorf("progress went backwards: %v", append(seen, e.Progress))
		}
		last = e.Progress
		seen = append(seen, e.Progress)
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100 (%v)", last, seen)
	}
	for _, p := range []int{30, 60, 90} {
		found := false
		for _, s := range seen {
			found = found || s == p
		}
		if !found {
			t.Errorf("progress %d not reported (%v)", p, seen)
		}
	}
}

func TestExecute_PartialSuccess(t *testing.T) {
	h := newHarness(t, nil)
	job := h.env.CreateJob("shows/pilot.mkv", "1280x720")
	h.encoder.Script(model.Quality720p, transcodetest.Run{Fail: "ffmpeg failed: exit status 1"})

	h.submitAndRun(t, job)

	if got := h.env.Job(job.ID); got.Status != model.JobStatusDone {
		t.Errorf("status = %s, want DONE", got.Status)
	}
	master, err := os.ReadFile(h.env.OutputPath(job, transcode.MasterPlaylistName))
	if err != nil {
		t.Fatalf("master playlist missing: %v", err)
	}
	if strings.Contains(string(master), "720p") {
		t.Errorf("master playlist lists failed quality:\n%s", master)
	}
	if !strings.Contains(string(master), "480p/playlist.m3u8") {
		t.Errorf("master playlist missing 480p:\n%s", master)
	}

	for _, task := range h.env.Tasks(job.ID) {
		if task.Quality == model.Quality720p {
			if task.Status != model.TaskStatusError || task.ErrorMessage != "ffmpeg failed: exit status 1" {
				t.Errorf("720p task = %+v", task)
			}
		}
	}
	if len(h.recorder.OfType(notify.EventError)) != 1 {
		t.Errorf("error events = %+v", h.recorder.OfType(notify.EventError))
	}
}

func TestExecute_AllQualitiesFail(t *testing.T) {
	h := newHarness(t, nil)
	job := h.env.CreateJob("movie.mp4", "1280x720")
	for _, q := range []model.Quality{model.Quality360p, model.Quality480p, model.Quality720p} {
		h.encoder.Script(q, transcodetest.Run{Fail: "boom"})
	}

	h.submitAndRun(t, job)

	got := h.env.Job(job.ID)
	if got.Status != model.JobStatusError {
		t.Errorf("status = %s, want ERROR", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "all quality conversions failed") {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
	if testutil.FileExists(h.env.OutputPath(job, transcode.MasterPlaylistName)) {
		t.Error("master playlist written for failed job")
	}
}

func TestExecute_ProbeFailureUsesDefaultLadder(t *testing.T) {
	h := newHarness(t, transcodetest.Prober{Err: errors.New("invalid data")})
	job := h.env.CreateJob("movie.avi", "")

	h.submitAndRun(t, job)

	want := []model.Quality{model.Quality720p, model.Quality480p, model.Quality360p}
	calls := h.encoder.Calls()
	if len(calls) != len(want) {
		t.Fatalf("encoded %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("encode order = %v, want %v", calls, want)
			break
		}
	}
	if got := h.env.Job(job.ID); got.Status != model.JobStatusDone {
		t.Errorf("status = %s, want DONE", got.Status)
	}
}

func TestExecute_ProbeFillsResolution(t *testing.T) {
	h := newHarness(t, transcodetest.Prober{Info: &transcode.SourceInfo{Width: 1920, Height: 1080, Duration: 60}})
	job := h.env.CreateJob("movie.mp4", "")

	h.submitAndRun(t, job)

	if got := h.env.Job(job.ID); got.Resolution != "1920x1080" {
		t.Errorf("Resolution = %q, want 1920x1080", got.Resolution)
	}
	// 1080p needs a source 20% larger than the target
	if calls := h.encoder.Calls(); len(calls) != 3 || calls[2] != model.Quality720p {
		t.Errorf("encoded %v", calls)
	}
}

func TestExecute_PanicStillReleasesSlot(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first := h.env.CreateJob("a.mp4", "640x360")
	second := h.env.CreateJob("b.mp4", "640x360")
	h.encoder.Script(model.Quality360p, transcodetest.Run{Panic: "nil map write"})

	h.ctrl.Submit(ctx, first.ID)
	if adm, _ := h.ctrl.Submit(ctx, second.ID); adm.Position != 1 {
		t.Fatalf("second job not queued: %+v", adm)
	}

	next := h.exec.Execute(ctx, first.ID)
	got := h.env.Job(first.ID)
	if got.Status != model.JobStatusError || !strings.Contains(got.ErrorMessage, "nil map write") {
		t.Errorf("panicked job = %s %q", got.Status, got.ErrorMessage)
	}
	if next != second.ID {
		t.Fatalf("next = %q, want %q", next, second.ID)
	}
	if h.env.Job(second.ID).Status != model.JobStatusInProgress {
		t.Error("queued job not admitted after panic")
	}
	if h.exec.Active() != "" {
		t.Errorf("Active() = %q after execution", h.exec.Active())
	}
}

func TestExecute_SingleActiveWhileEncoding(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	jobs := []*model.Job{
		h.env.CreateJob("a.mp4", "640x360"),
		h.env.CreateJob("b.mp4", "640x360"),
		h.env.CreateJob("c.mp4", "640x360"),
	}
	for _, j := range jobs {
		h.ctrl.Submit(ctx, j.ID)
	}

	h.encoder.OnStart = func(req transcode.EncodeRequest) {
		status := model.JobStatusInProgress
		running, err := h.env.Repo.ListJobs(ctx, db.ListOptions{Status: &status})
		if err != nil || len(running) != 1 {
			t.Errorf("IN_PROGRESS jobs while encoding = %d, %v", len(running), err)
			return
		}
		if active := h.exec.Active(); active != running[0].ID {
			t.Errorf("Active() = %q, store says %q", active, running[0].ID)
		}
	}

	h.exec.drain(ctx, jobs[0].ID)

	for _, j := range jobs {
		if got := h.env.Job(j.ID); got.Status != model.JobStatusDone {
			t.Errorf("%s status = %s, want DONE", j.ID, got.Status)
		}
	}
}

func TestExecute_ResetStuckBetweenJobsKeepsAdmittedJob(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.env.CreateJob("a.mp4", "640x360")
	b := h.env.CreateJob("b.mp4", "640x360")
	h.ctrl.Submit(ctx, a.ID)
	h.ctrl.Submit(ctx, b.ID)

	next := h.exec.Execute(ctx, a.ID)
	if next != b.ID {
		t.Fatalf("next = %q, want %q", next, b.ID)
	}

	// the worker has not started b yet
	reset, _, err := h.ctrl.ResetStuck(ctx)
	if err != nil || len(reset) != 0 {
		t.Fatalf("ResetStuck() = %v, %v; want none", reset, err)
	}

	if after := h.exec.Execute(ctx, next); after != "" {
		t.Errorf("Execute(b) next = %q", after)
	}
	got := h.env.Job(b.ID)
	if got.Status != model.JobStatusDone || got.Progress != 100 {
		t.Errorf("b = %s %d%% %q, want DONE 100%%", got.Status, got.Progress, got.ErrorMessage)
	}
}

func TestRun_DrainsDispatchedJobs(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.env.CreateJob("a.mp4", "640x360")
	b := h.env.CreateJob("b.mp4", "640x360")
	h.ctrl.Submit(ctx, a.ID)
	h.ctrl.Submit(ctx, b.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.exec.Run(ctx)
	}()
	h.exec.Dispatch(a.ID)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.env.Job(b.ID).Status == model.JobStatusDone {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.env.Job(b.ID).Status; got != model.JobStatusDone {
		t.Errorf("queued job status = %s, want DONE", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestExecute_ShutdownKeepsQueue(t *testing.T) {
	h := newHarness(t, nil)
	a := h.env.CreateJob("a.mp4", "640x360")
	b := h.env.CreateJob("b.mp4", "640x360")
	h.ctrl.Submit(context.Background(), a.ID)
	h.ctrl.Submit(context.Background(), b.ID)

	ctx, cancel := context.WithCancel(context.Background())
	h.encoder.Script(model.Quality360p, transcodetest.Run{Fail: "signal: killed"})
	h.encoder.OnStart = func(transcode.EncodeRequest) { cancel() }

	if next := h.exec.Execute(ctx, a.ID); next != "" {
		t.Errorf("next = %q during shutdown, want empty", next)
	}
	if got := h.env.Job(a.ID).Status; got != model.JobStatusError {
		t.Errorf("interrupted job status = %s, want ERROR", got)
	}
	if got := h.env.Job(b.ID).Status; got != model.JobStatusQueued {
		t.Errorf("waiting job status = %s, want QUEUED", got)
	}
}
