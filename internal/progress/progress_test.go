package progress

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cuivienor/hls-ladder/internal/logging"
	"github.com/cuivienor/hls-ladder/internal/model"
)

func TestParseElapsed(t *testing.T) {
	tests := []struct {
		line   string
		want   float64
		wantOK bool
	}{
		{"frame= 1200 fps=48 q=28.0 size=N/A time=00:00:50.04 bitrate=N/A speed=2x", 50.04, true},
		{"size=   1024kB time=01:02:03.50 bitrate=1000kbits/s", 3723.5, true},
		{"time=00:10:00", 600, true},
		{"out_time=00:00:05.000000", 5, true},
		{"  Duration: 00:10:00.00, start: 0.000000, bitrate: 5000 kb/s", 0, false},
		{"frame=    0 fps=0.0 q=0.0 size=N/A time=N/A bitrate=N/A", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseElapsed(tt.line)
		if ok != tt.wantOK || (ok && (got < tt.want-0.001 || got > tt.want+0.001)) {
			t.Errorf("ParseElapsed(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestETA(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		percent float64
		want    string
	}{
		{"unknown at 5 percent", 10 * time.Minute, 5, "--:--"},
		{"unknown below 5 percent", 10 * time.Minute, 1, "--:--"},
		{"unknown without elapsed time", 0, 50, "--:--"},
		{"half done", 10 * time.Minute, 50, "00:10"},
		{"quarter done", 30 * time.Minute, 25, "01:30"},
		{"rounds up from half a minute", 100 * time.Second, 50, "00:02"},
		{"rounds down below half a minute", 89 * time.Second, 50, "00:01"},
		{"rounds fractional minutes", 10 * time.Minute, 21, "00:38"},
		{"done", time.Hour, 100, "00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ETA(tt.elapsed, tt.percent); got != tt.want {
				t.Errorf("ETA(%v, %v) = %q, want %q", tt.elapsed, tt.percent, got, tt.want)
			}
		})
	}
}

func TestEstimateRemaining(t *testing.T) {
	remaining, ok := EstimateRemaining(20*time.Minute, 40)
	if !ok || remaining != 30*time.Minute {
		t.Errorf("EstimateRemaining(20m, 40) = %v, %v; want 30m", remaining, ok)
	}
	if _, ok := EstimateRemaining(time.Minute, 5); ok {
		t.Error("EstimateRemaining at 5 percent should be unknown")
	}
}

func TestTracker_Observe(t *testing.T) {
	tr := NewTracker()
	tr.Start("MOV1", time.Now(), 100)
	tr.BeginQuality("MOV1", model.Quality720p)

	lines := []struct {
		line       string
		percent    float64
		milestones []int
	}{
		{"time=00:00:05.00", 5, nil},
		{"time=00:00:12.00", 12, []int{10}},
		{"time=00:00:15.00", 15, nil},
		{"time=00:00:35.00", 35, []int{20, 30}},
		{"time=00:00:31.00", 31, nil},
		{"time=00:02:00.00", 100, []int{40, 50, 60, 70, 80, 90, 100}},
	}
	for _, l := range lines {
		snap, m, ok := tr.Observe("MOV1", l.line)
		if !ok {
			t.Fatalf("Observe(%q) not ok", l.line)
		}
		if snap.Percent != l.percent {
			t.Errorf("Observe(%q) percent = %v, want %v", l.line, snap.Percent, l.percent)
		}
		if !slices.Equal(m, l.milestones) {
			t.Errorf("Observe(%q) milestones = %v, want %v", l.line, m, l.milestones)
		}
	}

	if _, _, ok := tr.Observe("MOV1", "no stats here"); ok {
		t.Error("Observe() of a line without time= should report false")
	}
	if _, _, ok := tr.Observe("MOV2", "time=00:00:01.00"); ok {
		t.Error("Observe() of an untracked job should report false")
	}

	// milestones restart per quality
	tr.BeginQuality("MOV1", model.Quality480p)
	snap, m, _ := tr.Observe("MOV1", "time=00:00:10.00")
	if snap.Quality != model.Quality480p || !slices.Equal(m, []int{10}) {
		t.Errorf("after BeginQuality: quality %s milestones %v, want 480p/[10]", snap.Quality, m)
	}
}

func TestTracker_UnknownDuration(t *testing.T) {
	tr := NewTracker()
	tr.Start("MOV1", time.Now(), 0)
	tr.BeginQuality("MOV1", model.Quality360p)

	snap, m, ok := tr.Observe("MOV1", "time=00:05:00.00")
	if !ok || snap.Percent != 0 || len(m) != 0 {
		t.Errorf("Observe() with unknown duration = %+v, %v, %v", snap, m, ok)
	}
}

func TestTracker_Clear(t *testing.T) {
	tr := NewTracker()
	tr.Start("MOV1", time.Now(), 60)
	tr.Clear("MOV1")
	if _, ok := tr.Get("MOV1"); ok {
		t.Error("Get() after Clear() should report false")
	}
	if len(tr.Active()) != 0 {
		t.Errorf("Active() = %v, want empty", tr.Active())
	}
}

func TestTracker_ConcurrentWriters(t *testing.T) {
	tr := NewTracker()
	tr.Start("MOV1", time.Now(), 1000)
	tr.BeginQuality("MOV1", model.Quality720p)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Observe("MOV1", "time=00:08:20.00")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.SetETA("MOV1", "00:05")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap, _ := tr.Get("MOV1")
			if snap.JobID != "MOV1" || snap.Quality != model.Quality720p {
				t.Errorf("torn snapshot: %+v", snap)
				return
			}
		}
	}()
	wg.Wait()

	snap, _ := tr.Get("MOV1")
	if snap.Percent != 50 || snap.ETA != "00:05" {
		t.Errorf("final snapshot = %+v, want 50%% with ETA 00:05", snap)
	}
}

func TestReporter_Report(t *testing.T) {
	tr := NewTracker()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tr.Start("MOV1", start, 100)

	r := NewReporter(tr, "MOV1", logging.Discard(), 0, 0)
	r.now = func() time.Time { return start.Add(20 * time.Minute) }

	if _, ok := r.Report(); ok {
		t.Error("Report() before any quality started should do nothing")
	}

	tr.BeginQuality("MOV1", model.Quality720p)
	tr.Observe("MOV1", "time=00:00:40.00")

	snap, ok := r.Report()
	if !ok || snap.ETA != "00:30" {
		t.Errorf("Report() = %+v, %v; want ETA 00:30", snap, ok)
	}
	if stored, _ := tr.Get("MOV1"); stored.ETA != "00:30" {
		t.Errorf("stored ETA = %q, want 00:30", stored.ETA)
	}
}

func TestReporter_StartStop(t *testing.T) {
	tr := NewTracker()
	tr.Start("MOV1", time.Now().Add(-10*time.Minute), 100)
	tr.BeginQuality("MOV1", model.Quality720p)
	tr.Observe("MOV1", "time=00:00:50.00")

	r := NewReporter(tr, "MOV1", logging.Discard(), time.Millisecond, 2*time.Millisecond)
	stop := r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, _ := tr.Get("MOV1"); snap.ETA != UnknownETA {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()
	stop()

	if snap, _ := tr.Get("MOV1"); snap.ETA == UnknownETA {
		t.Error("reporter never refreshed the ETA")
	}
}
