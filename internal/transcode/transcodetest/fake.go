// Package transcodetest provides scripted encoders and probers for tests
package transcodetest

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/transcode"
)

// Run scripts one encode session
type Run struct {
	Lines []string // diagnostic lines yielded before Wait
	Fail  string   // failure message; empty means success
	Panic string   // panic with this value from Start
}

// Encoder is a transcode.Encoder that writes a playlist, one segment and a
// leftover .tmp file for every successful run
type Encoder struct {
	mu    sync.Mutex
	runs  map[model.Quality]Run
	calls []transcode.EncodeRequest

	// OnStart runs at the beginning of every Start call
	OnStart func(req transcode.EncodeRequest)
}

// NewEncoder returns an encoder where every quality succeeds
func NewEncoder() *Encoder {
	return &Encoder{runs: make(map[model.Quality]Run)}
}

// Script sets the behaviour for one quality
func (f *Encoder) Script(q model.Quality, run Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[q] = run
}

// Calls returns the qualities encoded so far, in order
func (f *Encoder) Calls() []model.Quality {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Quality, 0, len(f.calls))
	for _, req := range f.calls {
		out = append(out, req.Profile.Quality)
	}
	return out
}

// Start implements transcode.Encoder
func (f *Encoder) Start(ctx context.Context, req transcode.EncodeRequest) (transcode.Session, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	run := f.runs[req.Profile.Quality]
	onStart := f.OnStart
	f.mu.Unlock()

	if onStart != nil {
		onStart(req)
	}
	if run.Panic != "" {
		panic(run.Panic)
	}
	if run.Fail != "" {
		return &session{lines: run.Lines, result: transcode.EncodeResult{Message: run.Fail}}, nil
	}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, err
	}
	files := map[string]string{
		req.PlaylistPath(): "#EXTM3U\n#EXT-X-ENDLIST\n",
		filepath.Join(req.OutputDir, "segment_000.ts"):     "",
		filepath.Join(req.OutputDir, "segment_001.ts.tmp"): "",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, err
		}
	}
	return &session{
		lines:  run.Lines,
		result: transcode.EncodeResult{Succeeded: true, PlaylistPath: req.PlaylistPath(), SegmentCount: 1},
	}, nil
}

type session struct {
	lines  []string
	result transcode.EncodeResult
}

func (s *session) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, l := range s.lines {
			if !yield(l) {
				return
			}
		}
	}
}

func (s *session) Wait() transcode.EncodeResult { return s.result }

// Prober returns fixed source info, or Err
type Prober struct {
	Info *transcode.SourceInfo
	Err  error
}

// Probe implements transcode.Prober
func (p Prober) Probe(_ context.Context, path string) (*transcode.SourceInfo, error) {
	if p.Err != nil {
		return nil, &model.ProbeError{Path: path, Err: p.Err}
	}
	info := *p.Info
	return &info, nil
}

var (
	_ transcode.Encoder = (*Encoder)(nil)
	_ transcode.Prober  = Prober{}
)
