package transcode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/testutil"
)

func TestHLSEncoder_Integration(t *testing.T) {
	if !testutil.RequireFFmpeg() {
		t.Skip("ffmpeg not available")
	}

	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "input", "clip.mp4")
	if err := testutil.GenerateTestVideo(source, testutil.VideoOptions{DurationSec: 3, Width: 320, Height: 240}); err != nil {
		t.Fatalf("GenerateTestVideo() error = %v", err)
	}

	ctx := context.Background()
	info, err := NewFFprobe("").Probe(ctx, source)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.Resolution() != "320x240" || info.Duration < 2.5 {
		t.Errorf("Probe() = %+v", info)
	}

	p, _ := model.Quality360p.Profile()
	outDir := filepath.Join(tmpDir, "output", "360p")
	session, err := NewHLSEncoder("").Start(ctx, EncodeRequest{
		SourcePath:      source,
		OutputDir:       outDir,
		Profile:         p,
		SegmentDuration: 1,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sawTime := false
	for line := range session.Lines() {
		if strings.Contains(line, "time=") {
			sawTime = true
		}
	}
	result := session.Wait()
	if !result.Succeeded {
		t.Fatalf("Wait() = %+v", result)
	}
	if !sawTime {
		t.Error("no progress lines seen on stderr")
	}
	if result.SegmentCount < 2 {
		t.Errorf("SegmentCount = %d, want at least 2", result.SegmentCount)
	}

	master, err := WriteMasterPlaylist(filepath.Join(tmpDir, "output"), []model.Quality{model.Quality360p})
	if err != nil {
		t.Fatalf("WriteMasterPlaylist() error = %v", err)
	}
	data, _ := os.ReadFile(master)
	if !strings.Contains(string(data), "360p/playlist.m3u8") {
		t.Errorf("master playlist = %q", data)
	}
}
