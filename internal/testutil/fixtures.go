package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// VideoOptions configures synthetic video generation
type VideoOptions struct {
	DurationSec int // Video duration in seconds (default: 1)
	Width       int // default: 320
	Height      int // default: 240
}

// GenerateTestVideo creates a short synthetic MP4 with one video and one audio track
func GenerateTestVideo(outputPath string, opts VideoOptions) error {
	if opts.DurationSec == 0 {
		opts.DurationSec = 1
	}
	if opts.Width == 0 {
		opts.Width = 320
	}
	if opts.Height == 0 {
		opts.Height = 240
	}

	if outputPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	args := []string{
		"-f", "lavfi", "-i",
		fmt.Sprintf("testsrc=duration=%d:size=%dx%d:rate=24", opts.DurationSec, opts.Width, opts.Height),
		"-f", "lavfi", "-i",
		fmt.Sprintf("anullsrc=r=48000:cl=stereo:d=%d", opts.DurationSec),
		"-c:v", "libx264", "-preset", "ultrafast",
		"-c:a", "aac",
		"-shortest", "-y", outputPath,
	}

	cmd := exec.Command("ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, output)
	}

	return nil
}

// RequireFFmpeg reports whether ffmpeg and ffprobe are on PATH
func RequireFFmpeg() bool {
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			return false
		}
	}
	return true
}
