package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// MockTools configures the fake ffmpeg and ffprobe scripts
type MockTools struct {
	Width, Height int
	Duration      float64 // seconds
	FailQuality   string  // quality directory name that makes ffmpeg exit 1, e.g. "720p"
}

// InstallMockTools writes fake ffprobe and ffmpeg scripts into a bin dir
// under the environment and points the config at them. ffmpeg writes a
// playlist and two segments and reports progress on stderr like the real one.
func (e *TestEnv) InstallMockTools(m MockTools) {
	e.t.Helper()
	if runtime.GOOS == "windows" {
		e.t.Skip("mock tools need a POSIX shell")
	}

	binDir := filepath.Join(e.BaseDir, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		e.t.Fatalf("failed to create bin dir: %v", err)
	}

	ffprobe := fmt.Sprintf(`#!/bin/sh
cat <<'JSON'
{"streams":[{"codec_type":"video","width":%d,"height":%d}],"format":{"duration":"%.2f"}}
JSON
`, m.Width, m.Height, m.Duration)

	half := m.Duration / 2
	ffmpeg := fmt.Sprintf(`#!/bin/sh
prev=""
for arg in "$@"; do
  prev="$arg"
done
out="$prev"
dir=$(dirname "$out")
mkdir -p "$dir"
echo "Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'source':" >&2
case "$dir" in
  */%s)
    echo "Error while opening encoder for output stream #0:0" >&2
    exit 1
    ;;
esac
printf 'frame=   10 fps=0.0 q=28.0 size=N/A time=%s bitrate=N/A speed=2x\r' >&2
printf 'frame=   20 fps=0.0 q=28.0 size=N/A time=%s bitrate=N/A speed=2x\n' >&2
: > "$dir/segment_000.ts"
: > "$dir/segment_001.ts"
printf '#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-ENDLIST\n' > "$out"
`, nonEmpty(m.FailQuality, "__never__"), clock(half), clock(m.Duration))

	e.writeScript(filepath.Join(binDir, "ffprobe"), ffprobe)
	e.writeScript(filepath.Join(binDir, "ffmpeg"), ffmpeg)
	e.Config.FFprobePath = filepath.Join(binDir, "ffprobe")
	e.Config.FFmpegPath = filepath.Join(binDir, "ffmpeg")
}

func (e *TestEnv) writeScript(path, content string) {
	e.t.Helper()
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		e.t.Fatalf("failed to write %s: %v", path, err)
	}
}

// clock formats seconds the way ffmpeg prints time=
func clock(sec float64) string {
	h := int(sec) / 3600
	m := int(sec) % 3600 / 60
	s := sec - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%05.2f", h, m, s)
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
