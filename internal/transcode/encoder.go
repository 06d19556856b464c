package transcode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuivienor/hls-ladder/internal/model"
)

const (
	// PlaylistName is the per-quality media playlist file name
	PlaylistName = "playlist.m3u8"
	// SegmentPattern is the per-quality segment file pattern
	SegmentPattern = "segment_%03d.ts"

	DefaultSegmentDuration = 10
	audioBitrate           = "128k"
	// gopSize is the fixed keyframe interval in frames
	gopSize  = 250
	tailSize = 8
)

// EncodeRequest describes one rendition to produce
type EncodeRequest struct {
	SourcePath      string
	OutputDir       string // quality directory; created if missing
	Profile         model.Profile
	SegmentDuration int // seconds, 0 uses DefaultSegmentDuration
}

// PlaylistPath returns where the media playlist will be written
func (r EncodeRequest) PlaylistPath() string {
	return filepath.Join(r.OutputDir, PlaylistName)
}

// EncodeResult is the outcome of one encode session
type EncodeResult struct {
	Succeeded    bool
	PlaylistPath string
	SegmentCount int
	Message      string // failure description, empty on success
}

// Session is one running encoder invocation. Lines yields the diagnostic
// stream once, lazily; Wait blocks until the process exits.
type Session interface {
	Lines() iter.Seq[string]
	Wait() EncodeResult
}

// Encoder starts encode sessions
type Encoder interface {
	Start(ctx context.Context, req EncodeRequest) (Session, error)
}

// HLSEncoder produces VOD HLS renditions with ffmpeg
type HLSEncoder struct {
	ffmpegPath string
	// execCommand allows injection of command execution for testing
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewHLSEncoder creates an encoder. If ffmpegPath is empty, uses "ffmpeg" from PATH
func NewHLSEncoder(ffmpegPath string) *HLSEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &HLSEncoder{
		ffmpegPath:  ffmpegPath,
		execCommand: exec.CommandContext,
	}
}

// BuildArgs returns the ffmpeg arguments for req
func (e *HLSEncoder) BuildArgs(req EncodeRequest) []string {
	segment := req.SegmentDuration
	if segment <= 0 {
		segment = DefaultSegmentDuration
	}
	p := req.Profile

	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", req.SourcePath,
		"-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height),
		"-c:v", "libx264",
		"-b:v", p.BitrateArg(),
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-g", strconv.Itoa(gopSize),
		"-keyint_min", strconv.Itoa(gopSize),
		"-sc_threshold", "0",
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", segment),
		"-f", "hls",
		"-hls_time", strconv.Itoa(segment),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(req.OutputDir, SegmentPattern),
		req.PlaylistPath(),
	}
}

// Start launches ffmpeg for req
func (e *HLSEncoder) Start(ctx context.Context, req EncodeRequest) (Session, error) {
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := e.execCommand(ctx, e.ffmpegPath, e.BuildArgs(req)...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLinesOrCR)

	return &ffmpegSession{cmd: cmd, stderr: stderr, scanner: scanner, req: req}, nil
}

type ffmpegSession struct {
	cmd     *exec.Cmd
	stderr  io.Reader
	scanner *bufio.Scanner
	req     EncodeRequest
	tail    []string
	done    bool
	readErr error
}

// next reads one non-empty line, remembering the most recent ones for
// failure messages
func (s *ffmpegSession) next() (string, bool) {
	for !s.done {
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				// keep the pipe empty or ffmpeg blocks and never exits
				s.readErr = err
				io.Copy(io.Discard, s.stderr)
			}
			return "", false
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		s.tail = append(s.tail, line)
		if len(s.tail) > tailSize {
			s.tail = s.tail[1:]
		}
		return line, true
	}
	return "", false
}

func (s *ffmpegSession) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, ok := s.next()
			if !ok || !yield(line) {
				return
			}
		}
	}
}

func (s *ffmpegSession) Wait() EncodeResult {
	// drain whatever the consumer did not read so ffmpeg never blocks on stderr
	for {
		if _, ok := s.next(); !ok {
			break
		}
	}

	if err := s.cmd.Wait(); err != nil {
		msg := fmt.Sprintf("ffmpeg failed: %v%s", err, s.lastError())
		if s.readErr != nil {
			msg += fmt.Sprintf(" (stderr unreadable: %v)", s.readErr)
		}
		return EncodeResult{Message: msg}
	}

	playlist := s.req.PlaylistPath()
	if _, err := os.Stat(playlist); err != nil {
		return EncodeResult{Message: fmt.Sprintf("ffmpeg produced no playlist at %s", playlist)}
	}

	count, err := CountSegments(s.req.OutputDir)
	if err != nil {
		return EncodeResult{Message: err.Error()}
	}
	return EncodeResult{Succeeded: true, PlaylistPath: playlist, SegmentCount: count}
}

// lastError returns the most recent non-progress diagnostic line
func (s *ffmpegSession) lastError() string {
	for i := len(s.tail) - 1; i >= 0; i-- {
		line := s.tail[i]
		if strings.HasPrefix(line, "frame=") || strings.HasPrefix(line, "size=") {
			continue
		}
		return ": " + line
	}
	return ""
}

// CountSegments counts the .ts segments in a quality directory
func CountSegments(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "segment_*.ts"))
	if err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return len(matches), nil
}

// scanLinesOrCR splits on \n, \r or \r\n. ffmpeg rewrites its stats line
// in place with bare carriage returns.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// need one more byte to tell \r from \r\n
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ Encoder = (*HLSEncoder)(nil)
var _ Prober = (*FFprobe)(nil)
