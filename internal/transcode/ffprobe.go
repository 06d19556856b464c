package transcode

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/cuivienor/hls-ladder/internal/model"
)

// SourceInfo is the subset of probe output the orchestrator needs
type SourceInfo struct {
	Width    int
	Height   int
	Duration float64 // seconds, 0 when unknown
}

// Resolution returns "WxH", or "" when no video stream was found
func (s *SourceInfo) Resolution() string {
	if s.Width <= 0 || s.Height <= 0 {
		return ""
	}
	return model.FormatResolution(s.Width, s.Height)
}

// Prober reads source metadata
type Prober interface {
	Probe(ctx context.Context, path string) (*SourceInfo, error)
}

// FFprobe runs ffprobe with JSON output
type FFprobe struct {
	ffprobePath string
	// execCommand allows injection of command execution for testing
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewFFprobe creates a prober. If ffprobePath is empty, uses "ffprobe" from PATH
func NewFFprobe(ffprobePath string) *FFprobe {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprobe{
		ffprobePath: ffprobePath,
		execCommand: exec.CommandContext,
	}
}

// Probe returns the size of the first video stream and the container duration
func (p *FFprobe) Probe(ctx context.Context, path string) (*SourceInfo, error) {
	cmd := p.execCommand(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, &model.ProbeError{Path: path, Err: fmt.Errorf("ffprobe failed: %s", exitErr.Stderr)}
		}
		return nil, &model.ProbeError{Path: path, Err: err}
	}

	info, err := ParseProbeJSON(out)
	if err != nil {
		return nil, &model.ProbeError{Path: path, Err: err}
	}
	return info, nil
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType   string         `json:"codec_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Duration    string         `json:"duration"`
	Disposition map[string]int `json:"disposition"`
}

// ParseProbeJSON converts raw ffprobe JSON output into a SourceInfo
func ParseProbeJSON(data []byte) (*SourceInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	info := &SourceInfo{Duration: parseSeconds(raw.Format.Duration)}
	for _, s := range raw.Streams {
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		if info.Duration == 0 {
			info.Duration = parseSeconds(s.Duration)
		}
		break
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
