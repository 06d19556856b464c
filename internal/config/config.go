package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHome         = "/var/lib/hls-ladder"
	configFileName      = "ladder.yaml"
	defaultListenAddr   = "127.0.0.1:8080"
	defaultEventsBuffer = 500
	defaultSegmentSecs  = 10
)

var defaultFormats = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm"}

// ProgressConfig holds live progress reporting intervals
type ProgressConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// EventsConfig holds notification buffer settings
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// Config holds application configuration
type Config struct {
	InputDir         string         `yaml:"input_dir"`         // Source media root, scanned recursively
	OutputDir        string         `yaml:"output_dir"`        // HLS output root
	ListenAddr       string         `yaml:"listen_addr"`       // Admin API address
	SegmentDuration  int            `yaml:"segment_duration"`  // HLS segment length in seconds
	SupportedFormats []string       `yaml:"supported_formats"` // File extensions picked up by scan
	FFmpegPath       string         `yaml:"ffmpeg_path"`
	FFprobePath      string         `yaml:"ffprobe_path"`
	Progress         ProgressConfig `yaml:"progress"`
	Events           EventsConfig   `yaml:"events"`

	// Derived from environment, not stored in YAML
	home string
}

// NewWithHome returns a default configuration rooted at home
func NewWithHome(home string) *Config {
	return &Config{home: home}
}

// Home returns the LADDER_HOME path
func (c *Config) Home() string {
	if c.home != "" {
		return c.home
	}
	if home := os.Getenv("LADDER_HOME"); home != "" {
		return home
	}
	return defaultHome
}

// DataDir returns the data directory ($LADDER_HOME/data)
func (c *Config) DataDir() string {
	return filepath.Join(c.Home(), "data")
}

// DatabasePath returns the path to the SQLite database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir(), "ladder.db")
}

// InputRoot returns the source media root, defaulting to $LADDER_HOME/input
func (c *Config) InputRoot() string {
	if c.InputDir != "" {
		return c.InputDir
	}
	return filepath.Join(c.Home(), "input")
}

// OutputRoot returns the HLS output root, defaulting to $LADDER_HOME/output
func (c *Config) OutputRoot() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.Home(), "output")
}

// Addr returns the admin API listen address
func (c *Config) Addr() string {
	if c.ListenAddr == "" {
		return defaultListenAddr
	}
	return c.ListenAddr
}

// SegmentSeconds returns the HLS segment duration
// Defaults to 10 if not configured
func (c *Config) SegmentSeconds() int {
	if c.SegmentDuration <= 0 {
		return defaultSegmentSecs
	}
	return c.SegmentDuration
}

// Formats returns the lower-case extensions recognised as source media
func (c *Config) Formats() []string {
	if len(c.SupportedFormats) == 0 {
		return append([]string(nil), defaultFormats...)
	}
	out := make([]string, 0, len(c.SupportedFormats))
	for _, f := range c.SupportedFormats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		out = append(out, f)
	}
	return out
}

// EventBuffer returns how many notifications are retained in memory
func (c *Config) EventBuffer() int {
	if c.Events.Buffer <= 0 {
		return defaultEventsBuffer
	}
	return c.Events.Buffer
}

// ServiceLogPath returns the server's own log file
func (c *Config) ServiceLogPath() string {
	return filepath.Join(c.DataDir(), "logs", "ladder.log")
}

// JobLogDir returns the directory for a job's log files
func (c *Config) JobLogDir(jobID string) string {
	return filepath.Join(c.DataDir(), "logs", "jobs", jobID)
}

// JobLogPath returns the path for a job's main log file
func (c *Config) JobLogPath(jobID string) string {
	return filepath.Join(c.JobLogDir(jobID), "job.log")
}

// ToolLogPath returns the path for a tool's raw log file
func (c *Config) ToolLogPath(jobID string, tool string) string {
	return filepath.Join(c.JobLogDir(jobID), fmt.Sprintf("%s.log", tool))
}

// EnsureJobLogDir creates the log directory for a specific job
func (c *Config) EnsureJobLogDir(jobID string) error {
	return os.MkdirAll(c.JobLogDir(jobID), 0755)
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads config from the XDG config directory, falling back to
// $LADDER_HOME/ladder.yaml
func LoadDefault() (*Config, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		path := filepath.Join(xdg, "hls-ladder", configFileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromHome()
}

// LoadFromHome loads config from $LADDER_HOME/ladder.yaml. A missing file
// yields the defaults.
func LoadFromHome() (*Config, error) {
	home := os.Getenv("LADDER_HOME")
	if home == "" {
		home = defaultHome
	}

	configPath := filepath.Join(home, configFileName)
	cfg, err := Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	cfg.home = home
	return cfg, nil
}
