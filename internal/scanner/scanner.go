// Package scanner discovers source media under the input root and registers
// a job for each file not seen before.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/logging"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/notify"
	"github.com/cuivienor/hls-ladder/internal/transcode"
)

// Config holds scanner configuration
type Config struct {
	InputDir   string   // e.g., "/srv/media/incoming"
	Extensions []string // lower-case, with leading dot
}

// Source is one media file found under the input root
type Source struct {
	Path         string
	Filename     string
	Subdirectory string // slash-separated path relative to the input root, "" at the root
	Size         int64
}

// ScanResult summarises one scan
type ScanResult struct {
	Scanned int
	Created int
	Jobs    []model.Job // newly created jobs
}

// Scanner reads the input tree and registers new sources
type Scanner struct {
	config   Config
	repo     db.Repository
	prober   transcode.Prober
	notifier notify.Notifier
	logger   *logging.Logger
}

// New creates a new Scanner. prober may be nil, in which case resolutions
// are left unknown until execution.
func New(config Config, repo db.Repository, prober transcode.Prober, notifier notify.Notifier, logger *logging.Logger) *Scanner {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scanner{config: config, repo: repo, prober: prober, notifier: notifier, logger: logger}
}

// FindSources walks inputDir recursively and returns files with a supported
// extension, in lexical order
func FindSources(inputDir string, extensions []string) ([]Source, error) {
	if _, err := os.Stat(inputDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat input dir: %w", err)
	}

	var sources []Source
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries, continue scanning
		}
		if d.IsDir() {
			if path != inputDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(extensions, strings.ToLower(filepath.Ext(d.Name()))) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(inputDir, filepath.Dir(path))
		if err != nil {
			return nil
		}
		subdir := filepath.ToSlash(rel)
		if subdir == "." {
			subdir = ""
		}

		sources = append(sources, Source{
			Path:         path,
			Filename:     d.Name(),
			Subdirectory: subdir,
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk input dir: %w", err)
	}
	return sources, nil
}

// Scan registers a NEW job for every source without one. Running it again
// over an unchanged tree creates nothing.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	sources, err := FindSources(s.config.InputDir, s.config.Extensions)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Scanned: len(sources)}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		existing, err := s.repo.FindJobBySource(ctx, src.Filename, src.Subdirectory)
		if err != nil {
			return result, err
		}
		if existing != nil {
			continue
		}

		job := &model.Job{
			Filename:     src.Filename,
			Subdirectory: src.Subdirectory,
			SourcePath:   src.Path,
			FileSize:     src.Size,
			Resolution:   s.resolution(ctx, src.Path),
		}
		if err := s.repo.CreateJob(ctx, job); err != nil {
			if errors.Is(err, model.ErrAlreadyRegistered) {
				// a concurrent scan registered it first
				continue
			}
			return result, fmt.Errorf("failed to register %s: %w", src.Path, err)
		}

		s.logger.Info("DISCOVERED: %s %s", job.ID, filepath.ToSlash(filepath.Join(src.Subdirectory, src.Filename)))
		s.notifier.Notify(notify.Discovered(job))
		result.Created++
		result.Jobs = append(result.Jobs, *job)
	}

	s.logger.Info("SCAN_COMPLETE: %d files, %d new jobs", result.Scanned, result.Created)
	return result, nil
}

// resolution probes path, returning "" when it cannot be determined
func (s *Scanner) resolution(ctx context.Context, path string) string {
	if s.prober == nil {
		return ""
	}
	info, err := s.prober.Probe(ctx, path)
	if err != nil {
		s.logger.Debug("probe skipped for %s: %v", path, err)
		return ""
	}
	return info.Resolution()
}
