package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuivienor/hls-ladder/internal/config"
	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/model"
)

// TestEnv provides an isolated test environment with temp directories and in-memory database
type TestEnv struct {
	t         *testing.T
	BaseDir   string
	InputDir  string
	OutputDir string
	Config    *config.Config
	DB        *db.DB
	Repo      *db.SQLiteRepository
}

// NewTestEnv creates a new isolated test environment
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	baseDir := t.TempDir()
	cfg := config.NewWithHome(baseDir)
	cfg.InputDir = filepath.Join(baseDir, "input")
	cfg.OutputDir = filepath.Join(baseDir, "output")

	for _, dir := range []string{cfg.InputDir, cfg.OutputDir, cfg.DataDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create dir %s: %v", dir, err)
		}
	}

	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	env := &TestEnv{
		t:         t,
		BaseDir:   baseDir,
		InputDir:  cfg.InputDir,
		OutputDir: cfg.OutputDir,
		Config:    cfg,
		DB:        database,
		Repo:      db.NewSQLiteRepository(database),
	}

	t.Cleanup(func() {
		database.Close()
	})

	return env
}

// CreateSourceFile writes a placeholder media file at relPath under the input root
func (e *TestEnv) CreateSourceFile(relPath string, size int) string {
	e.t.Helper()

	path := filepath.Join(e.InputDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		e.t.Fatalf("failed to create source dir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		e.t.Fatalf("failed to write source file: %v", err)
	}
	return path
}

// CreateJob creates a source file and a NEW job pointing at it
func (e *TestEnv) CreateJob(relPath, resolution string) *model.Job {
	e.t.Helper()

	path := e.CreateSourceFile(relPath, 1024)
	subdir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(relPath)))
	if subdir == "." {
		subdir = ""
	}

	job := &model.Job{
		Filename:     filepath.Base(path),
		Subdirectory: subdir,
		SourcePath:   path,
		FileSize:     1024,
		Resolution:   resolution,
	}
	if err := e.Repo.CreateJob(context.Background(), job); err != nil {
		e.t.Fatalf("failed to create job: %v", err)
	}
	return job
}

// Job reloads a job from the database, failing the test if it is missing
func (e *TestEnv) Job(id string) *model.Job {
	e.t.Helper()

	job, err := e.Repo.GetJob(context.Background(), id)
	if err != nil {
		e.t.Fatalf("failed to get job: %v", err)
	}
	if job == nil {
		e.t.Fatalf("job %s not found", id)
	}
	return job
}

// Tasks returns a job's quality tasks in plan order
func (e *TestEnv) Tasks(jobID string) []model.QualityTask {
	e.t.Helper()

	tasks, err := e.Repo.ListQualityTasks(context.Background(), jobID)
	if err != nil {
		e.t.Fatalf("failed to list tasks: %v", err)
	}
	return tasks
}

// OutputPath returns a path inside the job's output folder
func (e *TestEnv) OutputPath(job *model.Job, parts ...string) string {
	return filepath.Join(append([]string{e.OutputDir, job.OutputFolderName()}, parts...)...)
}

// FileExists reports whether path exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
