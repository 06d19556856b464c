package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuivienor/hls-ladder/internal/httpapi"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/service"
	"github.com/cuivienor/hls-ladder/internal/testutil"
	"github.com/cuivienor/hls-ladder/internal/transcode"
	"github.com/cuivienor/hls-ladder/internal/transcode/transcodetest"
)

func newTestServer(t *testing.T) (string, *testutil.TestEnv) {
	t.Helper()
	t.Setenv("LADDER_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	env := testutil.NewTestEnv(t)
	svc := service.New(env.Config, env.Repo, service.Options{
		Encoder: transcodetest.NewEncoder(),
		Prober:  transcodetest.Prober{Info: &transcode.SourceInfo{Width: 854, Height: 480, Duration: 5}},
	})
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.NewHandler(svc), env.OutputDir))
	t.Cleanup(srv.Close)
	return srv.URL, env
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_ScanSubmitQueue(t *testing.T) {
	server, env := newTestServer(t)
	env.CreateSourceFile("a.mp4", 10)
	env.CreateSourceFile("shows/b.mkv", 10)

	out, err := run(t, server, "scan")
	if err != nil {
		t.Fatalf("scan error = %v", err)
	}
	if !strings.Contains(out, "Scanned 2 files, 2 new jobs") || !strings.Contains(out, "shows/b.mkv") {
		t.Errorf("scan output:\n%s", out)
	}

	out, err = run(t, server, "--json", "list", "--status", "new")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	var jobs []model.Job
	if err := json.Unmarshal([]byte(out), &jobs); err != nil || len(jobs) != 2 {
		t.Fatalf("list --json = %q, %v", out, err)
	}

	out, err = run(t, server, "submit", jobs[0].ID, jobs[1].ID)
	if err != nil {
		t.Fatalf("submit error = %v", err)
	}
	if !strings.Contains(out, jobs[0].ID+": conversion started") || !strings.Contains(out, jobs[1].ID+": queued at position 1") {
		t.Errorf("submit output:\n%s", out)
	}

	out, err = run(t, server, "queue")
	if err != nil || !strings.Contains(out, jobs[1].ID) {
		t.Errorf("queue output = %q, %v", out, err)
	}

	out, err = run(t, server, "status", jobs[1].ID)
	if err != nil || !strings.Contains(out, "Queue:      position 1") || !strings.Contains(out, "854x480") {
		t.Errorf("status output = %q, %v", out, err)
	}

	out, err = run(t, server, "stats")
	if err != nil || !strings.Contains(out, "TOTAL        2") || !strings.Contains(out, "Converting:  "+jobs[0].ID) {
		t.Errorf("stats output = %q, %v", out, err)
	}

	if out, err = run(t, server, "cancel", jobs[1].ID); err != nil || !strings.Contains(out, "removed from queue") {
		t.Errorf("cancel = %q, %v", out, err)
	}
	if out, err = run(t, server, "delete", jobs[1].ID); err != nil || !strings.Contains(out, "deleted") {
		t.Errorf("delete = %q, %v", out, err)
	}
	if out, err = run(t, server, "queue"); err != nil || !strings.Contains(out, "Queue is empty.") {
		t.Errorf("queue after cancel = %q, %v", out, err)
	}
}

func TestCLI_Errors(t *testing.T) {
	server, _ := newTestServer(t)

	if _, err := run(t, server, "status", "MOV00000"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("status missing error = %v, want ErrNotFound", err)
	}
	if _, err := run(t, server, "list", "--status", "bogus"); err == nil {
		t.Error("list with unknown status should fail")
	}
	if _, err := run(t, server, "submit"); err == nil {
		t.Error("submit without ids should fail")
	}
}

func TestCLI_ResetStuck(t *testing.T) {
	server, _ := newTestServer(t)

	out, err := run(t, server, "reset-stuck")
	if err != nil || !strings.Contains(out, "Reset 0 stuck jobs") {
		t.Errorf("reset-stuck = %q, %v", out, err)
	}
}

func TestCLI_ConfigFlag(t *testing.T) {
	server, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "ladder.yaml")
	os.WriteFile(path, []byte("listen_addr: [broken"), 0644)

	if _, err := run(t, server, "--config", path, "stats"); err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("bad config error = %v", err)
	}
}
