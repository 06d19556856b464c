package transcode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuivienor/hls-ladder/internal/model"
)

func TestMasterPlaylist(t *testing.T) {
	got, err := MasterPlaylist([]model.Quality{model.Quality720p, model.Quality360p})
	if err != nil {
		t.Fatalf("MasterPlaylist() error = %v", err)
	}
	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n" +
		"720p/playlist.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=600000,RESOLUTION=640x360\n" +
		"360p/playlist.m3u8\n"
	if got != want {
		t.Errorf("MasterPlaylist() =\n%s\nwant\n%s", got, want)
	}

	if _, err := MasterPlaylist([]model.Quality{"4k"}); err == nil {
		t.Error("expected error for unknown quality")
	}
}

func TestWriteMasterPlaylist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "MOV1")
	path, err := WriteMasterPlaylist(dir, []model.Quality{model.Quality480p})
	if err != nil {
		t.Fatalf("WriteMasterPlaylist() error = %v", err)
	}
	if path != filepath.Join(dir, "master.m3u8") {
		t.Errorf("path = %q", path)
	}
	data, _ := os.ReadFile(path)
	if len(data) == 0 {
		t.Error("master playlist empty")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	if _, err := WriteMasterPlaylist(dir, nil); err == nil {
		t.Error("expected error for empty quality list")
	}
}

func TestCleanupTempFiles(t *testing.T) {
	root := t.TempDir()
	files := map[string]bool{
		"master.m3u8.tmp":       true,
		"720p/segment_004.part": true,
		"720p/segment_000.ts":   false,
		"720p/playlist.m3u8":    false,
	}
	for name := range files {
		path := filepath.Join(root, name)
		os.MkdirAll(filepath.Dir(path), 0755)
		os.WriteFile(path, []byte("x"), 0644)
	}

	n, err := CleanupTempFiles(root)
	if err != nil {
		t.Fatalf("CleanupTempFiles() error = %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	for name, removed := range files {
		_, err := os.Stat(filepath.Join(root, name))
		if removed != os.IsNotExist(err) {
			t.Errorf("%s: removed = %v, want %v", name, os.IsNotExist(err), removed)
		}
	}

	if n, err := CleanupTempFiles(filepath.Join(root, "missing")); err != nil || n != 0 {
		t.Errorf("CleanupTempFiles(missing) = %d, %v", n, err)
	}
}
