package properties

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	os.MkdirAll(filepath.Dir(path), 0755)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestAssertNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "720p", "segment_000.ts"), "")
	if err := AssertNoTempFiles(dir); err != nil {
		t.Errorf("clean folder: %v", err)
	}

	writeFile(t, filepath.Join(dir, "720p", "segment_001.ts.part"), "")
	if err := AssertNoTempFiles(dir); err == nil || !strings.Contains(err.Error(), "segment_001.ts.part") {
		t.Errorf("error = %v, want leftover reported", err)
	}
}

func TestAssertMasterPlaylistConsistent(t *testing.T) {
	master := "#EXTM3U\n#EXT-X-VERSION:3\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=600000,RESOLUTION=640x360\n360p/playlist.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=854x480\n480p/playlist.m3u8\n"

	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name: "consistent",
			files: map[string]string{
				"master.m3u8":         master,
				"360p/playlist.m3u8":  "#EXTM3U\n",
				"360p/segment_000.ts": "",
				"480p/playlist.m3u8":  "#EXTM3U\n",
				"480p/segment_000.ts": "",
			},
		},
		{
			name: "missing variant",
			files: map[string]string{
				"master.m3u8":         master,
				"360p/playlist.m3u8":  "#EXTM3U\n",
				"360p/segment_000.ts": "",
			},
			wantErr: "480p/playlist.m3u8",
		},
		{
			name: "variant without segments",
			files: map[string]string{
				"master.m3u8":         master,
				"360p/playlist.m3u8":  "#EXTM3U\n",
				"360p/segment_000.ts": "",
				"480p/playlist.m3u8":  "#EXTM3U\n",
			},
			wantErr: "no segments",
		},
		{
			name:    "bad header",
			files:   map[string]string{"master.m3u8": "garbage\n"},
			wantErr: "#EXTM3U",
		},
		{
			name:    "no variants",
			files:   map[string]string{"master.m3u8": "#EXTM3U\n"},
			wantErr: "no variants",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, filepath.Join(dir, name), content)
			}
			variants, err := AssertMasterPlaylistConsistent(dir, "master.m3u8")
			if tt.wantErr == "" {
				if err != nil || len(variants) != 2 {
					t.Errorf("got %v, %v", variants, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
