package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuivienor/hls-ladder/internal/model"
)

// MasterPlaylistName is the top-level manifest file name
const MasterPlaylistName = "master.m3u8"

// MasterPlaylist renders a master playlist referencing each quality's media
// playlist, in the given order
func MasterPlaylist(qualities []model.Quality) (string, error) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for _, q := range qualities {
		p, ok := q.Profile()
		if !ok {
			return "", fmt.Errorf("unknown quality %q", q)
		}
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", p.Bitrate, p.Resolution())
		fmt.Fprintf(&b, "%s/%s\n", q, PlaylistName)
	}
	return b.String(), nil
}

// WriteMasterPlaylist writes master.m3u8 into dir and returns its path. The
// file is written to a temporary name first and renamed into place.
func WriteMasterPlaylist(dir string, qualities []model.Quality) (string, error) {
	if len(qualities) == 0 {
		return "", fmt.Errorf("no qualities to list in master playlist")
	}
	content, err := MasterPlaylist(qualities)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, MasterPlaylistName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write master playlist: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize master playlist: %w", err)
	}
	return path, nil
}

// tempSuffixes are leftovers of interrupted writes
var tempSuffixes = []string{".tmp", ".part"}

// CleanupTempFiles removes temporary and partial files under root and
// returns how many were removed. A missing root is not an error.
func CleanupTempFiles(root string) (int, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return 0, nil
	}

	removed := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, suffix := range tempSuffixes {
			if strings.HasSuffix(d.Name(), suffix) {
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("failed to remove %s: %w", path, err)
				}
				removed++
				break
			}
		}
		return nil
	})
	return removed, err
}
