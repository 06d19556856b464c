// Package properties holds assertions over a finished HLS output folder,
// shared by tests that run real or scripted encoders.
package properties

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AssertNoTempFiles verifies no *.tmp or *.part files are left under root
func AssertNoTempFiles(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := strings.ToLower(info.Name())
		if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".part") {
			relPath, _ := filepath.Rel(root, path)
			return fmt.Errorf("temporary file left behind: %s", relPath)
		}
		return nil
	})
}

// AssertMasterPlaylistConsistent verifies that every variant listed in the
// master playlist of folder exists and has at least one segment, and that
// each variant carries a stream-info line
func AssertMasterPlaylistConsistent(folder, masterName string) ([]string, error) {
	f, err := os.Open(filepath.Join(folder, masterName))
	if err != nil {
		return nil, fmt.Errorf("failed to open master playlist: %w", err)
	}
	defer f.Close()

	var variants []string
	pendingInfo := false
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case lineNo == 1 && line != "#EXTM3U":
			return nil, fmt.Errorf("master playlist does not start with #EXTM3U")
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			if !strings.Contains(line, "BANDWIDTH=") {
				return nil, fmt.Errorf("line %d: stream info without BANDWIDTH", lineNo)
			}
			pendingInfo = true
		case line == "" || strings.HasPrefix(line, "#"):
		default:
			if !pendingInfo {
				return nil, fmt.Errorf("line %d: variant %s has no stream info", lineNo, line)
			}
			pendingInfo = false

			playlist := filepath.Join(folder, filepath.FromSlash(line))
			if _, err := os.Stat(playlist); err != nil {
				return nil, fmt.Errorf("variant %s: %w", line, err)
			}
			segments, _ := filepath.Glob(filepath.Join(filepath.Dir(playlist), "*.ts"))
			if len(segments) == 0 {
				return nil, fmt.Errorf("variant %s has no segments", line)
			}
			variants = append(variants, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("master playlist lists no variants")
	}
	return variants, nil
}
