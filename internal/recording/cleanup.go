// Package recording handles retention of downloaded call recordings.
//
// Every crawled leg leaves an MP3 on disk; nothing in the crawl ever reads
// one again after transcription, so old files are pure disk growth.
package recording

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// StartCleanupTicker runs a background goroutine that periodically removes
// recording files older than maxDays from dir. If maxDays is 0 no cleanup is
// performed. The goroutine stops when the provided context is cancelled.
func StartCleanupTicker(ctx context.Context, dir string, maxDays int, interval time.Duration) {
	if maxDays <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := Sweep(dir, time.Duration(maxDays)*24*time.Hour)
				if err != nil {
					slog.Error("recording retention cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Info("recording retention cleanup", "removed", removed, "max_days", maxDays)
				}
			}
		}
	}()
}

// Sweep deletes regular files in dir whose modification time is older than
// maxAge and returns the number removed. Subdirectories are not descended;
// the fetcher writes a flat directory of <call-sid>.mp3 files.
func Sweep(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove recording file", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
