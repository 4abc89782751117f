// Package cleanup reclaims staging space left behind by interrupted batches.
//
// Each batch stages its files under {root}/.dropzone/{batchID}/ and removes
// that directory when it finishes. A process crash or kill between the two
// leaves the directory on disk; RunPeriodic removes any batch directory whose
// mtime is older than the configured TTL.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zynqcloud/go-dropzone/internal/destination"
	"github.com/zynqcloud/go-dropzone/internal/store"
)

// Staging scans the staging area of root and removes batch directories older
// than ttl. Active batches touch their directory with every staged file, so
// they are left alone. Returns the number of directories removed.
func Staging(root string, ttl time.Duration, logger *slog.Logger) int {
	stagingDir := filepath.Join(root, store.StagingDirName)
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cleanup: readdir failed", "dir", stagingDir, "err", err)
		}
		return 0
	}

	cutoff := time.Now().Add(-ttl)
	var removed int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		dir := filepath.Join(stagingDir, e.Name())
		age := time.Since(info.ModTime()).Round(time.Minute)
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("cleanup: remove failed", "batch", e.Name(), "err", err)
			continue
		}
		removed++
		logger.Info("cleanup: removed stale batch", "batch", e.Name(), "age", age)
	}
	if removed > 0 {
		logger.Info("cleanup: cycle complete", "removed", removed)
	}
	return removed
}

// RunPeriodic starts a background goroutine that sweeps the current
// destination every interval until ctx is cancelled. The destination is
// re-read each time because an administrator may change it at runtime. A
// first pass runs immediately to clear leftovers from a previous process.
func RunPeriodic(ctx context.Context, dest *destination.Store, ttl, interval time.Duration, logger *slog.Logger) {
	sweep := func() {
		root, err := dest.Get()
		if err != nil {
			return
		}
		Staging(root, ttl, logger)
	}

	go func() {
		sweep()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
