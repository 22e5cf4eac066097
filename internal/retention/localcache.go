package retention

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// sweepCacheDir removes locally-cached attachment copies older than the
// cutoff. The cache directory is an external collaborator: it may hold
// unrelated subdirectories, so only regular files are touched and directories
// are left in place. Per-file failures are logged and skipped.
func sweepCacheDir(dir string, cutoff time.Time) (deleted, failed int, err error) {
	if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
		// A missing cache directory means nothing to sweep.
		return 0, 0, nil
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// An unreadable entry should not abort the rest of the walk.
			failed++
			logEvent("cache_entry_unreadable", map[string]any{"path": path, "error": walkErr.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			failed++
			logEvent("cache_stat_failed", map[string]any{"path": path, "error": err.Error()})
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			failed++
			logEvent("cache_delete_failed", map[string]any{"path": path, "error": err.Error()})
			return nil
		}
		deleted++
		return nil
	})
	return deleted, failed, err
}
