package storage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
)

// SyncDir best-effort fsyncs a directory so that recently renamed files become durable.
// On platforms where directory fsync is unsupported, the error is ignored.
func SyncDir(dir string) error {
	if dir == "" || runtime.GOOS == "windows" {
		return nil
	}
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer df.Close()
	if err := df.Sync(); err != nil {
		// tmpfs and friends return EINVAL for directories.
		if errors.Is(err, syscall.EINVAL) {
			return nil
		}
		return err
	}
	return nil
}

// PruneEmptyDirs removes dir and then its parents while they are empty,
// stopping at stop (which is never removed). It returns the number of
// directories removed. Failures end the walk silently; a directory that
// cannot be removed is simply kept.
func PruneEmptyDirs(dir, stop string) int {
	stop = filepath.Clean(stop)
	removed := 0
	for {
		dir = filepath.Clean(dir)
		if dir == stop || len(dir) <= len(stop) || dir == "/" || dir == "." {
			return removed
		}
		e, err := os.ReadDir(dir)
		if err != nil || len(e) > 0 {
			return removed
		}
		if err := os.Remove(dir); err != nil {
			return removed
		}
		removed++
		dir = filepath.Dir(dir)
	}
}
