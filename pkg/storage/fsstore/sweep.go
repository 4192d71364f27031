package fsstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"augeias/pkg/storage"
)

// isTempName reports whether name is a temporary written by writeFile.
func isTempName(name string) bool {
	rest, ok := strings.CutPrefix(name, objectFileName+"#")
	if !ok || rest == "" {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return false
		}
	}
	return true
}

// Sweep removes temporaries older than olderThan left behind by interrupted
// writes, then prunes the object directories they leave empty. Empty
// containers are kept.
func (s *Store) Sweep(ctx context.Context, olderThan time.Duration) (storage.SweepResult, error) {
	var res storage.SweepResult
	cutoff := time.Now().Add(-olderThan)

	var stale []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isTempName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().After(cutoff) {
			stale = append(stale, p)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	for _, p := range stale {
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.log.Warn("failed to remove stale temporary", zap.String("path", p), zap.Error(err))
			}
			continue
		}
		res.TempFilesRemoved++
		if stop, ok := enclosingContainer(filepath.Dir(p)); ok {
			res.DirsRemoved += storage.PruneEmptyDirs(filepath.Dir(p), stop)
		}
		s.log.Debug("removed stale temporary", zap.String("path", p))
	}
	if res.TempFilesRemoved > 0 {
		s.log.Info("sweep finished",
			zap.String("path", s.base),
			zap.Int("temp_removed", res.TempFilesRemoved),
			zap.Int("dirs_removed", res.DirsRemoved))
	}
	return res, nil
}

// enclosingContainer walks up from dir to the container directory holding it.
func enclosingContainer(dir string) (string, bool) {
	for {
		if filepath.Base(dir) == containerDirName {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
