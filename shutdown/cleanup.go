package shutdown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"alterego/core"
	"alterego/logging"

	"go.uber.org/zap"
)

// RemoveStagedFiles returns a handler deleting files in dir that match
// pattern, such as source images staged for upload and left behind by a
// crash. Failures are logged, never returned. An empty dir means
// os.TempDir.
func RemoveStagedFiles(logger *logging.Logger, dir, pattern string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		if dir == "" {
			dir = os.TempDir()
		}
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			logger.Warn("Invalid staged file pattern", zap.String("pattern", pattern), zap.Error(err))
			return nil
		}

		removed := 0
		for _, path := range matches {
			if ctx.Err() != nil {
				logger.Warn("Staged file cleanup interrupted", zap.Int("remaining", len(matches)-removed))
				return nil
			}
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if err := os.Remove(path); err != nil {
				logger.Warn("Failed to remove staged file", zap.String("path", path), zap.Error(err))
				continue
			}
			removed++
		}
		if removed > 0 {
			logger.Info("Removed staged files", zap.Int("count", removed))
		}
		return nil
	}
}

// FlushLogger returns a handler syncing logger. Sync on a terminal
// reports EINVAL or ENOTTY, which is ignored.
func FlushLogger(logger *logging.Logger) core.ShutdownFunc {
	return func(ctx context.Context) error {
		err := logger.Sync()
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
}
