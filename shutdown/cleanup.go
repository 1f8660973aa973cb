package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"sd_backend/core"
)

// CleanupTempFiles returns a step that removes files matching pattern in
// each dir: partial writes left behind by an interrupted atomic save.
// Failures are logged and never fail shutdown.
//
// Usage:
//
//	manager.Register("temp-files", shutdown.PriorityTempFiles,
//	    shutdown.CleanupTempFiles(logger, imagegen.TempFilePattern, cfg.ImagesDir(), cfg.ThumbnailsDir()))
func CleanupTempFiles(logger *zap.Logger, pattern string, dirs ...string) core.ShutdownFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		var removed, failed int
		for _, dir := range dirs {
			r, f := removeMatching(ctx, logger, dir, pattern)
			removed += r
			failed += f
		}
		if removed > 0 || failed > 0 {
			logger.Info("Temp file cleanup complete",
				zap.Int("removed", removed),
				zap.Int("failed", failed),
			)
		}
		return nil
	}
}

func removeMatching(ctx context.Context, logger *zap.Logger, dir, pattern string) (removed, failed int) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		logger.Error("Failed to list temporary files",
			zap.String("directory", dir),
			zap.String("pattern", pattern),
			zap.Error(err),
		)
		return 0, 0
	}

	for _, match := range matches {
		if ctx.Err() != nil {
			logger.Warn("Shutdown context cancelled during cleanup",
				zap.String("directory", dir),
				zap.Int("remaining", len(matches)-removed-failed),
			)
			return removed, failed
		}

		info, err := os.Lstat(match)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := os.Remove(match); err != nil {
			failed++
			logger.Warn("Failed to remove temporary file",
				zap.String("file", match),
				zap.Error(err),
			)
			continue
		}
		removed++
		logger.Debug("Removed temporary file", zap.String("file", match))
	}
	return removed, failed
}
