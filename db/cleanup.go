package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult reports one retention pass.
type CleanupResult struct {
	Deleted  int64
	Cutoff   time.Time
	Duration time.Duration
}

// Cleanup deletes history rows older than retentionDays and runs VACUUM.
// A retentionDays of 0 keeps everything.
func (d *Database) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	return d.cleanupBefore(ctx, retentionDays, time.Now())
}

func (d *Database) cleanupBefore(ctx context.Context, retentionDays int, now time.Time) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if retentionDays == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	result.Cutoff = now.AddDate(0, 0, -retentionDays)

	res, err := d.ExecContext(ctx, "DELETE FROM generation_history WHERE created_at < ?", result.Cutoff.Unix())
	if err != nil {
		return result, fmt.Errorf("failed to delete expired history: %w", err)
	}
	if result.Deleted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if result.Deleted > 0 {
		if _, err := d.ExecContext(ctx, "VACUUM"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}
