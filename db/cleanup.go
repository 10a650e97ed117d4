package db

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetentionDays is how long activity records are kept.
const DefaultRetentionDays = 30

// CleanupResult contains statistics about a cleanup run.
type CleanupResult struct {
	// EventsDeleted is the number of transform_events rows removed
	EventsDeleted int64
	// Duration is how long the cleanup took
	Duration time.Duration
}

// Cleanup deletes activity records older than retentionDays and vacuums.
// kv_blobs is never touched: it holds the live credit balance, history and
// favorites.
func (d *Database) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.conn()
	if err != nil {
		return result, err
	}

	res, err := conn.ExecContext(ctx,
		"DELETE FROM transform_events WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return result, fmt.Errorf("failed to delete from transform_events: %w", err)
	}
	if result.EventsDeleted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := ctx.Err(); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig holds configuration for the cleanup scheduler.
type CleanupSchedulerConfig struct {
	// RetentionDays is the number of days to retain records
	RetentionDays int
	// Interval is how often to run cleanup
	Interval time.Duration
	// OnCleanup is called after each run (optional)
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig keeps 30 days and runs daily.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: DefaultRetentionDays,
		Interval:      24 * time.Hour,
	}
}

// StartCleanupScheduler runs Cleanup immediately and then every Interval
// until ctx is cancelled.
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig) {
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	go func() {
		run := func() {
			result, err := d.Cleanup(ctx, config.RetentionDays)
			if config.OnCleanup != nil {
				config.OnCleanup(result, err)
			}
		}
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
