package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetentionScheduler runs Cleanup on a cron schedule such as "@daily" or
// "30 3 * * *".
type RetentionScheduler struct {
	db            *Database
	retentionDays int
	spec          string
	logger        *zap.Logger

	cron *cron.Cron
	mu   sync.Mutex
	last CleanupResult
	err  error
}

// NewRetentionScheduler validates spec and returns a stopped scheduler.
func NewRetentionScheduler(d *Database, spec string, retentionDays int, logger *zap.Logger) (*RetentionScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	return &RetentionScheduler{
		db:            d,
		retentionDays: retentionDays,
		spec:          spec,
		logger:        logger,
		cron:          cron.New(),
	}, nil
}

// Start registers the cleanup job and starts the cron loop. With a
// retention of 0 days nothing is scheduled.
func (s *RetentionScheduler) Start() error {
	if s.retentionDays == 0 {
		s.logger.Info("history retention disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunNow(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule history cleanup: %w", err)
	}
	s.cron.Start()
	s.logger.Info("history retention scheduled",
		zap.String("schedule", s.spec),
		zap.Int("retention_days", s.retentionDays))
	return nil
}

// RunNow runs one cleanup pass immediately.
func (s *RetentionScheduler) RunNow(ctx context.Context) (CleanupResult, error) {
	result, err := s.db.Cleanup(ctx, s.retentionDays)

	s.mu.Lock()
	s.last, s.err = result, err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("history cleanup failed", zap.Error(err))
	} else {
		s.logger.Info("history cleanup completed",
			zap.Int64("deleted", result.Deleted),
			zap.Time("cutoff", result.Cutoff),
			zap.Duration("duration", result.Duration))
	}
	return result, err
}

// LastResult returns the outcome of the most recent pass.
func (s *RetentionScheduler) LastResult() (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.err
}

// Stop stops scheduling and waits for a running job, bounded by ctx.
func (s *RetentionScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
