package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig controls pruning of old records.
type RetentionConfig struct {
	// RetentionDays is how long records are kept. Zero keeps them forever.
	RetentionDays int

	// Schedule is the cron expression for pruning. Default "0 3 * * *".
	Schedule string

	// Now returns the current time. Default time.Now.
	Now func() time.Time
}

// Scheduler prunes expired records on a cron schedule.
type Scheduler struct {
	store  Store
	config RetentionConfig
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler validates cfg and returns a stopped scheduler.
func NewScheduler(store Store, cfg RetentionConfig) (*Scheduler, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RetentionDays < 0 {
		return nil, &RetentionError{RetentionDays: cfg.RetentionDays, Cause: fmt.Errorf("retention days must not be negative")}
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", cfg.Schedule, err)
	}

	return &Scheduler{
		store:  store,
		config: cfg,
		cron:   cron.New(),
		logger: slog.Default().With("component", "audit.scheduler"),
	}, nil
}

// Start schedules pruning until ctx is cancelled or Stop is called. With
// RetentionDays zero it does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.config.RetentionDays == 0 {
		s.logger.Info("audit retention disabled, skipping scheduler")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", s.config.Schedule,
		"retention_days", s.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// PruneNow deletes records older than the retention window.
func (s *Scheduler) PruneNow(ctx context.Context) (int64, error) {
	if s.config.RetentionDays == 0 {
		return 0, nil
	}
	cutoff := s.config.Now().AddDate(0, 0, -s.config.RetentionDays)
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, &RetentionError{RetentionDays: s.config.RetentionDays, Cause: err}
	}
	return n, nil
}

func (s *Scheduler) run(ctx context.Context) {
	deleted, err := s.PruneNow(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("scheduled pruning completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("scheduled pruning completed, no records deleted")
	}
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether pruning is scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled prune, or nil when stopped.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
