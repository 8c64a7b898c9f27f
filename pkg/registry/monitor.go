package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// MonitorConfig configures periodic health probes.
type MonitorConfig struct {
	// Schedule is a cron expression or descriptor. Default "@every 60s".
	Schedule string

	// Timeout bounds a single probe. Default 5s.
	Timeout time.Duration

	// Concurrency caps probes running at once. Default 8.
	Concurrency int
}

// Monitor probes every enabled provider on a cron schedule and records the
// results in the registry.
type Monitor struct {
	registry *Registry
	config   MonitorConfig
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewMonitor validates the schedule and creates a stopped monitor.
func NewMonitor(r *Registry, cfg MonitorConfig) (*Monitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 60s"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid probe schedule %q: %w", cfg.Schedule, err)
	}

	return &Monitor{
		registry: r,
		config:   cfg,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "registry.monitor"),
	}, nil
}

// Start schedules probes until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	if _, err := m.cron.AddFunc(m.config.Schedule, func() { m.ProbeOnce(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule probes: %w", err)
	}
	m.cron.Start()
	m.running = true
	m.cancel = cancel

	m.logger.Info("health monitor started",
		"schedule", m.config.Schedule,
		"timeout", m.config.Timeout,
	)

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// Stop stops scheduling and waits for a running probe round to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.cancel()
	<-m.cron.Stop().Done()
	m.running = false
	m.logger.Info("health monitor stopped")
}

// NextRun returns the time of the next scheduled probe round, if running.
func (m *Monitor) NextRun() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.cron.Entries()
	if !m.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// ProbeOnce probes every enabled provider concurrently and waits for all
// of them.
func (m *Monitor) ProbeOnce(ctx context.Context) {
	targets := m.registry.enabledAdapters()
	if len(targets) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(m.config.Concurrency)

	for id, p := range targets {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
			defer cancel()

			start := time.Now()
			err := p.HealthCheck(pctx)
			if err != nil && ctx.Err() != nil {
				// shutting down; not the provider's fault
				return nil
			}
			m.registry.RecordProbe(id, err)

			if err != nil {
				m.logger.Warn("health probe failed",
					"provider", id,
					"latency", time.Since(start),
					"error", err,
				)
			} else {
				m.logger.Debug("health probe passed", "provider", id, "latency", time.Since(start))
			}
			return nil
		})
	}
	_ = g.Wait()
}
