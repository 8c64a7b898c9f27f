package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/prism/pkg/routing"
)

// RecorderConfig configures asynchronous recording.
type RecorderConfig struct {
	// Buffer is the size of the pending record queue. Default 1000.
	Buffer int

	// WriteTimeout bounds a single store write. Default 5s.
	WriteTimeout time.Duration
}

// Recorder writes routing decisions to a Store from a background worker.
// Record never blocks the request path: when the queue is full the
// decision is dropped and counted.
type Recorder struct {
	store  Store
	config RecorderConfig
	queue  chan *Record
	wg     sync.WaitGroup
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	written atomic.Int64
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store Store, cfg RecorderConfig) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		store:  store,
		config: cfg,
		queue:  make(chan *Record, cfg.Buffer),
		logger: slog.Default().With("component", "audit.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"buffer", cfg.Buffer,
		"write_timeout", cfg.WriteTimeout,
	)
	return r
}

// Record enqueues a finished decision. It implements dispatch.Recorder.
func (r *Recorder) Record(d *routing.Decision) {
	if d == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}

	rec := FromDecision(d)
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("audit queue full, dropping decision",
			"request_id", d.RequestID,
			"buffer", r.config.Buffer,
		)
	}
}

// Dropped returns the number of decisions that were not queued.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Written returns the number of records saved to the store.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Store returns the backing store.
func (r *Recorder) Store() Store { return r.store }

func (r *Recorder) worker() {
	defer r.wg.Done()
	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.Error("failed to write audit record",
			"request_id", rec.RequestID,
			"error", err,
		)
		return
	}
	r.written.Add(1)
}

// Close stops accepting decisions and waits until queued records are
// written. It does not close the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("audit recorder closed",
		"written", r.written.Load(),
		"dropped", r.dropped.Load(),
	)
	return nil
}
