package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/prism/pkg/audit"
	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/dispatch"
	"mercator-hq/prism/pkg/normalizer"
	"mercator-hq/prism/pkg/processing/tokens"
	"mercator-hq/prism/pkg/providerfactory"
	"mercator-hq/prism/pkg/proxy/handlers"
	"mercator-hq/prism/pkg/proxy/middleware"
	"mercator-hq/prism/pkg/registry"
	"mercator-hq/prism/pkg/routing"
	"mercator-hq/prism/pkg/routing/strategies"
	"mercator-hq/prism/pkg/telemetry/health"
	"mercator-hq/prism/pkg/telemetry/metrics"
	"mercator-hq/prism/pkg/telemetry/tracing"
)

// BuildInfo identifies the running binary on /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Options configures New.
type Options struct {
	// ConfigPath enables hot-reload of the provider set when set.
	ConfigPath string

	// Info is reported on /version.
	Info BuildInfo

	// Builder creates provider adapters. Default providerfactory.NewProvider.
	Builder registry.Builder
}

// Server is the gateway: the dialect endpoints, the management surface and
// the background jobs that keep provider health and the audit log current.
type Server struct {
	config  *config.Config
	options Options
	logger  *slog.Logger

	registry   *registry.Registry
	balancer   *routing.Balancer
	dispatcher *dispatch.Dispatcher
	normalizer *normalizer.Normalizer
	monitor    *registry.Monitor
	collector  *metrics.Collector
	tracer     *tracing.Tracer
	checker    *health.Checker

	store    audit.Store
	recorder *audit.Recorder
	pruner   *audit.Scheduler

	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	stopWatcher  context.CancelFunc
}

// New builds a server from cfg. Nothing is started until Start.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Builder == nil {
		opts.Builder = providerfactory.NewProvider
	}
	s := &Server{
		config:       cfg,
		options:      opts,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}

	s.registry = registry.New(registry.Options{
		FailureThreshold: cfg.Health.FailureThreshold,
		Alpha:            cfg.Health.EWMAAlpha,
	})
	if err := s.syncProviders(cfg); err != nil {
		_ = s.registry.Close()
		return nil, err
	}

	strategy, err := strategies.New(cfg.Routing.Strategy, s.registry, cfg.Routing.SecondaryStrategy)
	if err != nil {
		_ = s.registry.Close()
		return nil, fmt.Errorf("routing: %w", err)
	}
	s.balancer = routing.NewBalancer(s.registry, strategy, cfg.Routing.MaxAttempts)
	s.normalizer = normalizer.New(tokens.NewSimpleEstimator(&cfg.Processing.Tokens))

	s.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	if err := s.collector.WatchRegistry(s.registry); err != nil {
		_ = s.registry.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	s.tracer, err = tracing.New(&cfg.Telemetry.Tracing, opts.Info.Version)
	if err != nil {
		_ = s.registry.Close()
		return nil, fmt.Errorf("tracing: %w", err)
	}

	if err := s.openAudit(cfg.Audit); err != nil {
		s.closeAll(context.Background())
		return nil, err
	}

	dcfg := dispatch.Config{
		CallTimeout: cfg.Routing.CallTimeout,
		Observer:    s.collector,
	}
	if s.recorder != nil {
		dcfg.Recorder = s.recorder
	}
	s.dispatcher = dispatch.New(s.registry, s.balancer, dcfg)

	s.monitor, err = registry.NewMonitor(s.registry, registry.MonitorConfig{
		Schedule:    cfg.Health.ProbeSchedule,
		Timeout:     cfg.Health.ProbeTimeout,
		Concurrency: cfg.Health.ProbeConcurrency,
	})
	if err != nil {
		s.closeAll(context.Background())
		return nil, fmt.Errorf("health probes: %w", err)
	}

	s.checker = health.New(cfg.Telemetry.Health.CheckTimeout)
	s.checker.RegisterCheck("providers", health.ProvidersCheck(s.registry, cfg.Telemetry.Health.MinHealthyProviders))
	s.checker.SetSummary(health.ProviderSummary(s.registry))
	if s.store != nil {
		s.checker.RegisterCheck("audit", func(ctx context.Context) error {
			_, err := s.store.Query(ctx, audit.Filter{Limit: 1})
			return err
		})
	}

	s.handler = s.setupRoutes()
	return s, nil
}

func (s *Server) openAudit(cfg config.AuditConfig) error {
	if !cfg.IsEnabled() {
		return nil
	}
	store, err := audit.Open(audit.StoreConfig{
		Driver:      cfg.Driver,
		Path:        cfg.Path,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	s.store = store
	s.recorder = audit.NewRecorder(store, audit.RecorderConfig{
		Buffer:       cfg.Buffer,
		WriteTimeout: cfg.WriteTimeout,
	})
	s.pruner, err = audit.NewScheduler(store, audit.RetentionConfig{
		RetentionDays: cfg.RetentionDays,
		Schedule:      cfg.PruneSchedule,
	})
	if err != nil {
		return fmt.Errorf("audit retention: %w", err)
	}
	return nil
}

// syncProviders applies cfg's provider set to the registry.
func (s *Server) syncProviders(cfg *config.Config) error {
	descs := cfg.Descriptors()
	for i := range descs {
		descs[i] = providerfactory.Infer(descs[i])
	}
	if err := s.registry.Sync(descs, s.options.Builder); err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	return nil
}

// setupRoutes builds the mux and wraps it in the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	gateway := handlers.NewGateway(s.dispatcher, s.normalizer, handlers.GatewayConfig{
		MaxBodyBytes: s.config.Proxy.MaxBodyBytes,
		Metrics:      s.collector,
	})
	for _, path := range []string{"/v1/chat/completions", "/v1/completions", "/v1/messages", "/v1/models/", "/v1beta/models/"} {
		mux.Handle(path, gateway)
	}

	handlers.NewManagement(s.registry, s.options.Builder, providerfactory.Infer).Register(mux)
	if s.store != nil {
		handlers.NewDecisions(s.store).Register(mux)
	}

	mux.Handle("GET /health", s.checker.LivenessHandler())
	mux.Handle("GET /ready", s.checker.ReadinessHandler())
	mux.Handle("GET /version", health.VersionHandler(s.options.Info.Version, s.options.Info.Commit, s.options.Info.BuildTime))
	if s.config.Telemetry.Metrics.Enabled {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.collector.Handler())
	}

	var handler http.Handler = mux
	if s.config.Limits.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(s.config.Limits.RateLimit)
		handler = middleware.RateLimitMiddleware(limiter, s.normalizer, s.collector.RecordRateLimited)(handler)
	}
	handler = middleware.CORSMiddleware(s.config.Proxy.CORS)(handler)
	handler = middleware.RecoveryMiddleware(s.normalizer)(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = tracing.HTTPMiddleware(handler)
	return handler
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry returns the provider registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Addr returns the bound listen address once Start has bound it.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start starts the background jobs and the HTTP listener and blocks until
// ctx is cancelled, a termination signal arrives, Stop is called or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.Proxy.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Proxy.ListenAddress, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.Proxy.ReadTimeout,
		WriteTimeout:   s.config.Proxy.WriteTimeout,
		IdleTimeout:    s.config.Proxy.IdleTimeout,
		MaxHeaderBytes: s.config.Proxy.MaxHeaderBytes,
	}
	tlsEnabled := s.config.Proxy.TLS.Enabled()
	if tlsEnabled {
		s.httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	s.isRunning = true
	s.mu.Unlock()

	if err := s.startBackground(ctx); err != nil {
		_ = ln.Close()
		s.closeAll(context.Background())
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway",
			"address", ln.Addr().String(),
			"tls_enabled", tlsEnabled,
			"providers", len(s.registry.IDs()),
			"strategy", s.balancer.Strategy().Name(),
		)
		var err error
		if tlsEnabled {
			err = s.httpServer.ServeTLS(ln, s.config.Proxy.TLS.CertFile, s.config.Proxy.TLS.KeyFile)
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

func (s *Server) startBackground(ctx context.Context) error {
	if err := s.monitor.Start(ctx); err != nil {
		return fmt.Errorf("health probes: %w", err)
	}
	if s.pruner != nil {
		if err := s.pruner.Start(ctx); err != nil {
			return fmt.Errorf("audit retention: %w", err)
		}
	}
	if s.options.ConfigPath == "" {
		return nil
	}

	w, err := config.NewWatcher(s.options.ConfigPath, 0, s.Reload)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.stopWatcher = cancel
	s.mu.Unlock()
	go func() {
		if err := w.Run(wctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("config watcher stopped", "error", err)
		}
	}()
	return nil
}

// Stop asks a running Start to shut down.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// Reload applies a new configuration. The provider set is synced in place;
// routing strategy and listener changes need a restart.
func (s *Server) Reload(cfg *config.Config) error {
	if err := s.syncProviders(cfg); err != nil {
		return err
	}
	if cfg.Routing.Strategy != s.config.Routing.Strategy ||
		cfg.Routing.SecondaryStrategy != s.config.Routing.SecondaryStrategy {
		s.logger.Warn("routing strategy changes take effect after a restart",
			"running", s.config.Routing.Strategy,
			"configured", cfg.Routing.Strategy,
		)
	}
	if cfg.Proxy.ListenAddress != s.config.Proxy.ListenAddress {
		s.logger.Warn("listen address changes take effect after a restart")
	}
	config.SetConfig(cfg)
	s.logger.Info("configuration reloaded", "providers", len(cfg.Providers))
	return nil
}

// Shutdown drains in-flight requests and stops every background job. It is
// safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		s.isRunning = false
		stopWatcher := s.stopWatcher
		s.mu.Unlock()

		if stopWatcher != nil {
			stopWatcher()
		}

		if running && s.httpServer != nil {
			s.logger.Info("initiating graceful shutdown", "timeout", s.config.Proxy.ShutdownTimeout.String())
			shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Proxy.ShutdownTimeout)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.closeAll(ctx)
		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// closeAll releases background jobs, the audit log, adapters and the tracer.
// The recorder is closed before its store so queued decisions are written.
func (s *Server) closeAll(ctx context.Context) {
	if s.monitor != nil {
		s.monitor.Stop()
	}
	if s.pruner != nil {
		s.pruner.Stop()
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.Error("failed to flush audit recorder", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close audit store", "error", err)
		}
	}
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			s.logger.Warn("failed to close providers", "error", err)
		}
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Recorder returns the audit recorder, or nil when auditing is off.
func (s *Server) Recorder() *audit.Recorder {
	return s.recorder
}
