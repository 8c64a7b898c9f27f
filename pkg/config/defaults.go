package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 10485760 // 10MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Provider defaults
	DefaultProviderTimeout        = 60 * time.Second
	DefaultProviderConnectTimeout = 10 * time.Second
	DefaultProviderChunkTimeout   = 30 * time.Second

	// Routing defaults
	DefaultRoutingStrategy  = "round-robin"
	DefaultSecondary        = "round-robin"
	DefaultCallTimeout      = 60 * time.Second
	DefaultProbeSchedule    = "@every 60s"
	DefaultProbeTimeout     = 5 * time.Second
	DefaultProbeConcurrency = 8
	DefaultFailureThreshold = 3
	DefaultEWMAAlpha        = 0.3

	// Limits defaults
	DefaultRateLimitRPS   = 10.0
	DefaultRateLimitBurst = 20

	// Processing defaults
	DefaultTokensCharsPerToken = 4.0

	// Audit defaults
	DefaultAuditDriver        = "sqlite"
	DefaultAuditPath          = "data/audit.db"
	DefaultAuditBusyTimeout   = 5 * time.Second
	DefaultAuditBuffer        = 1000
	DefaultAuditWriteTimeout  = 5 * time.Second
	DefaultAuditRetentionDays = 30
	DefaultAuditPruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsEnabled      = true
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "prism"
	DefaultMetricsSubsystem    = "gateway"
	DefaultTracingEnabled      = false
	DefaultTracingSampler      = "ratio"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingExporter     = "otlp"
	DefaultTracingServiceName  = "prism"
	DefaultOTLPTimeout         = 10 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
	DefaultMinHealthyProviders = 1
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyProxyDefaults(&cfg.Proxy)

	for id, p := range cfg.Providers {
		if p.Timeout == 0 {
			p.Timeout = DefaultProviderTimeout
		}
		if p.ConnectTimeout == 0 {
			p.ConnectTimeout = DefaultProviderConnectTimeout
		}
		if p.ChunkTimeout == 0 {
			p.ChunkTimeout = DefaultProviderChunkTimeout
		}
		cfg.Providers[id] = p
	}

	// Routing and health defaults
	if cfg.Routing.Strategy == "" {
		cfg.Routing.Strategy = DefaultRoutingStrategy
	}
	if cfg.Routing.SecondaryStrategy == "" {
		cfg.Routing.SecondaryStrategy = DefaultSecondary
	}
	if cfg.Routing.CallTimeout == 0 {
		cfg.Routing.CallTimeout = DefaultCallTimeout
	}
	if cfg.Health.ProbeSchedule == "" {
		cfg.Health.ProbeSchedule = DefaultProbeSchedule
	}
	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Health.ProbeConcurrency == 0 {
		cfg.Health.ProbeConcurrency = DefaultProbeConcurrency
	}
	if cfg.Health.FailureThreshold == 0 {
		cfg.Health.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Health.EWMAAlpha == 0 {
		cfg.Health.EWMAAlpha = DefaultEWMAAlpha
	}

	// Limits defaults
	if cfg.Limits.RateLimit.RequestsPerSecond == 0 {
		cfg.Limits.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.Limits.RateLimit.Burst == 0 {
		cfg.Limits.RateLimit.Burst = DefaultRateLimitBurst
	}

	// Processing defaults
	if cfg.Processing.Tokens.CharsPerToken == 0 {
		cfg.Processing.Tokens.CharsPerToken = DefaultTokensCharsPerToken
	}
	if cfg.Processing.Tokens.Models == nil {
		cfg.Processing.Tokens.Models = map[string]float64{
			"gpt-4":  4.0,
			"claude": 3.5,
			"gemini": 4.0,
		}
	}

	applyAuditDefaults(&cfg.Audit)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyProxyDefaults(p *ProxyConfig) {
	if p.ListenAddress == "" {
		p.ListenAddress = DefaultListenAddress
	}
	if p.ReadTimeout == 0 {
		p.ReadTimeout = DefaultReadTimeout
	}
	if p.WriteTimeout == 0 {
		p.WriteTimeout = DefaultWriteTimeout
	}
	if p.IdleTimeout == 0 {
		p.IdleTimeout = DefaultIdleTimeout
	}
	if p.ShutdownTimeout == 0 {
		p.ShutdownTimeout = DefaultShutdownTimeout
	}
	if p.MaxHeaderBytes == 0 {
		p.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if p.MaxBodyBytes == 0 {
		p.MaxBodyBytes = DefaultMaxBodyBytes
	}
	applyCORSDefaults(&p.CORS)
}

// applyCORSDefaults applies default values to CORS configuration.
func applyCORSDefaults(cors *CORSConfig) {
	// An untouched section means CORS on with defaults.
	if !cors.Enabled {
		hasAnyConfig := len(cors.AllowedOrigins) > 0 ||
			len(cors.AllowedMethods) > 0 ||
			len(cors.AllowedHeaders) > 0 ||
			len(cors.ExposedHeaders) > 0 ||
			cors.MaxAge > 0
		if !hasAnyConfig {
			cors.Enabled = DefaultCORSEnabled
		}
	}

	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{
			"Authorization", "Content-Type", "X-Request-ID", "X-Prism-Provider",
			"x-api-key", "anthropic-version", "x-goog-api-key",
		}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID", "X-Prism-Provider", "X-Prism-Attempts"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

func applyAuditDefaults(a *AuditConfig) {
	if a.Driver == "" {
		a.Driver = DefaultAuditDriver
	}
	if a.Path == "" {
		a.Path = DefaultAuditPath
	}
	if a.BusyTimeout == 0 {
		a.BusyTimeout = DefaultAuditBusyTimeout
	}
	if a.Buffer == 0 {
		a.Buffer = DefaultAuditBuffer
	}
	if a.WriteTimeout == 0 {
		a.WriteTimeout = DefaultAuditWriteTimeout
	}
	if a.RetentionDays == 0 {
		a.RetentionDays = DefaultAuditRetentionDays
	}
	if a.PruneSchedule == "" {
		a.PruneSchedule = DefaultAuditPruneSchedule
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultPrometheusPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(t.Metrics.RequestDurationBuckets) == 0 {
		t.Metrics.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}
	}
	if len(t.Metrics.TokenCountBuckets) == 0 {
		t.Metrics.TokenCountBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}

	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.OTLP.Timeout == 0 {
		t.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}

	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
	if t.Health.MinHealthyProviders == 0 {
		t.Health.MinHealthyProviders = DefaultMinHealthyProviders
	}
}

// NewDefault returns a configuration with every default applied and no
// providers.
func NewDefault() *Config {
	cfg := &Config{
		Providers: map[string]ProviderConfig{},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Logging: LoggingConfig{RedactPII: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
