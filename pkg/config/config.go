package config

import "time"

// Config is the root configuration structure for Prism.
// It contains all configuration sections for the gateway listener, the
// upstream providers, routing and health accounting, the audit log, and
// telemetry.
type Config struct {
	// Proxy contains HTTP server configuration including listen address,
	// timeouts, body limits, CORS and TLS.
	Proxy ProxyConfig `yaml:"proxy"`

	// Providers configures the upstream providers.
	// Keys are provider ids (e.g., "openai", "claude-web", "local").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Routing contains load balancing and failover configuration.
	Routing RoutingConfig `yaml:"routing"`

	// Health contains provider health probing and accounting configuration.
	Health HealthConfig `yaml:"health"`

	// Limits contains inbound rate limiting configuration.
	Limits LimitsConfig `yaml:"limits"`

	// Processing contains request processing configuration such as token
	// estimation.
	Processing ProcessingConfig `yaml:"processing"`

	// Audit contains routing decision audit log configuration.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing and the management health endpoints.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains configuration for the HTTP server.
type ProxyConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streams are bounded by it too.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight requests
	// during graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits inbound request bodies.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`

	// TLS enables HTTPS when both files are set.
	TLS TLSConfig `yaml:"tls"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins. ["*"] allows all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of response headers exposed to the client.
	// Default: ["X-Request-ID", "X-Prism-Provider", "X-Prism-Attempts"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache duration in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials are allowed.
	AllowCredentials bool `yaml:"allow_credentials"`
}

// TLSConfig contains server certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both certificate and key are configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// ProviderConfig contains configuration for a single upstream provider.
type ProviderConfig struct {
	// Kind selects the adapter: "rest", "web" or "sdk". Inferred when empty.
	Kind string `yaml:"kind"`

	// Dialect is the wire protocol of a rest upstream: "openai",
	// "anthropic" or "gemini". Inferred from the id when empty.
	Dialect string `yaml:"dialect"`

	// BaseURL is the API endpoint (http(s):// for rest, ws(s):// for web).
	// Example: "https://api.openai.com/v1"
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the provider.
	// Usually supplied through PRISM_PROVIDERS_<ID>_API_KEY.
	APIKey string `yaml:"api_key"`

	// Models lists the models served. Empty means any; "gpt-4*" matches by
	// prefix.
	Models []string `yaml:"models"`

	// Weight is used by the weighted-random strategy.
	// Default: 1
	Weight int `yaml:"weight"`

	// Timeout bounds a non-streaming call.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// ConnectTimeout bounds connection setup.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ChunkTimeout bounds the wait for each streamed chunk.
	// Default: 30s
	ChunkTimeout time.Duration `yaml:"chunk_timeout"`

	// ProbeModel, when set, makes rest health probes send a one-token
	// completion for this model instead of listing models.
	ProbeModel string `yaml:"probe_model"`

	// Client names the registered in-process client of an sdk provider.
	Client string `yaml:"client"`

	// Headers are sent with every upstream request.
	Headers map[string]string `yaml:"headers"`

	// Disabled keeps the provider configured but out of the registry.
	Disabled bool `yaml:"disabled"`
}

// RoutingConfig contains load balancing configuration.
type RoutingConfig struct {
	// Strategy orders candidate providers.
	// Options: "round-robin", "least-in-flight", "lowest-latency",
	// "weighted-random", "health-priority"
	// Default: "round-robin"
	Strategy string `yaml:"strategy"`

	// SecondaryStrategy orders providers of equal health under
	// health-priority.
	// Default: "round-robin"
	SecondaryStrategy string `yaml:"secondary_strategy"`

	// MaxAttempts caps the failover chain length. 0 tries every eligible
	// provider.
	// Default: 0
	MaxAttempts int `yaml:"max_attempts"`

	// CallTimeout bounds a non-streaming attempt when the provider sets no
	// timeout of its own.
	// Default: 60s
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Weights overrides provider weights by id.
	Weights map[string]int `yaml:"weights"`
}

// HealthConfig contains provider health probing configuration.
type HealthConfig struct {
	// ProbeSchedule is a cron expression or descriptor.
	// Default: "@every 60s"
	ProbeSchedule string `yaml:"probe_schedule"`

	// ProbeTimeout bounds a single probe.
	// Default: 5s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// ProbeConcurrency caps probes running at once.
	// Default: 8
	ProbeConcurrency int `yaml:"probe_concurrency"`

	// FailureThreshold is the streak of failures that marks a provider
	// unhealthy.
	// Default: 3
	FailureThreshold int `yaml:"failure_threshold"`

	// EWMAAlpha is the latency smoothing factor in (0, 1].
	// Default: 0.3
	EWMAAlpha float64 `yaml:"ewma_alpha"`
}

// LimitsConfig contains inbound request limits.
type LimitsConfig struct {
	// RateLimit throttles clients with a token bucket each.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained rate per client.
	// Default: 10
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the bucket size per client.
	// Default: 20
	Burst int `yaml:"burst"`

	// KeyHeader identifies the client. Empty uses the remote address.
	KeyHeader string `yaml:"key_header"`
}

// ProcessingConfig contains configuration for request processing.
type ProcessingConfig struct {
	// Tokens contains token estimation configuration.
	Tokens TokensConfig `yaml:"tokens"`
}

// TokensConfig contains token estimation configuration used when a provider
// reports no usage.
type TokensConfig struct {
	// CharsPerToken is the default characters-per-token ratio.
	// Default: 4.0
	CharsPerToken float64 `yaml:"chars_per_token"`

	// Models maps model prefixes to characters-per-token ratios.
	// Example: {"claude": 3.5}
	Models map[string]float64 `yaml:"models"`
}

// AuditConfig contains routing decision audit log configuration.
type AuditConfig struct {
	// Enabled turns decision recording on.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Driver selects the store: "sqlite" (pure Go), "sqlite3" (cgo) or
	// "memory".
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Buffer is the size of the pending decision queue.
	// Default: 1000
	Buffer int `yaml:"buffer"`

	// WriteTimeout bounds a single store write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RetentionDays is how long decisions are kept. 0 keeps them forever.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron expression for pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// IsEnabled reports whether auditing is on.
func (a AuditConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthCheckConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables redaction of API keys, bearer tokens and custom
	// patterns in log output.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// BufferSize is reserved for asynchronous log output.
	BufferSize int `yaml:"buffer_size"`

	// RedactPatterns contains custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "prism"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "gateway"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`

	// TokenCountBuckets defines histogram buckets for token counts.
	// Default: [100, 500, 1000, 5000, 10000, 50000, 100000]
	TokenCountBuckets []float64 `yaml:"token_count_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter determines the trace exporter to use.
	// Options: "otlp"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "prism"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthCheckConfig contains management health endpoint configuration.
type HealthCheckConfig struct {
	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`

	// MinHealthyProviders is the number of providers that must not be
	// unhealthy for /ready to succeed.
	// Default: 1
	MinHealthyProviders int `yaml:"min_healthy_providers"`
}
