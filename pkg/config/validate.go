package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/prism/pkg/audit"
	"mercator-hq/prism/pkg/providerfactory"
	"mercator-hq/prism/pkg/registry"
	"mercator-hq/prism/pkg/routing/strategies"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateRouting(&cfg.Routing, cfg.Providers)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Processing.Tokens.CharsPerToken < 0 {
		errs = append(errs, FieldError{
			Field:   "processing.tokens.chars_per_token",
			Message: "chars per token must be positive",
		})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateProxy validates proxy configuration.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	for field, d := range map[string]time.Duration{
		"read_timeout":     cfg.ReadTimeout,
		"write_timeout":    cfg.WriteTimeout,
		"idle_timeout":     cfg.IdleTimeout,
		"shutdown_timeout": cfg.ShutdownTimeout,
	} {
		if d < 0 {
			errs = append(errs, FieldError{
				Field:   "proxy." + field,
				Message: "timeout must be positive",
			})
		}
	}

	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes must be between 0 and 10MB",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_body_bytes",
			Message: "max body bytes must be non-negative",
		})
	}

	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		errs = append(errs, FieldError{
			Field:   "proxy.tls",
			Message: "cert_file and key_file must be set together",
		})
	}

	return errs
}

// validateProviders validates provider configurations. An empty provider
// set is allowed; providers can be registered at runtime.
func validateProviders(providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		p := providers[id]
		prefix := fmt.Sprintf("providers.%s", id)

		d := providerfactory.Infer(p.Descriptor(id, 0))
		if err := d.Validate(); err != nil {
			var de *registry.DescriptorError
			field := prefix
			if errors.As(err, &de) {
				field = prefix + "." + de.Field
				err = errors.New(de.Field + " " + de.Message)
			}
			errs = append(errs, FieldError{Field: field, Message: err.Error()})
		}

		if p.Weight < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".weight",
				Message: "weight must be non-negative",
			})
		}
	}

	return errs
}

func validateRouting(cfg *RoutingConfig, providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	if !slices.Contains(strategies.Names(), cfg.Strategy) {
		errs = append(errs, FieldError{
			Field:   "routing.strategy",
			Message: fmt.Sprintf("invalid strategy %q: must be one of %s", cfg.Strategy, strings.Join(strategies.Names(), ", ")),
		})
	}
	if cfg.SecondaryStrategy == strategies.NameHealthPriority || !slices.Contains(strategies.Names(), cfg.SecondaryStrategy) {
		errs = append(errs, FieldError{
			Field:   "routing.secondary_strategy",
			Message: fmt.Sprintf("invalid secondary strategy %q", cfg.SecondaryStrategy),
		})
	}
	if cfg.MaxAttempts < 0 {
		errs = append(errs, FieldError{
			Field:   "routing.max_attempts",
			Message: "max attempts must be non-negative",
		})
	}
	if cfg.CallTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "routing.call_timeout",
			Message: "call timeout must be positive",
		})
	}
	for id, w := range cfg.Weights {
		if _, ok := providers[id]; !ok {
			errs = append(errs, FieldError{
				Field:   "routing.weights." + id,
				Message: "unknown provider",
			})
		}
		if w < 0 {
			errs = append(errs, FieldError{
				Field:   "routing.weights." + id,
				Message: "weight must be non-negative",
			})
		}
	}

	return errs
}

func validateHealth(cfg *HealthConfig) []FieldError {
	var errs []FieldError

	if _, err := cron.ParseStandard(cfg.ProbeSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "health.probe_schedule",
			Message: fmt.Sprintf("invalid schedule %q: %v", cfg.ProbeSchedule, err),
		})
	}
	if cfg.ProbeTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "health.probe_timeout",
			Message: "probe timeout must be positive",
		})
	}
	if cfg.FailureThreshold < 1 {
		errs = append(errs, FieldError{
			Field:   "health.failure_threshold",
			Message: "failure threshold must be at least 1",
		})
	}
	if cfg.EWMAAlpha <= 0 || cfg.EWMAAlpha > 1 {
		errs = append(errs, FieldError{
			Field:   "health.ewma_alpha",
			Message: "ewma alpha must be in (0, 1]",
		})
	}

	return errs
}

// validateLimits validates limits configuration.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError
	if !cfg.RateLimit.Enabled {
		return errs
	}

	if cfg.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.rate_limit.requests_per_second",
			Message: "requests per second must be positive",
		})
	}
	if cfg.RateLimit.Burst < 1 {
		errs = append(errs, FieldError{
			Field:   "limits.rate_limit.burst",
			Message: "burst must be at least 1",
		})
	}
	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError
	if !cfg.IsEnabled() {
		return errs
	}

	switch cfg.Driver {
	case audit.DriverSQLite, audit.DriverSQLite3:
		if cfg.Path == "" {
			errs = append(errs, FieldError{
				Field:   "audit.path",
				Message: "path is required for sqlite drivers",
			})
		}
	case audit.DriverMemory:
	default:
		errs = append(errs, FieldError{
			Field:   "audit.driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite', 'sqlite3' or 'memory'", cfg.Driver),
		})
	}

	if cfg.Buffer < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.buffer",
			Message: "buffer must be non-negative",
		})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention_days",
			Message: "retention days must be non-negative",
		})
	}
	if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "audit.prune_schedule",
			Message: fmt.Sprintf("invalid schedule %q: %v", cfg.PruneSchedule, err),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i),
				Message: fmt.Sprintf("invalid pattern %q: %v", p.Name, err),
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.Exporter != "otlp" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.exporter",
			Message: fmt.Sprintf("invalid exporter %q: must be 'otlp'", cfg.Tracing.Exporter),
		})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never' or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Health.CheckTimeout < 0 || cfg.Health.CheckTimeout > 60*time.Second {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.check_timeout",
			Message: "check timeout must be between 0 and 60s",
		})
	}
	if cfg.Health.MinHealthyProviders < 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.min_healthy_providers",
			Message: "min healthy providers must be non-negative",
		})
	}

	return errs
}
