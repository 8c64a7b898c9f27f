// Package health serves the gateway's liveness, readiness and version
// endpoints.
//
//   - /health always answers 200 while the process runs and lists every
//     provider's health status.
//   - /ready runs the registered checks concurrently, each bounded by
//     telemetry.health.check_timeout, and answers 503 unless all pass.
//     The server registers ProvidersCheck, which requires
//     telemetry.health.min_healthy_providers providers that are enabled
//     and not unhealthy, and an audit store check when auditing is on.
//   - /version reports build information.
//
// Usage:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("providers", health.ProvidersCheck(reg, 1))
//	checker.SetSummary(health.ProviderSummary(reg))
//	mux.HandleFunc("GET /health", checker.LivenessHandler())
package health
