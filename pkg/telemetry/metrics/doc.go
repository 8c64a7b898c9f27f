// Package metrics exposes Prometheus metrics for the gateway.
//
// A Collector is passed to the dispatcher as its Observer and records every
// attempt and finished request. WatchRegistry adds a scrape-time collector
// that reads provider health, latency EWMA, in-flight count and failure
// streak straight from registry snapshots.
//
// All metric names share the configured namespace and subsystem, by
// default prism_gateway:
//
//	prism_gateway_requests_total{dialect,model,provider,state}
//	prism_gateway_request_duration_seconds{dialect,stream}
//	prism_gateway_request_attempts{dialect}
//	prism_gateway_fallbacks_total{provider}
//	prism_gateway_tokens{provider,model,type}
//	prism_gateway_rate_limited_total{dialect}
//	prism_gateway_provider_attempts_total{provider,outcome}
//	prism_gateway_provider_latency_seconds{provider}
//	prism_gateway_provider_health{provider,status}
//	prism_gateway_provider_latency_ewma_seconds{provider}
//	prism_gateway_provider_in_flight{provider}
//	prism_gateway_provider_consecutive_failures{provider}
//	prism_gateway_provider_enabled{provider}
//	prism_gateway_streams_active{dialect}
//	prism_gateway_stream_chunks{provider}
//	prism_gateway_streams_total{dialect,outcome}
//
// Models beyond 10,000 distinct label sets are folded into "other".
package metrics
