// Package registry holds the set of upstream providers together with their
// runtime health and load metrics.
//
// # Health
//
// Each provider carries a Status driven by two inputs: periodic probes run
// by a Monitor, and the outcome of real requests reported by the dispatcher
// through RecordOutcome. Both apply the same transitions:
//
//	success                     -> healthy
//	failure, streak < threshold -> degraded (unhealthy stays unhealthy)
//	failure, streak = threshold -> unhealthy
//
// The threshold defaults to 3 consecutive failures. Successful requests also
// feed a latency EWMA (alpha 0.3 by default) used by the lowest-latency
// strategy.
//
// # Eligibility
//
// EligibleProviders returns the enabled providers serving a model, in
// registration order, without the unhealthy ones. When every matching
// provider is unhealthy the full matching set is returned instead, so a
// request still gets a chance rather than failing outright.
//
// # Concurrency
//
// Each entry has its own lock for health fields and atomics for the
// in-flight count; readers get copies (Snapshot) and never hold a lock while
// calling a provider.
package registry
