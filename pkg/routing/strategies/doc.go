// Package strategies provides the load-balancing strategies used by
// routing.Balancer: round-robin, least-in-flight, lowest-latency,
// weighted-random and health-priority.
//
// A strategy receives the eligible providers as registry snapshots and
// returns them reordered. It never filters: every eligible provider stays in
// the chain so the dispatcher can fail over to it.
package strategies
