// Package audit persists routing decisions.
//
// Every request the dispatcher handles produces a routing.Decision: the
// candidate chain, each attempt with its outcome and latency, and the final
// state. The Recorder queues decisions on a buffered channel and a single
// worker writes them to a Store, so request handling never waits on disk.
// When the queue is full the decision is dropped and a warning is logged.
//
// Stores:
//
//   - sqlite:  modernc.org/sqlite, pure Go (default)
//   - sqlite3: github.com/mattn/go-sqlite3, requires cgo
//   - memory:  in-process, for tests and ephemeral deployments
//
// Only metadata is stored. Message content never reaches the audit log.
//
// The Scheduler deletes records older than the retention period on a cron
// schedule:
//
//	sched, err := audit.NewScheduler(store, audit.RetentionConfig{
//	    RetentionDays: 30,
//	    Schedule:      "0 3 * * *",
//	})
//	if err := sched.Start(ctx); err != nil { ... }
//	defer sched.Stop()
package audit
