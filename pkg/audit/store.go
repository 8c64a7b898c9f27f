package audit

import (
	"context"
	"fmt"
	"time"
)

// Store persists audit records.
type Store interface {
	// Save writes one record.
	Save(ctx context.Context, r *Record) error

	// Query returns matching records, newest first.
	Query(ctx context.Context, f Filter) ([]*Record, error)

	// Prune deletes records that started before cutoff and returns how many
	// were deleted.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Close releases the backend.
	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
	DriverMemory  = "memory"
)

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	// Driver is sqlite (default), sqlite3 or memory.
	Driver string

	// Path is the database file for the sqlite drivers.
	Path string

	// BusyTimeout is how long SQLite waits on a locked database. Default 5s.
	BusyTimeout time.Duration
}

// Open creates the configured store.
func Open(cfg StoreConfig) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLStore(DriverSQLite, cfg.Path, cfg.BusyTimeout)
	case DriverSQLite3:
		return NewSQLStore(DriverSQLite3, cfg.Path, cfg.BusyTimeout)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, storageError(cfg.Driver, "open", fmt.Errorf("unknown audit driver %q", cfg.Driver))
	}
}
