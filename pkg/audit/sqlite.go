package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
	_ "modernc.org/sqlite"          // registers "sqlite"

	"mercator-hq/prism/pkg/canonical"
	"mercator-hq/prism/pkg/routing"
)

// SQLStore is a Store backed by SQLite through either the pure-Go or the cgo
// driver.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// NewSQLStore opens path with driver ("sqlite" or "sqlite3") and creates the
// schema.
func NewSQLStore(driver, path string, busyTimeout time.Duration) (*SQLStore, error) {
	if path == "" {
		return nil, storageError(driver, "open", errors.New("database path is required"))
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, storageError(driver, "open", err)
	}
	// One connection keeps PRAGMAs in effect and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLStore{
		db:     db,
		driver: driver,
		logger: slog.Default().With("component", "audit.sqlite", "driver", driver),
	}
	if err := s.initialize(busyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("audit store initialized", "path", path)
	return s, nil
}

func (s *SQLStore) initialize(busyTimeout time.Duration) error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return storageError(s.driver, "enable_wal", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return storageError(s.driver, "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return storageError(s.driver, "create_schema", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, schemaVersion); err != nil {
		return storageError(s.driver, "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return storageError(s.driver, "get_schema_version", err)
	}
	if version != schemaVersion {
		return storageError(s.driver, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", schemaVersion, version))
	}
	return nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, r *Record) error {
	candidates, err := json.Marshal(r.Candidates)
	if err != nil {
		return storageError(s.driver, "save", err)
	}
	attempts, err := json.Marshal(r.Attempts)
	if err != nil {
		return storageError(s.driver, "save", err)
	}

	_, err = s.db.ExecContext(ctx, insertDecision,
		r.ID, r.RequestID, r.Model, string(r.Dialect), r.Stream, r.Strategy, r.Explicit,
		nullable(r.Provider), string(r.State), nullable(r.Error),
		string(candidates), string(attempts), len(r.Attempts),
		r.Start.UnixMilli(), r.End.UnixMilli(), r.Duration.Milliseconds(),
	)
	if err != nil {
		return storageError(s.driver, "save", err)
	}
	return nil
}

// Query implements Store.
func (s *SQLStore) Query(ctx context.Context, f Filter) ([]*Record, error) {
	where, args := whereClause(f)
	q := selectColumns + where + " ORDER BY start_ms DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.limit(), max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageError(s.driver, "query", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, storageError(s.driver, "scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(s.driver, "query", err)
	}
	return out, nil
}

// Prune implements Store.
func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM decisions WHERE start_ms < ?", before.UnixMilli())
	if err != nil {
		return 0, storageError(s.driver, "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError(s.driver, "prune", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return storageError(s.driver, "close", err)
	}
	s.logger.Info("audit store closed")
	return nil
}

func whereClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.RequestID != "" {
		add("request_id = ?", f.RequestID)
	}
	if f.Provider != "" {
		add("provider = ?", f.Provider)
	}
	if f.Model != "" {
		add("model = ?", f.Model)
	}
	if f.State != "" {
		add("state = ?", string(f.State))
	}
	if !f.Since.IsZero() {
		add("start_ms >= ?", f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		add("start_ms < ?", f.Until.UnixMilli())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		r                      Record
		dialect, state         string
		provider, errText      sql.NullString
		candidates, attempts   string
		startMS, endMS, durMS int64
	)
	err := rows.Scan(
		&r.ID, &r.RequestID, &r.Model, &dialect, &r.Stream, &r.Strategy, &r.Explicit,
		&provider, &state, &errText, &candidates, &attempts,
		&startMS, &endMS, &durMS,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(candidates), &r.Candidates); err != nil {
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}
	if err := json.Unmarshal([]byte(attempts), &r.Attempts); err != nil {
		return nil, fmt.Errorf("failed to decode attempts: %w", err)
	}

	r.Dialect = canonical.Dialect(dialect)
	r.State = routing.State(state)
	r.Provider = provider.String
	r.Error = errText.String
	r.Start = time.UnixMilli(startMS)
	r.End = time.UnixMilli(endMS)
	r.Duration = time.Duration(durMS) * time.Millisecond
	return &r, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
