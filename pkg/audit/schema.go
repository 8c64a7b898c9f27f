package audit

// schemaVersion is the current database schema version.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    model TEXT NOT NULL,
    dialect TEXT NOT NULL,
    stream BOOLEAN NOT NULL,
    strategy TEXT NOT NULL,
    explicit BOOLEAN NOT NULL,
    provider TEXT,
    state TEXT NOT NULL,
    error TEXT,
    candidates TEXT NOT NULL,
    attempts TEXT NOT NULL,
    attempt_count INTEGER NOT NULL,

    -- unix milliseconds
    start_ms INTEGER NOT NULL,
    end_ms INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_start ON decisions(start_ms);
CREATE INDEX IF NOT EXISTS idx_decisions_request_id ON decisions(request_id);
CREATE INDEX IF NOT EXISTS idx_decisions_provider ON decisions(provider);
CREATE INDEX IF NOT EXISTS idx_decisions_model ON decisions(model);
`

const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`

const insertDecision = `
INSERT INTO decisions (
    id, request_id, model, dialect, stream, strategy, explicit,
    provider, state, error, candidates, attempts, attempt_count,
    start_ms, end_ms, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `
SELECT id, request_id, model, dialect, stream, strategy, explicit,
       provider, state, error, candidates, attempts,
       start_ms, end_ms, duration_ms
FROM decisions`
