package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/go-pkgz/lgr"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const rawRecordsSchema = `
CREATE TABLE IF NOT EXISTS raw_records (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	edge_start_timestamp      INTEGER NOT NULL,
	client_request_uri        TEXT NOT NULL,
	client_request_host       TEXT NOT NULL,
	client_request_user_agent TEXT,
	bot_score                 INTEGER,
	bot_score_src             TEXT,
	verified_bot              INTEGER NOT NULL DEFAULT 0,
	bot_tags                  TEXT,
	client_ip                 TEXT NOT NULL,
	client_country            TEXT,
	edge_response_status      INTEGER NOT NULL,
	ingestion_time            TEXT NOT NULL,
	source_provider           TEXT NOT NULL,
	ingestion_batch_id        TEXT,
	record_json               TEXT NOT NULL,
	UNIQUE(source_provider, edge_start_timestamp, client_ip, client_request_uri)
);
CREATE INDEX IF NOT EXISTS idx_raw_records_timestamp ON raw_records(edge_start_timestamp);
CREATE INDEX IF NOT EXISTS idx_raw_records_provider ON raw_records(source_provider);
`

const insertRawRecordSQL = `
INSERT OR IGNORE INTO raw_records (
	edge_start_timestamp, client_request_uri, client_request_host, client_request_user_agent,
	bot_score, bot_score_src, verified_bot, bot_tags,
	client_ip, client_country, edge_response_status,
	ingestion_time, source_provider, ingestion_batch_id, record_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SQLiteBackend is the reference Backend implementation, backed by the
// pure-Go modernc.org/sqlite driver so the whole module stays cgo-free.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteBackend opens (creating if needed) the database file at path.
// It does not run Initialize; callers call that explicitly, matching the
// storage contract's "initialize() is a separate, idempotent step" shape.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ConnectionError{&Error{Op: "open", Err: fmt.Errorf("creating db directory: %w", err)}}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &ConnectionError{&Error{Op: "open", Err: err}}
	}
	// a single writer connection avoids SQLITE_BUSY under the driver's
	// cooperative single-threaded streaming model (§5)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Printf("[WARN] failed to set %q: %v", pragma, err)
		}
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

// Initialize brings up the raw_records table and its indexes. Safe to call
// repeatedly: every statement is CREATE ... IF NOT EXISTS.
func (s *SQLiteBackend) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, rawRecordsSchema); err != nil {
		return &SchemaError{&Error{Op: "initialize", Err: err}}
	}
	return nil
}

// InsertRawRecords tries one prepared-statement batch insert inside a single
// transaction; if that fails (a malformed row, a lock timeout, anything),
// the whole batch is rolled back and re-attempted row by row with per-row
// error suppression, matching the fallback-batching pattern named in the
// spec's design notes. The returned count is the number of rows actually
// inserted; rows skipped by the UNIQUE constraint are not an error.
func (s *SQLiteBackend) InsertRawRecords(ctx context.Context, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, err := s.insertBatch(ctx, rows)
	if err == nil {
		return inserted, nil
	}
	log.Printf("[WARN] batch insert failed, falling back to row-by-row: %v", err)

	return s.insertRowByRow(ctx, rows), nil
}

func (s *SQLiteBackend) insertBatch(ctx context.Context, rows []Row) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertRawRecordSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // rolled back or committed below

	var inserted int
	for _, row := range rows {
		args, rerr := rowArgs(row)
		if rerr != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("convert row: %w", rerr)
		}
		res, eerr := stmt.ExecContext(ctx, args...)
		if eerr != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("exec batch insert: %w", eerr)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch tx: %w", err)
	}
	return inserted, nil
}

// insertRowByRow inserts each row in its own transaction, logging and
// skipping any row that fails rather than aborting the whole batch.
func (s *SQLiteBackend) insertRowByRow(ctx context.Context, rows []Row) int {
	var inserted int
	for i, row := range rows {
		args, err := rowArgs(row)
		if err != nil {
			log.Printf("[DEBUG] skipping row %d: %v", i, err)
			continue
		}
		res, err := s.db.ExecContext(ctx, insertRawRecordSQL, args...)
		if err != nil {
			log.Printf("[DEBUG] skipping row %d: %v", i, err)
			continue
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted
}

func rowArgs(row Row) ([]any, error) {
	recordJSON, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	var botScore any
	if v, ok := row["BotScore"]; ok {
		botScore = v
	}
	var botScoreSrc any
	if v, ok := row["BotScoreSrc"]; ok {
		botScoreSrc = v
	}
	var botTags any
	if v, ok := row["BotTags"]; ok {
		if b, err := json.Marshal(v); err == nil {
			botTags = string(b)
		}
	}
	var clientCountry any
	if v, ok := row["ClientCountry"]; ok {
		clientCountry = v
	}
	verifiedBot := 0
	if v, _ := row["VerifiedBot"].(bool); v {
		verifiedBot = 1
	}

	return []any{
		row["EdgeStartTimestamp"],
		row["ClientRequestURI"],
		row["ClientRequestHost"],
		row["ClientRequestUserAgent"],
		botScore,
		botScoreSrc,
		verifiedBot,
		botTags,
		row["ClientIP"],
		clientCountry,
		row["EdgeResponseStatus"],
		row["_ingestion_time"],
		row["source_provider"],
		row["ingestion_batch_id"],
		string(recordJSON),
	}, nil
}

// Query runs a read-only statement, returning one map per row keyed by
// column name. Used only by validation and health checks (§6).
func (s *SQLiteBackend) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{&Error{Op: "query", Err: err}}
	}
	defer rows.Close() //nolint:errcheck // read-only

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{&Error{Op: "columns", Err: err}}
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{&Error{Op: "scan", Err: err}}
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{&Error{Op: "iterate", Err: err}}
	}
	return out, nil
}

// Execute runs a statement and returns the number of rows it affected.
func (s *SQLiteBackend) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &QueryError{&Error{Op: "execute", Err: err}}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &QueryError{&Error{Op: "rows-affected", Err: err}}
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *SQLiteBackend) Close() error {
	if err := s.db.Close(); err != nil {
		return &ConnectionError{&Error{Op: "close", Err: err}}
	}
	return nil
}
