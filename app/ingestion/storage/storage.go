// Package storage defines the narrow persistence contract the ingestion
// driver depends on, plus a SQLite-backed reference implementation of it.
package storage

import (
	"context"
	"fmt"
)

// Row is a single storage record, keyed by the Cloudflare-style column names
// named in the storage contract (EdgeStartTimestamp, ClientRequestURI, ...).
type Row = map[string]any

// Backend is the storage contract the driver depends on. It treats storage
// as an external collaborator: the driver never assumes SQLite, another
// relational engine, or an in-memory store sits behind this interface.
type Backend interface {
	// Initialize brings up schema. Safe to call any number of times.
	Initialize(ctx context.Context) error

	// InsertRawRecords writes rows and returns the count actually inserted.
	// Constraint violations (dedup) are not errors; they are reflected in a
	// lower returned count. A non-nil error means the whole batch failed.
	InsertRawRecords(ctx context.Context, rows []Row) (int, error)

	// Query runs a read-only statement and returns one map per row.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)

	// Execute runs a statement and returns the number of affected rows.
	Execute(ctx context.Context, query string, args ...any) (int64, error)

	// Close releases the underlying connection.
	Close() error
}

// Error is the base type for storage failures.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// ConnectionError is raised when establishing or using the backend connection fails.
type ConnectionError struct{ *Error }

// QueryError is raised when a query or execute statement fails.
type QueryError struct{ *Error }

// SchemaError is raised when schema bring-up fails.
type SchemaError struct{ *Error }
