package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ingest.db")
	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Initialize(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func sampleRow(uri string) Row {
	return Row{
		"EdgeStartTimestamp":     int64(1705318245000000000),
		"ClientRequestURI":       uri,
		"ClientRequestHost":      "example.com",
		"ClientRequestUserAgent": "GPTBot/1.0",
		"BotScore":               1,
		"BotScoreSrc":            "static",
		"VerifiedBot":            true,
		"BotTags":                []string{"GPTBot"},
		"ClientIP":               "192.0.2.100",
		"ClientCountry":          nil,
		"EdgeResponseStatus":     200,
		"_ingestion_time":        "2024-01-15T12:30:45Z",
		"source_provider":        "aws_cloudfront",
		"ingestion_batch_id":     "batch-1",
	}
}

func TestSQLiteBackend_InitializeIdempotent(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.Initialize(context.Background()))
	require.NoError(t, b.Initialize(context.Background()))
}

func TestSQLiteBackend_InsertAndQuery(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	n, err := b.InsertRawRecords(ctx, []Row{sampleRow("/api/data?key=value")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := b.Query(ctx, "SELECT client_ip, edge_response_status FROM raw_records")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "192.0.2.100", rows[0]["client_ip"])
}

func TestSQLiteBackend_DuplicateRowDeduplicated(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	row := sampleRow("/api/data")
	n1, err := b.InsertRawRecords(ctx, []Row{row})
	require.NoError(t, err)
	assert.Equal(t, 1, n1)

	n2, err := b.InsertRawRecords(ctx, []Row{row})
	require.NoError(t, err)
	assert.Equal(t, 0, n2, "duplicate row should be ignored, not re-inserted")
}

func TestSQLiteBackend_Execute(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.InsertRawRecords(ctx, []Row{sampleRow("/a"), sampleRow("/b")})
	require.NoError(t, err)

	affected, err := b.Execute(ctx, "DELETE FROM raw_records WHERE client_request_uri = ?", "/a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}
