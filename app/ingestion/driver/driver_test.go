package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/umputun/ingest-logs/app/ingestion/providers" // registers built-in adapters
	"github.com/umputun/ingest-logs/app/ingestion/registry"
	"github.com/umputun/ingest-logs/app/ingestion/storage"
)

func writeCSVFixture(t *testing.T, rows ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "access.csv")
	header := "timestamp,client_ip,method,host,path,status_code,user_agent\n"
	content := header
	for _, r := range rows {
		content += r + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestBackend(t *testing.T) *storage.SQLiteBackend {
	t.Helper()
	b, err := storage.NewSQLiteBackend(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestDriver_Run_HappyPath(t *testing.T) {
	// filter_bots=true keeps only records whose user-agent classifies as a
	// known bot (§4.5 point 4); the Mozilla/5.0 row is silently dropped by
	// the adapter before it ever reaches the driver's emit callback.
	path := writeCSVFixture(t,
		"2024-01-15T12:30:45Z,192.0.2.100,GET,example.com,/api/data,200,GPTBot/1.0",
		"2024-01-15T12:31:00Z,192.0.2.101,POST,example.com,/api/submit,201,Mozilla/5.0",
	)
	backend := newTestBackend(t)
	d := New(registry.Default, backend, nil)

	summary, err := d.Run(context.Background(), Config{
		Provider:   "universal",
		Input:      path,
		FilterBots: true,
		BatchSize:  1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 0, summary.Failed)
	assert.False(t, summary.HasErrors())

	rows, err := backend.Query(context.Background(), "SELECT client_ip FROM raw_records ORDER BY client_ip")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "192.0.2.100", rows[0]["client_ip"])
}

func TestDriver_Run_ValidateOnly(t *testing.T) {
	path := writeCSVFixture(t, "2024-01-15T12:30:45Z,192.0.2.100,GET,example.com,/api/data,200,curl/8.0")
	backend := newTestBackend(t)
	d := New(registry.Default, backend, nil)

	summary, err := d.Run(context.Background(), Config{
		Provider:     "universal",
		Input:        path,
		ValidateOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)

	rows, err := backend.Query(context.Background(), "SELECT name FROM sqlite_master WHERE type='table'")
	require.NoError(t, err)
	assert.Empty(t, rows, "validate-only must not create the schema or write anything")
}

func TestDriver_Run_PathTraversalRejected(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "app")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	// the fixture lives outside sub, so requiring base_dir=sub must reject it
	path := filepath.Join(dir, "access.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,client_ip,method,host,path,status_code,user_agent\n"), 0o600))

	backend := newTestBackend(t)
	d := New(registry.Default, backend, nil)

	_, err := d.Run(context.Background(), Config{
		Provider: "universal",
		Input:    path,
		BaseDir:  sub,
	})
	require.Error(t, err)
}

func TestDriver_Run_UnknownProvider(t *testing.T) {
	backend := newTestBackend(t)
	d := New(registry.Default, backend, nil)

	_, err := d.Run(context.Background(), Config{Provider: "not-a-real-provider", Input: "/tmp/whatever.csv"})
	require.Error(t, err)
}

func TestDriver_Run_CloudflareAPIWithoutTimeRangeFails(t *testing.T) {
	backend := newTestBackend(t)
	d := New(registry.Default, backend, nil)

	_, err := d.Run(context.Background(), Config{
		Provider: "cloudflare",
		Input:    "api://zone123",
	})
	require.Error(t, err)
}

func TestSummary_Throughput(t *testing.T) {
	s := Summary{Processed: 100, Duration: 0}
	assert.Zero(t, s.Throughput(), "zero duration must not divide by zero")
}
