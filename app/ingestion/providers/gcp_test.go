package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func TestGCPAdapter_NestedHTTPRequestFlattening(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gcp.ndjson")
	content := `{"timestamp":"2024-01-15T12:30:45Z","insertId":"abc123","httpRequest":{"remoteIp":"1.2.3.4","requestMethod":"GET","requestUrl":"https://example.com/a/b?x=1","status":200,"userAgent":"GPTBot/1.0","latency":"0.150s","cacheHit":true,"cacheLookup":true}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := &GCPAdapter{}
	source := ingestion.Source{Provider: "gcp", SourceType: ingestion.STNDJSONFile, PathOrURI: path}

	var got []ingestion.Record
	err := a.Ingest(source, ingestion.IngestOptions{FilterBots: false}, func(r ingestion.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1.2.3.4", got[0].ClientIP)
	assert.Equal(t, "example.com", got[0].Host)
	assert.Equal(t, "/a/b", got[0].Path)
	assert.True(t, got[0].HasQueryString)
	assert.Equal(t, "x=1", got[0].QueryString)
	assert.True(t, got[0].HasResponseTimeMs)
	assert.Equal(t, 150, got[0].ResponseTimeMs)
	assert.True(t, got[0].HasCacheStatus)
	assert.Equal(t, "HIT", got[0].CacheStatus)
	assert.Equal(t, "abc123", got[0].Extra["insertId"])
}

func TestGCPAdapter_CacheStatusRules(t *testing.T) {
	tests := []struct {
		name        string
		cacheHit    any
		cacheLookup any
		wantStatus  string
		wantOK      bool
	}{
		{"hit", true, true, "HIT", true},
		{"miss", false, true, "MISS", true},
		{"bypass", nil, false, "BYPASS", true},
		{"unknown", nil, nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := gcpMapCacheStatus(tt.cacheHit, tt.cacheLookup)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestGCPAdapter_MissingHTTPRequestSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gcp.ndjson")
	content := `{"timestamp":"2024-01-15T12:30:45Z","textPayload":"not a request log"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := &GCPAdapter{}
	source := ingestion.Source{Provider: "gcp", SourceType: ingestion.STNDJSONFile, PathOrURI: path}

	var got []ingestion.Record
	err := a.Ingest(source, ingestion.IngestOptions{FilterBots: false}, func(r ingestion.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGCPSplitRequestURL(t *testing.T) {
	host, path, query := gcpSplitRequestURL("https://example.com/a/b?x=1")
	assert.Equal(t, "example.com", host)
	assert.Equal(t, "/a/b", path)
	assert.Equal(t, "x=1", query)
}

func TestGCPParseLatency(t *testing.T) {
	ms, ok := gcpParseLatency("0.150s")
	assert.True(t, ok)
	assert.Equal(t, 150, ms)
}
