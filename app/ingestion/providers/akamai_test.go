package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func TestAkamaiAdapter_Ingest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "akamai.json")
	content := `[{"requestTime":"2024-01-15T12:30:45Z","clientIP":"1.2.3.4","requestMethod":"GET","requestHost":"example.com","requestPath":"/a","responseStatus":200,"userAgent":"GPTBot/1.0","cacheStatus":"TCP_HIT"}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := &AkamaiAdapter{}
	source := ingestion.Source{Provider: "akamai", SourceType: ingestion.STAkamaiJSON, PathOrURI: path}

	var got []ingestion.Record
	err := a.Ingest(source, ingestion.IngestOptions{FilterBots: false}, func(r ingestion.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1.2.3.4", got[0].ClientIP)
	assert.Equal(t, "example.com", got[0].Host)
	assert.Equal(t, "/a", got[0].Path)
	assert.Equal(t, 200, got[0].StatusCode)
}

func TestAkamaiAdapter_NDJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "akamai.ndjson")
	content := `{"requestTime":"2024-01-15T12:30:45Z","clientIP":"5.6.7.8","requestMethod":"POST","requestHost":"example.com","requestPath":"/b","responseStatus":201,"userAgent":"curl/8.0"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := &AkamaiAdapter{}
	source := ingestion.Source{Provider: "akamai", SourceType: ingestion.STAkamaiNDJSON, PathOrURI: path}

	var got []ingestion.Record
	err := a.Ingest(source, ingestion.IngestOptions{FilterBots: false}, func(r ingestion.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "5.6.7.8", got[0].ClientIP)
	assert.Equal(t, "POST", got[0].Method)
}

func TestAkamaiAdapter_ValidateSource_UnsupportedType(t *testing.T) {
	a := &AkamaiAdapter{}
	source := ingestion.Source{Provider: "akamai", SourceType: ingestion.STCSVFile, PathOrURI: "/tmp/x.csv"}
	ok, reason := a.ValidateSource(source, "")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}
