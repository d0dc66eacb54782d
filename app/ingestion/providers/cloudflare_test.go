package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func TestCloudflareAdapter_FileSource_SplitsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cf.ndjson")
	content := `{"EdgeStartTimestamp":"2024-01-15T12:30:45Z","ClientIP":"1.2.3.4","ClientRequestMethod":"GET","ClientRequestHost":"example.com","ClientRequestURI":"/a/b?x=1","EdgeResponseStatus":200,"ClientRequestUserAgent":"GPTBot/1.0"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := NewCloudflareAdapter()
	source := ingestion.Source{Provider: "cloudflare", SourceType: ingestion.STNDJSONFile, PathOrURI: path}

	var got []ingestion.Record
	err := a.Ingest(source, ingestion.IngestOptions{FilterBots: false}, func(r ingestion.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/a/b", got[0].Path)
	assert.True(t, got[0].HasQueryString)
	assert.Equal(t, "x=1", got[0].QueryString)
}

func TestCloudflareAdapter_APISource_RequiresTimeWindow(t *testing.T) {
	a := NewCloudflareAdapter()
	source := ingestion.Source{Provider: "cloudflare", SourceType: ingestion.STAPI, PathOrURI: "api://zone123"}

	err := a.Ingest(source, ingestion.IngestOptions{}, func(ingestion.Record) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_time and end_time are required")
}

func TestCloudflareAdapter_ValidateSource_APIMissingZone(t *testing.T) {
	a := NewCloudflareAdapter()
	source := ingestion.Source{Provider: "cloudflare", SourceType: ingestion.STAPI, PathOrURI: "api://"}
	ok, reason := a.ValidateSource(source, "")
	assert.False(t, ok)
	assert.Contains(t, reason, "zone id")
}
