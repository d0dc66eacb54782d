package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func TestAzureAdapter_NativeCSV_URLSplitAndTimeTaken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "azure.csv")
	content := "Time,ClientIp,HttpMethod,RequestUri,HttpStatusCode,UserAgent,TimeTaken\n" +
		"2024-01-15T12:30:45Z,1.2.3.4,GET,https://example.com/a/b?x=1,200,GPTBot/1.0,0.150\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := &AzureAdapter{}
	source := ingestion.Source{Provider: "azure", SourceType: ingestion.STCSVFile, PathOrURI: path}

	var got []ingestion.Record
	err := a.Ingest(source, ingestion.IngestOptions{FilterBots: false}, func(r ingestion.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "example.com", got[0].Host)
	assert.Equal(t, "/a/b", got[0].Path)
	assert.True(t, got[0].HasQueryString)
	assert.Equal(t, "x=1", got[0].QueryString)
	assert.True(t, got[0].HasResponseTimeMs)
	assert.Equal(t, 150, got[0].ResponseTimeMs)
	_, stillExtra := got[0].Extra["TimeTaken"]
	assert.False(t, stillExtra)
}

func TestAzureAdapter_LogAnalyticsDialect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "azure.json")
	content := `{"TimeGenerated":"2024-01-15T12:30:45Z","clientIp_s":"1.2.3.4","requestMethod_s":"GET","hostName_s":"example.com","requestUri_s":"/a","httpStatusCode_d":200,"userAgent_s":"curl/8.0","timeTaken_d":0.25}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := &AzureAdapter{}
	source := ingestion.Source{Provider: "azure", SourceType: ingestion.STJSONFile, PathOrURI: path}

	var got []ingestion.Record
	err := a.Ingest(source, ingestion.IngestOptions{FilterBots: false}, func(r ingestion.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "example.com", got[0].Host)
	assert.Equal(t, "/a", got[0].Path)
	assert.True(t, got[0].HasResponseTimeMs)
	assert.Equal(t, 250, got[0].ResponseTimeMs)
}
