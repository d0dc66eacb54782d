package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func albSampleLine() string {
	return `https 2024-01-15T12:30:45.123456Z my-elb 192.0.2.1:54321 10.0.0.1:80 0.001 0.002 0.000 200 200 34 366 "GET https://example.com:443/api/data?key=value HTTP/1.1" "Mozilla/5.0" ECDHE-RSA-AES128-GCM-SHA256 TLSv1.2 arn:aws:elasticloadbalancing:us-east-1:123456789012:targetgroup/my-targets/abcdef "Root=1-58337262-36d228ad5d99923122bbe354"`
}

func TestALBAdapter_Ingest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alb.log")
	require.NoError(t, os.WriteFile(path, []byte(albSampleLine()+"\n"), 0o644))

	a := &ALBAdapter{}
	source := ingestion.Source{Provider: "aws_alb", SourceType: ingestion.STALBLogFile, PathOrURI: path}

	var got []ingestion.Record
	err := a.Ingest(source, ingestion.IngestOptions{FilterBots: false}, func(r ingestion.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "192.0.2.1", got[0].ClientIP)
	assert.Equal(t, "GET", got[0].Method)
	assert.Equal(t, 200, got[0].StatusCode)
}

func TestALBAdapter_ValidateSource_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	a := &ALBAdapter{}
	source := ingestion.Source{Provider: "aws_alb", SourceType: ingestion.STALBLogFile, PathOrURI: path}
	ok, reason := a.ValidateSource(source, "")
	assert.False(t, ok)
	assert.Contains(t, reason, "empty")
}
