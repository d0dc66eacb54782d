package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func albSampleLine() string {
	return `https 2024-01-15T12:30:45.123456Z my-elb 192.0.2.1:54321 10.0.0.1:80 0.001 0.002 0.000 200 200 34 366 "GET https://example.com:443/api/data?key=value HTTP/1.1" "Mozilla/5.0" ECDHE-RSA-AES128-GCM-SHA256 TLSv1.2 arn:aws:elasticloadbalancing:us-east-1:123456789012:targetgroup/my-targets/abcdef "Root=1-58337262-36d228ad5d99923122bbe354"`
}

func TestParseALBLine_Basic(t *testing.T) {
	rec, ok, err := ParseALBLine(albSampleLine())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "192.0.2.1", rec.ClientIP)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, "example.com:443", rec.Host)
	assert.Equal(t, "/api/data", rec.Path)
	assert.Equal(t, "key=value", rec.QueryString)
	assert.Equal(t, 200, rec.StatusCode)
	assert.Equal(t, "Mozilla/5.0", rec.UserAgent)
	assert.True(t, rec.HasSSLProtocol)
	assert.Equal(t, "TLSv1.2", rec.SSLProtocol)
	assert.True(t, rec.HasResponseTimeMs)
	assert.Equal(t, 3, rec.ResponseTimeMs)
	assert.Equal(t, "my-elb", rec.Extra["elb"])
	assert.Contains(t, rec.Extra["trace_id"], "Root=")
}

func TestParseALBLine_TooFewFields(t *testing.T) {
	_, ok, err := ParseALBLine("https 2024-01-15T12:30:45Z elb 192.0.2.1:1 10.0.0.1:1")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestParseALBLine_DashRequestLine(t *testing.T) {
	line := `https 2024-01-15T12:30:45.123456Z my-elb 192.0.2.1:54321 10.0.0.1:80 0.001 0.002 0.000 200 200 34 366 "- - -" "Mozilla/5.0" - TLSv1.2 - -`
	_, ok, err := ParseALBLine(line)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractALBClientIP(t *testing.T) {
	tbl := []struct {
		in       string
		expected string
		ok       bool
	}{
		{"192.0.2.1:54321", "192.0.2.1", true},
		{"[2001:db8::1]:54321", "2001:db8::1", true},
		{"-", "", false},
		{"", "", false},
	}
	for _, tt := range tbl {
		ip, ok := extractALBClientIP(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.expected, ip, tt.in)
	}
}

func TestParseALB_Stream(t *testing.T) {
	data := albSampleLine() + "\n" + albSampleLine() + "\n"
	var records []ingestion.Record
	err := ParseALB(strings.NewReader(data), ALBOptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestShlexSplit(t *testing.T) {
	tokens, err := shlexSplit(`GET "a b c" 200 "quoted \"nested\""`)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET", "a b c", "200", `quoted "nested"`}, tokens)
}
