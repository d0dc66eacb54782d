package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func TestParseW3C_Basic(t *testing.T) {
	data := "#Version: 1.0\n" +
		"#Fields: date time c-ip cs-method cs-uri-stem sc-status cs(User-Agent)\n" +
		"2024-01-15\t12:30:45\t192.0.2.1\tGET\t/index.html\t200\tMozilla/5.0\n"

	fieldMap := map[string]string{
		"c-ip": "client_ip", "cs-method": "method", "cs-uri-stem": "path",
		"sc-status": "status_code", "cs(User-Agent)": "user_agent",
	}

	var records []ingestion.Record
	err := ParseW3C(strings.NewReader(data), fieldMap, W3COptions{URLDecode: true}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "192.0.2.1", records[0].ClientIP)
	assert.Equal(t, 2024, records[0].Timestamp.Year())
	assert.Equal(t, "", records[0].Host) // host not mapped, defaults empty
}

func TestParseW3C_MissingFieldsDirective(t *testing.T) {
	data := "#Version: 1.0\n192.0.2.1\tGET\t/\t200\n"
	err := ParseW3C(strings.NewReader(data), nil, W3COptions{}, func(r ingestion.Record) error { return nil })
	require.Error(t, err)
}

func TestParseW3C_TimeTakenConvertedToMillis(t *testing.T) {
	data := "#Fields: date time c-ip cs-method cs-uri-stem sc-status cs(User-Agent) time-taken\n" +
		"2024-01-15\t12:30:45\t192.0.2.1\tGET\t/\t200\tUA\t0.250\n"
	fieldMap := map[string]string{
		"c-ip": "client_ip", "cs-method": "method", "cs-uri-stem": "path",
		"sc-status": "status_code", "cs(User-Agent)": "user_agent",
	}
	var records []ingestion.Record
	err := ParseW3C(strings.NewReader(data), fieldMap, W3COptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].HasResponseTimeMs)
	assert.Equal(t, 250, records[0].ResponseTimeMs)
}

func TestParseW3C_URLDecoding(t *testing.T) {
	data := "#Fields: date time c-ip cs-method cs-uri-stem sc-status cs(User-Agent)\n" +
		"2024-01-15\t12:30:45\t192.0.2.1\tGET\t/search%20page\t200\tMozilla%2F5.0\n"
	fieldMap := map[string]string{
		"c-ip": "client_ip", "cs-method": "method", "cs-uri-stem": "path",
		"sc-status": "status_code", "cs(User-Agent)": "user_agent",
	}
	var records []ingestion.Record
	err := ParseW3C(strings.NewReader(data), fieldMap, W3COptions{URLDecode: true}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Mozilla/5.0", records[0].UserAgent)
}

func TestParseW3C_UnmappedColumnsGoToExtra(t *testing.T) {
	data := "#Fields: date time c-ip cs-method cs-uri-stem sc-status cs(User-Agent) sc-bytes\n" +
		"2024-01-15\t12:30:45\t192.0.2.1\tGET\t/\t200\tUA\t1024\n"
	fieldMap := map[string]string{
		"c-ip": "client_ip", "cs-method": "method", "cs-uri-stem": "path",
		"sc-status": "status_code", "cs(User-Agent)": "user_agent",
	}
	var records []ingestion.Record
	err := ParseW3C(strings.NewReader(data), fieldMap, W3COptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1024", records[0].Extra["sc-bytes"])
}
