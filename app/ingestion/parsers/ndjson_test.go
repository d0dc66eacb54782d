package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func TestParseNDJSON_Basic(t *testing.T) {
	data := `{"timestamp":"2024-01-15T12:30:45Z","client_ip":"192.0.2.1","method":"get","host":"example.com","path":"/","status_code":200,"user_agent":"UA","extra_field":"x"}
` + "\n" + `{"timestamp":"2024-01-15T12:30:46Z","client_ip":"192.0.2.2","method":"POST","host":"example.com","path":"/api","status_code":404,"user_agent":"UA"}`

	var records []ingestion.Record
	err := ParseNDJSON(strings.NewReader(data), nil, JSONOptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "GET", records[0].Method)
	assert.Equal(t, "x", records[0].Extra["extra_field"])
	assert.Equal(t, 404, records[1].StatusCode)
}

func TestParseNDJSON_NestedFieldMapping(t *testing.T) {
	data := `{"httpRequest":{"remoteIp":"192.0.2.1","requestMethod":"GET","status":200},"timestamp":"2024-01-15T12:30:45Z","host":"example.com","path":"/","user_agent":"UA"}`
	fieldMap := map[string]string{
		"httpRequest.remoteIp":       "client_ip",
		"httpRequest.requestMethod":  "method",
		"httpRequest.status":         "status_code",
	}
	var records []ingestion.Record
	err := ParseNDJSON(strings.NewReader(data), fieldMap, JSONOptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "192.0.2.1", records[0].ClientIP)
	assert.Equal(t, 200, records[0].StatusCode)
}

func TestParseNDJSON_SkipsInvalidJSON(t *testing.T) {
	data := "{not valid json}\n" +
		`{"timestamp":"2024-01-15T12:30:45Z","client_ip":"192.0.2.1","method":"GET","host":"example.com","path":"/","status_code":200,"user_agent":"UA"}`
	var records []ingestion.Record
	err := ParseNDJSON(strings.NewReader(data), nil, JSONOptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestParseNDJSON_StrictModeFailsOnInvalidJSON(t *testing.T) {
	data := "{not valid json}"
	err := ParseNDJSON(strings.NewReader(data), nil, JSONOptions{StrictValidation: true}, func(r ingestion.Record) error { return nil })
	require.Error(t, err)
}

func TestParseNDJSON_BlankLinesSkipped(t *testing.T) {
	data := "\n\n" +
		`{"timestamp":"2024-01-15T12:30:45Z","client_ip":"192.0.2.1","method":"GET","host":"example.com","path":"/","status_code":200,"user_agent":"UA"}` +
		"\n\n"
	var records []ingestion.Record
	err := ParseNDJSON(strings.NewReader(data), nil, JSONOptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
}
