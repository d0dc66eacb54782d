package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/ingest-logs/app/ingestion"
)

func TestParseJSON_Array(t *testing.T) {
	data := `[
		{"timestamp":"2024-01-15T12:30:45Z","client_ip":"192.0.2.1","method":"GET","host":"example.com","path":"/","status_code":200,"user_agent":"UA"},
		{"timestamp":"2024-01-15T12:30:46Z","client_ip":"192.0.2.2","method":"GET","host":"example.com","path":"/x","status_code":500,"user_agent":"UA"}
	]`
	var records []ingestion.Record
	err := ParseJSON(strings.NewReader(data), nil, "", JSONOptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 500, records[1].StatusCode)
}

func TestParseJSON_SingleObject(t *testing.T) {
	data := `{"timestamp":"2024-01-15T12:30:45Z","client_ip":"192.0.2.1","method":"GET","host":"example.com","path":"/","status_code":200,"user_agent":"UA"}`
	var records []ingestion.Record
	err := ParseJSON(strings.NewReader(data), nil, "", JSONOptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestParseJSON_RecordsPath(t *testing.T) {
	data := `{"data":{"logs":[{"timestamp":"2024-01-15T12:30:45Z","client_ip":"192.0.2.1","method":"GET","host":"example.com","path":"/","status_code":200,"user_agent":"UA"}]}}`
	var records []ingestion.Record
	err := ParseJSON(strings.NewReader(data), nil, "data.logs", JSONOptions{}, func(r ingestion.Record) error {
		records = append(records, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestParseJSON_InvalidDocument(t *testing.T) {
	err := ParseJSON(strings.NewReader("not json"), nil, "", JSONOptions{}, func(r ingestion.Record) error { return nil })
	require.Error(t, err)
}

func TestParseJSON_MissingRecordsPath(t *testing.T) {
	data := `{"data":{}}`
	err := ParseJSON(strings.NewReader(data), nil, "data.logs", JSONOptions{}, func(r ingestion.Record) error { return nil })
	require.Error(t, err)
}
