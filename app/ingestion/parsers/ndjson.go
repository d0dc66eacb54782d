package parsers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// JSONOptions configures the NDJSON and JSON-array parsers.
type JSONOptions struct {
	StrictValidation bool
}

// ParseNDJSON reads one JSON object per line and yields one ingestion.Record
// per valid object via emit. Blank lines are skipped. fieldMap maps source
// field names (dot notation selects nested values, e.g. "httpRequest.remoteIp")
// to canonical schema field names.
func ParseNDJSON(r io.Reader, fieldMap map[string]string, opts JSONOptions, emit func(ingestion.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			if opts.StrictValidation {
				content := line
				if len(content) > 100 {
					content = content[:100]
				}
				return &ingestion.ParseError{Message: fmt.Sprintf("invalid JSON: %v", err), LineNumber: lineNumber, LineContent: content}
			}
			log.Printf("[DEBUG] skipping invalid JSON at line %d: %v", lineNumber, err)
			continue
		}

		rec, ok, err := parseJSONObject(obj, fieldMap, lineNumber)
		if err != nil {
			if opts.StrictValidation {
				return &ingestion.ParseError{Message: err.Error(), LineNumber: lineNumber}
			}
			log.Printf("[DEBUG] skipping invalid record at line %d: %v", lineNumber, err)
			continue
		}
		if !ok {
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading NDJSON: %w", err)
	}
	return nil
}

// parseJSONObject applies fieldMap (with dotted-path nested lookup), then
// schema-direct fields, then collects whatever remains into extra, mirroring
// json_parser.py's _parse_object.
func parseJSONObject(obj map[string]any, fieldMap map[string]string, recordNumber int) (ingestion.Record, bool, error) {
	schemaFields := AllSchemaFields()
	data := make(map[string]any)
	mappedSources := make(map[string]struct{}, len(fieldMap))

	for source, target := range fieldMap {
		mappedSources[source] = struct{}{}
		if v, ok := getNestedValue(obj, source); ok && v != nil {
			data[target] = v
		}
	}

	for field := range schemaFields {
		if _, already := data[field]; already {
			continue
		}
		if v, ok := obj[field]; ok {
			data[field] = v
		}
	}

	extra := make(map[string]any)
	for key, value := range obj {
		if _, mapped := mappedSources[key]; mapped {
			continue
		}
		if _, schema := schemaFields[key]; schema {
			continue
		}
		extra[key] = value
	}

	for _, f := range ingestion.RequiredFieldNames {
		if _, ok := data[f]; !ok {
			return ingestion.Record{}, false, fmt.Errorf("record %d: missing required field %q", recordNumber, f)
		}
	}

	ts, ok := ingestion.ParseTimestamp(data["timestamp"])
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("record %d: invalid timestamp %v", recordNumber, data["timestamp"])
	}

	status, ok := toOptionalIntAny(data["status_code"])
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("record %d: invalid status_code %v", recordNumber, data["status_code"])
	}

	rec := ingestion.NewRecord(ts,
		toStringAny(data["client_ip"]), toStringAny(data["method"]), toStringAny(data["host"]),
		toStringAny(data["path"]), status, toStringAny(data["user_agent"]))
	setOptionalFieldsAny(&rec, data)
	rec.Extra = extra
	return rec, true, nil
}

// getNestedValue resolves a dot-notation path ("httpRequest.remoteIp") against
// a decoded JSON object tree.
func getNestedValue(obj map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = obj
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func toStringAny(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toOptionalIntAny(v any) (int, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		return ToOptionalInt(n)
	default:
		return 0, false
	}
}

func toOptionalInt64Any(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case string:
		return ToOptionalInt64(n)
	default:
		return 0, false
	}
}

func toOptionalStringAny(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return "", false
		}
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

// setOptionalFieldsAny is setOptionalFields for the any-typed data map the
// JSON parsers build (as opposed to the string-typed map CSV builds).
func setOptionalFieldsAny(rec *ingestion.Record, data map[string]any) {
	if v, ok := toOptionalStringAny(data["query_string"]); ok {
		rec.QueryString, rec.HasQueryString = v, true
	}
	if n, ok := toOptionalInt64Any(data["response_bytes"]); ok {
		rec.ResponseBytes, rec.HasResponseBytes = n, true
	}
	if n, ok := toOptionalInt64Any(data["request_bytes"]); ok {
		rec.RequestBytes, rec.HasRequestBytes = n, true
	}
	if n, ok := toOptionalIntAny(data["response_time_ms"]); ok {
		rec.ResponseTimeMs, rec.HasResponseTimeMs = n, true
	}
	if v, ok := toOptionalStringAny(data["cache_status"]); ok {
		rec.CacheStatus, rec.HasCacheStatus = v, true
	}
	if v, ok := toOptionalStringAny(data["edge_location"]); ok {
		rec.EdgeLocation, rec.HasEdgeLocation = v, true
	}
	if v, ok := toOptionalStringAny(data["referer"]); ok {
		rec.Referer, rec.HasReferer = v, true
	}
	if v, ok := toOptionalStringAny(data["protocol"]); ok {
		rec.Protocol, rec.HasProtocol = v, true
	}
	if v, ok := toOptionalStringAny(data["ssl_protocol"]); ok {
		rec.SSLProtocol, rec.HasSSLProtocol = v, true
	}
}
