package parsers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// ParseJSON loads the entire document from r (a single object or an array of
// objects), optionally navigating to a nested array first via recordsPath
// (dot notation, e.g. "data.logs"), and yields one ingestion.Record per valid
// object via emit. Unlike ParseNDJSON this holds the whole decoded document
// in memory; prefer NDJSON for large files.
func ParseJSON(r io.Reader, fieldMap map[string]string, recordsPath string, opts JSONOptions, emit func(ingestion.Record) error) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading JSON document: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ingestion.ParseError{Message: fmt.Sprintf("invalid JSON file: %v", err)}
	}

	if recordsPath != "" {
		obj, ok := doc.(map[string]any)
		if !ok {
			return &ingestion.ParseError{Message: fmt.Sprintf("records path %q not found in JSON", recordsPath)}
		}
		v, ok := getNestedValue(obj, recordsPath)
		if !ok {
			return &ingestion.ParseError{Message: fmt.Sprintf("records path %q not found in JSON", recordsPath)}
		}
		doc = v
	}

	var records []any
	switch v := doc.(type) {
	case map[string]any:
		records = []any{v}
	case []any:
		records = v
	default:
		return &ingestion.ParseError{Message: fmt.Sprintf("expected JSON object or array, got %T", doc)}
	}

	for idx, item := range records {
		recordNumber := idx + 1

		obj, ok := item.(map[string]any)
		if !ok {
			if opts.StrictValidation {
				return &ingestion.ParseError{Message: fmt.Sprintf("record %d: expected object, got %T", recordNumber, item)}
			}
			log.Printf("[DEBUG] skipping record %d: expected object, got %T", recordNumber, item)
			continue
		}

		rec, ok, perr := parseJSONObject(obj, fieldMap, recordNumber)
		if perr != nil {
			if opts.StrictValidation {
				return &ingestion.ParseError{Message: strings.TrimPrefix(perr.Error(), fmt.Sprintf("record %d: ", recordNumber))}
			}
			log.Printf("[DEBUG] skipping invalid record %d: %v", recordNumber, perr)
			continue
		}
		if !ok {
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}
