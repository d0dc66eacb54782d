package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// CSVOptions configures the CSV/TSV parser.
type CSVOptions struct {
	Delimiter        rune // default ','
	StrictValidation bool
}

// ParseCSV reads a header row followed by data rows from r, mapping columns
// to the universal schema via fieldMap (falling back to identity matches),
// and yields one ingestion.Record per valid row via emit. Returns a
// *ingestion.ParseError if a required field cannot be mapped at all.
func ParseCSV(r io.Reader, fieldMap map[string]string, opts CSVOptions, emit func(ingestion.Record) error) error {
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}

	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		log.Printf("[WARN] empty CSV file")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "﻿")
	}

	schemaFields := AllSchemaFields()
	colToField := make(map[int]string, len(header))
	for idx, col := range header {
		if mapped, ok := fieldMap[col]; ok {
			colToField[idx] = mapped
			continue
		}
		if _, ok := schemaFields[col]; ok {
			colToField[idx] = col
		}
	}

	mappedFields := make(map[string]struct{}, len(colToField))
	for _, f := range colToField {
		mappedFields[f] = struct{}{}
	}
	var missing []string
	for _, f := range ingestion.RequiredFieldNames {
		if _, ok := mappedFields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ingestion.ParseError{Message: fmt.Sprintf(
			"missing required field mappings: %s. available columns: %s",
			strings.Join(missing, ", "), strings.Join(header, ", "))}
	}

	lineNumber := 1
	for {
		row, rerr := reader.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if opts.StrictValidation {
				return &ingestion.ParseError{Message: rerr.Error(), LineNumber: lineNumber + 1}
			}
			log.Printf("[DEBUG] skipping malformed CSV row %d: %v", lineNumber+1, rerr)
			lineNumber++
			continue
		}
		lineNumber++

		if rowIsBlank(row) {
			continue
		}

		rec, ok, perr := parseCSVRow(row, header, colToField)
		if perr != nil {
			if opts.StrictValidation {
				return &ingestion.ParseError{Message: perr.Error(), LineNumber: lineNumber}
			}
			log.Printf("[DEBUG] skipping invalid row %d: %v", lineNumber, perr)
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

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseCSVRow(row, header []string, colToField map[int]string) (ingestion.Record, bool, error) {
	data := make(map[string]string, len(colToField))
	extra := make(map[string]any)

	for idx, raw := range row {
		value := strings.TrimSpace(raw)
		if field, ok := colToField[idx]; ok {
			if !isEmptyLike(value) {
				data[field] = value
			}
		} else if idx < len(header) {
			if value != "" {
				extra[header[idx]] = value
			}
		}
	}

	for _, f := range ingestion.RequiredFieldNames {
		if _, ok := data[f]; !ok {
			return ingestion.Record{}, false, fmt.Errorf("missing required field %q", f)
		}
	}

	ts, ok := ingestion.ParseTimestamp(data["timestamp"])
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("invalid timestamp %q", data["timestamp"])
	}

	status, ok := ToOptionalInt(data["status_code"])
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("invalid status_code %q", data["status_code"])
	}

	rec := ingestion.NewRecord(ts, data["client_ip"], data["method"], data["host"], data["path"], status, data["user_agent"])
	setOptionalFields(&rec, data)
	rec.Extra = extra
	return rec, true, nil
}
