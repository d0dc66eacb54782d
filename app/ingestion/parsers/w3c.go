package parsers

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// W3COptions configures the W3C extended log format parser.
type W3COptions struct {
	URLDecode        bool // default true
	StrictValidation bool
}

// w3cURLDecodeFields are W3C column names that typically carry percent-encoded
// values and are decoded when URLDecode is set.
var w3cURLDecodeFields = map[string]struct{}{
	"cs-uri-query":  {},
	"cs(Referer)":   {},
	"cs(User-Agent)": {},
	"cs-uri-stem":   {},
}

// ParseW3C reads a W3C extended log format stream (AWS CloudFront, S3,
// DigitalOcean Spaces access logs): a #Version/#Fields directive header
// followed by tab-separated rows. Blank and "#"-prefixed lines are skipped.
// When the #Fields directive lists both "date" and "time" columns, a missing
// "timestamp" mapping is tolerated and the timestamp is reconstructed from
// them.
func ParseW3C(r io.Reader, fieldMap map[string]string, opts W3COptions, emit func(ingestion.Record) error) error {
	br := bufio.NewReaderSize(r, 64*1024)

	fieldNames, firstDataLine, lineNumber, err := parseW3CHeader(br)
	if err != nil {
		return err
	}

	colToW3C := make(map[int]string, len(fieldNames))
	for idx, name := range fieldNames {
		colToW3C[idx] = name
	}

	schemaFields := AllSchemaFields()
	w3cToSchema := make(map[string]string, len(fieldMap))
	for w3cField, schemaField := range fieldMap {
		w3cToSchema[w3cField] = schemaField
	}
	for _, w3cField := range fieldNames {
		if _, already := w3cToSchema[w3cField]; !already {
			if _, ok := schemaFields[w3cField]; ok {
				w3cToSchema[w3cField] = w3cField
			}
		}
	}

	mappedSchemaFields := make(map[string]struct{}, len(w3cToSchema))
	for _, schemaField := range w3cToSchema {
		mappedSchemaFields[schemaField] = struct{}{}
	}
	_, hasDateCol := fieldIndexOf(fieldNames, "date")
	_, hasTimeCol := fieldIndexOf(fieldNames, "time")
	_, hasTimestamp := mappedSchemaFields["timestamp"]
	canConstructTimestamp := hasDateCol && hasTimeCol

	var missing []string
	for _, f := range ingestion.RequiredFieldNames {
		if f == "timestamp" && canConstructTimestamp && !hasTimestamp {
			continue
		}
		if _, ok := mappedSchemaFields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &ingestion.ParseError{Message: fmt.Sprintf(
			"missing required field mappings: %s. available W3C fields: %s",
			strings.Join(missing, ", "), strings.Join(fieldNames, ", "))}
	}

	process := func(line string) (ingestion.Record, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			return ingestion.Record{}, false, nil
		}
		return parseW3CRow(line, colToW3C, w3cToSchema, fieldNames, opts.URLDecode)
	}

	emitLine := func(line string) error {
		lineNumber++
		rec, ok, perr := process(line)
		if perr != nil {
			if opts.StrictValidation {
				return &ingestion.ParseError{Message: perr.Error(), LineNumber: lineNumber}
			}
			log.Printf("[DEBUG] skipping invalid W3C row %d: %v", lineNumber, perr)
			return nil
		}
		if !ok {
			return nil
		}
		return emit(rec)
	}

	if firstDataLine != "" {
		if err := emitLine(firstDataLine); err != nil {
			return err
		}
	}

	for {
		line, rerr := br.ReadString('\n')
		if line != "" {
			if err := emitLine(line); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading W3C log: %w", rerr)
		}
	}
	return nil
}

func fieldIndexOf(fields []string, name string) (int, bool) {
	for i, f := range fields {
		if f == name {
			return i, true
		}
	}
	return 0, false
}

// parseW3CHeader consumes #Version/#Fields directive lines until the first
// non-directive line, returning the field list, the captured first data line
// (if any), and the number of header lines consumed.
func parseW3CHeader(br *bufio.Reader) (fields []string, firstDataLine string, headerLines int, err error) {
	for {
		line, rerr := br.ReadString('\n')
		if line == "" && rerr != nil {
			break
		}
		headerLines++
		stripped := strings.TrimSpace(line)

		if stripped == "" || !strings.HasPrefix(stripped, "#") {
			if stripped != "" {
				firstDataLine = line
				headerLines--
			}
			if rerr != nil && rerr != io.EOF {
				return nil, "", 0, fmt.Errorf("reading W3C header: %w", rerr)
			}
			break
		}

		if strings.HasPrefix(stripped, "#Fields:") {
			fieldsStr := strings.TrimSpace(strings.SplitN(stripped, ":", 2)[1])
			if strings.Contains(fieldsStr, "\t") {
				for _, f := range strings.Split(fieldsStr, "\t") {
					if f = strings.TrimSpace(f); f != "" {
						fields = append(fields, f)
					}
				}
			} else {
				fields = strings.Fields(fieldsStr)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, "", 0, fmt.Errorf("reading W3C header: %w", rerr)
		}
	}

	if fields == nil {
		return nil, "", 0, &ingestion.ParseError{Message: "missing #Fields directive in W3C log header"}
	}
	return fields, firstDataLine, headerLines, nil
}

func parseW3CRow(line string, colToW3C map[int]string, w3cToSchema map[string]string, fieldNames []string, urlDecode bool) (ingestion.Record, bool, error) {
	values := strings.Split(line, "\t")
	data := make(map[string]string, len(w3cToSchema))
	extra := make(map[string]any)

	var rawDate, rawTime string

	for idx, raw := range values {
		value := strings.TrimSpace(raw)
		w3cField, known := colToW3C[idx]
		if !known {
			continue
		}
		if w3cField == "date" {
			rawDate = value
		}
		if w3cField == "time" {
			rawTime = value
		}
		if schemaField, mapped := w3cToSchema[w3cField]; mapped {
			decoded := decodeW3CValue(value, w3cField, urlDecode)
			if decoded != "" {
				data[schemaField] = decoded
			}
		} else if idx < len(fieldNames) {
			if value != "" {
				extra[fieldNames[idx]] = value
			}
		}
	}

	ts, ok := parseW3CTimestamp(data, rawDate, rawTime)
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("invalid timestamp: unable to construct from available fields")
	}

	for _, f := range ingestion.RequiredFieldNames {
		if f == "timestamp" {
			continue
		}
		if _, ok := data[f]; !ok {
			return ingestion.Record{}, false, fmt.Errorf("missing required field %q", f)
		}
	}

	status, ok := ToOptionalInt(data["status_code"])
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("invalid status_code %q", data["status_code"])
	}

	rec := ingestion.NewRecord(ts, data["client_ip"], data["method"], data["host"], data["path"], status, data["user_agent"])
	setOptionalFields(&rec, data)

	if ms, ok := parseW3CResponseTimeMs(data["response_time_ms"], colToW3C, values); ok {
		rec.ResponseTimeMs, rec.HasResponseTimeMs = ms, true
	}

	rec.Extra = extra
	return rec, true, nil
}

func decodeW3CValue(value, w3cField string, urlDecode bool) string {
	if isEmptyLike(value) {
		return ""
	}
	if _, needsDecode := w3cURLDecodeFields[w3cField]; urlDecode && needsDecode {
		if decoded, err := url.QueryUnescape(value); err == nil {
			return decoded
		}
	}
	return value
}

func parseW3CTimestamp(data map[string]string, rawDate, rawTime string) (time.Time, bool) {
	if v, ok := data["timestamp"]; ok {
		if ts, ok := ingestion.ParseTimestamp(v); ok {
			return ts, true
		}
	}

	date, time_ := rawDate, rawTime
	if date == "" {
		date = data["date"]
	}
	if time_ == "" {
		time_ = data["time"]
	}
	if date == "" || time_ == "" {
		return time.Time{}, false
	}

	ts, err := time.Parse("2006-01-02 15:04:05", date+" "+time_)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func parseW3CResponseTimeMs(value string, colToW3C map[int]string, values []string) (int, bool) {
	if value != "" {
		if seconds, err := strconv.ParseFloat(value, 64); err == nil {
			return int(seconds * 1000), true
		}
	}
	for idx, w3cField := range colToW3C {
		if w3cField != "time-taken" || idx >= len(values) {
			continue
		}
		timeTaken := strings.TrimSpace(values[idx])
		if isEmptyLike(timeTaken) {
			continue
		}
		if seconds, err := strconv.ParseFloat(timeTaken, 64); err == nil {
			return int(seconds * 1000), true
		}
	}
	return 0, false
}
