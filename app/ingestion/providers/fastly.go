package providers

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/parsers"
	"github.com/umputun/ingest-logs/app/ingestion/registry"
)

func init() {
	registry.MustRegister("fastly", func() registry.Adapter { return &FastlyAdapter{} })
}

// fastlyDefaultFieldMapping is the out-of-the-box Fastly field name for each
// universal schema field; callers may override individual entries via
// ingestion.IngestOptions.FieldMapping (the spec's options.field_mapping knob).
var fastlyDefaultFieldMapping = map[string]string{
	"timestamp":        "timestamp",
	"client_ip":        "client_ip",
	"method":           "method",
	"host":             "host",
	"path":             "path",
	"status_code":      "status_code",
	"user_agent":       "user_agent",
	"query_string":     "query_string",
	"request_bytes":    "request_bytes",
	"response_bytes":   "response_bytes",
	"response_time_ms": "response_time_ms",
	"referer":          "referer",
	"protocol":         "protocol",
	"ssl_protocol":     "ssl_protocol",
	"cache_status":     "cache_status",
	"edge_location":    "edge_location",
}

// fastlyFieldAliases lists the common alternative field names Fastly
// configurations are observed to use, tried in order when the configured
// mapped name isn't present in a given entry.
var fastlyFieldAliases = map[string][]string{
	"timestamp":        {"timestamp", "time", "date", "request_time", "start_time"},
	"client_ip":        {"client_ip", "clientip", "client", "ip", "remote_addr"},
	"method":           {"method", "request_method", "verb"},
	"host":             {"host", "hostname", "server"},
	"path":              {"path", "url", "uri", "request_path"},
	"status_code":      {"status_code", "status", "response_status"},
	"user_agent":       {"user_agent", "useragent", "ua"},
	"query_string":     {"query_string", "query", "querystring"},
	"request_bytes":    {"request_bytes", "req_bytes", "bytes_in"},
	"response_bytes":   {"response_bytes", "resp_bytes", "bytes_out", "bytes"},
	"response_time_ms": {"response_time_ms", "response_time", "time_elapsed"},
	"referer":          {"referer", "referrer"},
	"protocol":         {"protocol", "request_protocol"},
	"ssl_protocol":     {"ssl_protocol", "tls_version"},
	"cache_status":     {"cache_status", "fastly_cache_status", "cache"},
	"edge_location":    {"edge_location", "pop", "datacenter"},
}

var fastlyExtensions = map[ingestion.SourceType][]string{
	ingestion.STFastlyJSON:   {".json", ".json.gz"},
	ingestion.STFastlyNDJSON: {".ndjson", ".ndjson.gz", ".jsonl", ".jsonl.gz"},
	ingestion.STFastlyCSV:    {".csv", ".csv.gz"},
}

// FastlyAdapter ingests Fastly real-time log streaming exports. Unlike
// every other file-based adapter, its field mapping is configurable per
// request and falls back through a fixed alias table when the configured
// field name isn't present in a given entry - so it can't reuse the shared
// field-map parsers as-is and instead works with raw decoded maps directly.
type FastlyAdapter struct{}

func (a *FastlyAdapter) ProviderName() string { return "fastly" }

func (a *FastlyAdapter) SupportedSourceTypes() []string {
	return []string{string(ingestion.STFastlyJSON), string(ingestion.STFastlyNDJSON), string(ingestion.STFastlyCSV)}
}

func (a *FastlyAdapter) ValidateSource(source ingestion.Source, baseDir string) (bool, string) {
	return validateCommon(source, baseDir, a.SupportedSourceTypes(), fastlyExtensions[source.SourceType])
}

func (a *FastlyAdapter) Ingest(source ingestion.Source, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error {
	if ok, reason := a.ValidateSource(source, opts.BaseDir); !ok {
		return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: reason}
	}

	fieldMap := fastlyFieldMapping(opts)
	out := filteredEmit(opts, emit)

	return ingestFiles(source, fastlyExtensions[source.SourceType], opts, func(path string) error {
		r, err := parsers.OpenAutoDecompress(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer r.Close() //nolint:errcheck // read-only fd

		switch source.SourceType {
		case ingestion.STFastlyJSON:
			return fastlyParseJSON(r, fieldMap, opts.StrictValidation, out)
		case ingestion.STFastlyNDJSON:
			return fastlyParseNDJSON(r, fieldMap, opts.StrictValidation, out)
		case ingestion.STFastlyCSV:
			return fastlyParseCSV(r, fieldMap, opts.StrictValidation, out)
		default:
			return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: "unsupported file source type"}
		}
	})
}

// fastlyFieldMapping merges the default map with any per-run override from
// opts.FieldMapping, matching _get_field_mapping's dict-merge semantics.
func fastlyFieldMapping(opts ingestion.IngestOptions) map[string]string {
	m := make(map[string]string, len(fastlyDefaultFieldMapping))
	for k, v := range fastlyDefaultFieldMapping {
		m[k] = v
	}
	for k, v := range opts.FieldMapping {
		m[k] = v
	}
	return m
}

func fastlyParseJSON(r io.Reader, fieldMap map[string]string, strict bool, emit func(ingestion.Record) error) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading fastly json: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ingestion.ParseError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}

	var entries []map[string]any
	switch v := doc.(type) {
	case map[string]any:
		entries = []map[string]any{v}
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				entries = append(entries, m)
			}
		}
	default:
		return &ingestion.ParseError{Message: "expected a JSON object or array of objects"}
	}

	for idx, entry := range entries {
		rec, ok := fastlyMapEntryToRecord(entry, fieldMap)
		if !ok {
			if strict {
				return &ingestion.ParseError{Message: "failed to map entry to record", LineNumber: idx + 1}
			}
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func fastlyParseNDJSON(r io.Reader, fieldMap map[string]string, strict bool, emit func(ingestion.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			if strict {
				return &ingestion.ParseError{Message: fmt.Sprintf("invalid JSON: %v", err), LineNumber: lineNumber}
			}
			log.Printf("[DEBUG] skipping invalid JSON at line %d: %v", lineNumber, err)
			continue
		}
		rec, ok := fastlyMapEntryToRecord(entry, fieldMap)
		if !ok {
			if strict {
				return &ingestion.ParseError{Message: "failed to map entry to record", LineNumber: lineNumber}
			}
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func fastlyParseCSV(r io.Reader, fieldMap map[string]string, strict bool, emit func(ingestion.Record) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading fastly csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "﻿")
	}

	lineNumber := 1
	for {
		row, rerr := reader.Read()
		if rerr == io.EOF {
			break
		}
		lineNumber++
		if rerr != nil {
			if strict {
				return &ingestion.ParseError{Message: rerr.Error(), LineNumber: lineNumber}
			}
			continue
		}

		entry := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				entry[col] = row[i]
			}
		}
		rec, ok := fastlyMapEntryToRecord(entry, fieldMap)
		if !ok {
			if strict {
				return &ingestion.ParseError{Message: "failed to map entry to record", LineNumber: lineNumber}
			}
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

// fastlyGetFieldWithAliases looks up universalField in entry, first via the
// configured mapping, then via each of its known aliases, skipping blank or
// nil values along the way.
func fastlyGetFieldWithAliases(entry map[string]any, universalField string, fieldMap map[string]string) (any, bool) {
	if mapped, ok := fieldMap[universalField]; ok {
		if v, present := entry[mapped]; present && v != nil && v != "" {
			return v, true
		}
	}
	for _, alias := range fastlyFieldAliases[universalField] {
		if v, present := entry[alias]; present && v != nil && v != "" {
			return v, true
		}
	}
	return nil, false
}

func fastlyMapEntryToRecord(entry map[string]any, fieldMap map[string]string) (ingestion.Record, bool) {
	tsRaw, ok := fastlyGetFieldWithAliases(entry, "timestamp", fieldMap)
	if !ok {
		return ingestion.Record{}, false
	}
	ts, ok := ingestion.ParseTimestamp(tsRaw)
	if !ok {
		return ingestion.Record{}, false
	}

	clientIP, ok := fastlyGetFieldWithAliases(entry, "client_ip", fieldMap)
	if !ok {
		return ingestion.Record{}, false
	}
	method, ok := fastlyGetFieldWithAliases(entry, "method", fieldMap)
	if !ok {
		return ingestion.Record{}, false
	}
	statusRaw, ok := fastlyGetFieldWithAliases(entry, "status_code", fieldMap)
	if !ok {
		return ingestion.Record{}, false
	}
	status, ok := toOptionalIntAnyPublic(statusRaw)
	if !ok {
		return ingestion.Record{}, false
	}

	host, _ := fastlyGetFieldWithAliases(entry, "host", fieldMap)
	path, hasPath := fastlyGetFieldWithAliases(entry, "path", fieldMap)
	if !hasPath {
		path = "/"
	}
	userAgent, _ := fastlyGetFieldWithAliases(entry, "user_agent", fieldMap)

	rec := ingestion.NewRecord(ts, toStringAnyPublic(clientIP), toStringAnyPublic(method), toStringAnyPublic(host), toStringAnyPublic(path), status, toStringAnyPublic(userAgent))

	if v, ok := fastlyGetFieldWithAliases(entry, "query_string", fieldMap); ok {
		rec.QueryString, rec.HasQueryString = toStringAnyPublic(v), true
	}
	if v, ok := fastlyGetFieldWithAliases(entry, "request_bytes", fieldMap); ok {
		if n, ok2 := toOptionalInt64AnyPublic(v); ok2 {
			rec.RequestBytes, rec.HasRequestBytes = n, true
		}
	}
	if v, ok := fastlyGetFieldWithAliases(entry, "response_bytes", fieldMap); ok {
		if n, ok2 := toOptionalInt64AnyPublic(v); ok2 {
			rec.ResponseBytes, rec.HasResponseBytes = n, true
		}
	}
	if v, ok := fastlyGetFieldWithAliases(entry, "response_time_ms", fieldMap); ok {
		if n, ok2 := toOptionalIntAnyPublic(v); ok2 {
			rec.ResponseTimeMs, rec.HasResponseTimeMs = n, true
		}
	}
	if v, ok := fastlyGetFieldWithAliases(entry, "referer", fieldMap); ok {
		rec.Referer, rec.HasReferer = toStringAnyPublic(v), true
	}
	if v, ok := fastlyGetFieldWithAliases(entry, "protocol", fieldMap); ok {
		rec.Protocol, rec.HasProtocol = toStringAnyPublic(v), true
	}
	if v, ok := fastlyGetFieldWithAliases(entry, "ssl_protocol", fieldMap); ok {
		rec.SSLProtocol, rec.HasSSLProtocol = toStringAnyPublic(v), true
	}
	if v, ok := fastlyGetFieldWithAliases(entry, "cache_status", fieldMap); ok {
		rec.CacheStatus, rec.HasCacheStatus = toStringAnyPublic(v), true
	}
	if v, ok := fastlyGetFieldWithAliases(entry, "edge_location", fieldMap); ok {
		rec.EdgeLocation, rec.HasEdgeLocation = toStringAnyPublic(v), true
	}

	mapped := make(map[string]struct{})
	for universalField, name := range fieldMap {
		if _, hasAliases := fastlyFieldAliases[universalField]; hasAliases {
			mapped[name] = struct{}{}
			for _, alias := range fastlyFieldAliases[universalField] {
				mapped[alias] = struct{}{}
			}
		}
	}
	extra := make(map[string]any)
	for k, v := range entry {
		if _, ok := mapped[k]; ok {
			continue
		}
		if v == nil || v == "" {
			continue
		}
		extra[k] = v
	}
	rec.Extra = extra

	return rec, true
}

