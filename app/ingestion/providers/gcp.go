package providers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/parsers"
	"github.com/umputun/ingest-logs/app/ingestion/registry"
)

func init() {
	registry.MustRegister("gcp", func() registry.Adapter { return &GCPAdapter{} })
}

var gcpExtensions = map[ingestion.SourceType][]string{
	ingestion.STJSONFile:   {".json", ".json.gz"},
	ingestion.STNDJSONFile: {".ndjson", ".ndjson.gz", ".jsonl", ".jsonl.gz"},
}

var gcpExtraKeys = []string{"insertId", "trace", "spanId", "severity", "logName"}

// GCPAdapter ingests GCP Cloud CDN / HTTP(S) Load Balancer logs exported
// from Cloud Logging. The httpRequest object is nested rather than flat, so
// this adapter walks raw decoded maps directly instead of going through the
// shared field-mapped parsers.
type GCPAdapter struct{}

func (a *GCPAdapter) ProviderName() string { return "gcp" }

func (a *GCPAdapter) SupportedSourceTypes() []string {
	return []string{string(ingestion.STJSONFile), string(ingestion.STNDJSONFile)}
}

func (a *GCPAdapter) ValidateSource(source ingestion.Source, baseDir string) (bool, string) {
	return validateCommon(source, baseDir, a.SupportedSourceTypes(), gcpExtensions[source.SourceType])
}

func (a *GCPAdapter) Ingest(source ingestion.Source, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error {
	if ok, reason := a.ValidateSource(source, opts.BaseDir); !ok {
		return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: reason}
	}

	out := filteredEmit(opts, emit)
	return ingestFiles(source, gcpExtensions[source.SourceType], opts, func(path string) error {
		r, err := parsers.OpenAutoDecompress(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer r.Close() //nolint:errcheck // read-only fd

		switch source.SourceType {
		case ingestion.STJSONFile:
			return gcpParseJSON(r, opts.StrictValidation, out)
		case ingestion.STNDJSONFile:
			return gcpParseNDJSON(r, opts.StrictValidation, out)
		default:
			return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: "unsupported file source type"}
		}
	})
}

func gcpParseJSON(r io.Reader, strict bool, emit func(ingestion.Record) error) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading gcp json: %w", err)
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
		rec, ok, err := gcpConvertEntry(entry)
		if err != nil {
			if strict {
				return &ingestion.ParseError{Message: err.Error(), LineNumber: idx + 1}
			}
			log.Printf("[DEBUG] skipping invalid gcp entry %d: %v", idx, err)
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

func gcpParseNDJSON(r io.Reader, strict bool, emit func(ingestion.Record) error) error {
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
		rec, ok, err := gcpConvertEntry(entry)
		if err != nil {
			if strict {
				return &ingestion.ParseError{Message: err.Error(), LineNumber: lineNumber}
			}
			log.Printf("[DEBUG] skipping invalid gcp entry at line %d: %v", lineNumber, err)
			continue
		}
		if !ok {
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// gcpConvertEntry flattens a single Cloud Logging entry's nested httpRequest
// object into an ingestion.Record, applying the URL split, latency
// conversion, and cache-status mapping the nested structure requires.
func gcpConvertEntry(entry map[string]any) (ingestion.Record, bool, error) {
	httpRequest, _ := entry["httpRequest"].(map[string]any)
	if len(httpRequest) == 0 {
		return ingestion.Record{}, false, nil
	}

	timestampRaw, ok := entry["timestamp"]
	if !ok {
		return ingestion.Record{}, false, nil
	}
	ts, ok := ingestion.ParseTimestamp(timestampRaw)
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("invalid timestamp %v", timestampRaw)
	}

	clientIP, _ := httpRequest["remoteIp"].(string)
	method, _ := httpRequest["requestMethod"].(string)
	statusRaw := httpRequest["status"]
	userAgent, _ := httpRequest["userAgent"].(string)

	if clientIP == "" || method == "" || statusRaw == nil {
		return ingestion.Record{}, false, nil
	}
	status, ok := toOptionalIntAnyPublic(statusRaw)
	if !ok {
		return ingestion.Record{}, false, fmt.Errorf("invalid status %v", statusRaw)
	}

	host, path, queryString := gcpSplitRequestURL(toStringAnyPublic(httpRequest["requestUrl"]))

	rec := ingestion.NewRecord(ts, clientIP, method, host, path, status, userAgent)
	if queryString != "" {
		rec.QueryString, rec.HasQueryString = queryString, true
	}
	if n, ok := toOptionalInt64AnyPublic(httpRequest["requestSize"]); ok {
		rec.RequestBytes, rec.HasRequestBytes = n, true
	}
	if n, ok := toOptionalInt64AnyPublic(httpRequest["responseSize"]); ok {
		rec.ResponseBytes, rec.HasResponseBytes = n, true
	}
	if referer, ok := httpRequest["referer"].(string); ok && referer != "" {
		rec.Referer, rec.HasReferer = referer, true
	}
	if protocol, ok := httpRequest["protocol"].(string); ok && protocol != "" {
		rec.Protocol, rec.HasProtocol = protocol, true
	}
	if edgeLocation, ok := httpRequest["serverIp"].(string); ok && edgeLocation != "" {
		rec.EdgeLocation, rec.HasEdgeLocation = edgeLocation, true
	}
	if ms, ok := gcpParseLatency(httpRequest["latency"]); ok {
		rec.ResponseTimeMs, rec.HasResponseTimeMs = ms, true
	}
	if status, ok := gcpMapCacheStatus(httpRequest["cacheHit"], httpRequest["cacheLookup"]); ok {
		rec.CacheStatus, rec.HasCacheStatus = status, true
	}

	extra := make(map[string]any)
	for _, key := range gcpExtraKeys {
		if v, ok := entry[key]; ok {
			extra[key] = v
		}
	}
	if resource, ok := entry["resource"].(map[string]any); ok {
		if labels, ok := resource["labels"]; ok {
			extra["resource_labels"] = labels
		}
	}
	rec.Extra = extra

	return rec, true, nil
}

// gcpSplitRequestURL parses httpRequest.requestUrl into host/path/query,
// falling back to treating the whole value as a path when it doesn't parse
// as a URL.
func gcpSplitRequestURL(requestURL string) (host, path, queryString string) {
	path = "/"
	if requestURL == "" {
		return "", path, ""
	}
	if u, err := url.Parse(requestURL); err == nil && (u.Host != "" || u.Path != "") {
		host = u.Host
		if u.Path != "" {
			path = u.Path
		}
		queryString = u.RawQuery
	} else {
		path = requestURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return host, path, queryString
}

// gcpParseLatency converts GCP's duration-string latency field ("0.150s")
// or a bare numeric-seconds value into milliseconds.
func gcpParseLatency(v any) (int, bool) {
	switch n := v.(type) {
	case string:
		return ingestion.ParseDurationSeconds(n)
	case float64:
		return int(n*1000 + 0.5), true
	case int:
		return n * 1000, true
	default:
		return 0, false
	}
}

// gcpMapCacheStatus applies the spec's boolean-to-enum rule: cacheHit=true
// is always a HIT; cacheHit=false with cacheLookup=true is a MISS;
// cacheLookup=false (lookup never attempted) is a BYPASS; anything else is
// unknown and left unset.
func gcpMapCacheStatus(cacheHit, cacheLookup any) (string, bool) {
	hit, hitKnown := cacheHit.(bool)
	lookup, lookupKnown := cacheLookup.(bool)

	if hitKnown && hit {
		return "HIT", true
	}
	if hitKnown && !hit && lookupKnown && lookup {
		return "MISS", true
	}
	if lookupKnown && !lookup {
		return "BYPASS", true
	}
	return "", false
}
