// Package ingestion defines the universal record schema, source descriptor,
// and shared error taxonomy for the log ingestion pipeline. Format parsers,
// provider adapters, the registry, and the driver all build on this package.
package ingestion

import (
	"strings"
	"time"
)

// Record is an immutable, normalized HTTP request log entry. Every adapter
// emits values of this type regardless of the originating provider.
type Record struct {
	Timestamp time.Time // always UTC, always tz-aware
	ClientIP  string
	Method    string
	Host      string
	Path      string
	StatusCode int
	UserAgent string

	QueryString    string
	HasQueryString bool

	ResponseBytes    int64
	HasResponseBytes bool

	RequestBytes    int64
	HasRequestBytes bool

	ResponseTimeMs    int
	HasResponseTimeMs bool

	CacheStatus    string
	HasCacheStatus bool

	EdgeLocation    string
	HasEdgeLocation bool

	Referer    string
	HasReferer bool

	Protocol    string
	HasProtocol bool

	SSLProtocol    string
	HasSSLProtocol bool

	Extra map[string]any
}

// RequiredFieldNames enumerates the universal schema fields that parsers
// require a mapping and a non-empty value for.
var RequiredFieldNames = []string{
	"timestamp", "client_ip", "method", "path", "status_code",
}

// OptionalFieldNames enumerates fields that may be absent on a Record. host
// and user_agent are plain strings on Record and stay empty when absent.
var OptionalFieldNames = []string{
	"host", "user_agent",
	"query_string", "response_bytes", "request_bytes", "response_time_ms",
	"cache_status", "edge_location", "referer", "protocol", "ssl_protocol",
}

// CanonicalFieldNames is the full closed set recognized by the universal schema.
func CanonicalFieldNames() map[string]struct{} {
	out := make(map[string]struct{}, len(RequiredFieldNames)+len(OptionalFieldNames))
	for _, f := range RequiredFieldNames {
		out[f] = struct{}{}
	}
	for _, f := range OptionalFieldNames {
		out[f] = struct{}{}
	}
	return out
}

// NewRecord builds a Record applying the schema invariants: uppercased
// method, non-empty path, UTC timestamp, and a non-nil extra map.
func NewRecord(ts time.Time, clientIP, method, host, path string, status int, userAgent string) Record {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return Record{
		Timestamp:  ts.UTC(),
		ClientIP:   clientIP,
		Method:     strings.ToUpper(method),
		Host:       host,
		Path:       path,
		StatusCode: status,
		UserAgent:  userAgent,
		Extra:      map[string]any{},
	}
}

// ToMapping converts a Record to a plain map that RecordFromMapping turns
// back into a Record. Optional fields absent on the Record are omitted.
func (r Record) ToMapping() map[string]any {
	m := map[string]any{
		"timestamp":   r.Timestamp,
		"client_ip":   r.ClientIP,
		"method":      r.Method,
		"host":        r.Host,
		"path":        r.Path,
		"status_code": r.StatusCode,
		"user_agent":  r.UserAgent,
	}
	if r.HasQueryString {
		m["query_string"] = r.QueryString
	}
	if r.HasResponseBytes {
		m["response_bytes"] = r.ResponseBytes
	}
	if r.HasRequestBytes {
		m["request_bytes"] = r.RequestBytes
	}
	if r.HasResponseTimeMs {
		m["response_time_ms"] = r.ResponseTimeMs
	}
	if r.HasCacheStatus {
		m["cache_status"] = r.CacheStatus
	}
	if r.HasEdgeLocation {
		m["edge_location"] = r.EdgeLocation
	}
	if r.HasReferer {
		m["referer"] = r.Referer
	}
	if r.HasProtocol {
		m["protocol"] = r.Protocol
	}
	if r.HasSSLProtocol {
		m["ssl_protocol"] = r.SSLProtocol
	}
	extra := make(map[string]any, len(r.Extra))
	for k, v := range r.Extra {
		extra[k] = v
	}
	m["extra"] = extra
	return m
}

// RecordFromMapping rebuilds a Record from ToMapping's output, completing the
// round-trip law in section 8 of the spec this pipeline implements.
func RecordFromMapping(m map[string]any) Record {
	r := Record{Extra: map[string]any{}}
	if v, ok := m["timestamp"].(time.Time); ok {
		r.Timestamp = v.UTC()
	}
	if v, ok := m["client_ip"].(string); ok {
		r.ClientIP = v
	}
	if v, ok := m["method"].(string); ok {
		r.Method = v
	}
	if v, ok := m["host"].(string); ok {
		r.Host = v
	}
	if v, ok := m["path"].(string); ok {
		r.Path = v
	}
	if v, ok := m["status_code"].(int); ok {
		r.StatusCode = v
	}
	if v, ok := m["user_agent"].(string); ok {
		r.UserAgent = v
	}
	if v, ok := m["query_string"].(string); ok {
		r.QueryString, r.HasQueryString = v, true
	}
	if v, ok := m["response_bytes"].(int64); ok {
		r.ResponseBytes, r.HasResponseBytes = v, true
	}
	if v, ok := m["request_bytes"].(int64); ok {
		r.RequestBytes, r.HasRequestBytes = v, true
	}
	if v, ok := m["response_time_ms"].(int); ok {
		r.ResponseTimeMs, r.HasResponseTimeMs = v, true
	}
	if v, ok := m["cache_status"].(string); ok {
		r.CacheStatus, r.HasCacheStatus = v, true
	}
	if v, ok := m["edge_location"].(string); ok {
		r.EdgeLocation, r.HasEdgeLocation = v, true
	}
	if v, ok := m["referer"].(string); ok {
		r.Referer, r.HasReferer = v, true
	}
	if v, ok := m["protocol"].(string); ok {
		r.Protocol, r.HasProtocol = v, true
	}
	if v, ok := m["ssl_protocol"].(string); ok {
		r.SSLProtocol, r.HasSSLProtocol = v, true
	}
	if v, ok := m["extra"].(map[string]any); ok {
		for k, ev := range v {
			r.Extra[k] = ev
		}
	}
	return r
}

// SourceType is the closed set of recognized source descriptor kinds.
type SourceType string

// enum of all source types accepted by the driver and adapters
const (
	STAPI            SourceType = "api"
	STCSVFile        SourceType = "csv_file"
	STTSVFile        SourceType = "tsv_file"
	STJSONFile       SourceType = "json_file"
	STNDJSONFile     SourceType = "ndjson_file"
	STW3CFile        SourceType = "w3c_file"
	STALBLogFile     SourceType = "alb_log_file"
	STFastlyJSON     SourceType = "fastly_json_file"
	STFastlyNDJSON   SourceType = "fastly_ndjson_file"
	STFastlyCSV      SourceType = "fastly_csv_file"
	STAkamaiJSON     SourceType = "akamai_json_file"
	STAkamaiNDJSON   SourceType = "akamai_ndjson_file"
	STS3             SourceType = "s3"
	STGCS            SourceType = "gcs"
	STAzureBlob      SourceType = "azure_blob"
)

var validSourceTypes = map[SourceType]struct{}{
	STAPI: {}, STCSVFile: {}, STTSVFile: {}, STJSONFile: {}, STNDJSONFile: {},
	STW3CFile: {}, STALBLogFile: {}, STFastlyJSON: {}, STFastlyNDJSON: {}, STFastlyCSV: {},
	STAkamaiJSON: {}, STAkamaiNDJSON: {}, STS3: {}, STGCS: {}, STAzureBlob: {},
}

// IsValidSourceType reports whether st belongs to the closed source_type set.
func IsValidSourceType(st SourceType) bool {
	_, ok := validSourceTypes[st]
	return ok
}

// Source describes where and how to read a stream of records.
type Source struct {
	Provider    string
	SourceType  SourceType
	PathOrURI   string
	Credentials map[string]string
	Options     map[string]any
}

// NewSource validates source_type against the closed set at construction time.
func NewSource(provider string, sourceType SourceType, pathOrURI string) (Source, error) {
	if !IsValidSourceType(sourceType) {
		return Source{}, &SourceValidationError{SourceType: string(sourceType), Reason: "unknown source_type"}
	}
	return Source{Provider: provider, SourceType: sourceType, PathOrURI: pathOrURI, Options: map[string]any{}}, nil
}

// IsFileSource reports whether the source reads from the local filesystem.
func (s Source) IsFileSource() bool {
	switch s.SourceType {
	case STCSVFile, STTSVFile, STJSONFile, STNDJSONFile, STW3CFile, STALBLogFile,
		STFastlyJSON, STFastlyNDJSON, STFastlyCSV, STAkamaiJSON, STAkamaiNDJSON:
		return true
	default:
		return false
	}
}

// IsCloudSource reports whether the source reads from a cloud object store.
func (s Source) IsCloudSource() bool {
	switch s.SourceType {
	case STS3, STGCS, STAzureBlob:
		return true
	default:
		return false
	}
}

// IsAPISource reports whether the source calls a remote API (Cloudflare pull).
func (s Source) IsAPISource() bool {
	return s.SourceType == STAPI
}
