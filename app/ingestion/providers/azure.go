package providers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/parsers"
	"github.com/umputun/ingest-logs/app/ingestion/registry"
)

func init() {
	registry.MustRegister("azure", func() registry.Adapter { return &AzureAdapter{} })
}

// azureNativeFieldMapping covers Azure CDN/Front Door's own PascalCase log
// schema. TimeTaken is deliberately left unmapped here: mapping it straight
// to response_time_ms would let the CSV/JSON parsers truncate a fractional
// second value like "0.150" to 0 before post-processing ever sees it, so
// instead it lands in extra and gets converted explicitly below.
var azureNativeFieldMapping = map[string]string{
	"Time":             "timestamp",
	"ClientIp":         "client_ip",
	"HttpMethod":       "method",
	"HostName":         "host",
	"RequestUri":       "path",
	"HttpStatusCode":   "status_code",
	"UserAgent":        "user_agent",
	"ResponseBytes":    "response_bytes",
	"RequestBytes":     "request_bytes",
	"CacheStatus":      "cache_status",
	"Pop":              "edge_location",
	"Referrer":         "referer",
	"RequestProtocol":  "protocol",
	"SecurityProtocol": "ssl_protocol",
}

// azureLogAnalyticsFieldMapping covers the Log Analytics export dialect,
// which suffixes field names with their KQL type (_s string, _d number).
var azureLogAnalyticsFieldMapping = map[string]string{
	"TimeGenerated":          "timestamp",
	"time":                   "timestamp",
	"clientIp_s":             "client_ip",
	"requestMethod_s":        "method",
	"httpMethod_s":           "method",
	"hostName_s":             "host",
	"requestUri_s":           "path",
	"httpStatusCode_d":       "status_code",
	"userAgent_s":            "user_agent",
	"responseBytes_d":        "response_bytes",
	"requestBytes_d":         "request_bytes",
	"cacheStatus_s":          "cache_status",
	"pop_s":                  "edge_location",
	"referrer_s":             "referer",
	"requestProtocol_s":      "protocol",
	"securityProtocol_s":     "ssl_protocol",
}

func azureCombinedFieldMapping() map[string]string {
	m := make(map[string]string, len(azureNativeFieldMapping)+len(azureLogAnalyticsFieldMapping))
	for k, v := range azureNativeFieldMapping {
		m[k] = v
	}
	for k, v := range azureLogAnalyticsFieldMapping {
		m[k] = v
	}
	return m
}

var azureExtensions = []string{".csv", ".csv.gz", ".json", ".json.gz", ".ndjson", ".ndjson.gz", ".jsonl", ".jsonl.gz"}

// AzureAdapter ingests Azure CDN / Front Door access logs, which ship in
// either Azure's own native schema or the Log Analytics export dialect -
// both are merged into one field map and disambiguated by whichever column
// names are actually present in a given file.
type AzureAdapter struct{}

func (a *AzureAdapter) ProviderName() string { return "azure" }

func (a *AzureAdapter) SupportedSourceTypes() []string {
	return []string{string(ingestion.STCSVFile), string(ingestion.STJSONFile), string(ingestion.STNDJSONFile)}
}

func (a *AzureAdapter) ValidateSource(source ingestion.Source, baseDir string) (bool, string) {
	return validateCommon(source, baseDir, a.SupportedSourceTypes(), azureExtensions)
}

func (a *AzureAdapter) Ingest(source ingestion.Source, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error {
	if ok, reason := a.ValidateSource(source, opts.BaseDir); !ok {
		return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: reason}
	}

	fieldMap := azureCombinedFieldMapping()
	out := filteredEmit(opts, func(rec ingestion.Record) error {
		return emit(azurePostProcess(rec))
	})

	return ingestFiles(source, azureExtensions, opts, func(path string) error {
		r, err := parsers.OpenAutoDecompress(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer r.Close() //nolint:errcheck // read-only fd

		switch source.SourceType {
		case ingestion.STCSVFile:
			return parsers.ParseCSV(r, fieldMap, parsers.CSVOptions{StrictValidation: opts.StrictValidation}, out)
		case ingestion.STJSONFile:
			return parsers.ParseJSON(r, fieldMap, "", parsers.JSONOptions{StrictValidation: opts.StrictValidation}, out)
		case ingestion.STNDJSONFile:
			return parsers.ParseNDJSON(r, fieldMap, parsers.JSONOptions{StrictValidation: opts.StrictValidation}, out)
		default:
			return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: "unsupported file source type"}
		}
	})
}

// azurePostProcess applies the two fixups that can't be expressed as a plain
// field-to-field mapping: splitting a full URL found in path into
// host/path/query_string, and converting the seconds-valued TimeTaken field
// (held in extra to dodge integer truncation) into response_time_ms.
func azurePostProcess(rec ingestion.Record) ingestion.Record {
	if rec.Path != "" && (strings.Contains(rec.Path, "://") || strings.HasPrefix(rec.Path, "http")) {
		// NewRecord has already prefixed "/" to a full URL, so parse without it
		if u, err := url.Parse(strings.TrimPrefix(rec.Path, "/")); err == nil && u.Host != "" {
			if rec.Host == "" {
				rec.Host = u.Host
			}
			rec.Path = u.Path
			if u.RawQuery != "" {
				rec.QueryString, rec.HasQueryString = u.RawQuery, true
			}
		}
	} else if idx := strings.Index(rec.Path, "?"); idx >= 0 && !rec.HasQueryString {
		rec.QueryString, rec.HasQueryString = rec.Path[idx+1:], true
		rec.Path = rec.Path[:idx]
	}
	if rec.Path == "" {
		rec.Path = "/"
	} else if !strings.HasPrefix(rec.Path, "/") {
		rec.Path = "/" + rec.Path
	}

	for _, key := range []string{"TimeTaken", "timeTaken_d"} {
		raw, ok := rec.Extra[key]
		if !ok {
			continue
		}
		if ms, ok := toMillisFromSeconds(raw); ok {
			rec.ResponseTimeMs, rec.HasResponseTimeMs = ms, true
		}
		delete(rec.Extra, key)
	}
	return rec
}

func toMillisFromSeconds(v any) (int, bool) {
	var seconds float64
	switch n := v.(type) {
	case float64:
		seconds = n
	case int:
		seconds = float64(n)
	case int64:
		seconds = float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		seconds = f
	default:
		return 0, false
	}
	return int(seconds*1000 + 0.5), true
}
