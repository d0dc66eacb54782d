package providers

import (
	"fmt"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/parsers"
	"github.com/umputun/ingest-logs/app/ingestion/registry"
)

func init() {
	registry.MustRegister("akamai", func() registry.Adapter { return &AkamaiAdapter{} })
}

// akamaiFieldMapping is the camelCase DataStream 2 field set named in the
// spec (no reference implementation was available for this provider in the
// retrieval pack; the mapping below is reconstructed directly from that
// description rather than grounded in a literal source file - see DESIGN.md).
var akamaiFieldMapping = map[string]string{
	"requestTime":      "timestamp",
	"clientIP":         "client_ip",
	"requestMethod":    "method",
	"requestHost":      "host",
	"requestPath":      "path",
	"responseStatus":   "status_code",
	"userAgent":        "user_agent",
	"bytes":            "response_bytes",
	"turnaroundTimeMs": "response_time_ms",
	"queryString":      "query_string",
	"cacheStatus":      "cache_status",
	"tlsVersion":       "ssl_protocol",
	"requestProtocol":  "protocol",
}

var akamaiExtensions = map[ingestion.SourceType][]string{
	ingestion.STAkamaiJSON:   {".json", ".json.gz"},
	ingestion.STAkamaiNDJSON: {".ndjson", ".ndjson.gz", ".jsonl", ".jsonl.gz"},
}

// AkamaiAdapter ingests Akamai DataStream 2 log exports.
type AkamaiAdapter struct{}

func (a *AkamaiAdapter) ProviderName() string { return "akamai" }

func (a *AkamaiAdapter) SupportedSourceTypes() []string {
	return []string{string(ingestion.STAkamaiJSON), string(ingestion.STAkamaiNDJSON)}
}

func (a *AkamaiAdapter) ValidateSource(source ingestion.Source, baseDir string) (bool, string) {
	return validateCommon(source, baseDir, a.SupportedSourceTypes(), akamaiExtensions[source.SourceType])
}

func (a *AkamaiAdapter) Ingest(source ingestion.Source, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error {
	if ok, reason := a.ValidateSource(source, opts.BaseDir); !ok {
		return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: reason}
	}

	out := filteredEmit(opts, emit)
	return ingestFiles(source, akamaiExtensions[source.SourceType], opts, func(path string) error {
		r, err := parsers.OpenAutoDecompress(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer r.Close() //nolint:errcheck // read-only fd

		switch source.SourceType {
		case ingestion.STAkamaiJSON:
			return parsers.ParseJSON(r, akamaiFieldMapping, "", parsers.JSONOptions{StrictValidation: opts.StrictValidation}, out)
		case ingestion.STAkamaiNDJSON:
			return parsers.ParseNDJSON(r, akamaiFieldMapping, parsers.JSONOptions{StrictValidation: opts.StrictValidation}, out)
		default:
			return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: "unsupported file source type"}
		}
	})
}
