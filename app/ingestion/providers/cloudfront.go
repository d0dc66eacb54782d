package providers

import (
	"fmt"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/parsers"
	"github.com/umputun/ingest-logs/app/ingestion/registry"
)

func init() {
	registry.MustRegister("aws_cloudfront", func() registry.Adapter { return &CloudFrontAdapter{} })
}

// cloudfrontFieldMapping translates CloudFront's W3C extended log field
// names to the universal schema.
var cloudfrontFieldMapping = map[string]string{
	"date":              "date",
	"time":              "time",
	"c-ip":              "client_ip",
	"cs-method":         "method",
	"cs(Host)":          "host",
	"cs-uri-stem":       "path",
	"cs-uri-query":      "query_string",
	"sc-status":         "status_code",
	"cs(User-Agent)":    "user_agent",
	"sc-bytes":          "response_bytes",
	"cs-bytes":          "request_bytes",
	"time-taken":        "response_time_ms",
	"x-edge-result-type": "cache_status",
	"x-edge-location":   "edge_location",
	"cs(Referer)":       "referer",
	"cs-protocol":       "protocol",
	"ssl-protocol":      "ssl_protocol",
}

var cloudfrontExtensions = []string{".txt", ".txt.gz", ".log", ".log.gz"}

// CloudFrontAdapter ingests AWS CloudFront standard access logs, which are
// always written in the W3C extended log file format.
type CloudFrontAdapter struct{}

func (a *CloudFrontAdapter) ProviderName() string { return "aws_cloudfront" }

func (a *CloudFrontAdapter) SupportedSourceTypes() []string {
	return []string{string(ingestion.STW3CFile)}
}

func (a *CloudFrontAdapter) ValidateSource(source ingestion.Source, baseDir string) (bool, string) {
	return validateCommon(source, baseDir, a.SupportedSourceTypes(), cloudfrontExtensions)
}

func (a *CloudFrontAdapter) Ingest(source ingestion.Source, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error {
	if ok, reason := a.ValidateSource(source, opts.BaseDir); !ok {
		return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: reason}
	}

	out := filteredEmit(opts, emit)
	return ingestFiles(source, cloudfrontExtensions, opts, func(path string) error {
		r, err := parsers.OpenAutoDecompress(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer r.Close() //nolint:errcheck // read-only fd

		return parsers.ParseW3C(r, cloudfrontFieldMapping, parsers.W3COptions{
			URLDecode:        true,
			StrictValidation: opts.StrictValidation,
		}, out)
	})
}
