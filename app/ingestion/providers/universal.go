package providers

import (
	"fmt"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/parsers"
	"github.com/umputun/ingest-logs/app/ingestion/registry"
)

func init() {
	registry.MustRegister("universal", func() registry.Adapter { return &UniversalAdapter{} })
}

// universalExtensions maps each generic source_type to the file extensions
// a directory scan accepts for it.
var universalExtensions = map[ingestion.SourceType][]string{
	ingestion.STCSVFile:    {".csv", ".csv.gz"},
	ingestion.STTSVFile:    {".tsv", ".tsv.gz", ".txt", ".txt.gz"},
	ingestion.STJSONFile:   {".json", ".json.gz"},
	ingestion.STNDJSONFile: {".ndjson", ".ndjson.gz", ".jsonl", ".jsonl.gz"},
}

// UniversalAdapter handles already-normalized logs: every canonical field
// maps to itself, so this is the fallback provider for any CSV/TSV/JSON/
// NDJSON source that doesn't match a more specific provider's fingerprint.
type UniversalAdapter struct{}

func (a *UniversalAdapter) ProviderName() string { return "universal" }

func (a *UniversalAdapter) SupportedSourceTypes() []string {
	return []string{string(ingestion.STCSVFile), string(ingestion.STTSVFile), string(ingestion.STJSONFile), string(ingestion.STNDJSONFile)}
}

func (a *UniversalAdapter) ValidateSource(source ingestion.Source, baseDir string) (bool, string) {
	return validateCommon(source, baseDir, a.SupportedSourceTypes(), universalExtensions[source.SourceType])
}

func (a *UniversalAdapter) Ingest(source ingestion.Source, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error {
	if ok, reason := a.ValidateSource(source, opts.BaseDir); !ok {
		return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: reason}
	}

	out := filteredEmit(opts, emit)
	fieldMap := identityFieldMap()

	return ingestFiles(source, universalExtensions[source.SourceType], opts, func(path string) error {
		return parseUniversalFile(path, source.SourceType, fieldMap, opts, out)
	})
}

func parseUniversalFile(path string, st ingestion.SourceType, fieldMap map[string]string, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error {
	r, err := parsers.OpenAutoDecompress(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer r.Close() //nolint:errcheck // read-only fd

	switch st {
	case ingestion.STCSVFile:
		return parsers.ParseCSV(r, fieldMap, parsers.CSVOptions{StrictValidation: opts.StrictValidation}, emit)
	case ingestion.STTSVFile:
		return parsers.ParseCSV(r, fieldMap, parsers.CSVOptions{Delimiter: '\t', StrictValidation: opts.StrictValidation}, emit)
	case ingestion.STJSONFile:
		return parsers.ParseJSON(r, fieldMap, "", parsers.JSONOptions{StrictValidation: opts.StrictValidation}, emit)
	case ingestion.STNDJSONFile:
		return parsers.ParseNDJSON(r, fieldMap, parsers.JSONOptions{StrictValidation: opts.StrictValidation}, emit)
	default:
		return &ingestion.SourceValidationError{SourceType: string(st), Reason: "unsupported file source type"}
	}
}

func identityFieldMap() map[string]string {
	m := make(map[string]string)
	for _, f := range ingestion.RequiredFieldNames {
		m[f] = f
	}
	for _, f := range ingestion.OptionalFieldNames {
		m[f] = f
	}
	return m
}
