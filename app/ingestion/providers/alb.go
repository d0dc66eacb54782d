package providers

import (
	"fmt"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/parsers"
	"github.com/umputun/ingest-logs/app/ingestion/registry"
)

func init() {
	registry.MustRegister("aws_alb", func() registry.Adapter { return &ALBAdapter{} })
}

var albExtensions = []string{".log", ".log.gz", ".gz"}

// ALBAdapter ingests AWS Application Load Balancer access logs, a
// space-separated, partially shell-quoted format distinct from every other
// provider's CSV/JSON family.
type ALBAdapter struct{}

func (a *ALBAdapter) ProviderName() string { return "aws_alb" }

func (a *ALBAdapter) SupportedSourceTypes() []string {
	return []string{string(ingestion.STALBLogFile)}
}

func (a *ALBAdapter) ValidateSource(source ingestion.Source, baseDir string) (bool, string) {
	return validateCommon(source, baseDir, a.SupportedSourceTypes(), albExtensions)
}

func (a *ALBAdapter) Ingest(source ingestion.Source, opts ingestion.IngestOptions, emit func(ingestion.Record) error) error {
	if ok, reason := a.ValidateSource(source, opts.BaseDir); !ok {
		return &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: reason}
	}

	out := filteredEmit(opts, emit)
	return ingestFiles(source, albExtensions, opts, func(path string) error {
		r, err := parsers.OpenAutoDecompress(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer r.Close() //nolint:errcheck // read-only fd

		return parsers.ParseALB(r, parsers.ALBOptions{StrictValidation: opts.StrictValidation}, out)
	})
}
