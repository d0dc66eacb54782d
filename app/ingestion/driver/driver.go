// Package driver implements the ingestion engine's process-level
// orchestration: resolving a source descriptor, running pre-flight checks,
// streaming an adapter's records into batches, and handing each batch to
// storage while tracking processed/inserted/skipped/failed counts.
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/botclassifier"
	"github.com/umputun/ingest-logs/app/ingestion/registry"
	"github.com/umputun/ingest-logs/app/ingestion/security"
	"github.com/umputun/ingest-logs/app/ingestion/storage"
	"github.com/umputun/ingest-logs/app/mgmt"
)

// DefaultBatchSize is used when Config.BatchSize is left at zero.
const DefaultBatchSize = 1000

// progressInterval is how often Run logs a progress line while streaming.
const progressInterval = 5 * time.Second

// Config carries every per-run knob the driver needs, already parsed out of
// CLI flags or environment variables by the caller.
type Config struct {
	Provider    string // empty triggers auto-detection via registry.Detect
	Input       string // file/dir path, or api://ZONE_ID
	BaseDir     string
	DBPath      string
	MaxFileSize int64 // bytes; 0 means no cap

	BatchSize int

	FilterBots       bool
	StrictValidation bool

	HasStartTime bool
	StartTime    time.Time
	HasEndTime   bool
	EndTime      time.Time

	CloudflareAPIToken string
	CloudflareZoneID   string

	ValidateOnly bool
}

// Summary is the end-of-run report printed to the operator and also
// returned to the caller (the CLI entry point decides the process exit code
// from it).
type Summary struct {
	Provider   string
	Processed  int
	Inserted   int
	Skipped    int
	Failed     int
	Duration   time.Duration
	BatchCount int
}

// Throughput returns records processed per second over the run's duration.
func (s Summary) Throughput() float64 {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Processed) / secs
}

// HasErrors reports whether the run should be treated as failed for exit
// code purposes: true when any batch insert failed (Failed > 0), which is
// never fatal by itself but flips the process exit code to 1. Records that
// parsers or adapters drop are not counted in the Summary.
func (s Summary) HasErrors() bool {
	return s.Failed > 0
}

// Driver resolves a source, streams an adapter's records, and persists them.
type Driver struct {
	reg     *registry.Registry
	backend storage.Backend
	metrics *mgmt.Metrics
}

// New builds a Driver against the given adapter registry and storage
// backend. metrics may be nil, in which case instrumentation is a no-op.
func New(reg *registry.Registry, backend storage.Backend, metrics *mgmt.Metrics) *Driver {
	return &Driver{reg: reg, backend: backend, metrics: metrics}
}

// resolveSource parses cfg.Input into an ingestion.Source, running
// auto-detection when cfg.Provider is empty, per §4.6 step 1.
func (d *Driver) resolveSource(cfg Config) (ingestion.Source, registry.Adapter, error) {
	provider := cfg.Provider
	sourceType := ingestion.STCSVFile
	input := cfg.Input

	if provider == "cloudflare" && cfg.CloudflareZoneID != "" && !strings.HasPrefix(input, "api://") {
		input = "api://" + cfg.CloudflareZoneID
	}

	if provider == "" {
		det, err := registry.Detect(input)
		if err != nil {
			return ingestion.Source{}, nil, fmt.Errorf("auto-detecting provider for %s: %w", input, err)
		}
		provider, sourceType = det.Provider, det.SourceType
		log.Printf("[INFO] auto-detected provider=%s source_type=%s", provider, sourceType)
	}

	adapter, err := d.reg.Get(provider)
	if err != nil {
		return ingestion.Source{}, nil, err
	}

	if cfg.Provider != "" {
		sourceType = detectSourceTypeForProvider(input, adapter)
	}

	source, err := ingestion.NewSource(provider, sourceType, input)
	if err != nil {
		return ingestion.Source{}, nil, err
	}
	if cfg.CloudflareAPIToken != "" {
		source.Credentials = map[string]string{"api_token": cfg.CloudflareAPIToken}
	}
	return source, adapter, nil
}

// detectSourceTypeForProvider picks a source_type among an explicitly-named
// adapter's supported types, preferring the auto-detector's extension/content
// read when possible and falling back to the adapter's first supported type.
func detectSourceTypeForProvider(input string, adapter registry.Adapter) ingestion.SourceType {
	if det, err := registry.Detect(input); err == nil {
		for _, st := range adapter.SupportedSourceTypes() {
			if st == string(det.SourceType) {
				return det.SourceType
			}
		}
	}
	supported := adapter.SupportedSourceTypes()
	if len(supported) > 0 {
		return ingestion.SourceType(supported[0])
	}
	return ingestion.STCSVFile
}

// preflight runs the file-size cap and path-safety checks named in §4.6 step
// 2, ahead of the adapter's own ValidateSource.
func (d *Driver) preflight(source ingestion.Source, cfg Config) error {
	if source.IsAPISource() {
		return nil
	}

	if cfg.BaseDir != "" {
		if ok, reason := security.ValidatePathSafe(source.PathOrURI, cfg.BaseDir, false); !ok {
			return &ingestion.SecurityValidationError{Message: reason, Path: source.PathOrURI}
		}
	}

	if cfg.MaxFileSize > 0 {
		if err := checkFileSizeCap(source.PathOrURI, cfg.MaxFileSize); err != nil {
			return err
		}
	}
	return nil
}

// Run executes one end-to-end ingestion: resolve source, validate, stream,
// batch, insert. ctx cancellation stops the run at the next batch boundary.
func (d *Driver) Run(ctx context.Context, cfg Config) (Summary, error) {
	start := time.Now()
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	source, adapter, err := d.resolveSource(cfg)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Provider: source.Provider}

	if err := d.preflight(source, cfg); err != nil {
		return summary, err
	}
	if ok, reason := adapter.ValidateSource(source, cfg.BaseDir); !ok {
		return summary, &ingestion.SourceValidationError{SourceType: string(source.SourceType), Reason: reason}
	}

	opts := ingestion.IngestOptions{
		StartTime: cfg.StartTime, HasStartTime: cfg.HasStartTime,
		EndTime: cfg.EndTime, HasEndTime: cfg.HasEndTime,
		FilterBots:       cfg.FilterBots,
		StrictValidation: cfg.StrictValidation,
		BaseDir:          cfg.BaseDir,
	}

	if cfg.ValidateOnly {
		log.Printf("[INFO] validate-only: source %s (%s/%s) is valid", source.PathOrURI, source.Provider, source.SourceType)
		summary.Duration = time.Since(start)
		return summary, nil
	}

	if err := d.backend.Initialize(ctx); err != nil {
		return summary, fmt.Errorf("initializing storage: %w", err)
	}

	batchID := uuid.NewString()
	batch := make([]storage.Row, 0, batchSize)
	lastProgress := time.Now()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		flushStart := time.Now()
		n, ferr := d.backend.InsertRawRecords(ctx, batch)
		elapsed := time.Since(flushStart)
		if d.metrics != nil {
			d.metrics.ObserveBatchInsert(source.Provider, elapsed.Seconds())
		}
		if ferr != nil {
			// the whole batch counts as failed; streaming continues (§4.7)
			summary.Failed += len(batch)
			if d.metrics != nil {
				d.metrics.RecordsFailed(source.Provider, len(batch))
			}
			log.Printf("[WARN] batch insert failed for provider %s: %v", source.Provider, ferr)
			batch = batch[:0]
			return nil
		}
		summary.Inserted += n
		skipped := len(batch) - n
		summary.Skipped += skipped
		if d.metrics != nil {
			d.metrics.RecordsInserted(source.Provider, n)
			if skipped > 0 {
				d.metrics.RecordsSkipped(source.Provider, skipped)
			}
		}
		summary.BatchCount++
		batch = batch[:0]
		return nil
	}

	emitErr := adapter.Ingest(source, opts, func(rec ingestion.Record) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		summary.Processed++
		if d.metrics != nil {
			d.metrics.RecordsProcessed(source.Provider, 1)
		}
		if cls, ok := botclassifier.Classify(rec.UserAgent); ok && d.metrics != nil {
			d.metrics.BotMatched(cls.BotName)
		}

		batch = append(batch, convertToBackendRecord(rec, source.Provider, batchID))
		if len(batch) >= batchSize {
			if ferr := flush(); ferr != nil {
				return ferr
			}
		}

		if time.Since(lastProgress) >= progressInterval {
			log.Printf("[INFO] progress: processed=%d inserted=%d skipped=%d failed=%d",
				summary.Processed, summary.Inserted, summary.Skipped, summary.Failed)
			lastProgress = time.Now()
		}
		return nil
	})

	if ferr := flush(); ferr != nil {
		return summary, ferr
	}
	summary.Duration = time.Since(start)

	if emitErr != nil {
		return summary, emitErr
	}
	return summary, nil
}

// convertToBackendRecord implements the §4.6 step 4 conversion: a Record
// becomes a Cloudflare-shaped storage row, stamped with provenance.
func convertToBackendRecord(rec ingestion.Record, provider, batchID string) storage.Row {
	row := storage.Row{
		"EdgeStartTimestamp":     rec.Timestamp.UnixNano(),
		"ClientRequestURI":       rec.Path,
		"ClientRequestHost":      rec.Host,
		"ClientRequestUserAgent": rec.UserAgent,
		"ClientIP":               rec.ClientIP,
		"EdgeResponseStatus":     rec.StatusCode,
		"VerifiedBot":            false,
		"_ingestion_time":        time.Now().UTC().Format(time.RFC3339),
		"source_provider":        provider,
		"ingestion_batch_id":     batchID,
	}

	if cls, ok := botclassifier.Classify(rec.UserAgent); ok {
		row["BotScore"] = 1
		row["BotScoreSrc"] = "static"
		row["VerifiedBot"] = true
		row["BotTags"] = []string{cls.BotName, cls.BotProvider, cls.BotCategory}
	}

	return row
}
