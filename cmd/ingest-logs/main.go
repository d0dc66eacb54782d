// Command ingest-logs reads CDN/load-balancer access logs from a file,
// directory, or the Cloudflare Logpull API, normalizes them to a common
// schema, and writes them into a SQLite-backed store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/units"
	log "github.com/go-pkgz/lgr"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/ingest-logs/app/ingestion/driver"
	_ "github.com/umputun/ingest-logs/app/ingestion/providers" // registers built-in adapters
	"github.com/umputun/ingest-logs/app/ingestion/registry"
	"github.com/umputun/ingest-logs/app/ingestion/storage"
	"github.com/umputun/ingest-logs/app/mgmt"
)

var opts struct {
	Provider string `long:"provider" description:"provider name; auto-detected from input when omitted"`
	Input    string `long:"input" required:"true" description:"file path, directory, or api://ZONE_ID"`

	StartDate string `long:"start-date" description:"ISO-8601 or YYYY-MM-DD, inclusive, UTC"`
	EndDate   string `long:"end-date" description:"ISO-8601 or YYYY-MM-DD, inclusive, UTC"`

	FilterBots   bool `long:"filter-bots" description:"keep only records classified as a known bot (default)"`
	NoFilterBots bool `long:"no-filter-bots" description:"disable bot classification filtering"`

	DBPath  string `long:"db-path" env:"SQLITE_DB_PATH" default:"ingest.db" description:"sqlite database path"`
	BaseDir string `long:"base-dir" description:"security root; file sources must resolve inside it"`

	MaxFileSize string `long:"max-file-size" default:"10GB" description:"B|KB|MB|GB|TB cap on a file source's size"`
	BatchSize   int    `long:"batch-size" default:"1000" description:"records per storage insert batch"`

	ValidateOnly  bool `long:"validate-only" description:"exercise the source without writing"`
	ListProviders bool `long:"list-providers" description:"print registered providers and exit"`

	LogFile       string `long:"log-file" description:"write logs to this rotated file instead of stderr"`
	LogMaxSize    string `long:"log-max-size" default:"100MB" description:"B|KB|MB|GB cap before log-file is rotated"`
	LogMaxBackups int    `long:"log-max-backups" default:"10" description:"rotated log-file generations to keep"`

	Cloudflare struct {
		APIToken string `long:"token" env:"API_TOKEN" description:"cloudflare API token"`
		ZoneID   string `long:"zone" env:"ZONE_ID" description:"cloudflare zone id"`
	} `group:"cloudflare" namespace:"cloudflare" env-namespace:"CLOUDFLARE"`

	Dbg bool `short:"v" long:"verbose" description:"debug logging"`
}

var revision = "unknown"

func main() {
	fmt.Printf("ingest-logs %s\n", revision)

	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); !ok || fe.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	if err := setupLog(opts.Dbg); err != nil {
		log.Printf("[ERROR] can't set up logging: %v", err)
		os.Exit(2)
	}
	log.Printf("[DEBUG] options: %+v", opts)

	if opts.ListProviders {
		listProviders()
		return
	}

	code, err := run()
	if err != nil {
		log.Printf("[ERROR] %v", err)
	}
	os.Exit(code)
}

func listProviders() {
	for _, name := range registry.Default.List() {
		adapter, err := registry.Default.Get(name)
		if err != nil {
			continue
		}
		fmt.Printf("%s: %v\n", name, adapter.SupportedSourceTypes())
	}
}

// run builds the driver config, wires storage and metrics, and executes one
// ingestion run. The returned int is the process exit code (§6): 0 success,
// 1 errors present, 2 cli usage error (a flag parse failure in main, or a
// flag value that makeConfig rejects here), 130 interrupt.
func run() (int, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	cfg, err := makeConfig()
	if err != nil {
		return 2, fmt.Errorf("invalid configuration: %w", err)
	}

	backend, err := storage.NewSQLiteBackend(cfg.DBPath)
	if err != nil {
		return 1, fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			log.Printf("[WARN] can't close storage, %v", cerr)
		}
	}()

	metrics := mgmt.NewMetrics()
	d := driver.New(registry.Default, backend, metrics)

	summary, err := d.Run(ctx, cfg)
	if ctx.Err() != nil {
		log.Printf("[WARN] interrupted: processed=%d inserted=%d", summary.Processed, summary.Inserted)
		return 130, nil
	}
	if err != nil {
		return 1, err
	}

	log.Printf("[INFO] summary: provider=%s processed=%d inserted=%d skipped=%d failed=%d duration=%s throughput=%.0f/s",
		summary.Provider, summary.Processed, summary.Inserted, summary.Skipped, summary.Failed,
		summary.Duration.Round(time.Millisecond), summary.Throughput())

	if summary.HasErrors() {
		return 1, nil
	}
	return 0, nil
}

func makeConfig() (driver.Config, error) {
	cfg := driver.Config{
		Provider:           opts.Provider,
		Input:              opts.Input,
		BaseDir:            opts.BaseDir,
		DBPath:             opts.DBPath,
		BatchSize:          opts.BatchSize,
		FilterBots:         !opts.NoFilterBots,
		CloudflareAPIToken: opts.Cloudflare.APIToken,
		CloudflareZoneID:   opts.Cloudflare.ZoneID,
		ValidateOnly:       opts.ValidateOnly,
	}

	maxSize, err := units.ParseStrictBytes(opts.MaxFileSize)
	if err != nil {
		return cfg, fmt.Errorf("parsing max-file-size %q: %w", opts.MaxFileSize, err)
	}
	cfg.MaxFileSize = maxSize

	if opts.StartDate != "" {
		ts, perr := parseDate(opts.StartDate)
		if perr != nil {
			return cfg, fmt.Errorf("parsing start-date: %w", perr)
		}
		cfg.StartTime, cfg.HasStartTime = ts, true
	}
	if opts.EndDate != "" {
		ts, perr := parseDate(opts.EndDate)
		if perr != nil {
			return cfg, fmt.Errorf("parsing end-date: %w", perr)
		}
		cfg.EndTime, cfg.HasEndTime = ts, true
	}
	if cfg.HasStartTime && cfg.HasEndTime && cfg.StartTime.After(cfg.EndTime) {
		return cfg, fmt.Errorf("start-date %s is after end-date %s", opts.StartDate, opts.EndDate)
	}

	return cfg, nil
}

// parseDate accepts either a full RFC3339 timestamp or a bare YYYY-MM-DD
// date, in which case it is interpreted as UTC midnight (§6).
func parseDate(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q, want ISO-8601 or YYYY-MM-DD", s)
}

// setupLog mirrors reproxy's own setupLog, plus an optional rotated log-file
// sink (§10 ambient stack) built the same way reproxy builds its rotated
// access-log writer in makeAccessLogWriter, just pointed at the app's own
// diagnostic log instead of an HTTP access log.
func setupLog(dbg bool) error {
	logOpts := []log.Option{log.Msec, log.LevelBraces}
	if dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFile, log.CallerFunc)
	}

	if opts.LogFile != "" {
		maxSize, err := units.ParseStrictBytes(opts.LogMaxSize)
		if err != nil {
			return fmt.Errorf("parsing log-max-size %q: %w", opts.LogMaxSize, err)
		}
		logOpts = append(logOpts, log.Out(&lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    int(maxSize / 1048576), // lumberjack wants megabytes
			MaxBackups: opts.LogMaxBackups,
			Compress:   true,
			LocalTime:  true,
		}))
	}

	log.Setup(logOpts...)
	return nil
}
