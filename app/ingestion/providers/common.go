// Package providers implements the concrete per-CDN adapters: universal,
// AWS CloudFront, AWS ALB, Azure CDN/Front Door, Cloudflare, Fastly, Akamai
// DataStream, and GCP Cloud CDN. Each adapter registers itself into
// registry.Default from an init() function.
package providers

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/ingest-logs/app/ingestion"
	"github.com/umputun/ingest-logs/app/ingestion/botclassifier"
	"github.com/umputun/ingest-logs/app/ingestion/security"
)

func statPath(path string) (os.FileInfo, error) {
	return os.Stat(path) //nolint:gosec // path is validated by security.ValidatePathSafe before this call
}

// findMatchingFiles recursively walks dir looking for files whose name ends
// in one of extensions, deduplicated by resolved absolute path. Iteration
// order follows filepath.WalkDir's lexical traversal; the spec leaves
// directory-source ordering undefined, so this is a reasonable, stable
// default rather than a contractual guarantee.
func findMatchingFiles(dir string, extensions []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("[DEBUG] skipping inaccessible path %s: %v", p, err)
			return nil //nolint:nilerr // best-effort scan, matches the Python walker's permission-error tolerance
		}
		if d.IsDir() {
			return nil
		}
		matched := false
		for _, ext := range extensions {
			if strings.HasSuffix(p, ext) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}
		resolved, rerr := filepath.Abs(p)
		if rerr != nil {
			return nil //nolint:nilerr
		}
		if _, dup := seen[resolved]; dup {
			return nil
		}
		seen[resolved] = struct{}{}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// validateCommon performs the source-level preflight checks shared by every
// file-based adapter: supported source_type, path safety, existence, and
// (for directories) at least one matching file. It does not open the file.
func validateCommon(source ingestion.Source, baseDir string, supported []string, extensions []string) (bool, string) {
	if !containsString(supported, string(source.SourceType)) {
		return false, fmt.Sprintf("unsupported source type: %s. supported types: %s", source.SourceType, strings.Join(supported, ", "))
	}

	safe, reason := security.ValidatePathSafe(source.PathOrURI, baseDir, true)
	if !safe {
		return false, "security validation failed: " + reason
	}

	info, err := statPath(source.PathOrURI)
	if err != nil {
		return false, fmt.Sprintf("path does not exist: %s", source.PathOrURI)
	}

	if info.IsDir() {
		files, ferr := findMatchingFiles(source.PathOrURI, extensions)
		if ferr != nil {
			return false, fmt.Sprintf("cannot scan directory %s: %v", source.PathOrURI, ferr)
		}
		if len(files) == 0 {
			return false, fmt.Sprintf("no matching log files found in directory: %s", source.PathOrURI)
		}
		return true, ""
	}

	if info.Size() == 0 {
		return false, fmt.Sprintf("file is empty: %s", source.PathOrURI)
	}
	return true, ""
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// filteredEmit wraps an adapter's emit callback with the time-window and bot
// filters every adapter applies identically, per the spec's shared ingest
// contract (inclusive time bounds, bot classification on user_agent).
func filteredEmit(opts ingestion.IngestOptions, emit func(ingestion.Record) error) func(ingestion.Record) error {
	return func(rec ingestion.Record) error {
		if !opts.InWindow(rec.Timestamp) {
			return nil
		}
		if opts.FilterBots {
			if _, ok := botclassifier.Classify(rec.UserAgent); !ok {
				return nil
			}
		}
		return emit(rec)
	}
}

// ingestFiles runs parseOne against every file in a directory source (or the
// single file of a file source), logging and skipping per-file failures
// unless strict validation is requested.
func ingestFiles(source ingestion.Source, extensions []string, opts ingestion.IngestOptions, parseOne func(path string) error) error {
	info, err := statPath(source.PathOrURI)
	if err != nil {
		return fmt.Errorf("stat %s: %w", source.PathOrURI, err)
	}

	if !info.IsDir() {
		return parseOne(source.PathOrURI)
	}

	files, err := findMatchingFiles(source.PathOrURI, extensions)
	if err != nil {
		return fmt.Errorf("scanning directory %s: %w", source.PathOrURI, err)
	}
	log.Printf("[INFO] found %d matching log files in %s", len(files), source.PathOrURI)

	for _, f := range files {
		if err := parseOne(f); err != nil {
			if opts.StrictValidation {
				return err
			}
			log.Printf("[WARN] skipping %s: %v", f, err)
		}
	}
	return nil
}

// toStringAnyPublic, toOptionalIntAnyPublic and toOptionalInt64AnyPublic
// convert a decoded-JSON/CSV `any` value to the target Go type, used by
// adapters (Fastly, GCP) that build records from raw maps instead of going
// through the shared parsers package's field-mapped emit.
func toStringAnyPublic(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toOptionalIntAnyPublic(v any) (int, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}

func toOptionalInt64AnyPublic(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}
