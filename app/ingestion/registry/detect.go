package registry

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// Detection is the result of running the auto-detection cascade against a
// filesystem path: which provider's adapter should handle it, and under
// which source_type.
type Detection struct {
	Provider   string
	SourceType ingestion.SourceType
}

// detectionExtensions are the file extensions the directory-scan step looks
// for when handed a directory instead of a single file.
var detectionExtensions = []string{".csv", ".json", ".ndjson", ".log", ".txt", ".gz"}

// albLeadingTokens are the HTTP-scheme tokens an ALB access log line begins
// with ("type" field, AWS's own vocabulary).
var albLeadingTokens = map[string]struct{}{
	"http": {}, "https": {}, "h2": {}, "grpcs": {}, "ws": {}, "wss": {},
}

// Detect runs the ordered cascade from the path alone, consulting file
// content for local paths: api:// prefix, directory scan, header-line
// sniffing, then extension fallback.
func Detect(path string) (Detection, error) {
	if strings.HasPrefix(path, "api://") {
		return Detection{Provider: "cloudflare", SourceType: ingestion.STAPI}, nil
	}

	info, err := os.Stat(path) //nolint:gosec // path is validated by the security package before this call
	if err != nil {
		return Detection{}, err
	}

	if info.IsDir() {
		match, ferr := firstMatchingFile(path)
		if ferr != nil {
			return Detection{}, ferr
		}
		if match == "" {
			return Detection{}, &ingestion.SourceValidationError{Message: "no matching log files found in directory", Reason: "no matching log files"}
		}
		path = match
	}

	if det, ok, err := sniffContent(path); err != nil {
		return Detection{}, err
	} else if ok {
		return det, nil
	}

	return detectByExtension(path), nil
}

func firstMatchingFile(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return nil //nolint:nilerr // best-effort scan, permission errors are skipped
		}
		if d.IsDir() {
			return nil
		}
		for _, ext := range detectionExtensions {
			if strings.HasSuffix(p, ext) {
				found = p
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}

// sniffContent reads up to 10 header lines of path and applies the
// content-based heuristics. ok is false (with no error) when none matched,
// signaling the caller to fall through to extension-based detection.
func sniffContent(path string) (Detection, bool, error) {
	f, err := os.Open(path) //nolint:gosec // path is validated upstream
	if err != nil {
		return Detection{}, false, err
	}
	defer f.Close() //nolint:errcheck // read-only fd, nothing actionable on close failure

	r, err := decompressingReader(path, f)
	if err != nil {
		return Detection{}, false, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var lines []string
	for i := 0; i < 10 && scanner.Scan(); i++ {
		lines = append(lines, scanner.Text())
	}
	if len(lines) == 0 {
		return Detection{}, false, nil
	}
	first := lines[0]

	if strings.HasPrefix(first, "#Version:") {
		for _, l := range lines {
			if strings.Contains(l, "#Fields:") {
				return Detection{Provider: "aws_cloudfront", SourceType: ingestion.STW3CFile}, true, nil
			}
		}
	}

	if tokens := strings.Fields(first); len(tokens) >= 20 {
		if _, ok := albLeadingTokens[tokens[0]]; ok {
			return Detection{Provider: "aws_alb", SourceType: ingestion.STALBLogFile}, true, nil
		}
	}

	if strings.HasPrefix(first, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(first), &obj); err == nil {
			return detectJSONProvider(obj, ingestion.STJSONFile), true, nil
		}
	}

	if strings.HasPrefix(first, "[") {
		head, rerr := readHeadBytes(path, 64*1024)
		if rerr == nil {
			if obj, ok := firstArrayElement(head); ok {
				return detectJSONProvider(obj, ingestion.STJSONFile), true, nil
			}
		}
	}

	if strings.Contains(first, ",") {
		header := splitCSVHeader(first)
		schemaMatches := countMatches(header, ingestion.RequiredFieldNames, ingestion.OptionalFieldNames)
		if schemaMatches >= 3 {
			return Detection{Provider: "universal", SourceType: ingestion.STCSVFile}, true, nil
		}
		fastlyMatches := countMatches(header, []string{"client_ip", "cache_status", "pop", "datacenter"}, nil)
		if fastlyMatches >= 2 {
			return Detection{Provider: "fastly", SourceType: ingestion.STFastlyCSV}, true, nil
		}
	}

	return Detection{}, false, nil
}

func splitCSVHeader(line string) []string {
	fields := strings.Split(line, ",")
	for i, f := range fields {
		fields[i] = strings.ToLower(strings.TrimSpace(f))
	}
	return fields
}

func countMatches(header []string, sets ...[]string) int {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	count := 0
	for _, set := range sets {
		for _, name := range set {
			if _, ok := present[strings.ToLower(name)]; ok {
				count++
			}
		}
	}
	return count
}

// detectJSONProvider applies the key-set heuristics for a single decoded
// JSON object, checked in priority order.
func detectJSONProvider(obj map[string]any, sourceType ingestion.SourceType) Detection {
	lower := make(map[string]struct{}, len(obj))
	for k := range obj {
		lower[strings.ToLower(k)] = struct{}{}
	}
	has := func(key string) bool { _, ok := lower[key]; return ok }
	countOf := func(keys ...string) int {
		n := 0
		for _, k := range keys {
			if has(k) {
				n++
			}
		}
		return n
	}

	if countOf("clientip", "requestmethod", "responsestatus", "requestpath") >= 3 {
		return Detection{Provider: "akamai", SourceType: withNDJSONVariant(sourceType, ingestion.STAkamaiJSON, ingestion.STAkamaiNDJSON)}
	}
	if has("operationname") || has("properties") || has("category") {
		return Detection{Provider: "azure", SourceType: sourceType}
	}
	if has("httprequest") {
		return Detection{Provider: "gcp", SourceType: sourceType}
	}
	if v, ok := obj["resource"]; ok {
		if m, ok := v.(map[string]any); ok {
			if _, ok := m["type"]; ok {
				return Detection{Provider: "gcp", SourceType: sourceType}
			}
		}
	}
	if countOf("edgestarttimestamp", "clientrequesturi", "clientrequesthost", "edgeresponsestatus") >= 2 {
		return Detection{Provider: "cloudflare", SourceType: withNDJSONVariant(sourceType, ingestion.STJSONFile, ingestion.STNDJSONFile)}
	}
	if countOf("client_ip", "cache_status", "pop", "datacenter") >= 2 {
		return Detection{Provider: "fastly", SourceType: withNDJSONVariant(sourceType, ingestion.STFastlyJSON, ingestion.STFastlyNDJSON)}
	}
	// ≥3 of the universal schema's own required fields, or nothing else
	// recognized it: fall through to the universal adapter either way.
	return Detection{Provider: "universal", SourceType: sourceType}
}

func withNDJSONVariant(actual, jsonVariant, ndjsonVariant ingestion.SourceType) ingestion.SourceType {
	if actual == ingestion.STNDJSONFile {
		return ndjsonVariant
	}
	return jsonVariant
}

func detectByExtension(path string) Detection {
	switch {
	case strings.HasSuffix(path, ".csv") || strings.HasSuffix(path, ".csv.gz"):
		return Detection{Provider: "universal", SourceType: ingestion.STCSVFile}
	case strings.HasSuffix(path, ".ndjson") || strings.HasSuffix(path, ".ndjson.gz"):
		return Detection{Provider: "universal", SourceType: ingestion.STNDJSONFile}
	case strings.HasSuffix(path, ".jsonl") || strings.HasSuffix(path, ".jsonl.gz"):
		return Detection{Provider: "universal", SourceType: ingestion.STNDJSONFile}
	case strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".json.gz"):
		return Detection{Provider: "universal", SourceType: ingestion.STJSONFile}
	case strings.HasSuffix(path, ".log") || strings.HasSuffix(path, ".log.gz"):
		return Detection{Provider: "aws_alb", SourceType: ingestion.STALBLogFile}
	case strings.HasSuffix(path, ".txt") || strings.HasSuffix(path, ".txt.gz"):
		return Detection{Provider: "aws_cloudfront", SourceType: ingestion.STW3CFile}
	default:
		return Detection{Provider: "universal", SourceType: ingestion.STCSVFile}
	}
}

func readHeadBytes(path string, n int64) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // path is validated upstream
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	r, err := decompressingReader(path, f)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// firstArrayElement extracts the first element of a JSON array from a
// (possibly truncated) byte prefix, by tracking brace depth to find the end
// of the first element rather than unmarshalling the whole (incomplete) blob.
func firstArrayElement(head []byte) (map[string]any, bool) {
	s := strings.TrimSpace(string(head))
	s = strings.TrimPrefix(s, "[")

	depth := 0
	inString := false
	escaped := false
	end := -1
	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					end = i + 1
				}
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s[:end]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// decompressingReader is Detect's own minimal gzip sniff, independent of the
// parsers package to avoid a detect->parsers->detect import cycle.
func decompressingReader(path string, f *os.File) (io.Reader, error) {
	if strings.HasSuffix(path, ".gz") {
		return newGzipReader(f)
	}
	br := bufio.NewReader(f)
	peek, err := br.Peek(2)
	if err == nil && len(peek) == 2 && peek[0] == 0x1f && peek[1] == 0x8b {
		return newGzipReader(br)
	}
	return br, nil
}

func newGzipReader(r io.Reader) (io.Reader, error) {
	return gzip.NewReader(r)
}
