// Package parsers implements the streaming format readers shared by every
// provider adapter: CSV/TSV, NDJSON, JSON-array, W3C extended, and AWS ALB
// space-separated. Each parser accepts a field map (source name -> canonical
// name) and a strict-validation flag, and yields ingestion.Record values.
package parsers

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/umputun/ingest-logs/app/ingestion"
)

var gzipMagic = []byte{0x1f, 0x8b}

// OpenAutoDecompress opens path and transparently wraps it with a gzip reader
// when the file is gzip-compressed, detected by the ".gz" suffix or the
// magic byte pair 0x1f 0x8b. The caller owns the returned io.ReadCloser.
func OpenAutoDecompress(path string) (io.ReadCloser, error) {
	f, err := os.Open(path) //nolint:gosec // path is validated by the security package before this call
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".gz") {
		gz, gerr := gzip.NewReader(f)
		if gerr != nil {
			f.Close()
			return nil, gerr
		}
		return &gzipReadCloser{gz: gz, f: f}, nil
	}

	br := bufio.NewReader(f)
	peek, perr := br.Peek(2)
	if perr == nil && len(peek) == 2 && peek[0] == gzipMagic[0] && peek[1] == gzipMagic[1] {
		gz, gerr := gzip.NewReader(br)
		if gerr != nil {
			f.Close()
			return nil, gerr
		}
		return &gzipReadCloser{gz: gz, f: f}, nil
	}

	return &bufReadCloser{r: br, f: f}, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipReadCloser) Close() error {
	gerr := g.gz.Close()
	ferr := g.f.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}

type bufReadCloser struct {
	r *bufio.Reader
	f *os.File
}

func (b *bufReadCloser) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *bufReadCloser) Close() error                { return b.f.Close() }

// isEmptyLike reports whether a cell value is treated as absent: "", "-",
// or "null" in any letter case.
func isEmptyLike(v string) bool {
	lower := strings.ToLower(v)
	return v == "" || v == "-" || lower == "null"
}

// ToOptionalInt converts a string to an int, accepting float-like strings
// ("123.0" -> 123) and returning false when the value is absent or unparsable.
func ToOptionalInt(v string) (int, bool) {
	if isEmptyLike(v) {
		return 0, false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// ToOptionalInt64 is ToOptionalInt for int64-sized fields (byte counters).
func ToOptionalInt64(v string) (int64, bool) {
	if isEmptyLike(v) {
		return 0, false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

// setOptionalFields sets each optional field on rec that is present in data
// and not empty-like.
func setOptionalFields(rec *ingestion.Record, data map[string]string) {
	if v, ok := data["query_string"]; ok && !isEmptyLike(v) {
		rec.QueryString, rec.HasQueryString = v, true
	}
	if v, ok := data["response_bytes"]; ok {
		if n, ok2 := ToOptionalInt64(v); ok2 {
			rec.ResponseBytes, rec.HasResponseBytes = n, true
		}
	}
	if v, ok := data["request_bytes"]; ok {
		if n, ok2 := ToOptionalInt64(v); ok2 {
			rec.RequestBytes, rec.HasRequestBytes = n, true
		}
	}
	if v, ok := data["response_time_ms"]; ok {
		if n, ok2 := ToOptionalInt(v); ok2 {
			rec.ResponseTimeMs, rec.HasResponseTimeMs = n, true
		}
	}
	if v, ok := data["cache_status"]; ok && !isEmptyLike(v) {
		rec.CacheStatus, rec.HasCacheStatus = v, true
	}
	if v, ok := data["edge_location"]; ok && !isEmptyLike(v) {
		rec.EdgeLocation, rec.HasEdgeLocation = v, true
	}
	if v, ok := data["referer"]; ok && !isEmptyLike(v) {
		rec.Referer, rec.HasReferer = v, true
	}
	if v, ok := data["protocol"]; ok && !isEmptyLike(v) {
		rec.Protocol, rec.HasProtocol = v, true
	}
	if v, ok := data["ssl_protocol"]; ok && !isEmptyLike(v) {
		rec.SSLProtocol, rec.HasSSLProtocol = v, true
	}
}

// AllSchemaFields is the union of required and optional canonical field names.
func AllSchemaFields() map[string]struct{} {
	return ingestion.CanonicalFieldNames()
}
