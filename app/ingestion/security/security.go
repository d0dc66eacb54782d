// Package security guards every file-access boundary in the ingestion
// pipeline: path-traversal protection, field-length limits, and the
// sliding-window rate limiter used by the Cloudflare pull API source.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// suspiciousPathMarkers are substrings that make a path untrustworthy before
// it is ever resolved against the filesystem.
var suspiciousPathMarkers = []string{"..", "~", "${", "$(", "`", "|", ";", "&", ">", "<"}

// ValidatePathSafe checks path for traversal sequences, shell metacharacters,
// and null bytes, then (if baseDir is non-empty) requires the resolved path
// to be a descendant of baseDir. Symlinks are rejected unless allowSymlinks
// is set. Returns (true, "") when the path is safe to open.
func ValidatePathSafe(path, baseDir string, allowSymlinks bool) (bool, string) {
	if strings.ContainsRune(path, 0) {
		return false, fmt.Sprintf("path contains null byte: %s", path)
	}

	for _, marker := range suspiciousPathMarkers {
		if strings.Contains(path, marker) {
			if marker == ".." {
				return false, fmt.Sprintf("path contains directory traversal sequence: %s", path)
			}
			if marker == "~" && !strings.HasPrefix(path, "~") {
				continue
			}
			return false, fmt.Sprintf("path contains suspicious characters: %s", path)
		}
	}

	resolved, err := resolvePath(path)
	if err != nil {
		return false, fmt.Sprintf("cannot resolve path %s: %v", path, err)
	}

	if !allowSymlinks {
		if info, lerr := os.Lstat(resolved); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			return false, fmt.Sprintf("path is a symbolic link: %s", path)
		}
	}

	if baseDir != "" {
		baseResolved, berr := resolvePath(baseDir)
		if berr != nil {
			return false, fmt.Sprintf("cannot resolve base directory %s: %v", baseDir, berr)
		}
		rel, rerr := filepath.Rel(baseResolved, resolved)
		if rerr != nil || strings.HasPrefix(rel, "..") || rel == ".." {
			return false, fmt.Sprintf("path escapes base directory: %s is not within %s", resolved, baseResolved)
		}
	}

	return true, ""
}

func resolvePath(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		abs = filepath.Join(cwd, abs)
	}
	return filepath.Clean(abs), nil
}

// SanitizePath validates path and returns the resolved, safe path, or a
// *ingestion.SecurityValidationError if validation fails.
func SanitizePath(path, baseDir string, allowSymlinks bool) (string, error) {
	ok, msg := ValidatePathSafe(path, baseDir, allowSymlinks)
	if !ok {
		return "", &ingestion.SecurityValidationError{Message: msg, Path: path}
	}
	resolved, _ := resolvePath(path)
	return resolved, nil
}

// defaultFieldLimits caps per-field string lengths to guard against DoS via
// oversized values; fields not listed fall back to a 64 KiB default.
var defaultFieldLimits = map[string]int{
	"client_ip":     45,
	"method":        10,
	"host":          253,
	"path":          2048,
	"query_string":  8192,
	"user_agent":    2048,
	"referer":       2048,
	"protocol":      20,
	"ssl_protocol":  20,
	"cache_status":  50,
	"edge_location": 50,
}

const defaultFieldMaxLength = 65535

// FieldMaxLength returns the maximum allowed length for a named field.
func FieldMaxLength(fieldName string) int {
	if n, ok := defaultFieldLimits[fieldName]; ok {
		return n
	}
	return defaultFieldMaxLength
}

// ValidateFieldLength reports whether value fits within maxLength; when it
// does not, the message names the field and both lengths.
func ValidateFieldLength(fieldName, value string, maxLength int) (bool, string) {
	if len(value) > maxLength {
		return false, fmt.Sprintf("field %q exceeds maximum length: %d > %d", fieldName, len(value), maxLength)
	}
	return true, ""
}

// SanitizeString strips control characters (keeping tab/newline/CR) and
// truncates to maxLength.
func SanitizeString(value string, maxLength int) string {
	if value == "" {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= ' ' || r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxLength {
		out = out[:maxLength]
	}
	return out
}
