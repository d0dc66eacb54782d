package driver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/umputun/ingest-logs/app/ingestion"
)

// checkFileSizeCap rejects a source whose total size exceeds maxBytes. For a
// directory it sums every regular file under it, matching the driver's
// treatment of a directory source as one logical input.
func checkFileSizeCap(path string, maxBytes int64) error {
	info, err := os.Stat(path) //nolint:gosec // path already ran through ValidatePathSafe
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		if info.Size() > maxBytes {
			return &ingestion.SourceValidationError{
				Message: "file exceeds maximum allowed size",
				Reason:  fmt.Sprintf("%d bytes > %d byte cap", info.Size(), maxBytes),
			}
		}
		return nil
	}

	var total int64
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, werr error) error {
		if werr != nil {
			return nil //nolint:nilerr // best-effort scan, permission errors are skipped
		}
		if d.IsDir() {
			return nil
		}
		fi, ferr := d.Info()
		if ferr != nil {
			return nil //nolint:nilerr
		}
		total += fi.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", path, err)
	}
	if total > maxBytes {
		return &ingestion.SourceValidationError{
			Message: "directory contents exceed maximum allowed size",
			Reason:  fmt.Sprintf("%d bytes > %d byte cap", total, maxBytes),
		}
	}
	return nil
}
