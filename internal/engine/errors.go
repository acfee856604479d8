package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/angel2rider/tgcloud/internal/metastore"
)

// lookupErr turns a metadata-store lookup failure into FileNotFoundError
// when the store reports a miss, or MetadataError for anything else (a
// connection failure should not look like a missing file).
func lookupErr(name string, err error) error {
	if errors.Is(err, metastore.ErrNotFound) {
		return &FileNotFoundError{Name: name}
	}
	return &MetadataError{Cause: err}
}

// FileNotFoundError is returned when a metadata lookup by original_name
// comes back empty. Terminal.
type FileNotFoundError struct {
	Name string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("engine: file not found: %s", e.Name)
}

// AlreadyExistsError is returned by rename when the destination name is
// already taken.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("engine: file already exists: %s", e.Name)
}

// MetadataError wraps a metadata-store failure. Non-retryable at engine
// level.
type MetadataError struct {
	Cause error
}

func (e *MetadataError) Error() string { return fmt.Sprintf("engine: metadata error: %v", e.Cause) }
func (e *MetadataError) Unwrap() error { return e.Cause }

// IntegrityFailedError is returned when a downloaded file's recomputed
// SHA-256 does not match the stored digest. Terminal; the merged output is
// deleted before this error is returned.
type IntegrityFailedError struct {
	Expected string
	Actual   string
}

func (e *IntegrityFailedError) Error() string {
	return fmt.Sprintf("engine: integrity check failed: expected %s, got %s", e.Expected, e.Actual)
}

// UploadFailedError is the composite wrapper surfaced to callers when an
// upload's chunk fan-out fails. reason is the first observed worker error
// (by completion order, not necessarily temporal order).
type UploadFailedError struct {
	Reason error
}

func (e *UploadFailedError) Error() string { return fmt.Sprintf("engine: upload failed: %v", e.Reason) }
func (e *UploadFailedError) Unwrap() error { return e.Reason }

// DownloadFailedError is the composite wrapper surfaced to callers when a
// download's chunk fan-out, merge, or verification fails.
type DownloadFailedError struct {
	Reason error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("engine: download failed: %v", e.Reason)
}
func (e *DownloadFailedError) Unwrap() error { return e.Reason }

// DeleteFailedError enumerates per-chunk delete failures, or a metadata
// removal failure after all chunk deletes succeeded.
type DeleteFailedError struct {
	FailedCount int
	TotalCount  int
	Causes      []error
	Stage       string // "chunks" or "metadata"
}

func (e *DeleteFailedError) Error() string {
	if e.Stage == "metadata" {
		return fmt.Sprintf("engine: delete failed: metadata removal: %v", e.Causes)
	}
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("engine: delete failed: %d/%d chunks: %s", e.FailedCount, e.TotalCount, strings.Join(msgs, "; "))
}

// InternalError marks a gate shutdown or invariant violation: a programmer
// error rather than an operational one.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string { return fmt.Sprintf("engine: internal error: %s", e.Message) }
