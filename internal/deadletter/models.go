package deadletter

import (
	"errors"
	"time"

	"parley/internal/classify"
)

// ErrNotFound indicates the entry does not exist (or was already deleted).
var ErrNotFound = errors.New("dead-letter entry not found")

// ErrPermissionDenied indicates the caller does not own the entry. It is kept
// distinct from ErrNotFound for diagnostics; caller-facing messages must not
// leak more than "access denied".
var ErrPermissionDenied = errors.New("access denied")

// ErrStaleEntry indicates a conditional update lost against a concurrent
// writer. The caller may re-read and retry.
var ErrStaleEntry = errors.New("dead-letter entry was modified concurrently")

// Entry is the durable record of one failed transcription attempt. It exists
// exactly while the referenced audio blob awaits a successful retry or expiry.
type Entry struct {
	ID                   string
	OwnerID              string
	AudioKey             string
	AudioFileName        string
	FileSizeBytes        int64
	AudioDurationSeconds float64
	ErrorKind            classify.Kind
	ErrorMessage         string
	RecordedAt           time.Time
	FailedAt             time.Time
	RetryCount           int64
	LastRetryAt          *time.Time
	Version              int64
}

// Stats aggregates entry counts for diagnostics.
type Stats struct {
	Total  int
	ByKind map[classify.Kind]int
}
