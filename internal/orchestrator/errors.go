package orchestrator

import (
	"errors"
	"fmt"

	"parley/internal/classify"
)

// PreservedError wraps a failed durable transcription attempt whose audio
// was written to the dead-letter store. Callers surface EntryID so the user
// can retry from the preserved audio.
type PreservedError struct {
	EntryID string
	Kind    classify.Kind
	Err     error
}

func (e *PreservedError) Error() string {
	return fmt.Sprintf("transcription failed, audio preserved for retry (entry %s): %v", e.EntryID, e.Err)
}

func (e *PreservedError) Unwrap() error {
	return e.Err
}

// AsPreserved extracts a PreservedError from an error chain.
func AsPreserved(err error) (*PreservedError, bool) {
	var preserved *PreservedError
	if errors.As(err, &preserved) {
		return preserved, true
	}
	return nil, false
}
