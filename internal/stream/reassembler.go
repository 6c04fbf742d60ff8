package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"parley/internal/logging"
)

// doneSentinel terminates a well-behaved stream.
const doneSentinel = "[DONE]"

var dataPrefix = []byte("data:")

// ErrEmptyStream reports a stream that ended before delivering any payload.
var ErrEmptyStream = errors.New("stream ended without any payload")

// PayloadError carries the error field of a stream payload. It terminates
// the stream and is never retried.
type PayloadError struct {
	Message string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("stream payload error: %s", e.Message)
}

// Reassembler turns raw response-body chunks back into typed events. Chunks
// are buffered as bytes and split on newlines, so a multi-byte UTF-8
// sequence straddling a chunk boundary is never decoded early; conversion to
// string happens only on complete lines.
type Reassembler struct {
	handlers Handlers
	logger   *slog.Logger

	buf      []byte
	payloads int
	done     bool
	failed   bool
}

// NewReassembler builds a reassembler dispatching to the given handlers.
func NewReassembler(handlers Handlers, logger *slog.Logger) *Reassembler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reassembler{
		handlers: handlers,
		logger:   logging.NewComponentLogger(logger, "stream"),
	}
}

// Closed reports whether the reassembler reached a terminal state and the
// caller should stop feeding it.
func (r *Reassembler) Closed() bool {
	return r.done || r.failed
}

// Payloads returns the number of payloads dispatched so far.
func (r *Reassembler) Payloads() int {
	return r.payloads
}

// Feed consumes one chunk of response-body bytes. A non-nil error is
// terminal: either the stream's own error field fired or the payload said
// the conversation is over.
func (r *Reassembler) Feed(chunk []byte) error {
	if r.Closed() {
		return nil
	}
	r.buf = append(r.buf, chunk...)

	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			return nil
		}
		line := r.buf[:idx]
		r.buf = r.buf[idx+1:]

		if err := r.handleLine(line); err != nil || r.Closed() {
			return err
		}
	}
}

// Finish signals end of input. A stream that never saw the done sentinel but
// delivered at least one payload counts as complete; a stream with zero
// payloads is an error, not a silent success.
func (r *Reassembler) Finish() error {
	if r.Closed() {
		return nil
	}
	// A trailing line without a final newline still counts.
	if len(r.buf) > 0 {
		line := r.buf
		r.buf = nil
		if err := r.handleLine(line); err != nil || r.Closed() {
			return err
		}
	}
	if r.payloads == 0 {
		r.failed = true
		return ErrEmptyStream
	}
	r.complete()
	return nil
}

func (r *Reassembler) handleLine(line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil
	}
	data := bytes.TrimSpace(line[len(dataPrefix):])
	if len(data) == 0 {
		return nil
	}

	if string(data) == doneSentinel {
		r.complete()
		return nil
	}

	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// Upstream framing occasionally splits a JSON document across two
		// data: lines; losing that fragment beats killing the stream.
		r.logger.Warn("skipping malformed payload", logging.Error(err))
		return nil
	}

	r.payloads++
	return r.dispatch(payload)
}

// dispatch fires every applicable handler for one payload in a fixed order.
// An error field aborts before anything else fires; all other fields are
// independent and a single payload may trigger several handlers.
func (r *Reassembler) dispatch(payload eventPayload) error {
	if payload.Error != "" {
		r.failed = true
		return &PayloadError{Message: payload.Error}
	}
	if payload.Content != "" && r.handlers.Content != nil {
		r.handlers.Content(payload.Content)
	}
	if payload.Reasoning != "" && r.handlers.Reasoning != nil {
		r.handlers.Reasoning(payload.Reasoning)
	}
	if len(payload.Images) > 0 && r.handlers.Images != nil {
		r.handlers.Images(payload.Images)
	}
	if len(payload.Annotations) > 0 && r.handlers.Annotations != nil {
		r.handlers.Annotations(payload.Annotations)
	}
	if payload.Usage != nil && r.handlers.Usage != nil {
		r.handlers.Usage(*payload.Usage)
	}
	if payload.FinishReason == finishReasonRenamed && payload.NewName != "" && r.handlers.Renamed != nil {
		r.handlers.Renamed(payload.NewName, payload.CleanedText)
	}
	return nil
}

func (r *Reassembler) complete() {
	if r.done {
		return
	}
	r.done = true
	if r.handlers.Done != nil {
		r.handlers.Done()
	}
}
