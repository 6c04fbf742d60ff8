package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind is the closed set of semantic error classifications shared by the
// dead-letter store and caller-facing messaging.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindRateLimit     Kind = "rate_limit"
	KindInvalidFormat Kind = "invalid_format"
	KindAPIError      Kind = "api_error"
	KindNetworkError  Kind = "network_error"
	KindUnknown       Kind = "unknown"
)

// Kinds lists every valid classification.
func Kinds() []Kind {
	return []Kind{KindTimeout, KindRateLimit, KindInvalidFormat, KindAPIError, KindNetworkError, KindUnknown}
}

// Valid reports whether k is one of the fixed kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTimeout, KindRateLimit, KindInvalidFormat, KindAPIError, KindNetworkError, KindUnknown:
		return true
	}
	return false
}

// CodedError carries a structured provider error code alongside its message.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusError carries an HTTP status and the provider's error body.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Message))
}

// codeTable maps structured provider codes to kinds. Order is irrelevant here;
// codes are exact matches.
var codeTable = map[string]Kind{
	"deadline-exceeded":  KindTimeout,
	"deadline_exceeded":  KindTimeout,
	"resource-exhausted": KindRateLimit,
	"resource_exhausted": KindRateLimit,
	"invalid-argument":   KindInvalidFormat,
	"invalid_argument":   KindInvalidFormat,
	"unavailable":        KindAPIError,
	"internal":           KindAPIError,
}

// keywordRule groups case-insensitive substrings that map to one kind. Rules
// are evaluated in order; the first match wins.
type keywordRule struct {
	kind  Kind
	terms []string
}

var keywordRules = []keywordRule{
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded", "deadline-exceeded"}},
	{KindRateLimit, []string{"rate limit", "rate-limit", "too many requests", "quota", "resource exhausted", "resource-exhausted"}},
	{KindNetworkError, []string{"network", "connection refused", "connection reset", "no such host", "fetch failed", "broken pipe", "unexpected eof"}},
}

// Classify maps any error to exactly one Kind. It is total: nil and errors of
// unexpected shape yield KindUnknown rather than panicking.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		if kind, ok := codeTable[strings.ToLower(strings.TrimSpace(coded.Code))]; ok {
			return kind
		}
		return KindUnknown
	}

	var status *StatusError
	if errors.As(err, &status) {
		return FromStatus(status.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetworkError
	}

	message := strings.ToLower(err.Error())
	if strings.TrimSpace(message) == "" {
		return KindUnknown
	}
	for _, rule := range keywordRules {
		for _, term := range rule.terms {
			if strings.Contains(message, term) {
				return rule.kind
			}
		}
	}
	return KindAPIError
}

// FromStatus maps an HTTP status code to a Kind.
func FromStatus(code int) Kind {
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusBadRequest || code == http.StatusUnsupportedMediaType || code == http.StatusUnprocessableEntity:
		return KindInvalidFormat
	case code >= http.StatusInternalServerError:
		return KindAPIError
	case code >= http.StatusBadRequest:
		return KindAPIError
	default:
		return KindUnknown
	}
}

// Retryable reports whether a user-initiated retry is sensible for the kind.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTimeout, KindNetworkError, KindAPIError, KindUnknown:
		return true
	}
	return false
}

// userMessages holds the single caller-facing sentence for each kind. Raw
// provider error text never reaches the end user.
var userMessages = map[Kind]string{
	KindTimeout:       "The transcription took too long and was cancelled. Please try again.",
	KindRateLimit:     "The transcription service is busy right now. Please wait a moment before retrying.",
	KindInvalidFormat: "This audio format is not supported. Please record again.",
	KindAPIError:      "The transcription service returned an error. Please try again.",
	KindNetworkError:  "A network problem interrupted the request. Check your connection and try again.",
	KindUnknown:       "Something went wrong. Please try again.",
}

// UserMessage returns the fixed caller-facing sentence for a kind.
func UserMessage(kind Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}
