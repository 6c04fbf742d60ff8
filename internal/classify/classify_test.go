package classify_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"parley/internal/classify"
)

func TestClassifyStructuredCodes(t *testing.T) {
	cases := []struct {
		code string
		want classify.Kind
	}{
		{"deadline-exceeded", classify.KindTimeout},
		{"resource-exhausted", classify.KindRateLimit},
		{"invalid-argument", classify.KindInvalidFormat},
		{"unavailable", classify.KindAPIError},
		{"internal", classify.KindAPIError},
		{"already-exists", classify.KindUnknown},
		{"", classify.KindUnknown},
	}
	for _, tc := range cases {
		err := &classify.CodedError{Code: tc.code, Message: "provider says no"}
		if got := classify.Classify(err); got != tc.want {
			t.Errorf("Classify(code=%q) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   classify.Kind
	}{
		{408, classify.KindTimeout},
		{504, classify.KindTimeout},
		{429, classify.KindRateLimit},
		{400, classify.KindInvalidFormat},
		{415, classify.KindInvalidFormat},
		{422, classify.KindInvalidFormat},
		{500, classify.KindAPIError},
		{503, classify.KindAPIError},
		{403, classify.KindAPIError},
		{200, classify.KindUnknown},
	}
	for _, tc := range cases {
		err := &classify.StatusError{StatusCode: tc.status, Message: "body"}
		if got := classify.Classify(err); got != tc.want {
			t.Errorf("Classify(status=%d) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestClassifyMessageKeywords(t *testing.T) {
	cases := []struct {
		message string
		want    classify.Kind
	}{
		{"request timed out after 30s", classify.KindTimeout},
		{"Deadline Exceeded while waiting", classify.KindTimeout},
		{"quota exceeded for project", classify.KindRateLimit},
		{"Too Many Requests", classify.KindRateLimit},
		{"fetch failed: connection reset by peer", classify.KindNetworkError},
		{"dial tcp: no such host", classify.KindNetworkError},
		{"candidate was blocked", classify.KindAPIError},
	}
	for _, tc := range cases {
		if got := classify.Classify(errors.New(tc.message)); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

// Classify must be total: any input produces one of the six kinds and never
// panics.
func TestClassifyTotality(t *testing.T) {
	inputs := []error{
		nil,
		errors.New(""),
		fmt.Errorf("wrapped: %w", errors.New("depths")),
		context.DeadlineExceeded,
		context.Canceled,
		&net.DNSError{Err: "lookup failed", IsTimeout: true},
		&classify.CodedError{},
		&classify.StatusError{},
		io.ErrUnexpectedEOF,
		syscall.ECONNRESET,
	}
	for i, err := range inputs {
		got := classify.Classify(err)
		if !got.Valid() {
			t.Errorf("input %d: Classify returned invalid kind %q", i, got)
		}
	}
}

func TestClassifyTimeoutPrecedence(t *testing.T) {
	if got := classify.Classify(context.DeadlineExceeded); got != classify.KindTimeout {
		t.Fatalf("context.DeadlineExceeded: got %s", got)
	}
	netTimeout := &net.DNSError{Err: "lookup", IsTimeout: true}
	if got := classify.Classify(netTimeout); got != classify.KindTimeout {
		t.Fatalf("net timeout: got %s", got)
	}
}

func TestRetryable(t *testing.T) {
	retryable := []classify.Kind{classify.KindTimeout, classify.KindNetworkError, classify.KindAPIError, classify.KindUnknown}
	for _, kind := range retryable {
		if !classify.Retryable(kind) {
			t.Errorf("expected %s retryable", kind)
		}
	}
	for _, kind := range []classify.Kind{classify.KindRateLimit, classify.KindInvalidFormat} {
		if classify.Retryable(kind) {
			t.Errorf("expected %s not retryable", kind)
		}
	}
}

func TestUserMessageCoversEveryKind(t *testing.T) {
	for _, kind := range classify.Kinds() {
		if classify.UserMessage(kind) == "" {
			t.Errorf("missing user message for %s", kind)
		}
	}
	if classify.UserMessage(classify.Kind("bogus")) != classify.UserMessage(classify.KindUnknown) {
		t.Error("unexpected message for invalid kind")
	}
}

func TestIsTransientNetwork(t *testing.T) {
	transient := []error{
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		io.ErrUnexpectedEOF,
		&net.DNSError{Err: "no such host"},
		errors.New("read tcp 1.2.3.4: connection reset by peer"),
		errors.New("net/http: TLS handshake timeout"),
	}
	for _, err := range transient {
		if !classify.IsTransientNetwork(err) {
			t.Errorf("expected transient: %v", err)
		}
	}

	permanent := []error{
		nil,
		context.Canceled,
		context.DeadlineExceeded,
		errors.New("invalid model id"),
		&classify.StatusError{StatusCode: 401, Message: "unauthorized"},
	}
	for _, err := range permanent {
		if classify.IsTransientNetwork(err) {
			t.Errorf("expected not transient: %v", err)
		}
	}
}

func TestKeywordOrderFirstMatchWins(t *testing.T) {
	// "quota" and "network" both present; timeout rules are evaluated first,
	// then rate limit, so a combined message lands on the earliest group.
	err := errors.New("network slow, request timed out")
	if got := classify.Classify(err); got != classify.KindTimeout {
		t.Fatalf("expected timeout to win, got %s", got)
	}
}

func TestStatusErrorMessageFormat(t *testing.T) {
	err := &classify.StatusError{StatusCode: 503, Message: " upstream sad "}
	if want := "http 503: upstream sad"; err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
	coded := &classify.CodedError{Code: "internal"}
	if coded.Error() != "internal" {
		t.Fatalf("got %q", coded.Error())
	}
}
