package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"parley/internal/classify"
	"parley/internal/config"
	"parley/internal/logging"
)

const (
	defaultStreamTimeout = 10 * time.Minute
	defaultAttempts      = 3
	defaultBaseDelay     = time.Second
	readChunkSize        = 4096
)

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body sent to the streaming chat endpoint.
type Request struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
	Stream           bool      `json:"stream"`
}

// Transport runs one streaming chat call through the reassembler with
// bounded retry. Only transient network failures are retried; errors carried
// in the stream itself and HTTP 4xx responses propagate immediately.
type Transport struct {
	cfg        config.Chat
	httpClient *http.Client
	logger     *slog.Logger

	attempts  int
	baseDelay time.Duration
	timeout   time.Duration
	sleeper   func(time.Duration)
	jitter    func(time.Duration) time.Duration
}

// Option customizes the transport.
type Option func(*Transport)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Transport) {
		if client != nil {
			t.httpClient = client
		}
	}
}

// WithSleeper overrides how backoff sleeps are performed. Test hook.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(t *Transport) {
		t.sleeper = sleeper
	}
}

// NewTransport builds a transport from the chat config section.
func NewTransport(cfg config.Chat, logger *slog.Logger, opts ...Option) *Transport {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := defaultStreamTimeout
	if cfg.TimeoutMinutes > 0 {
		timeout = time.Duration(cfg.TimeoutMinutes) * time.Minute
	}
	attempts := defaultAttempts
	if cfg.RetryAttempts > 0 {
		attempts = cfg.RetryAttempts
	}
	baseDelay := defaultBaseDelay
	if cfg.RetryBaseMS > 0 {
		baseDelay = time.Duration(cfg.RetryBaseMS) * time.Millisecond
	}
	transport := &Transport{
		cfg: cfg,
		// The request deadline comes from the per-call context; a client
		// timeout here would cut long generations short.
		httpClient: &http.Client{},
		logger:     logging.NewComponentLogger(logger, "chat"),
		attempts:   attempts,
		baseDelay:  baseDelay,
		timeout:    timeout,
		jitter: func(delay time.Duration) time.Duration {
			if delay <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(delay)/2 + 1))
		},
	}
	for _, opt := range opts {
		opt(transport)
	}
	return transport
}

// Stream posts the request and dispatches decoded events to the handlers.
// It returns once the stream completes, errors, or the timeout fires.
func (t *Transport) Stream(ctx context.Context, req Request, handlers Handlers) error {
	req.Stream = true
	encoded, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("chat stream: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		if attempt > 1 {
			delay := t.backoffDelay(attempt - 1)
			if err := t.sleep(ctx, delay); err != nil {
				return err
			}
			t.logger.Info("retrying chat stream",
				logging.Int("attempt", attempt),
				logging.Error(lastErr))
		}

		err := t.streamOnce(ctx, encoded, req.Model, handlers)
		if err == nil {
			return nil
		}
		if !t.retryable(ctx, err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("chat stream: failed after %d attempts: %w", t.attempts, lastErr)
}

// streamOnce performs one POST and drains the response through a fresh
// reassembler. The body is closed on every path.
func (t *Transport) streamOnce(ctx context.Context, body []byte, model string, handlers Handlers) error {
	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chat stream: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", t.cfg.Referer)
	}
	if t.cfg.Title != "" {
		req.Header.Set("X-Title", t.cfg.Title)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &classify.StatusError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(payload, resp.StatusCode),
		}
	}

	reassembler := NewReassembler(handlers, t.logger)
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := reassembler.Feed(buf[:n]); err != nil {
				return err
			}
			if reassembler.Closed() {
				return nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return reassembler.Finish()
			}
			if reassembler.Payloads() > 0 && classify.IsTransientNetwork(readErr) {
				// The connection dropped after real payloads arrived;
				// treat it like a provider that closed without [DONE].
				t.logger.Warn("stream connection lost after partial content", logging.Error(readErr))
				return reassembler.Finish()
			}
			return fmt.Errorf("chat stream: read: %w", readErr)
		}
	}
}

// retryable gates the retry loop: only transient network signatures on a
// still-live context qualify. Stream payload errors, empty streams, and all
// HTTP status errors propagate immediately.
func (t *Transport) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var payloadErr *PayloadError
	if errors.As(err, &payloadErr) {
		return false
	}
	if errors.Is(err, ErrEmptyStream) {
		return false
	}
	var statusErr *classify.StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	return classify.IsTransientNetwork(err)
}

// backoffDelay doubles the base per retry and adds jitter so synchronized
// clients spread out.
func (t *Transport) backoffDelay(retry int) time.Duration {
	delay := t.baseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
	}
	if t.jitter != nil {
		delay += t.jitter(delay)
	}
	return delay
}

func (t *Transport) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if t.sleeper != nil {
		t.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func upstreamMessage(body []byte, status int) string {
	var decoded struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		if msg := strings.TrimSpace(decoded.Error.Message); msg != "" {
			return msg
		}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return trimmed
	}
	return http.StatusText(status)
}
