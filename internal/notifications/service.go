package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"parley/internal/config"
)

const userAgent = "Parley/0.1.0"

// Service defines the notification surface exposed to the orchestrator and
// the retention sweeper.
type Service interface {
	NotifyTranscriptionPreserved(ctx context.Context, fileName, errorKind string) error
	NotifyRetrySucceeded(ctx context.Context, fileName string, retryCount int64) error
	NotifySweepCompleted(ctx context.Context, swept, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	cfg      config.Notifications
}

func (n *ntfyService) NotifyTranscriptionPreserved(ctx context.Context, fileName, errorKind string) error {
	if !n.cfg.Preservation {
		return nil
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = "recording"
	}
	data := payload{
		title:   "Parley - Audio Preserved",
		message: fmt.Sprintf("Transcription failed (%s): %s preserved for retry", errorKind, fileName),
		tags:    []string{"parley", "transcription", "preserved"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRetrySucceeded(ctx context.Context, fileName string, retryCount int64) error {
	if !n.cfg.Retry {
		return nil
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = "recording"
	}
	data := payload{
		title:   "Parley - Retry Succeeded",
		message: fmt.Sprintf("Transcribed %s after %d failed attempt(s)", fileName, retryCount),
		tags:    []string{"parley", "transcription", "retried"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySweepCompleted(ctx context.Context, swept, failed int, duration time.Duration) error {
	if !n.cfg.Sweep {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title string
	var message string
	if failed == 0 {
		title = "Parley - Sweep Complete"
		message = fmt.Sprintf("Retention sweep removed %d expired entries in %s", swept, durationText)
	} else {
		title = "Parley - Sweep Complete (with errors)"
		message = fmt.Sprintf("Retention sweep: %d removed, %d failed in %s", swept, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"parley", "sweep", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.cfg.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Parley - Error",
		message:  builder.String(),
		tags:     []string{"parley", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Parley - Test",
		message:  "Notification system test",
		tags:     []string{"parley", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTranscriptionPreserved(context.Context, string, string) error { return nil }
func (noopService) NotifyRetrySucceeded(context.Context, string, int64) error          { return nil }
func (noopService) NotifySweepCompleted(context.Context, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
