package transcribe_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parley/internal/classify"
	"parley/internal/config"
	"parley/internal/transcribe"
)

func newTestWorker(t *testing.T, handler http.HandlerFunc) *transcribe.Worker {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return transcribe.NewWorker(config.Transcription{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
}

func successBody(text string) string {
	payload := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare supported model", "gemini-2.5-flash", "gemini-2.5-flash"},
		{"vendor prefix stripped", "googleai/gemini-2.5-pro", "gemini-2.5-pro"},
		{"unknown passes through", "claude-sonnet", "claude-sonnet"},
		{"unknown keeps prefix", "googleai/unknown-model", "googleai/unknown-model"},
		{"whitespace trimmed", "  gemini-2.0-flash  ", "gemini-2.0-flash"},
		{"empty stays empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := transcribe.ResolveModel(tc.input); got != tc.want {
				t.Fatalf("ResolveModel(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestTranscribeSuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	worker := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(successBody("  Hello world  ")))
	})

	text, err := worker.Transcribe(context.Background(), []byte("audio-bytes"), "googleai/gemini-2.5-flash", "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("expected trimmed transcript, got %q", text)
	}
	if !strings.HasSuffix(gotPath, "gemini-2.5-flash:generateContent") {
		t.Fatalf("unexpected endpoint path %q", gotPath)
	}
	contents, ok := gotBody["contents"].([]any)
	if !ok || len(contents) != 1 {
		t.Fatalf("expected single content entry, got %v", gotBody["contents"])
	}
	encoded, _ := json.Marshal(gotBody)
	if !strings.Contains(string(encoded), "inlineData") {
		t.Fatal("expected inline audio data in request")
	}
}

func TestTranscribeEmptyTranscriptIsAPIError(t *testing.T) {
	for _, text := range []string{"", "   \n\t  "} {
		worker := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(successBody(text)))
		})
		_, err := worker.Transcribe(context.Background(), []byte("audio"), "gemini-2.5-flash", "")
		if err == nil {
			t.Fatalf("expected error for transcript %q", text)
		}
		if kind := classify.Classify(err); kind != classify.KindAPIError {
			t.Fatalf("expected api_error for transcript %q, got %s", text, kind)
		}
	}
}

func TestTranscribeExtractsProviderMessage(t *testing.T) {
	worker := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"model is overloaded","status":"UNAVAILABLE"}}`))
	})

	_, err := worker.Transcribe(context.Background(), []byte("audio"), "gemini-2.5-flash", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model is overloaded") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
	if kind := classify.Classify(err); kind != classify.KindAPIError {
		t.Fatalf("expected api_error, got %s", kind)
	}
}

func TestTranscribeClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   classify.Kind
	}{
		{http.StatusTooManyRequests, classify.KindRateLimit},
		{http.StatusRequestTimeout, classify.KindTimeout},
		{http.StatusUnsupportedMediaType, classify.KindInvalidFormat},
		{http.StatusInternalServerError, classify.KindAPIError},
	}
	for _, tc := range tests {
		worker := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{}`))
		})
		_, err := worker.Transcribe(context.Background(), []byte("audio"), "gemini-2.5-flash", "")
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if kind := classify.Classify(err); kind != tc.want {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.want, kind)
		}
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	worker := newTestWorker(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent for empty audio")
	})
	_, err := worker.Transcribe(context.Background(), nil, "gemini-2.5-flash", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := classify.Classify(err); kind != classify.KindInvalidFormat {
		t.Fatalf("expected invalid_format, got %s", kind)
	}
}

func TestTranscribeNetworkFailureClassifies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	worker := transcribe.NewWorker(config.Transcription{APIKey: "k", BaseURL: server.URL})

	_, err := worker.Transcribe(context.Background(), []byte("audio"), "gemini-2.5-flash", "")
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	kind := classify.Classify(err)
	if kind != classify.KindNetworkError && kind != classify.KindTimeout {
		t.Fatalf("expected network classification, got %s", kind)
	}
}
