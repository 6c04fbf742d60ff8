package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"parley/internal/classify"
	"parley/internal/config"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultHTTPTimeout = 2 * time.Minute
	defaultModel       = "gemini-2.5-flash"

	// Decoding favors determinism: transcripts should not vary between runs
	// of the same audio.
	requestTemperature = 0.1
	requestMaxTokens   = 65536
)

// vendorPrefix is stripped from model identifiers that arrive in the
// provider-qualified form used by the chat side of the app.
const vendorPrefix = "googleai/"

// instructionPreamble is sent with every request ahead of the audio payload.
const instructionPreamble = "Transcribe the spoken audio verbatim. " +
	"Return only the transcript text with no commentary, labels, or formatting."

// supportedModels is the fixed allow-list of transcription-capable models.
// Unknown identifiers pass through unchanged and the provider rejects them.
var supportedModels = map[string]bool{
	"gemini-2.5-pro":   true,
	"gemini-2.5-flash": true,
	"gemini-2.0-flash": true,
}

// Worker sends audio to the transcription provider and returns the
// transcript. Every failure is classified before it is returned.
type Worker struct {
	apiKey       string
	baseURL      string
	defaultModel string
	languageHint string
	httpClient   *http.Client
}

// Option customizes the worker.
type Option func(*Worker)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(w *Worker) {
		if client != nil {
			w.httpClient = client
		}
	}
}

// NewWorker constructs a worker from the transcription config section.
func NewWorker(cfg config.Transcription, opts ...Option) *Worker {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	worker := &Worker{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		baseURL:      strings.TrimSpace(cfg.BaseURL),
		defaultModel: ResolveModel(cfg.DefaultModel),
		languageHint: strings.TrimSpace(cfg.Language),
		httpClient:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(worker)
	}
	if worker.baseURL == "" {
		worker.baseURL = defaultBaseURL
	}
	if worker.defaultModel == "" {
		worker.defaultModel = defaultModel
	}
	return worker
}

// DefaultModel returns the model used when the caller does not name one.
func (w *Worker) DefaultModel() string {
	return w.defaultModel
}

// ResolveModel normalizes a requested model identifier against the
// allow-list. The vendor prefix is stripped when present; identifiers not on
// the list are returned as-is so the provider can reject them itself.
func ResolveModel(modelID string) string {
	trimmed := strings.TrimSpace(modelID)
	stripped := strings.TrimPrefix(trimmed, vendorPrefix)
	if supportedModels[stripped] {
		return stripped
	}
	return trimmed
}

type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Transcribe sends one request for the supplied audio and returns the
// transcript text. mimeType defaults to audio/webm when empty. The returned
// error always classifies to a specific kind via classify.Classify.
func (w *Worker) Transcribe(ctx context.Context, audio []byte, modelID, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", &classify.CodedError{Code: "invalid-argument", Message: "transcribe: empty audio payload"}
	}
	if w.apiKey == "" {
		return "", &classify.CodedError{Code: "invalid-argument", Message: "transcribe: api key required"}
	}
	model := ResolveModel(modelID)
	if model == "" {
		model = w.defaultModel
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	instruction := instructionPreamble
	if hint := w.languageTag(); hint != "" {
		instruction += " The audio is primarily in " + hint + "."
	}

	payload := generateRequest{
		Contents: []requestContent{{
			Parts: []requestPart{
				{Text: instruction},
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     requestTemperature,
			MaxOutputTokens: requestMaxTokens,
		},
	}

	body, status, err := w.sendOnce(ctx, model, payload)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", statusError(status, body)
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &classify.StatusError{StatusCode: status, Message: fmt.Sprintf("transcribe: decode response: %v", err)}
	}
	if decoded.Error != nil {
		return "", statusError(status, body)
	}

	transcript := extractTranscript(decoded)
	if strings.TrimSpace(transcript) == "" {
		// Empty output is indistinguishable from a failed decode, so it is
		// surfaced as a failure rather than a valid empty transcript.
		return "", &classify.CodedError{Code: "internal", Message: "transcribe: provider returned empty transcript"}
	}
	return strings.TrimSpace(transcript), nil
}

func (w *Worker) sendOnce(ctx context.Context, model string, payload generateRequest) ([]byte, int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, &classify.CodedError{Code: "invalid-argument", Message: fmt.Sprintf("transcribe: encode body: %v", err)}
	}
	endpoint, err := url.JoinPath(w.baseURL, model+":generateContent")
	if err != nil {
		return nil, 0, &classify.CodedError{Code: "invalid-argument", Message: fmt.Sprintf("transcribe: build url: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, &classify.CodedError{Code: "invalid-argument", Message: fmt.Sprintf("transcribe: new request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", w.apiKey)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, 0, &classify.CodedError{Code: "deadline-exceeded", Message: fmt.Sprintf("transcribe: %v", err)}
		}
		return nil, 0, fmt.Errorf("transcribe: network error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("transcribe: read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// statusError prefers the provider's own message; a body with no parseable
// message falls back to the HTTP status text.
func statusError(status int, body []byte) error {
	message := providerMessage(body)
	if message == "" {
		message = fmt.Sprintf("http %d: %s", status, http.StatusText(status))
	}
	return &classify.StatusError{StatusCode: status, Message: message}
}

func providerMessage(body []byte) string {
	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	if decoded.Error == nil {
		return ""
	}
	return strings.TrimSpace(decoded.Error.Message)
}

func extractTranscript(decoded generateResponse) string {
	var builder strings.Builder
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			builder.WriteString(part.Text)
		}
		if builder.Len() > 0 {
			break
		}
	}
	return builder.String()
}

// languageTag renders the configured language hint as an English display
// name, or "" when unset or unparseable.
func (w *Worker) languageTag() string {
	if w.languageHint == "" {
		return ""
	}
	tag, err := language.Parse(w.languageHint)
	if err != nil {
		return ""
	}
	return languageDisplayName(tag)
}

func languageDisplayName(tag language.Tag) string {
	base, confidence := tag.Base()
	if confidence == language.No {
		return tag.String()
	}
	if name, ok := languageNames[base.String()]; ok {
		return name
	}
	return tag.String()
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"pt": "Portuguese",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"vi": "Vietnamese",
	"uk": "Ukrainian",
	"ru": "Russian",
	"ar": "Arabic",
	"hi": "Hindi",
}
