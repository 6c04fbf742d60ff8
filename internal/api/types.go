package api

import "time"

// Transcription actions accepted by the multiplexed endpoint.
const (
	ActionTranscribe = "transcribe"
	ActionRetry      = "retry"
	ActionDeleteOne  = "deleteOne"
	ActionDeleteAll  = "deleteAll"
	ActionSetModel   = "setModel"
)

// TranscriptionRequest is the body of POST /api/transcription. Fields beyond
// Action apply only to the actions that read them.
type TranscriptionRequest struct {
	Action string `json:"action"`

	// transcribe
	AudioBase64     string  `json:"audioBase64,omitempty"`
	AudioKey        string  `json:"audioKey,omitempty"`
	MimeType        string  `json:"mimeType,omitempty"`
	Model           string  `json:"model,omitempty"`
	FileName        string  `json:"fileName,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	RecordedAt      string  `json:"recordedAt,omitempty"`
	Preserve        bool    `json:"preserve,omitempty"`

	// retry, deleteOne
	EntryID string `json:"entryId,omitempty"`
}

// TranscriptionResponse is the success body for all transcription actions.
type TranscriptionResponse struct {
	Success       bool   `json:"success"`
	Transcription string `json:"transcription,omitempty"`
	DeletedCount  int64  `json:"deletedCount,omitempty"`
	Model         string `json:"model,omitempty"`
}

// ErrorResponse is the failure body. Kind is one of the classifier's error
// kinds; PreservedEntryID is set when the failed audio was written to the
// dead-letter store so the client can offer a retry.
type ErrorResponse struct {
	Success          bool   `json:"success"`
	Kind             string `json:"kind"`
	Message          string `json:"message"`
	PreservedEntryID string `json:"preservedEntryId,omitempty"`
}

// DeadLetter is the wire form of one preserved failure.
type DeadLetter struct {
	ID                   string     `json:"id"`
	AudioFileName        string     `json:"audioFileName,omitempty"`
	FileSizeBytes        int64      `json:"fileSizeBytes,omitempty"`
	AudioDurationSeconds float64    `json:"audioDurationSeconds,omitempty"`
	ErrorKind            string     `json:"errorKind"`
	ErrorMessage         string     `json:"errorMessage,omitempty"`
	RecordedAt           time.Time  `json:"recordedAt"`
	FailedAt             time.Time  `json:"failedAt"`
	RetryCount           int64      `json:"retryCount"`
	LastRetryAt          *time.Time `json:"lastRetryAt,omitempty"`
}

// DeadLetterListResponse is the body of GET /api/deadletters.
type DeadLetterListResponse struct {
	Entries []DeadLetter `json:"entries"`
}

// ChatMessage is one turn of history in a chat relay request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"maxTokens,omitempty"`
	PresencePenalty  float64       `json:"presencePenalty,omitempty"`
	FrequencyPenalty float64       `json:"frequencyPenalty,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	DatabasePath  string         `json:"databasePath"`
	LockFilePath  string         `json:"lockFilePath"`
	DeadLetters   int            `json:"deadLetters"`
	ByKind        map[string]int `json:"byKind,omitempty"`
	RetentionDays int            `json:"retentionDays"`
}
