package stream

import "encoding/json"

// Usage carries the cost and token metrics reported at the end of a
// generation.
type Usage struct {
	Cost             float64 `json:"cost"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
}

// Image is one generated image payload.
type Image struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data,omitempty"`
}

// Annotation is a citation attached to generated content.
type Annotation struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Start int    `json:"startIndex"`
	End   int    `json:"endIndex"`
}

// finishReasonRenamed marks the terminal payload that renames the
// conversation.
const finishReasonRenamed = "renamed"

// eventPayload is the JSON document carried by one data: line. Any subset of
// fields may be present on a single payload.
type eventPayload struct {
	Error        string          `json:"error"`
	Content      string          `json:"content"`
	Reasoning    string          `json:"reasoning"`
	Images       []Image         `json:"images"`
	Annotations  []Annotation    `json:"annotations"`
	Usage        *Usage          `json:"usage"`
	FinishReason string          `json:"finishReason"`
	NewName      string          `json:"newName"`
	CleanedText  string          `json:"cleanedText"`
	Raw          json.RawMessage `json:"-"`
}

// Handlers receives the typed events decoded from the stream. Nil entries
// are skipped.
type Handlers struct {
	Content     func(text string)
	Reasoning   func(text string)
	Images      func(images []Image)
	Annotations func(annotations []Annotation)
	Usage       func(usage Usage)
	Renamed     func(newName, cleanedText string)
	Done        func()
}
