package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"

	"parley/internal/stream"
)

// sseRelay re-emits decoded upstream events as data: frames on the client
// connection, flushing after each one so fragments render as they arrive.
type sseRelay struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSERelay(w http.ResponseWriter, flusher http.Flusher) *sseRelay {
	return &sseRelay{w: w, flusher: flusher}
}

func (r *sseRelay) handlers() stream.Handlers {
	return stream.Handlers{
		Content: func(text string) {
			r.frame(map[string]string{"content": text})
		},
		Reasoning: func(text string) {
			r.frame(map[string]string{"reasoning": text})
		},
		Images: func(images []stream.Image) {
			r.frame(map[string]any{"images": images})
		},
		Annotations: func(annotations []stream.Annotation) {
			r.frame(map[string]any{"annotations": annotations})
		},
		Usage: func(usage stream.Usage) {
			r.frame(map[string]any{"usage": usage})
		},
		Renamed: func(newName, cleanedText string) {
			r.frame(map[string]string{
				"finishReason": "renamed",
				"newName":      newName,
				"cleanedText":  cleanedText,
			})
		},
	}
}

func (r *sseRelay) frame(payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	r.raw(string(encoded))
}

func (r *sseRelay) raw(data string) {
	fmt.Fprintf(r.w, "data: %s\n\n", data)
	r.flusher.Flush()
}
