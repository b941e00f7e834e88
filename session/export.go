package session

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/lit-response/triageboard/view"
)

// JSONLines writes each view it is given as one JSON document. With indent
// set the documents are pretty-printed instead.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLines(w io.Writer, indent bool) *JSONLines {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return &JSONLines{enc: enc}
}

func (j *JSONLines) Write(v view.View) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(v)
}
