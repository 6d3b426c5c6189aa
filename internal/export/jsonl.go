package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/agent-sessions/internal"
)

// JSONLExporter writes each conversation as a single JSON line, the bulk
// dump record format.
type JSONLExporter struct{}

// Export appends conv to w as one line
func (e *JSONLExporter) Export(conv *internal.Conversation, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(conv); err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
