package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/agent-sessions/internal"
)

// JSONExporter exports a conversation as pretty-printed JSON
type JSONExporter struct{}

// Export writes conv indented by two spaces with a trailing newline
func (e *JSONExporter) Export(conv *internal.Conversation, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(conv)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
