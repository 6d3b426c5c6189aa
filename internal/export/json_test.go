package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/agent-sessions/internal"
)

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name string
		conv *internal.Conversation
		want []string
	}{
		{
			name: "basic conversation",
			conv: internal.CreateTestConversation("test1"),
			want: []string{
				`  "session_id": "test1"`,
				`  "source": "claude-code"`,
				`  "complete": true`,
				`"created_at": "2025-01-02T03:04:05Z"`,
			},
		},
		{
			name: "html is not escaped",
			conv: internal.CreateTestConversationWithMessages("test2", []internal.Message{
				{Role: internal.RoleUser, Content: "a <b> & c"},
			}),
			want: []string{`"content": "a <b> & c"`, `"complete": false`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&JSONExporter{}).Export(tt.conv, &buf); err != nil {
				t.Fatalf("JSONExporter.Export() error = %v", err)
			}
			output := buf.String()

			if !strings.HasSuffix(output, "}\n") {
				t.Errorf("output should end with a newline, got %q", output[max(0, len(output)-5):])
			}
			var decoded map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("Output is not valid JSON: %v", err)
			}
			for _, wantStr := range tt.want {
				if !strings.Contains(output, wantStr) {
					t.Errorf("Output should contain %q\n%s", wantStr, output)
				}
			}
		})
	}
}

func TestJSONExporter_Extension(t *testing.T) {
	exporter := &JSONExporter{}
	if got := exporter.Extension(); got != "json" {
		t.Errorf("JSONExporter.Extension() = %v, want json", got)
	}
}
