package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/agent-sessions/internal"
)

func TestJSONLExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	exporter := &JSONLExporter{}

	convs := []*internal.Conversation{
		internal.CreateTestConversation("a"),
		internal.CreateTestConversationWithMessages("b", []internal.Message{
			{Role: internal.RoleUser, Content: "line one\nline two"},
		}),
	}
	for _, conv := range convs {
		if err := exporter.Export(conv, &buf); err != nil {
			t.Fatalf("JSONLExporter.Export() error = %v", err)
		}
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (one per conversation)", len(lines))
	}
	for i, line := range lines {
		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Errorf("Line %d is not valid JSON: %v", i, err)
			continue
		}
		for _, field := range []string{"messages", "source", "session_id", "complete", "has_tools"} {
			if _, ok := rec[field]; !ok {
				t.Errorf("Line %d missing %q field", i, field)
			}
		}
	}
	if !strings.Contains(lines[1], `line one\nline two`) {
		t.Errorf("newlines in content should stay escaped: %s", lines[1])
	}
}

func TestJSONLExporter_Extension(t *testing.T) {
	exporter := &JSONLExporter{}
	if got := exporter.Extension(); got != "jsonl" {
		t.Errorf("JSONLExporter.Extension() = %v, want jsonl", got)
	}
}
