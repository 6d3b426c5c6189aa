package decoder

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

func TestGeminiDecoder_DecodeFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/g/tmp/9f2c/chats/session-2025-01-01T00-00-abc.json"
	writeJSON(t, fs, path, obj{
		"sessionId":   "abc",
		"projectHash": "9f2c",
		"startTime":   "2025-01-01T00:00:00.000Z",
		"lastUpdated": "2025-01-01T00:05:00.000Z",
		"messages": arr{
			obj{"id": "1", "type": "user", "content": "explain", "timestamp": "2025-01-01T00:00:01.000Z"},
			obj{"id": "2", "type": "info", "content": "ignored"},
			obj{"id": "3", "type": "gemini", "content": "sure", "model": "gemini-2.5-pro",
				"thoughts":  arr{obj{"subject": "Plan", "description": "read it", "timestamp": "2025-01-01T00:00:02.000Z"}},
				"tokens":    obj{"input": 10.0, "output": 5.0},
				"toolCalls": arr{obj{"id": "tc", "name": "read_file", "args": obj{"path": "a"}, "result": arr{"ok"}, "status": "success"}},
			},
		},
	})

	conv, err := NewGeminiDecoder(fs).DecodeFile(path)
	if err != nil || conv == nil {
		t.Fatalf("DecodeFile() = %v, %v", conv, err)
	}
	if conv.Source != internal.SourceGemini || conv.SessionID != "abc" || conv.ProjectHash != "9f2c" {
		t.Errorf("conv = %+v", conv)
	}
	if conv.CreatedAt.Raw() != "2025-01-01T00:00:00.000Z" || conv.UpdatedAt.Raw() != "2025-01-01T00:05:00.000Z" {
		t.Errorf("times = %v %v", conv.CreatedAt, conv.UpdatedAt)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(conv.Messages))
	}

	asst := conv.Messages[1]
	if asst.Model != "gemini-2.5-pro" || len(asst.Thoughts) != 1 || asst.Thoughts[0].Subject != "Plan" || asst.Tokens == nil {
		t.Errorf("assistant = %+v", asst)
	}
	if len(asst.ToolCalls) != 1 || len(asst.ToolResults) != 1 || !*asst.ToolResults[0].Success {
		t.Errorf("tools = %+v %+v", asst.ToolCalls, asst.ToolResults)
	}
}

func TestGeminiDecoder_SessionFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/g/tmp/h1/chats/session-1.json", nil)
	writeFile(t, fs, "/g/tmp/h1/logs/session-2.json", nil)
	writeFile(t, fs, "/g/tmp/h2/chats/other.json", nil)

	files := NewGeminiDecoder(fs).SessionFiles("/g")
	if len(files) != 1 || files[0] != "/g/tmp/h1/chats/session-1.json" {
		t.Errorf("SessionFiles() = %v", files)
	}
}

func TestGeminiDecoder_Decode_SkipsBadFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/g/tmp/h/chats/session-bad.json", []byte("{"))
	writeJSON(t, fs, "/g/tmp/h/chats/session-empty.json", obj{"sessionId": "e", "messages": arr{}})
	writeJSON(t, fs, "/g/tmp/h/chats/session-ok.json", obj{"sessionId": "ok", "messages": arr{obj{"type": "user", "content": "hi"}}})

	convs, err := NewGeminiDecoder(fs).Decode("/g")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(convs) != 1 || convs[0].SessionID != "ok" {
		t.Errorf("Decode() = %+v", convs)
	}
}
