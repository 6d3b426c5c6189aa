package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/agent-sessions/internal"
)

func TestShowCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		want     string
	}{
		{
			name:     "full id",
			args:     []string{"show", "codex", "s1"},
			wantCode: 0,
			want:     "please find the needle",
		},
		{
			name:     "unique prefix",
			args:     []string{"show", "codex", "s"},
			wantCode: 0,
			want:     "Session: s1",
		},
		{
			name:     "limit",
			args:     []string{"show", "codex", "s1", "--limit", "1"},
			wantCode: 0,
			want:     "(1 more message(s))",
		},
		{
			name:     "json format",
			args:     []string{"show", "codex", "s1", "--format", "json"},
			wantCode: 0,
			want:     `"session_id": "s1"`,
		},
		{
			name:     "unknown session",
			args:     []string{"show", "codex", "zzz"},
			wantCode: 1,
		},
		{
			name:     "bad since",
			args:     []string{"show", "codex", "s1", "--since", "yesterday"},
			wantCode: 2,
		},
		{
			name:     "bad format",
			args:     []string{"show", "codex", "s1", "--format", "pdf"},
			wantCode: 2,
		},
		{
			name:     "without session id",
			args:     []string{"show", "codex"},
			wantCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupCLI(t)
			out, code := run(t, "", tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d\n%s", code, tt.wantCode, out)
			}
			if tt.want != "" && !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestFindSession(t *testing.T) {
	convs := []*internal.Conversation{{SessionID: "abc1"}, {SessionID: "abc2"}, {SessionID: "abc"}}

	if got, err := findSession(convs, "abc"); err != nil || got != convs[2] {
		t.Errorf("exact match = %v, %v", got, err)
	}
	if got, err := findSession(convs, "abc2"); err != nil || got != convs[1] {
		t.Errorf("full id = %v, %v", got, err)
	}
	if _, err := findSession(convs[:2], "ab"); exitCode(err) != 2 {
		t.Errorf("ambiguous prefix error = %v, want exit 2", err)
	}
	if _, err := findSession(convs, "x"); err == nil {
		t.Error("missing id should fail")
	}
}

func TestFilterSince(t *testing.T) {
	messages := []internal.Message{
		{Content: "old", Timestamp: internal.NewTimestamp("2025-01-01T00:00:00Z")},
		{Content: "undated"},
		{Content: "new", Timestamp: internal.NewTimestamp("2025-02-01T00:00:00Z")},
	}
	cutoff := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	got := filterSince(messages, &cutoff)
	if len(got) != 1 || got[0].Content != "new" {
		t.Errorf("filterSince() = %+v", got)
	}
	if len(filterSince(messages, nil)) != 3 {
		t.Error("nil cutoff should keep everything")
	}
}

func TestDisplayMessage(t *testing.T) {
	var buf bytes.Buffer
	displayMessage(&buf, 1, internal.Message{
		Role:      internal.RoleAssistant,
		Content:   "done",
		ToolCalls: []internal.ToolCall{{Name: "shell"}},
	}, 2)

	out := buf.String()
	for _, want := range []string{"Assistant", "[1/2]", "done", "tool: shell"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"short line", "hello world", 20, "hello world"},
		{"wraps on words", "aaa bbb ccc", 7, "aaa bbb\nccc"},
		{"keeps newlines", "a\nb", 5, "a\nb"},
		{"long word alone", "abcdefghij xy", 5, "abcdefghij\nxy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapText(tt.text, tt.width); got != tt.want {
				t.Errorf("wrapText() = %q, want %q", got, tt.want)
			}
		})
	}
}
