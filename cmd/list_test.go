package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/locate"
)

func TestListCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		want     string
	}{
		{
			name:     "codex sessions",
			args:     []string{"list", "codex"},
			wantCode: 0,
			want:     "Found 1 codex session(s)",
		},
		{
			name:     "tool without installations",
			args:     []string{"list", "gemini"},
			wantCode: 0,
			want:     "No gemini sessions found",
		},
		{
			name:     "missing tool",
			args:     []string{"list"},
			wantCode: 1,
		},
		{
			name:     "unknown tool",
			args:     []string{"list", "vim"},
			wantCode: 2,
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

func TestDisplaySessions(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	convs := []*internal.Conversation{
		{
			SessionID:   "abc",
			Title:       "Refactor the parser",
			ProjectPath: "/home/u/src/parser",
			CreatedAt:   internal.NewTimestamp("2025-05-01T10:00:00Z"),
			Messages:    []internal.Message{{Role: internal.RoleUser, Content: "hi"}},
		},
		{
			Messages: []internal.Message{{Role: internal.RoleUser, Content: "first\n  question"}},
		},
	}

	var buf bytes.Buffer
	displaySessions(&buf, locate.ToolCodex, convs, now)
	out := buf.String()

	for _, want := range []string{"Found 2 codex session(s)", "Refactor the parser", "parser", "first question", "Tip: agent-sessions show codex abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSortNewestFirst(t *testing.T) {
	convs := []*internal.Conversation{
		{SessionID: "none"},
		{SessionID: "old", CreatedAt: internal.NewTimestamp("2024-01-01T00:00:00Z")},
		{SessionID: "new", CreatedAt: internal.NewTimestamp("2025-01-01T00:00:00Z")},
	}
	sortNewestFirst(convs)

	var got []string
	for _, c := range convs {
		got = append(got, c.SessionID)
	}
	if strings.Join(got, ",") != "new,old,none" {
		t.Errorf("order = %v, want new,old,none", got)
	}
}

func TestFormatCreated(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"today", now.Add(-time.Hour), "Today 11:00"},
		{"this week", now.Add(-48 * time.Hour), "Sun 12:00"},
		{"this year", time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC), "Jan 02 03:04"},
		{"older", time.Date(2020, 1, 2, 3, 4, 0, 0, time.UTC), "2020-01-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCreated(tt.t, now); got != tt.want {
				t.Errorf("formatCreated() = %q, want %q", got, tt.want)
			}
		})
	}
}
