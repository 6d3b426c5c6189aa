package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestSearchCommand(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		args     []string
		wantCode int
		want     string
	}{
		{
			name:     "prompted query left blank",
			stdin:    "\n",
			args:     []string{"search"},
			wantCode: 2,
		},
		{
			name:     "no matches",
			args:     []string{"search", "absent", "--no-rg"},
			wantCode: 1,
			want:     "No matches found.",
		},
		{
			name:     "blank selection cancels",
			stdin:    "\n",
			args:     []string{"search", "needle", "--no-rg"},
			wantCode: 0,
			want:     "⟦needle⟧",
		},
		{
			name:     "selection without input cancels",
			args:     []string{"search", "needle", "--no-rg"},
			wantCode: 0,
		},
		{
			name:     "non-numeric selection",
			stdin:    "x1\n",
			args:     []string{"search", "needle", "--no-rg"},
			wantCode: 2,
		},
		{
			name:     "selection out of range",
			stdin:    "2\n",
			args:     []string{"search", "needle", "--no-rg"},
			wantCode: 2,
		},
		{
			name:     "tool search does not cover",
			args:     []string{"search", "needle", "--tool", "trae"},
			wantCode: 2,
		},
		{
			name:     "unknown tool",
			args:     []string{"search", "needle", "--tool", "vim"},
			wantCode: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupCLI(t)
			out, code := run(t, tt.stdin, tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d\n%s", code, tt.wantCode, out)
			}
			if tt.want != "" && !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestSearchCommand_Export(t *testing.T) {
	fs := setupCLI(t)

	out, code := run(t, "1\n", "search", "needle", "--no-rg", "--tool", "codex", "--output-dir", "/exports")
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, out)
	}
	if !strings.Contains(out, "[  1] please find the ⟦needle⟧") {
		t.Errorf("match line missing:\n%s", out)
	}
	if !strings.Contains(out, "Exported to: /exports/codex_needle_s1.json") {
		t.Fatalf("export path missing:\n%s", out)
	}

	data, err := afero.ReadFile(fs, "/exports/codex_needle_s1.json")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var conv map[string]interface{}
	if err := json.Unmarshal(data, &conv); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if conv["session_id"] != "s1" {
		t.Errorf("session_id = %v, want s1", conv["session_id"])
	}

	// --format picks the exporter and the extension
	out, _ = run(t, "1\n", "search", "needle", "--no-rg", "--output-dir", "/exports", "--format", "md")
	if !strings.Contains(out, "Exported to: /exports/codex_needle_s1.md") {
		t.Errorf("markdown export path missing:\n%s", out)
	}
}

func TestSearchCommand_MaxMatches(t *testing.T) {
	setupCLI(t)

	out, code := run(t, "", "search", "e", "--no-rg", "--context-chars", "0", "--max-matches", "2")
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, out)
	}
	if !strings.Contains(out, "[  2]") || strings.Contains(out, "[  3]") {
		t.Errorf("want exactly two matches:\n%s", out)
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		answer   string
		want     int
		wantCode int
	}{
		{"", 0, 0},
		{"  ", 0, 0},
		{"3", 3, 0},
		{" 1 ", 1, 0},
		{"0", 0, 2},
		{"4", 0, 2},
		{"-1", 0, 2},
		{"1.5", 0, 2},
	}
	for _, tt := range tests {
		got, err := parseSelection(tt.answer, 3)
		if got != tt.want || exitCode(err) != tt.wantCode {
			t.Errorf("parseSelection(%q) = %d, %v, want %d (exit %d)", tt.answer, got, err, tt.want, tt.wantCode)
		}
	}
}
