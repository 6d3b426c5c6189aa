package search

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/iksnae/agent-sessions/internal"
)

const (
	maxMetaLen    = 90
	maxSnippetLen = 220

	highlightOn  = "\x1b[1;37m"
	highlightOff = "\x1b[0m"
)

// Formatter renders numbered result lines
type Formatter struct {
	// Home is shown as ~ in snippets and metadata
	Home string
	// Color highlights the query with ANSI bold white instead of ⟦ ⟧
	Color bool
}

// NewFormatter decides colour from w and the environment
func NewFormatter(w io.Writer) *Formatter {
	home, _ := os.UserHomeDir()
	return &Formatter{Home: home, Color: UseColor(w, os.LookupEnv)}
}

// UseColor reports whether w is a terminal that accepts colour
func UseColor(w io.Writer, lookupEnv func(string) (string, bool)) bool {
	if !internal.IsTerminal(w) {
		return false
	}
	if _, set := lookupEnv("NO_COLOR"); set {
		return false
	}
	term, _ := lookupEnv("TERM")
	return strings.ToLower(term) != "dumb"
}

// Line renders match n as two lines: the snippet, then time, source,
// session and metadata columns.
func (f *Formatter) Line(n int, m Match, query string) string {
	sid := m.SessionID
	if sid == "" {
		sid = "?"
	}
	meta := truncate(f.tildeify(m.Meta), maxMetaLen)
	snippet := truncate(f.tildeify(m.Snippet), maxSnippetLen)
	snippet = f.highlight(snippet, f.tildeify(query))

	line1 := fmt.Sprintf("[%3d] %s", n, snippet)
	line2 := "      " + runewidth.FillLeft(m.DisplayTime, 20) + " " +
		runewidth.FillRight(string(m.Source), 22) + " " +
		runewidth.FillRight(sid, 26)
	if meta != "" {
		line2 += " " + meta
	}
	return line1 + "\n" + line2
}

func (f *Formatter) tildeify(s string) string {
	if f.Home == "" || s == "" {
		return s
	}
	return strings.ReplaceAll(s, f.Home, "~")
}

func (f *Formatter) highlight(text, needle string) string {
	if needle == "" || !strings.Contains(text, needle) {
		return text
	}
	if f.Color {
		return strings.ReplaceAll(text, needle, highlightOn+needle+highlightOff)
	}
	return strings.ReplaceAll(text, needle, "⟦"+needle+"⟧")
}

// truncate keeps at most max characters, ending in … when cut
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
