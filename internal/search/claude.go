package search

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
)

func (e *Engine) searchClaude(ctx context.Context, root string, q Query) []Match {
	dir := filepath.Join(root, "projects")
	if info, err := e.Fs.Stat(dir); err != nil || !info.IsDir() {
		dir = root
	}

	var matches []Match
	for _, path := range e.candidates(ctx, q, "*.jsonl", dir) {
		// subagent sidechains are folded into their parent session
		if strings.HasPrefix(filepath.Base(path), "agent-") {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(path), ".jsonl")

		var found []Match
		err := e.eachLine(path, func(line string) {
			if !strings.Contains(line, q.Text) {
				return
			}
			var entry gjson.Result
			if gjson.Valid(line) {
				entry = gjson.Parse(line)
			}
			sid := entry.Get("sessionId").String()
			if sid == "" {
				sid = stem
			}
			text := claudeSnippetText(entry, line, q.Text)
			st := stampOf(value(entry.Get("timestamp")))
			info := metaLine("cwd", entry.Get("cwd").String(), "type", entry.Get("type").String())
			hits(text, q, func(snippet string) {
				found = append(found, Match{
					Source:      internal.SourceClaudeCode,
					SessionID:   sid,
					SortTime:    st.sort,
					DisplayTime: st.display,
					Snippet:     snippet,
					Meta:        info,
					Ref:         decoder.Ref{Source: internal.SourceClaudeCode, SessionFile: path},
				})
			})
		})
		if err != nil {
			internal.LogDebug("claude search %s: %v", path, err)
			continue
		}
		matches = append(matches, found...)
	}
	return matches
}

// claudeSnippetText prefers the message text, then the content block that
// holds the query, then the whole line.
func claudeSnippetText(entry gjson.Result, line, query string) string {
	content := entry.Get("message.content")
	if content.Type == gjson.String {
		if text := content.String(); strings.Contains(text, query) {
			return text
		}
		return line
	}

	found := ""
	content.ForEach(func(_, block gjson.Result) bool {
		for _, field := range []string{"text", "thinking", "content", "input"} {
			r := block.Get(field)
			if !r.Exists() {
				continue
			}
			if text := textOf(r); strings.Contains(text, query) {
				found = text
				return false
			}
		}
		return true
	})
	if found != "" {
		return found
	}
	return line
}
