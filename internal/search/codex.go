package search

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
)

func (e *Engine) searchCodex(ctx context.Context, root string, q Query) []Match {
	files := e.candidates(ctx, q, "*.jsonl", filepath.Join(root, "sessions"), filepath.Join(root, "projects"))

	var matches []Match
	for _, path := range files {
		var (
			meta  gjson.Result
			found []Match
		)
		err := e.eachLine(path, func(line string) {
			if !meta.Exists() && strings.Contains(line, "session_meta") {
				if obj := gjson.Parse(line); obj.Get("type").String() == "session_meta" {
					meta = obj.Get("payload")
				}
			}
			if !strings.Contains(line, q.Text) {
				return
			}

			var obj gjson.Result
			if gjson.Valid(line) {
				obj = gjson.Parse(line)
			}
			text := codexSnippetText(obj, line, q.Text)
			st := stampOf(value(obj.Get("timestamp")), value(meta.Get("timestamp")))
			info := metaLine("cwd", meta.Get("cwd").String())

			hits(text, q, func(snippet string) {
				found = append(found, Match{
					Source:      internal.SourceCodex,
					SessionID:   meta.Get("id").String(),
					SortTime:    st.sort,
					DisplayTime: st.display,
					Snippet:     snippet,
					Meta:        info,
					Ref:         decoder.Ref{Source: internal.SourceCodex, SessionFile: path},
				})
			})
		})
		if err != nil {
			internal.LogDebug("codex search %s: %v", path, err)
			continue
		}

		// session_meta may follow the first hit
		if id := meta.Get("id").String(); id != "" {
			for i := range found {
				if found[i].SessionID == "" {
					found[i].SessionID = id
				}
			}
		}
		matches = append(matches, found...)
	}
	return matches
}

// codexSnippetText narrows an event line to the payload field holding the
// query, falling back to the whole line.
func codexSnippetText(obj gjson.Result, line, query string) string {
	if !obj.IsObject() || obj.Get("type").String() != "event_msg" {
		return line
	}
	payload := obj.Get("payload")

	var fields []string
	switch payload.Get("type").String() {
	case "user_message", "agent_message":
		fields = append(fields, "message")
	}
	fields = append(fields, "output", "diff", "context", "input")

	for _, field := range fields {
		r := payload.Get(field)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		if text := textOf(r); strings.Contains(text, query) {
			return text
		}
	}
	return line
}
