package search

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
)

func (e *Engine) searchCopilot(ctx context.Context, root string, q Query) []Match {
	matches := e.searchCopilotEvents(ctx, root, q)
	return append(matches, e.searchCopilotHistory(ctx, root, q)...)
}

func (e *Engine) searchCopilotEvents(ctx context.Context, root string, q Query) []Match {
	var matches []Match
	for _, path := range e.candidates(ctx, q, "*.jsonl", filepath.Join(root, "session-state")) {
		var (
			sid   string
			found []Match
		)
		err := e.eachLine(path, func(line string) {
			var ev gjson.Result
			if gjson.Valid(line) {
				ev = gjson.Parse(line)
			}
			evType := ev.Get("type").String()
			if evType == "session.start" && sid == "" {
				sid = firstString(ev.Get("data.sessionId"), ev.Get("data.session_id"))
			}
			if !strings.Contains(line, q.Text) {
				return
			}

			text := line
			for _, field := range []string{"data.content", "data.arguments", "data.result"} {
				r := ev.Get(field)
				if !r.Exists() {
					continue
				}
				if t := textOf(r); strings.Contains(t, q.Text) {
					text = t
					break
				}
			}
			st := stampOf(value(ev.Get("timestamp")))
			info := metaLine("type", evType, "tool", ev.Get("data.toolName").String())
			hits(text, q, func(snippet string) {
				found = append(found, Match{
					Source:      internal.SourceCopilot,
					SessionID:   sid,
					SortTime:    st.sort,
					DisplayTime: st.display,
					Snippet:     snippet,
					Meta:        info,
					Ref:         decoder.Ref{Source: internal.SourceCopilot, SessionFile: path},
				})
			})
		})
		if err != nil {
			internal.LogDebug("copilot search %s: %v", path, err)
			continue
		}

		if sid == "" {
			sid = decoder.CopilotFallbackID(path)
		}
		for i := range found {
			if found[i].SessionID == "" {
				found[i].SessionID = sid
			}
		}
		matches = append(matches, found...)
	}
	return matches
}

func (e *Engine) searchCopilotHistory(ctx context.Context, root string, q Query) []Match {
	var matches []Match
	for _, path := range e.candidates(ctx, q, "session_*.json", filepath.Join(root, "history-session-state")) {
		data, err := afero.ReadFile(e.Fs, path)
		if err != nil || !gjson.ValidBytes(data) {
			internal.LogDebug("copilot search: skipping %s", path)
			continue
		}
		hist := gjson.ParseBytes(data)
		sid := hist.Get("sessionId").String()
		if sid == "" {
			sid = decoder.CopilotHistoryID(path)
		}
		st := stampOf(value(hist.Get("startTime")))

		hist.Get("chatMessages").ForEach(func(key, msg gjson.Result) bool {
			text := textOf(msg.Get("content"))
			if !strings.Contains(text, q.Text) {
				text = msg.Raw
			}
			if !strings.Contains(text, q.Text) {
				return true
			}
			info := metaLine("role", msg.Get("role").String(), "msg", strconv.Itoa(int(key.Int())), "format", "history")
			hits(text, q, func(snippet string) {
				matches = append(matches, Match{
					Source:      internal.SourceCopilot,
					SessionID:   sid,
					SortTime:    st.sort,
					DisplayTime: st.display,
					Snippet:     snippet,
					Meta:        info,
					Ref:         decoder.Ref{Source: internal.SourceCopilot, SessionFile: path},
				})
			})
			return true
		})
	}
	return matches
}
