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

func (e *Engine) searchGemini(ctx context.Context, root string, q Query) []Match {
	var matches []Match
	for _, path := range e.candidates(ctx, q, "session-*.json", filepath.Join(root, "tmp")) {
		data, err := afero.ReadFile(e.Fs, path)
		if err != nil || !gjson.ValidBytes(data) {
			internal.LogDebug("gemini search: skipping %s", path)
			continue
		}
		session := gjson.ParseBytes(data)
		sid := session.Get("sessionId").String()
		project := session.Get("projectHash").String()
		lastUpdated := value(session.Get("lastUpdated"))
		started := value(session.Get("startTime"))

		session.Get("messages").ForEach(func(key, msg gjson.Result) bool {
			if !msg.IsObject() {
				return true
			}
			idx := int(key.Int())

			var candidates []string
			if content := msg.Get("content"); content.Type == gjson.String && content.String() != "" {
				candidates = append(candidates, content.String())
			}
			if thoughts := msg.Get("thoughts"); value(thoughts) != nil {
				candidates = append(candidates, thoughts.Raw)
			}
			candidates = append(candidates, msg.Raw)

			for _, text := range candidates {
				if !strings.Contains(text, q.Text) {
					continue
				}
				st := stampOf(truthy(value(msg.Get("timestamp")), lastUpdated, started))
				info := metaLine("project", project, "type", msg.Get("type").String(), "msg", strconv.Itoa(idx))
				hits(text, q, func(snippet string) {
					matches = append(matches, Match{
						Source:      internal.SourceGemini,
						SessionID:   sid,
						SortTime:    st.sort,
						DisplayTime: st.display,
						Snippet:     snippet,
						Meta:        info,
						Ref:         decoder.Ref{Source: internal.SourceGemini, SessionFile: path},
					})
				})
				break
			}
			return true
		})
	}
	return matches
}
