package search

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
)

func (e *Engine) searchCursor(root string, q Query) []Match {
	var matches []Match
	for _, ws := range decoder.WorkspaceDBs(e.Fs, root) {
		found, err := e.searchCursorWorkspace(ws, q)
		if err != nil {
			internal.LogDebug("cursor search %s: %v", ws.Path, err)
			continue
		}
		matches = append(matches, found...)
	}

	if path, ok := decoder.GlobalDB(e.Fs, root); ok {
		found, err := e.searchCursorGlobal(path, q)
		if err != nil {
			internal.LogDebug("cursor search %s: %v", path, err)
		} else {
			matches = append(matches, found...)
		}
	}
	return matches
}

// cursorWorkspaceValues are the ItemTable values search reads
type cursorWorkspaceValues struct {
	chat, composers, prompts, generations gjson.Result
}

func readCursorWorkspace(path string) (*cursorWorkspaceValues, error) {
	db, err := internal.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	get := func(key string) (gjson.Result, error) {
		v, ok, err := internal.GetItemTable(db, key)
		if err != nil || !ok || !gjson.Valid(v) {
			return gjson.Result{}, err
		}
		return gjson.Parse(v), nil
	}

	var vals cursorWorkspaceValues
	for _, f := range []struct {
		key string
		dst *gjson.Result
	}{
		{decoder.CursorChatKey, &vals.chat},
		{decoder.CursorComposerKey, &vals.composers},
		{decoder.CursorPromptsKey, &vals.prompts},
		{decoder.CursorGenerationsKey, &vals.generations},
	} {
		r, err := get(f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = r
	}
	return &vals, nil
}

// bubbleHaystack searches the bubble's text first and its whole record
// when the text misses.
func bubbleHaystack(bubble gjson.Result, text, query string) (string, bool) {
	if strings.Contains(text, query) {
		return text, true
	}
	return bubble.Raw, strings.Contains(bubble.Raw, query)
}

func (e *Engine) searchCursorWorkspace(ws decoder.WorkspaceDB, q Query) ([]Match, error) {
	info, err := e.Fs.Stat(ws.Path)
	if err != nil {
		return nil, err
	}
	mtime := mtimeValue(info.ModTime())
	dbStamp := stampOf(mtime)

	vals, err := readCursorWorkspace(ws.Path)
	if err != nil {
		return nil, err
	}

	var matches []Match
	add := func(m Match, text string) {
		hits(text, q, func(snippet string) {
			m.Snippet = snippet
			matches = append(matches, m)
		})
	}

	vals.chat.Get("tabs").ForEach(func(_, tab gjson.Result) bool {
		tabID := tab.Get("tabId").String()
		if !tab.IsObject() || tabID == "" {
			return true
		}
		title := tab.Get("chatTitle").String()
		tab.Get("bubbles").ForEach(func(key, bubble gjson.Result) bool {
			if !bubble.IsObject() {
				return true
			}
			text := bubble.Get("text").String()
			if raw := bubble.Get("rawText"); raw.Exists() {
				text = raw.String()
			}
			haystack, ok := bubbleHaystack(bubble, text, q.Text)
			if !ok {
				return true
			}
			add(Match{
				Source:      internal.SourceCursorChat,
				SessionID:   tabID,
				SortTime:    dbStamp.sort,
				DisplayTime: dbStamp.display,
				Meta:        metaLine("ws", ws.ID, "tab", tabID, "title", title, "bubble", key.String(), "db", ws.Path),
				Ref:         decoder.Ref{Source: internal.SourceCursorChat, DBPath: ws.Path, WorkspaceID: ws.ID, TabID: tabID},
			}, haystack)
			return true
		})
		return true
	})

	vals.composers.Get("allComposers").ForEach(func(_, composer gjson.Result) bool {
		id := composer.Get("composerId").String()
		if !composer.IsObject() || id == "" {
			return true
		}
		name := composerName(composer)
		st := stampOf(truthy(value(composer.Get("lastUpdatedAt")), value(composer.Get("createdAt")), mtime))
		composer.Get("conversation").ForEach(func(key, bubble gjson.Result) bool {
			if !bubble.IsObject() {
				return true
			}
			haystack, ok := bubbleHaystack(bubble, bubble.Get("text").String(), q.Text)
			if !ok {
				return true
			}
			add(Match{
				Source:      internal.SourceCursorWorkspaceComposer,
				SessionID:   id,
				SortTime:    st.sort,
				DisplayTime: st.display,
				Meta:        metaLine("ws", ws.ID, "composer", id, "name", name, "bubble", key.String(), "db", ws.Path),
				Ref:         decoder.Ref{Source: internal.SourceCursorWorkspaceComposer, DBPath: ws.Path, WorkspaceID: ws.ID, ComposerID: id},
			}, haystack)
			return true
		})
		return true
	})

	prompts, generations := vals.prompts.Array(), vals.generations.Array()
	if !vals.prompts.IsArray() {
		prompts = nil
	}
	if !vals.generations.IsArray() {
		generations = nil
	}
	for i := 0; i < max(len(prompts), len(generations)); i++ {
		var texts []string
		if i < len(prompts) && prompts[i].IsObject() {
			texts = append(texts, prompts[i].Get("text").String())
		}
		if i < len(generations) && generations[i].IsObject() {
			g := generations[i]
			text := g.Get("message").String()
			if t := g.Get("text"); t.Exists() {
				text = t.String()
			}
			texts = append(texts, text)
		}
		for _, text := range texts {
			if !strings.Contains(text, q.Text) {
				continue
			}
			add(Match{
				Source:      internal.SourceCursorAIService,
				SessionID:   fmt.Sprintf("%s:%d", ws.ID, i),
				SortTime:    dbStamp.sort,
				DisplayTime: dbStamp.display,
				Meta:        metaLine("ws", ws.ID, "idx", strconv.Itoa(i), "db", ws.Path),
				Ref:         decoder.Ref{Source: internal.SourceCursorAIService, DBPath: ws.Path, WorkspaceID: ws.ID, Index: i},
			}, text)
		}
	}

	return matches, nil
}

func composerName(composer gjson.Result) string {
	if name := composer.Get("name"); name.Exists() {
		return name.String()
	}
	return "Untitled"
}

func (e *Engine) searchCursorGlobal(path string, q Query) ([]Match, error) {
	info, err := e.Fs.Stat(path)
	if err != nil {
		return nil, err
	}
	mtime := mtimeValue(info.ModTime())

	db, err := internal.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := queryComposerRows(db, q.Text)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, row := range rows {
		switch {
		case strings.HasPrefix(row.Key, decoder.ComposerDataPrefix):
			matches = append(matches, globalComposerMatches(row, path, mtime, q)...)
		case strings.HasPrefix(row.Key, decoder.BubblePrefix):
			matches = append(matches, globalBubbleMatches(row, path, mtime, q)...)
		}
	}
	return matches, nil
}

// queryComposerRows fetches composer and bubble rows whose value contains
// the query, letting SQLite do the substring test.
func queryComposerRows(db *sql.DB, query string) ([]internal.KeyValuePair, error) {
	return internal.QueryCursorDiskKVContaining(db, []string{decoder.ComposerDataPrefix, decoder.BubblePrefix}, query)
}

func globalComposerMatches(row internal.KeyValuePair, path string, mtime float64, q Query) []Match {
	if !gjson.Valid(row.Value) {
		return nil
	}
	data := gjson.Parse(row.Value)
	if !data.IsObject() {
		return nil
	}

	id := data.Get("composerId").String()
	if id == "" {
		id = strings.TrimPrefix(row.Key, decoder.ComposerDataPrefix)
	}
	name := composerName(data)
	st := stampOf(truthy(value(data.Get("lastUpdatedAt")), value(data.Get("createdAt")), mtime))
	base := Match{
		Source:      internal.SourceCursorComposer,
		SessionID:   id,
		SortTime:    st.sort,
		DisplayTime: st.display,
		Ref:         decoder.Ref{Source: internal.SourceCursorComposer, DBPath: path, ComposerID: id},
	}

	var matches []Match
	add := func(meta, text string) {
		hits(text, q, func(snippet string) {
			m := base
			m.Meta = meta
			m.Snippet = snippet
			matches = append(matches, m)
		})
	}

	convo := data.Get("conversation")
	if !convo.IsArray() || len(convo.Array()) == 0 {
		// the hit is in metadata or a field outside the inline conversation
		add(metaLine("composer", id, "name", name, "db", path), row.Value)
		return matches
	}
	convo.ForEach(func(key, bubble gjson.Result) bool {
		if !bubble.IsObject() {
			return true
		}
		if haystack, ok := bubbleHaystack(bubble, bubble.Get("text").String(), q.Text); ok {
			add(metaLine("composer", id, "name", name, "bubble", key.String(), "db", path), haystack)
		}
		return true
	})
	return matches
}

func globalBubbleMatches(row internal.KeyValuePair, path string, mtime float64, q Query) []Match {
	// bubbleId:<composer>:<bubble>
	parts := strings.Split(row.Key, ":")
	if len(parts) < 2 || parts[1] == "" {
		return nil
	}
	composerID := parts[1]
	bubbleID := ""
	if len(parts) > 2 {
		bubbleID = parts[2]
	}

	if !gjson.Valid(row.Value) {
		return nil
	}
	bubble := gjson.Parse(row.Value)
	if !bubble.IsObject() {
		return nil
	}
	haystack, ok := bubbleHaystack(bubble, bubble.Get("text").String(), q.Text)
	if !ok {
		return nil
	}

	st := stampOf(truthy(value(bubble.Get("createdAt")), value(bubble.Get("timestamp")), mtime))
	meta := metaLine("composer", composerID, "bubble", bubbleID, "db", path)
	var matches []Match
	hits(haystack, q, func(snippet string) {
		matches = append(matches, Match{
			Source:      internal.SourceCursorComposer,
			SessionID:   composerID,
			SortTime:    st.sort,
			DisplayTime: st.display,
			Snippet:     snippet,
			Meta:        meta,
			Ref:         decoder.Ref{Source: internal.SourceCursorComposer, DBPath: path, ComposerID: composerID},
		})
	})
	return matches
}
