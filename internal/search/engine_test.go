package search

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
	"github.com/iksnae/agent-sessions/internal/locate"
	"github.com/iksnae/agent-sessions/testutil"
)

type obj = map[string]interface{}
type arr = []interface{}

func write(t *testing.T, fs afero.Fs, path string, v interface{}) {
	t.Helper()
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	default:
		var err error
		data, err = json.Marshal(v)
		require.NoError(t, err)
	}
	require.NoError(t, afero.WriteFile(fs, path, data, 0644))
}

func jsonl(t *testing.T, records ...interface{}) string {
	t.Helper()
	var b strings.Builder
	for _, r := range records {
		if s, ok := r.(string); ok {
			b.WriteString(s)
		} else {
			data, err := json.Marshal(r)
			require.NoError(t, err)
			b.Write(data)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func parse(s string) gjson.Result { return gjson.Parse(s) }

func rootsOf(m map[locate.Tool][]string) func(locate.Tool) []string {
	return func(t locate.Tool) []string { return m[t] }
}

func search(t *testing.T, e *Engine, q string, tools ...locate.Tool) []Match {
	t.Helper()
	matches, err := e.Search(context.Background(), Query{Text: q, ContextChars: DefaultContextChars}, tools)
	require.NoError(t, err)
	return matches
}

func TestEngine_Search_Validation(t *testing.T) {
	e := NewEngine(afero.NewMemMapFs(), rootsOf(nil), nil)

	_, err := e.Search(context.Background(), Query{}, nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = e.Search(context.Background(), Query{Text: "x"}, []locate.Tool{locate.ToolTrae})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Roots = rootsOf(map[locate.Tool][]string{locate.ToolCodex: {"/codex"}})
	_, err = e.Search(ctx, Query{Text: "x"}, []locate.Tool{locate.ToolCodex})
	assert.ErrorIs(t, err, context.Canceled)

	assert.True(t, Supported(locate.ToolCursor))
	assert.False(t, Supported(locate.ToolWindsurf))
}

func TestEngine_SearchCodex(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/codex/sessions/2025/01/rollout-2025-01-01.jsonl"
	write(t, fs, path, jsonl(t,
		obj{"type": "event_msg", "timestamp": "2025-01-01T00:00:01Z", "payload": obj{"type": "user_message", "message": "find the needle here"}},
		obj{"type": "session_meta", "timestamp": "2025-01-01T00:00:00Z", "payload": obj{"id": "sess-1", "cwd": "/work"}},
		obj{"type": "response_item", "payload": obj{"type": "message", "content": "needle"}},
		"broken needle line",
	))
	write(t, fs, "/codex/sessions/other.jsonl", "no match\n")
	write(t, fs, "/codex/projects/p/notes.txt", "needle")

	e := NewEngine(fs, rootsOf(map[locate.Tool][]string{locate.ToolCodex: {"/codex", "/codex"}}), nil)
	matches := search(t, e, "needle", locate.ToolCodex)
	require.Len(t, matches, 3, "duplicate roots are searched once")

	for _, m := range matches {
		assert.Equal(t, internal.SourceCodex, m.Source)
		assert.Equal(t, "sess-1", m.SessionID, "session id is filled from a later session_meta")
		assert.Equal(t, path, m.Ref.SessionFile)
	}

	// meta timestamp (00:00:00) sorts ahead of the event's own (00:00:01)
	last := matches[2]
	assert.Equal(t, "find the needle here", last.Snippet)
	assert.Equal(t, "", last.Meta, "cwd was unknown when the hit was read")
	assert.Equal(t, "2025-01-01T00:00:01Z", last.DisplayTime)
	assert.Equal(t, "cwd=/work", matches[0].Meta)

	conv, err := decoder.Resolve(fs, last.Ref)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", conv.SessionID)
}

func TestCodexSnippetText(t *testing.T) {
	line := `{"type":"event_msg","payload":{"type":"exec","output":"out","input":{"cmd":"needle"}}}`
	assert.Equal(t, `{"cmd":"needle"}`, codexSnippetText(parse(line), line, "needle"))

	line = `{"type":"event_msg","payload":{"type":"agent_message","message":"a needle"}}`
	assert.Equal(t, "a needle", codexSnippetText(parse(line), line, "needle"))

	line = `{"type":"turn_context","payload":{"cwd":"needle"}}`
	assert.Equal(t, line, codexSnippetText(parse(line), line, "needle"))
}

func TestEngine_SearchGemini(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/gemini/tmp/h1/chats/session-2025-01-02.json"
	write(t, fs, path, obj{
		"sessionId":   "g1",
		"projectHash": "ph",
		"startTime":   "2025-01-02T00:00:00Z",
		"messages": arr{
			obj{"type": "user", "content": "needle in content", "timestamp": "2025-01-02T00:00:05Z"},
			obj{"type": "gemini", "content": "no", "thoughts": arr{obj{"subject": "s", "description": "a needle thought"}}},
			"not an object",
		},
	})
	write(t, fs, "/gemini/tmp/h1/chats/session-bad.json", "{needle")

	e := NewEngine(fs, rootsOf(map[locate.Tool][]string{locate.ToolGemini: {"/gemini"}}), nil)
	matches := search(t, e, "needle", locate.ToolGemini)
	require.Len(t, matches, 2)

	assert.Equal(t, "project=ph type=gemini msg=1", matches[0].Meta, "falls back to startTime, which is older")
	assert.Contains(t, matches[0].Snippet, "a needle thought")
	assert.Equal(t, "project=ph type=user msg=0", matches[1].Meta)
	assert.Equal(t, "needle in content", matches[1].Snippet)
	assert.Equal(t, "g1", matches[1].SessionID)
	assert.Equal(t, internal.SourceGemini, matches[1].Ref.Source)
}

func openCodeSearchRecords() []testutil.KVRecord {
	return []testutil.KVRecord{
		{Key: "project/p1", Value: `{"id":"p1","path":"/repo"}`},
		{Key: "session/p1/ses1", Value: `{"id":"ses1","projectID":"p1","title":"Refactor","time":{"updated":1700000005000}}`},
		{Key: "message/ses1/msg1", Value: `{"id":"msg1","role":"user","time":{"created":1700000000000}}`},
		{Key: "part/msg1/prt1", Value: `{"type":"text","text":"the needle part"}`},
		{Key: "part/msg2/prt1", Value: `{"type":"tool","state":{"output":"needle out"}}`},
		{Key: "part/msg1/prt2", Value: `{"type":"text","text":"unrelated"}`},
	}
}

func checkOpenCodeMatches(t *testing.T, matches []Match, source internal.Source) {
	t.Helper()
	require.Len(t, matches, 2)

	orphan := matches[0]
	assert.Nil(t, orphan.SortTime, "part without a message has no time")
	assert.Equal(t, "", orphan.SessionID)
	assert.Equal(t, "part=tool", orphan.Meta)

	m := matches[1]
	assert.Equal(t, source, m.Source)
	assert.Equal(t, "ses1", m.SessionID)
	assert.Equal(t, "cwd=/repo title=Refactor part=text session=ses1", m.Meta)
	assert.Equal(t, "the needle part", m.Snippet)
	require.NotNil(t, m.SortTime)
	assert.Equal(t, 1700000000.0, *m.SortTime)
	assert.Equal(t, "ses1", m.Ref.SessionID)
}

func TestEngine_SearchOpenCode(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, r := range openCodeSearchRecords() {
		write(t, fs, filepath.Join("/oc/storage", r.Key)+".json", r.Value)
	}

	e := NewEngine(fs, rootsOf(map[locate.Tool][]string{locate.ToolOpenCode: {"/oc/storage"}}), nil)
	matches := search(t, e, "needle", locate.ToolOpenCode)
	checkOpenCodeMatches(t, matches, internal.SourceOpenCode)
	assert.Equal(t, "/oc/storage", matches[1].Ref.StorageBase)

	conv, err := decoder.Resolve(fs, matches[1].Ref)
	require.NoError(t, err)
	assert.Equal(t, "Refactor", conv.Title)
}

func TestEngine_SearchOpenCodeDesktop(t *testing.T) {
	fs := afero.NewMemMapFs()
	dat := "/desk/ai.opencode.desktop/opencode.global.dat"
	write(t, fs, dat, string(testutil.BuildKVStore(openCodeSearchRecords()...)))

	e := NewEngine(fs, rootsOf(map[locate.Tool][]string{locate.ToolOpenCodeDesktop: {"/desk/ai.opencode.desktop"}}), nil)
	matches := search(t, e, "needle", locate.ToolOpenCodeDesktop)
	checkOpenCodeMatches(t, matches, internal.SourceOpenCodeDesktop)
	assert.Equal(t, dat, matches[1].Ref.StorageBase)
}

func TestEngine_SearchClaude(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/claude/projects/-home-u-proj/s1.jsonl", jsonl(t,
		obj{"type": "user", "sessionId": "c1", "cwd": "/home/u/proj", "timestamp": "2025-03-01T00:00:00Z",
			"message": obj{"role": "user", "content": "where is the needle"}},
		obj{"type": "assistant", "sessionId": "c1", "timestamp": "2025-03-01T00:00:02Z",
			"message": obj{"role": "assistant", "content": arr{
				obj{"type": "text", "text": "looking"},
				obj{"type": "tool_use", "name": "Grep", "input": obj{"pattern": "needle"}},
			}}},
	))
	write(t, fs, "/claude/projects/-home-u-proj/agent-1.jsonl", jsonl(t, obj{"message": obj{"content": "needle"}}))

	e := NewEngine(fs, rootsOf(map[locate.Tool][]string{locate.ToolClaudeCode: {"/claude"}}), nil)
	matches := search(t, e, "needle", locate.ToolClaudeCode)
	require.Len(t, matches, 2, "agent sidechains are skipped")

	assert.Equal(t, "where is the needle", matches[0].Snippet)
	assert.Equal(t, "cwd=/home/u/proj type=user", matches[0].Meta)
	assert.Equal(t, `{"pattern":"needle"}`, matches[1].Snippet)
	assert.Equal(t, "c1", matches[1].SessionID)
}

func TestEngine_SearchCopilot(t *testing.T) {
	fs := afero.NewMemMapFs()
	write(t, fs, "/copilot/session-state/abc/events.jsonl", jsonl(t,
		obj{"type": "user.message", "timestamp": "2025-04-01T00:00:01Z", "data": obj{"content": "needle first"}},
		obj{"type": "tool.execution_start", "timestamp": "2025-04-01T00:00:02Z", "data": obj{"toolName": "bash", "arguments": obj{"cmd": "grep needle"}}},
	))
	write(t, fs, "/copilot/history-session-state/session_h9_123.json", obj{
		"startTime":    "2024-01-01T00:00:00Z",
		"chatMessages": arr{obj{"role": "user", "content": "old needle"}},
	})

	e := NewEngine(fs, rootsOf(map[locate.Tool][]string{locate.ToolCopilot: {"/copilot"}}), nil)
	matches := search(t, e, "needle", locate.ToolCopilot)
	require.Len(t, matches, 3)

	assert.Equal(t, "h9", matches[0].SessionID)
	assert.Equal(t, "role=user msg=0 format=history", matches[0].Meta)
	assert.Equal(t, "abc", matches[1].SessionID, "event stream without session.start uses its directory")
	assert.Equal(t, "needle first", matches[1].Snippet)
	assert.Equal(t, `{"cmd":"grep needle"}`, matches[2].Snippet)
	assert.Equal(t, "type=tool.execution_start tool=bash", matches[2].Meta)
}

func TestEngine_SearchCursor(t *testing.T) {
	root := filepath.Join(testutil.CreateTempDir(t), "Cursor")
	user := filepath.Join(root, "User")

	wsDir := testutil.CreateWorkspaceFixture(t, user, "ws1", "/home/u/proj")
	wsDB := filepath.Join(wsDir, "state.vscdb")
	db := testutil.CreateVSCDB(t, wsDB)
	testutil.InsertItemJSON(t, db, decoder.CursorChatKey, obj{"tabs": arr{
		obj{"tabId": "t1", "chatTitle": "Chat", "bubbles": arr{
			obj{"type": "user", "text": "plain", "rawText": "chat needle"},
			obj{"type": "ai", "text": "other", "codeBlocks": arr{obj{"code": "needle()"}}},
		}},
	}})
	testutil.InsertItemJSON(t, db, decoder.CursorComposerKey, obj{"allComposers": arr{
		obj{"composerId": "wc1", "name": "Speedup", "lastUpdatedAt": 1700000100000.0, "conversation": arr{
			obj{"type": 1, "text": "composer needle"},
		}},
	}})
	testutil.InsertItemJSON(t, db, decoder.CursorPromptsKey, arr{obj{"text": "prompt needle"}})
	testutil.InsertItemJSON(t, db, decoder.CursorGenerationsKey, arr{obj{"message": "gen needle"}})

	globalPath := filepath.Join(user, "globalStorage", "state.vscdb")
	gdb := testutil.CreateVSCDB(t, globalPath)
	testutil.InsertDiskKVJSON(t, gdb, "composerData:c2", obj{"composerId": "c2", "name": "Inline", "createdAt": 1700000000000.0,
		"conversation": arr{obj{"text": "inline needle"}, obj{"text": "miss"}}})
	testutil.InsertDiskKVJSON(t, gdb, "composerData:c3", obj{"name": "needle named"})
	testutil.InsertDiskKVJSON(t, gdb, "bubbleId:c1:b1", obj{"text": "bubble needle", "createdAt": "2023-11-14T00:00:00Z"})
	testutil.InsertDiskKVJSON(t, gdb, "bubbleId:c1:b2", obj{"text": "miss"})

	e := NewEngine(afero.NewOsFs(), rootsOf(map[locate.Tool][]string{locate.ToolCursor: {root}}), nil)
	matches := search(t, e, "needle", locate.ToolCursor)

	got := make(map[internal.Source][]Match)
	for _, m := range matches {
		got[m.Source] = append(got[m.Source], m)
	}
	require.Len(t, got[internal.SourceCursorChat], 2)
	require.Len(t, got[internal.SourceCursorWorkspaceComposer], 1)
	require.Len(t, got[internal.SourceCursorAIService], 2)
	require.Len(t, got[internal.SourceCursorComposer], 3)

	chat := got[internal.SourceCursorChat]
	assert.Equal(t, "chat needle", chat[0].Snippet)
	assert.Contains(t, chat[1].Snippet, "needle()", "bubble record is searched when its text misses")
	assert.Equal(t, "ws=ws1 tab=t1 title=Chat bubble=0 db="+wsDB, chat[0].Meta)
	assert.Equal(t, decoder.Ref{Source: internal.SourceCursorChat, DBPath: wsDB, WorkspaceID: "ws1", TabID: "t1"}, chat[0].Ref)

	wc := got[internal.SourceCursorWorkspaceComposer][0]
	require.NotNil(t, wc.SortTime)
	assert.Equal(t, 1700000100.0, *wc.SortTime)

	ai := got[internal.SourceCursorAIService]
	assert.Equal(t, "ws1:0", ai[0].SessionID)
	assert.Equal(t, 0, ai[1].Ref.Index)

	ids := map[string]string{}
	for _, m := range got[internal.SourceCursorComposer] {
		ids[m.Snippet] = m.SessionID
	}
	assert.Equal(t, "c2", ids["inline needle"])
	assert.Equal(t, "c1", ids["bubble needle"])
	assert.Contains(t, matches[0].Meta, "composer=c1 bubble=b1", "the 2023 bubble is the oldest match")

	conv, err := decoder.Resolve(afero.NewOsFs(), chat[0].Ref)
	require.NoError(t, err)
	assert.Equal(t, "t1", conv.SessionID)
}
