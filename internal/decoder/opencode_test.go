package decoder

import (
	"encoding/json"
	"errors"
	"path"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/testutil"
)

// openCodeRecords is one project with a titled session, a corrupt message
// and an orphan message directory with no session record.
func openCodeRecords() []testutil.KVRecord {
	return []testutil.KVRecord{
		{Key: "project/p1", Value: `{"id":"p1","worktree":"/repo"}`},
		{Key: "session/p1/ses1", Value: `{"id":"ses1","projectID":"p1","title":"Refactor","parentID":"ses0","time":{"created":1700000000000,"updated":1700000005000}}`},
		{Key: "message/ses1/msg1", Value: `{"id":"msg1","role":"user","time":{"created":1700000000000}}`},
		{Key: "message/ses1/msg2", Value: `{"id":"msg2","role":"assistant","modelID":"m1","mode":"build","cost":0.5,"tokens":{"input":3},"time":{"created":1700000001000}}`},
		{Key: "message/ses1/msg3", Value: `{"id":"msg3","role":"user","time":{"created":1700000002000}}`},
		{Key: "part/msg1/prt1", Value: `{"type":"text","text":"hello "}`},
		{Key: "part/msg1/prt2", Value: `{"type":"text","text":"world"}`},
		{Key: "part/msg2/prt1", Value: `{"type":"reasoning","text":"hmm","time":{"start":1700000001000}}`},
		{Key: "part/msg2/prt2", Value: `{"type":"tool","callID":"c1","tool":"bash","state":{"status":"completed","input":{"command":"ls"},"output":"a.go","time":{"start":1700000001500}}}`},
		{Key: "part/msg2/prt3", Value: `{"type":"tool","callID":"c2","tool":"read","state":{"status":"running","input":{"path":"a.go"}}}`},
		{Key: "part/msg2/prt4", Value: `{"type":"code","language":"go","text":"package main"}`},
		{Key: "part/msg3/prt1", Value: `{"type":"tool-result","toolCallID":"c2","output":"contents"}`},
		{Key: "message/ses2/msg9", Value: `{"id":"msg9","role":"user","time":{"created":1700000100000}}`},
		{Key: "part/msg9/prt1", Value: `{"type":"text","text":"cd /tmp/proj then run the tests"}`},
	}
}

// writeOpenCodeTree lays the records out as <base>/<key>.json and adds one
// corrupt message file.
func writeOpenCodeTree(t *testing.T, fs afero.Fs, base string) {
	t.Helper()
	for _, r := range openCodeRecords() {
		writeFile(t, fs, path.Join(base, r.Key)+".json", []byte(r.Value))
	}
	writeFile(t, fs, path.Join(base, "message/ses1/msg4.json"), []byte("{broken"))
	writeFile(t, fs, path.Join(base, "message/ses1/notes.txt"), []byte("ignored"))
}

func checkOpenCodeSession(t *testing.T, conv *internal.Conversation) {
	t.Helper()
	if conv == nil {
		t.Fatal("session missing")
	}
	if conv.Title != "Refactor" || conv.ProjectPath != "/repo" || conv.ProjectHash != "p1" || conv.ParentSessionID != "ses0" {
		t.Errorf("session meta = %q %q %q %q", conv.Title, conv.ProjectPath, conv.ProjectHash, conv.ParentSessionID)
	}
	if ts, _ := conv.CreatedAt.Unix(); ts != 1700000000 {
		t.Errorf("CreatedAt = %v", conv.CreatedAt)
	}
	if len(conv.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3 (corrupt message skipped)", len(conv.Messages))
	}
	if conv.Messages[0].Content != "hello world" {
		t.Errorf("text parts = %q", conv.Messages[0].Content)
	}

	asst := conv.Messages[1]
	if asst.Role != internal.RoleAssistant || asst.Model != "m1" || asst.Agent != "build" || asst.Cost == nil {
		t.Errorf("assistant = %+v", asst)
	}
	if asst.Content != "```go\npackage main\n```" {
		t.Errorf("code part = %q", asst.Content)
	}
	if len(asst.Thoughts) != 1 || asst.Thoughts[0].Subject != "Thinking" || asst.Thoughts[0].Description != "hmm" {
		t.Errorf("Thoughts = %+v", asst.Thoughts)
	}
	if len(asst.ToolCalls) != 2 {
		t.Errorf("ToolCalls = %+v", asst.ToolCalls)
	}
	if len(asst.ToolResults) != 2 || asst.ToolResults[1].ToolCallID != "c2" || asst.ToolResults[1].Output != "contents" {
		t.Errorf("ToolResults = %+v", asst.ToolResults)
	}
}

func checkOrphanSession(t *testing.T, conv *internal.Conversation) {
	t.Helper()
	if conv.SessionID != "ses2" || conv.Metadata["reconstructed"] != true {
		t.Errorf("orphan = %q %v", conv.SessionID, conv.Metadata)
	}
	if conv.Title != "cd /tmp/proj then run the tests" || conv.ProjectPath != "/tmp/proj" {
		t.Errorf("reconstructed title/path = %q %q", conv.Title, conv.ProjectPath)
	}
	if conv.CreatedAt == nil || conv.UpdatedAt == nil {
		t.Error("reconstructed times missing")
	}
}

func TestOpenCodeDecoder_Decode(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeOpenCodeTree(t, fs, "/s")

	convs, err := NewOpenCodeDecoder(fs).Decode("/s")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("len(Decode()) = %d, want 2", len(convs))
	}
	checkOpenCodeSession(t, convs[0])
	checkOrphanSession(t, convs[1])
	if convs[0].SourceFile != "/s/session/p1/ses1.json" {
		t.Errorf("SourceFile = %q", convs[0].SourceFile)
	}
}

func TestOpenCodeDecoder_DecodeSession(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeOpenCodeTree(t, fs, "/s")
	d := NewOpenCodeDecoder(fs)

	conv, err := d.DecodeSession("/s", "ses1")
	if err != nil {
		t.Fatalf("DecodeSession() error = %v", err)
	}
	checkOpenCodeSession(t, conv)

	_, err = d.DecodeSession("/s", "nope")
	var nf *internal.RecordNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("DecodeSession(nope) error = %v, want RecordNotFoundError", err)
	}
}

func TestOpenCodeDesktopDecoder_MatchesCLI(t *testing.T) {
	fs := afero.NewMemMapFs()
	records := append(openCodeRecords(), testutil.KVRecord{Key: "message/ses1/msg4", Value: "{broken"})
	writeFile(t, fs, "/app/ai.opencode.desktop/default.dat", testutil.BuildKVStore(records...))
	writeFile(t, fs, "/app/ai.opencode.desktop/settings.json", []byte("{}"))

	d := NewOpenCodeDesktopDecoder(fs)
	convs, err := d.Decode("/app/ai.opencode.desktop")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("len(Decode()) = %d, want 2", len(convs))
	}
	for _, conv := range convs {
		if conv.Source != internal.SourceOpenCodeDesktop {
			t.Errorf("Source = %q", conv.Source)
		}
	}
	checkOpenCodeSession(t, convs[0])
	checkOrphanSession(t, convs[1])
	if !strings.HasPrefix(convs[0].SourceFile, "/app/ai.opencode.desktop/default.dat#") {
		t.Errorf("SourceFile = %q", convs[0].SourceFile)
	}

	// Same messages as the directory layout
	cli := afero.NewMemMapFs()
	writeOpenCodeTree(t, cli, "/s")
	want, _ := NewOpenCodeDecoder(cli).DecodeSession("/s", "ses1")
	got, err := d.DecodeSession("/app/ai.opencode.desktop/default.dat", "ses1")
	if err != nil {
		t.Fatalf("DecodeSession() error = %v", err)
	}
	wantJSON, _ := json.Marshal(want.Messages)
	gotJSON, _ := json.Marshal(got.Messages)
	if string(wantJSON) != string(gotJSON) {
		t.Errorf("desktop messages differ from CLI:\n got %s\nwant %s", gotJSON, wantJSON)
	}
}

func TestKVStoreList(t *testing.T) {
	store := &kvStore{path: "x.dat", store: internal.DecodeKVStore(testutil.BuildKVStore(openCodeRecords()...))}

	if got := strings.Join(store.List("session"), ","); got != "p1" {
		t.Errorf("List(session) = %q", got)
	}
	if got := strings.Join(store.List("message"), ","); got != "ses1,ses2" {
		t.Errorf("List(message) = %q", got)
	}
	if got := strings.Join(store.List("part/msg2/"), ","); got != "prt1,prt2,prt3,prt4" {
		t.Errorf("List(part/msg2/) = %q", got)
	}
	var v map[string]interface{}
	if err := store.Get("project/none", &v); err == nil {
		t.Error("Get(missing) should fail")
	}
}
