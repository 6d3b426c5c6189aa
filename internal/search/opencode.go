package search

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
)

// openCodePart is a part record that may hold the query
type openCodePart struct {
	messageID string
	data      gjson.Result
}

// openCodeIndex answers the lookups a part hit needs. Both the directory
// tree and the desktop KV file implement it; lookups are cached per search.
type openCodeIndex interface {
	parts() []openCodePart
	// message returns the owning session and the message record
	message(mid string) (string, gjson.Result)
	session(sid string) gjson.Result
	project(pid string) gjson.Result
}

// searchOpenCodeParts turns part hits into matches, resolving session and
// project metadata lazily.
func searchOpenCodeParts(idx openCodeIndex, q Query, ref func(sid string) decoder.Ref) []Match {
	var matches []Match
	for _, part := range idx.parts() {
		data := part.data
		haystack := data.Raw
		if text := data.Get("text"); text.Type == gjson.String && text.String() != "" {
			haystack = text.String()
		}
		if !strings.Contains(haystack, q.Text) {
			continue
		}

		sid, msg := idx.message(part.messageID)
		st := stampOf(value(data.Get("time.created")), value(msg.Get("time.created")))

		var cwd, title string
		if sid != "" {
			sess := idx.session(sid)
			title = sess.Get("title").String()
			if pid := sess.Get("projectID").String(); pid != "" {
				proj := idx.project(pid)
				cwd = firstString(proj.Get("path"), proj.Get("cwd"))
			}
			if st.sort == nil {
				st = stampOf(value(sess.Get("time.updated")))
			}
		}

		info := metaLine("cwd", cwd, "title", title, "part", data.Get("type").String(), "session", sid)
		r := ref(sid)
		hits(haystack, q, func(snippet string) {
			matches = append(matches, Match{
				Source:      r.Source,
				SessionID:   sid,
				SortTime:    st.sort,
				DisplayTime: st.display,
				Snippet:     snippet,
				Meta:        info,
				Ref:         r,
			})
		})
	}
	return matches
}

func firstString(results ...gjson.Result) string {
	for _, r := range results {
		if s := r.String(); s != "" && r.Type == gjson.String {
			return s
		}
	}
	return ""
}

func (e *Engine) searchOpenCode(ctx context.Context, root string, q Query) []Match {
	files := e.candidates(ctx, q, "*.json", filepath.Join(root, "part"))
	if len(files) == 0 {
		return nil
	}
	idx := newOpenCodeDirIndex(e.Fs, root, files)
	return searchOpenCodeParts(idx, q, func(sid string) decoder.Ref {
		return decoder.Ref{Source: internal.SourceOpenCode, StorageBase: root, SessionID: sid}
	})
}

// openCodeDirIndex reads the storage/<kind>/... JSON tree
type openCodeDirIndex struct {
	fs        afero.Fs
	base      string
	files     []string
	msgToSess map[string]string
	msgMeta   map[string]gjson.Result
	sessFiles map[string]string
	sessions  map[string]gjson.Result
	projects  map[string]gjson.Result
}

// newOpenCodeDirIndex maps only the messages the candidate parts belong to
func newOpenCodeDirIndex(fs afero.Fs, base string, files []string) *openCodeDirIndex {
	idx := &openCodeDirIndex{
		fs:        fs,
		base:      base,
		files:     files,
		msgToSess: make(map[string]string),
		msgMeta:   make(map[string]gjson.Result),
		sessFiles: make(map[string]string),
		sessions:  make(map[string]gjson.Result),
		projects:  make(map[string]gjson.Result),
	}

	needed := make(map[string]bool)
	for _, f := range files {
		needed[filepath.Base(filepath.Dir(f))] = true
	}

	msgRoot := filepath.Join(base, "message")
	for _, sessDir := range idx.dirs(msgRoot) {
		for _, name := range idx.jsonFiles(filepath.Join(msgRoot, sessDir)) {
			mid := strings.TrimSuffix(name, ".json")
			if !needed[mid] {
				continue
			}
			idx.msgToSess[mid] = sessDir
			if meta, ok := idx.load(filepath.Join(msgRoot, sessDir, name)); ok {
				idx.msgMeta[mid] = meta
			}
		}
	}

	sessRoot := filepath.Join(base, "session")
	for _, projDir := range idx.dirs(sessRoot) {
		for _, name := range idx.jsonFiles(filepath.Join(sessRoot, projDir)) {
			idx.sessFiles[strings.TrimSuffix(name, ".json")] = filepath.Join(sessRoot, projDir, name)
		}
	}
	return idx
}

func (x *openCodeDirIndex) dirs(dir string) []string {
	entries, err := afero.ReadDir(x.fs, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (x *openCodeDirIndex) jsonFiles(dir string) []string {
	entries, err := afero.ReadDir(x.fs, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	return names
}

// load reads a JSON object, reporting false for anything else
func (x *openCodeDirIndex) load(path string) (gjson.Result, bool) {
	data, err := afero.ReadFile(x.fs, path)
	if err != nil || !gjson.ValidBytes(data) {
		return gjson.Result{}, false
	}
	r := gjson.ParseBytes(data)
	return r, r.IsObject()
}

func (x *openCodeDirIndex) parts() []openCodePart {
	var parts []openCodePart
	for _, f := range x.files {
		data, ok := x.load(f)
		if !ok {
			continue
		}
		parts = append(parts, openCodePart{messageID: filepath.Base(filepath.Dir(f)), data: data})
	}
	return parts
}

func (x *openCodeDirIndex) message(mid string) (string, gjson.Result) {
	return x.msgToSess[mid], x.msgMeta[mid]
}

func (x *openCodeDirIndex) session(sid string) gjson.Result {
	if r, ok := x.sessions[sid]; ok {
		return r
	}
	var r gjson.Result
	if path, ok := x.sessFiles[sid]; ok {
		r, _ = x.load(path)
	}
	x.sessions[sid] = r
	return r
}

func (x *openCodeDirIndex) project(pid string) gjson.Result {
	if r, ok := x.projects[pid]; ok {
		return r
	}
	r, _ := x.load(filepath.Join(x.base, "project", pid+".json"))
	x.projects[pid] = r
	return r
}

func (e *Engine) searchOpenCodeDesktop(root string, q Query) []Match {
	var matches []Match
	for _, path := range decoder.NewOpenCodeDesktopDecoder(e.Fs).StoreFiles(root) {
		store, err := internal.ReadKVStore(e.Fs, path)
		if err != nil {
			internal.LogDebug("opencode-desktop search %s: %v", path, err)
			continue
		}
		idx := newOpenCodeKVIndex(store, q.Text)
		matches = append(matches, searchOpenCodeParts(idx, q, func(sid string) decoder.Ref {
			return decoder.Ref{Source: internal.SourceOpenCodeDesktop, StorageBase: path, SessionID: sid}
		})...)
	}
	return matches
}

// openCodeKVIndex reads the same records out of one desktop KV file
type openCodeKVIndex struct {
	store     *internal.KVStore
	query     string
	msgToSess map[string]string
	sessKeys  map[string]string
}

func newOpenCodeKVIndex(store *internal.KVStore, query string) *openCodeKVIndex {
	idx := &openCodeKVIndex{
		store:     store,
		query:     query,
		msgToSess: make(map[string]string),
		sessKeys:  make(map[string]string),
	}
	// message/<sid>/<mid> and session/<pid>/<sid>
	for _, key := range store.KeysWithPrefix("message/") {
		if parts := strings.Split(key, "/"); len(parts) == 3 {
			idx.msgToSess[parts[2]] = parts[1]
		}
	}
	for _, key := range store.KeysWithPrefix("session/") {
		if parts := strings.Split(key, "/"); len(parts) == 3 {
			idx.sessKeys[parts[2]] = key
		}
	}
	return idx
}

func (x *openCodeKVIndex) get(key string) gjson.Result {
	raw, ok := x.store.Get(key)
	if !ok || !gjson.ValidBytes(raw) {
		return gjson.Result{}
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return gjson.Result{}
	}
	return r
}

func (x *openCodeKVIndex) parts() []openCodePart {
	var parts []openCodePart
	for _, key := range x.store.KeysWithPrefix("part/") {
		segs := strings.Split(key, "/")
		if len(segs) != 3 {
			continue
		}
		raw, ok := x.store.Get(key)
		if !ok || !strings.Contains(string(raw), x.query) {
			continue
		}
		if data := x.get(key); data.Exists() {
			parts = append(parts, openCodePart{messageID: segs[1], data: data})
		}
	}
	return parts
}

func (x *openCodeKVIndex) message(mid string) (string, gjson.Result) {
	sid, ok := x.msgToSess[mid]
	if !ok {
		return "", gjson.Result{}
	}
	return sid, x.get("message/" + sid + "/" + mid)
}

func (x *openCodeKVIndex) session(sid string) gjson.Result {
	key, ok := x.sessKeys[sid]
	if !ok {
		return gjson.Result{}
	}
	return x.get(key)
}

func (x *openCodeKVIndex) project(pid string) gjson.Result {
	return x.get("project/" + pid)
}
