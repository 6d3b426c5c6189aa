package decoder

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

type openCodeTime struct {
	Created interface{} `json:"created"`
	Updated interface{} `json:"updated"`
	Start   interface{} `json:"start"`
}

type openCodeProject struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Worktree string `json:"worktree"`
	Cwd      string `json:"cwd"`
}

// Dir returns the project's working directory
func (p *openCodeProject) Dir() string {
	return firstNonEmpty(p.Path, p.Worktree, p.Cwd)
}

type openCodeSession struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectID"`
	Title     string       `json:"title"`
	ParentID  string       `json:"parentID"`
	Directory string       `json:"directory"`
	Time      openCodeTime `json:"time"`
}

type openCodeMessage struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionID"`
	Role      string       `json:"role"`
	ModelID   string       `json:"modelID"`
	Agent     string       `json:"agent"`
	Mode      string       `json:"mode"`
	Tokens    interface{}  `json:"tokens"`
	Cost      *float64     `json:"cost"`
	Time      openCodeTime `json:"time"`
}

type openCodePart struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Text       string                 `json:"text"`
	Code       string                 `json:"code"`
	Language   string                 `json:"language"`
	Metadata   map[string]interface{} `json:"metadata"`
	Time       openCodeTime           `json:"time"`
	CallID     string                 `json:"callID"`
	ToolCallID string                 `json:"toolCallID"`
	Tool       string                 `json:"tool"`
	State      *openCodeToolState     `json:"state"`
	Output     interface{}            `json:"output"`
}

type openCodeToolState struct {
	Status string       `json:"status"`
	Input  interface{}  `json:"input"`
	Output interface{}  `json:"output"`
	Error  interface{}  `json:"error"`
	Time   openCodeTime `json:"time"`
}

// openCodeAssembler turns the project/session/message/part key space into
// conversations. It is shared by the CLI directory tree and the desktop
// KV files.
type openCodeAssembler struct {
	store    keyStore
	source   internal.Source
	projects map[string]*openCodeProject
}

func newOpenCodeAssembler(store keyStore, source internal.Source) *openCodeAssembler {
	return &openCodeAssembler{store: store, source: source, projects: make(map[string]*openCodeProject)}
}

// All assembles every session, then any message directory whose session
// record is missing.
func (a *openCodeAssembler) All() []*internal.Conversation {
	var convs []*internal.Conversation
	seen := make(map[string]bool)

	for _, pid := range a.store.List("session") {
		for _, sid := range a.store.List("session/" + pid) {
			seen[sid] = true
			if conv := a.Session(pid, sid); conv != nil {
				convs = append(convs, conv)
			}
		}
	}

	for _, sid := range a.store.List("message") {
		if seen[sid] {
			continue
		}
		if conv := a.Session("", sid); conv != nil {
			convs = append(convs, conv)
		}
	}
	return convs
}

// Find locates a session by id under any project
func (a *openCodeAssembler) Find(sid string) *internal.Conversation {
	for _, pid := range a.store.List("session") {
		for _, candidate := range a.store.List("session/" + pid) {
			if candidate == sid {
				return a.Session(pid, sid)
			}
		}
	}
	return a.Session("", sid)
}

// Session assembles one session. pid may be empty when the session record
// is missing; metadata is then reconstructed from the messages.
func (a *openCodeAssembler) Session(pid, sid string) *internal.Conversation {
	conv := &internal.Conversation{Source: a.source, SessionID: sid}

	if pid != "" {
		key := "session/" + pid + "/" + sid
		var meta openCodeSession
		if err := a.store.Get(key, &meta); err != nil {
			internal.LogDebug("opencode: %v", err)
		} else {
			conv.SessionID = firstNonEmpty(meta.ID, sid)
			conv.Title = meta.Title
			conv.ParentSessionID = meta.ParentID
			conv.CreatedAt = internal.MillisToTimestamp(meta.Time.Created)
			conv.UpdatedAt = internal.MillisToTimestamp(meta.Time.Updated)
			conv.ProjectPath = meta.Directory
			conv.SourceFile = a.store.Location(key)
			if meta.ProjectID != "" {
				pid = meta.ProjectID
			}
		}
		conv.ProjectHash = pid
		if proj := a.project(pid); proj != nil && proj.Dir() != "" {
			conv.ProjectPath = proj.Dir()
		}
	}
	if conv.SourceFile == "" {
		conv.SourceFile = a.store.Location("message/" + sid)
		conv.SetMeta("reconstructed", true)
	}

	linker := internal.NewToolLinker()
	for _, mid := range a.store.List("message/" + sid) {
		msg, results, ok := a.message(sid, mid)
		if !ok {
			continue
		}
		idx := len(conv.Messages)
		for _, call := range msg.ToolCalls {
			linker.Register(call.ID, idx)
		}
		conv.Messages = append(conv.Messages, msg)
		for _, r := range results {
			if !linker.AttachResult(conv.Messages, r) {
				recordUnattached(conv, r)
			}
		}
	}

	return finish(conv, sid)
}

func (a *openCodeAssembler) project(pid string) *openCodeProject {
	if pid == "" {
		return nil
	}
	if p, ok := a.projects[pid]; ok {
		return p
	}
	var p openCodeProject
	if err := a.store.Get("project/"+pid, &p); err != nil {
		a.projects[pid] = nil
		return nil
	}
	a.projects[pid] = &p
	return &p
}

// message builds one message from its record and parts. Standalone
// tool-result parts are returned separately so they can be attached to the
// message that issued the call. A message whose record cannot be read is
// skipped.
func (a *openCodeAssembler) message(sid, mid string) (internal.Message, []internal.ToolResult, bool) {
	var meta openCodeMessage
	if err := a.store.Get("message/"+sid+"/"+mid, &meta); err != nil {
		internal.LogDebug("opencode: %v", err)
		return internal.Message{}, nil, false
	}

	msg := internal.Message{
		Role:      internal.RoleUser,
		MessageID: firstNonEmpty(meta.ID, mid),
		Timestamp: internal.MillisToTimestamp(meta.Time.Created),
		Model:     meta.ModelID,
		Agent:     firstNonEmpty(meta.Agent, meta.Mode),
		Tokens:    meta.Tokens,
		Cost:      meta.Cost,
	}
	if meta.Role == "assistant" {
		msg.Role = internal.RoleAssistant
	}

	var content strings.Builder
	var results []internal.ToolResult
	for _, partID := range a.store.List("part/" + mid) {
		var part openCodePart
		if err := a.store.Get("part/"+mid+"/"+partID, &part); err != nil {
			internal.LogDebug("opencode: %v", err)
			continue
		}
		if part.Type == "tool-result" {
			results = append(results, internal.ToolResult{
				ToolCallID: firstNonEmpty(part.ToolCallID, part.CallID),
				Name:       part.Tool,
				Output:     firstNonNil(part.Output, part.Text),
				Timestamp:  internal.MillisToTimestamp(firstTime(part.Time)),
			})
			continue
		}
		applyOpenCodePart(&msg, &content, &part)
	}
	msg.Content = content.String()
	return msg, results, true
}

func applyOpenCodePart(msg *internal.Message, content *strings.Builder, part *openCodePart) {
	switch part.Type {
	case "text":
		content.WriteString(part.Text)

	case "reasoning":
		subject, _ := part.Metadata["subject"].(string)
		if subject == "" {
			subject = "Thinking"
		}
		msg.Thoughts = append(msg.Thoughts, internal.Thought{
			Subject:     subject,
			Description: part.Text,
			Timestamp:   internal.MillisToTimestamp(firstTime(part.Time)),
		})

	case "tool":
		call := internal.ToolCall{ID: part.CallID, Name: part.Tool}
		if part.State != nil {
			call.Input = part.State.Input
			call.Timestamp = internal.MillisToTimestamp(part.State.Time.Start)
			if part.State.Output != nil || part.State.Error != nil {
				ok := part.State.Status != "error"
				output := part.State.Output
				if output == nil {
					output = part.State.Error
				}
				msg.ToolResults = append(msg.ToolResults, internal.ToolResult{
					ToolCallID: part.CallID,
					Name:       part.Tool,
					Output:     output,
					Success:    &ok,
				})
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, call)

	case "code", "code-block":
		body := firstNonEmpty(part.Code, part.Text)
		if body == "" {
			return
		}
		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(internal.FencedCode(part.Language, body))
	}
}

func firstTime(t openCodeTime) interface{} {
	if t.Created != nil {
		return t.Created
	}
	return t.Start
}

func firstNonNil(values ...interface{}) interface{} {
	for _, v := range values {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if v != nil {
			return v
		}
	}
	return nil
}

// OpenCodeDecoder reads the OpenCode CLI storage tree
type OpenCodeDecoder struct {
	fs afero.Fs
}

// NewOpenCodeDecoder creates an OpenCodeDecoder
func NewOpenCodeDecoder(fs afero.Fs) *OpenCodeDecoder {
	return &OpenCodeDecoder{fs: fs}
}

// Decode assembles every session of the storage root
func (d *OpenCodeDecoder) Decode(root string) ([]*internal.Conversation, error) {
	convs := newOpenCodeAssembler(&dirStore{fs: d.fs, base: root}, internal.SourceOpenCode).All()
	for _, conv := range convs {
		conv.Installation = root
	}
	return convs, nil
}

// DecodeSession assembles one session of the storage root
func (d *OpenCodeDecoder) DecodeSession(storageBase, sid string) (*internal.Conversation, error) {
	conv := newOpenCodeAssembler(&dirStore{fs: d.fs, base: storageBase}, internal.SourceOpenCode).Find(sid)
	if conv == nil {
		return nil, &internal.RecordNotFoundError{Source: string(internal.SourceOpenCode), Ref: storageBase + ":" + sid}
	}
	conv.Installation = storageBase
	return conv, nil
}

// OpenCodeDesktopDecoder reads the desktop app's *.dat KV files
type OpenCodeDesktopDecoder struct {
	fs afero.Fs
}

// NewOpenCodeDesktopDecoder creates an OpenCodeDesktopDecoder
func NewOpenCodeDesktopDecoder(fs afero.Fs) *OpenCodeDesktopDecoder {
	return &OpenCodeDesktopDecoder{fs: fs}
}

// StoreFiles lists the KV files of one installation
func (d *OpenCodeDesktopDecoder) StoreFiles(root string) []string {
	return walkFiles(d.fs, root, "*.dat")
}

// Decode assembles every session of every KV file below root
func (d *OpenCodeDesktopDecoder) Decode(root string) ([]*internal.Conversation, error) {
	var convs []*internal.Conversation
	for _, path := range d.StoreFiles(root) {
		store, err := d.open(path)
		if err != nil {
			internal.LogDebug("opencode-desktop: %v", err)
			continue
		}
		for _, conv := range newOpenCodeAssembler(store, internal.SourceOpenCodeDesktop).All() {
			conv.Installation = root
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// DecodeSession assembles one session out of a single KV file
func (d *OpenCodeDesktopDecoder) DecodeSession(datFile, sid string) (*internal.Conversation, error) {
	store, err := d.open(datFile)
	if err != nil {
		return nil, err
	}
	conv := newOpenCodeAssembler(store, internal.SourceOpenCodeDesktop).Find(sid)
	if conv == nil {
		return nil, &internal.RecordNotFoundError{Source: string(internal.SourceOpenCodeDesktop), Ref: datFile + ":" + sid}
	}
	conv.Installation = filepath.Dir(datFile)
	return conv, nil
}

func (d *OpenCodeDesktopDecoder) open(path string) (*kvStore, error) {
	store, err := internal.ReadKVStore(d.fs, path)
	if err != nil {
		return nil, err
	}
	return &kvStore{path: path, store: store}, nil
}
