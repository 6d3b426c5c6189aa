package decoder

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// traeItemPatterns select ItemTable keys that may hold conversations
var traeItemPatterns = []string{"%chat%", "%conversation%", "%agent%"}

// TraeDecoder reads Trae's JSONL logs and any SQLite stores below the
// installation root.
type TraeDecoder struct {
	fs afero.Fs
}

// NewTraeDecoder creates a TraeDecoder
func NewTraeDecoder(fs afero.Fs) *TraeDecoder {
	return &TraeDecoder{fs: fs}
}

type traeLine struct {
	Type      string                 `json:"type"`
	Role      string                 `json:"role"`
	Message   *string                `json:"message"`
	Content   interface{}            `json:"content"`
	Timestamp *internal.Timestamp    `json:"timestamp"`
	Context   interface{}            `json:"context"`
	Files     interface{}            `json:"files"`
	ToolUse   interface{}            `json:"tool_use"`
	Diffs     interface{}            `json:"diffs"`
	Edits     interface{}            `json:"edits"`
	Data      map[string]interface{} `json:"data"`
}

// Kind returns the discriminator: type, falling back to role
func (l *traeLine) Kind() string {
	return firstNonEmpty(l.Type, l.Role)
}

// Text prefers message over content
func (l *traeLine) Text() string {
	if l.Message != nil {
		return *l.Message
	}
	return textOf(l.Content)
}

// LogFiles lists projects/<p>/*.jsonl and sessions/**/*.jsonl
func (d *TraeDecoder) LogFiles(root string) []string {
	var files []string
	projects := filepath.Join(root, "projects")
	for _, proj := range sortedEntries(d.fs, projects) {
		if proj.IsDir() {
			files = append(files, globFiles(d.fs, filepath.Join(projects, proj.Name()), "*.jsonl")...)
		}
	}
	files = append(files, walkFiles(d.fs, filepath.Join(root, "sessions"), "*.jsonl")...)
	return files
}

// DatabaseFiles lists every *.db and *.vscdb below root
func (d *TraeDecoder) DatabaseFiles(root string) []string {
	files := walkFiles(d.fs, root, "*.db")
	return append(files, walkFiles(d.fs, root, "*.vscdb")...)
}

// Decode reads logs first, then databases
func (d *TraeDecoder) Decode(root string) ([]*internal.Conversation, error) {
	var convs []*internal.Conversation
	for _, path := range d.LogFiles(root) {
		conv, err := d.DecodeFile(path)
		if err != nil {
			internal.LogDebug("trae: %v", err)
			continue
		}
		if conv != nil {
			convs = append(convs, conv)
		}
	}
	for _, path := range d.DatabaseFiles(root) {
		found, err := d.DecodeDatabase(path)
		if err != nil {
			internal.LogDebug("trae: %v", err)
			continue
		}
		convs = append(convs, found...)
	}
	for _, conv := range convs {
		conv.Installation = root
	}
	return convs, nil
}

// DecodeFile reads one JSONL log. Metadata lines update the conversation in
// place wherever they appear.
func (d *TraeDecoder) DecodeFile(path string) (*internal.Conversation, error) {
	conv := &internal.Conversation{Source: internal.SourceTrae, SourceFile: path}

	err := forEachLine(d.fs, path, func(lineNo int, line []byte) {
		var obj traeLine
		if err := json.Unmarshal(line, &obj); err != nil {
			internal.LogDebug("trae %s:%d: %v", path, lineNo, err)
			return
		}
		switch obj.Kind() {
		case "user", "user_message":
			conv.Messages = append(conv.Messages, internal.Message{
				Role:        internal.RoleUser,
				Content:     obj.Text(),
				Timestamp:   obj.Timestamp,
				Context:     obj.Context,
				Attachments: obj.Files,
			})
		case "assistant", "agent", "agent_message":
			msg := internal.Message{
				Role:      internal.RoleAssistant,
				Content:   obj.Text(),
				Timestamp: obj.Timestamp,
			}
			if obj.ToolUse != nil {
				for _, raw := range asList(obj.ToolUse) {
					msg.ToolCalls = append(msg.ToolCalls, rawToolCall(raw))
				}
			}
			msg.Diffs = append(msg.Diffs, asList(obj.Diffs)...)
			msg.Diffs = append(msg.Diffs, asList(obj.Edits)...)
			conv.Messages = append(conv.Messages, msg)
		case "metadata":
			applyMetadata(conv, obj.Data)
		}
	})
	if err != nil {
		return nil, err
	}
	return finish(conv, fileStem(path)), nil
}

// DecodeDatabase reads ItemTable rows that hold message arrays
func (d *TraeDecoder) DecodeDatabase(path string) ([]*internal.Conversation, error) {
	db, err := internal.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return itemTableConversations(db, path, internal.SourceTrae, traeItemPatterns)
}

// itemTableConversations reads conversations stored as {messages:[...]} or
// {conversation:[...]} documents under ItemTable keys matching patterns.
func itemTableConversations(db *sql.DB, path string, source internal.Source, patterns []string) ([]*internal.Conversation, error) {
	tables, err := internal.ListTables(db)
	if err != nil {
		return nil, err
	}
	if !tables["ItemTable"] {
		return nil, nil
	}
	pairs, err := internal.QueryItemTableLike(db, patterns...)
	if err != nil {
		return nil, err
	}

	var convs []*internal.Conversation
	for _, pair := range pairs {
		var doc map[string]interface{}
		if json.Unmarshal([]byte(pair.Value), &doc) != nil {
			continue
		}
		conv := documentConversation(doc, source, pair.Key)
		if conv == nil {
			continue
		}
		conv.DBPath = path
		conv.SourceFile = path
		if conv = finish(conv, ItemTableID(path, pair.Key)); conv != nil {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// ItemTableID names a conversation stored under an ItemTable key that
// carries no id of its own. The key is qualified by the directory holding
// the database, so equal keys in separate workspaces stay distinct.
func ItemTableID(dbPath, key string) string {
	return filepath.Base(filepath.Dir(dbPath)) + ":" + key
}

// documentConversation reads a generic role-tagged message document. Other
// scalar fields become metadata.
func documentConversation(doc map[string]interface{}, source internal.Source, key string) *internal.Conversation {
	var items []interface{}
	if msgs, ok := doc["messages"].([]interface{}); ok {
		items = msgs
	} else if convo, ok := doc["conversation"].([]interface{}); ok {
		for _, item := range convo {
			if obj, ok := item.(map[string]interface{}); ok {
				if _, hasRole := obj["role"]; hasRole {
					items = append(items, obj)
				}
			}
		}
	}
	if len(items) == 0 {
		return nil
	}

	conv := &internal.Conversation{Source: source}
	conv.SetMeta("storage_key", key)
	scalars := make(map[string]interface{})
	for k, v := range doc {
		switch v.(type) {
		case string, float64, bool:
			scalars[k] = v
		}
	}
	applyMetadata(conv, scalars)

	linker := internal.NewToolLinker()
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		role, _ := obj["role"].(string)
		ts := internal.NewTimestamp(firstNonNil(obj["timestamp"], obj["createdAt"]))
		switch role {
		case "user":
			conv.Messages = append(conv.Messages, internal.Message{Role: internal.RoleUser, Content: textOf(obj["content"]), Timestamp: ts})
		case "assistant", "agent", "ai", "model":
			msg := internal.Message{Role: internal.RoleAssistant, Content: textOf(obj["content"]), Timestamp: ts}
			msg.Model, _ = obj["model"].(string)
			for _, raw := range asList(obj["tool_calls"]) {
				call := openAIToolCall(raw)
				linker.Register(call.ID, len(conv.Messages))
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
			conv.Messages = append(conv.Messages, msg)
		case "tool":
			id, _ := obj["tool_call_id"].(string)
			result := internal.ToolResult{ToolCallID: id, Output: obj["content"], Timestamp: ts}
			if !linker.AttachResult(conv.Messages, result) {
				recordUnattached(conv, map[string]interface{}{"type": "tool_result", "tool_call_id": id, "output": obj["content"], "timestamp": ts})
			}
		}
	}
	return conv
}

// applyMetadata maps well-known keys onto conversation fields and keeps the
// rest as metadata.
func applyMetadata(conv *internal.Conversation, data map[string]interface{}) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := data[k]
		s, _ := v.(string)
		switch k {
		case "session_id", "sessionId", "id":
			if s != "" {
				conv.SessionID = s
				continue
			}
		case "title", "name":
			if s != "" {
				conv.Title = s
				continue
			}
		case "cwd", "project_path", "workspace":
			if s != "" {
				conv.ProjectPath = s
				continue
			}
		case "created_at", "createdAt":
			if ts := internal.NewTimestamp(v); ts != nil {
				conv.CreatedAt = ts
				continue
			}
		case "updated_at", "updatedAt", "lastUpdatedAt":
			if ts := internal.NewTimestamp(v); ts != nil {
				conv.UpdatedAt = ts
				continue
			}
		}
		conv.SetMeta(k, v)
	}
}

func asList(v interface{}) []interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return x
	}
	return []interface{}{v}
}

// rawToolCall reads {id, name|tool, input|arguments} shaped calls
func rawToolCall(raw interface{}) internal.ToolCall {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return internal.ToolCall{Input: raw}
	}
	call := internal.ToolCall{Input: obj["input"]}
	call.ID, _ = obj["id"].(string)
	call.Name, _ = obj["name"].(string)
	if call.Name == "" {
		call.Name, _ = obj["tool"].(string)
	}
	if call.Input == nil {
		call.Input = obj["arguments"]
	}
	return call
}
