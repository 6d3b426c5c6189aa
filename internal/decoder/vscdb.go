package decoder

import (
	"database/sql"
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// workspaceSkip is the extension-development workspace, which never holds
// user conversations.
const workspaceSkip = "ext-dev"

// bubbleType accepts both the numeric (1, 2) and string ("user", "ai")
// discriminators used by VS Code forks.
type bubbleType string

func (t *bubbleType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = bubbleType(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = bubbleType(n.String())
		return nil
	}
	*t = ""
	return nil
}

type selection struct {
	URI struct {
		FsPath string `json:"fsPath"`
	} `json:"uri"`
	Text    *string     `json:"text"`
	RawText string      `json:"rawText"`
	Range   interface{} `json:"range"`
}

// codeContexts keeps selections that name a file. The text field wins over
// rawText whenever it is present.
func codeContexts(sels []selection) []internal.CodeContext {
	var out []internal.CodeContext
	for _, sel := range sels {
		if sel.URI.FsPath == "" {
			continue
		}
		code := sel.RawText
		if sel.Text != nil {
			code = *sel.Text
		}
		out = append(out, internal.CodeContext{File: sel.URI.FsPath, Code: code, Range: sel.Range})
	}
	return out
}

// chatData is the legacy chat panel blob
type chatData struct {
	Tabs []chatTab `json:"tabs"`
}

type chatTab struct {
	TabID     string       `json:"tabId"`
	ChatTitle string       `json:"chatTitle"`
	Bubbles   []chatBubble `json:"bubbles"`
}

type chatBubble struct {
	ID             string        `json:"id"`
	Type           bubbleType    `json:"type"`
	Text           string        `json:"text"`
	RawText        *string       `json:"rawText"`
	Selections     []selection   `json:"selections"`
	SuggestedDiffs []interface{} `json:"suggestedDiffs"`
}

// Content prefers rawText whenever the key is present
func (b *chatBubble) Content() string {
	if b.RawText != nil {
		return *b.RawText
	}
	return b.Text
}

func (b *chatBubble) message() internal.Message {
	msg := internal.Message{
		Role:        internal.RoleAssistant,
		Content:     b.Content(),
		MessageID:   b.ID,
		CodeContext: codeContexts(b.Selections),
		Diffs:       b.SuggestedDiffs,
	}
	if b.Type == "user" {
		msg.Role = internal.RoleUser
	}
	return msg
}

// tabConversation converts one chat tab
func tabConversation(source internal.Source, tab *chatTab) *internal.Conversation {
	conv := &internal.Conversation{Source: source, SessionID: tab.TabID, Title: tab.ChatTitle}
	conv.SetMeta("tab_id", tab.TabID)
	conv.SetMeta("chat_title", tab.ChatTitle)
	for i := range tab.Bubbles {
		conv.Messages = append(conv.Messages, tab.Bubbles[i].message())
	}
	return conv
}

// readChatTabs returns the tabs under the first key present
func readChatTabs(db *sql.DB, keys ...string) ([]chatTab, error) {
	for _, key := range keys {
		var data chatData
		ok, err := internal.GetItemTableJSON(db, key, &data)
		if err != nil {
			return nil, err
		}
		if ok {
			return data.Tabs, nil
		}
	}
	return nil, nil
}

type composerData struct {
	ComposerID    string              `json:"composerId"`
	Name          *string             `json:"name"`
	Status        interface{}         `json:"status"`
	UnifiedMode   interface{}         `json:"unifiedMode"`
	CreatedAt     *internal.Timestamp `json:"createdAt"`
	LastUpdatedAt *internal.Timestamp `json:"lastUpdatedAt"`
	Conversation  []composerBubble    `json:"conversation"`
	Headers       []composerHeader    `json:"fullConversationHeadersOnly"`
}

// DisplayName returns the name, "Untitled" when the key is absent
func (c *composerData) DisplayName() string {
	if c.Name == nil {
		return "Untitled"
	}
	return *c.Name
}

type composerHeader struct {
	BubbleID string     `json:"bubbleId"`
	Type     bubbleType `json:"type"`
}

type composerBubble struct {
	BubbleID            string              `json:"bubbleId"`
	Type                bubbleType          `json:"type"`
	Role                string              `json:"role"`
	Text                string              `json:"text"`
	RichText            string              `json:"richText"`
	Context             *bubbleContext      `json:"context"`
	CodeBlocks          json.RawMessage     `json:"codeBlocks"`
	SuggestedCodeBlocks []interface{}       `json:"suggestedCodeBlocks"`
	DiffHistories       []interface{}       `json:"diffHistories"`
	ToolResults         []interface{}       `json:"toolResults"`
	ToolFormerData      *toolFormerData     `json:"toolFormerData"`
	CreatedAt           *internal.Timestamp `json:"createdAt"`
	Timestamp           *internal.Timestamp `json:"timestamp"`
}

type bubbleContext struct {
	Selections []selection `json:"selections"`
}

type toolFormerData struct {
	ToolCallID string      `json:"toolCallId"`
	Name       string      `json:"name"`
	RawArgs    interface{} `json:"rawArgs"`
	Result     interface{} `json:"result"`
	Status     string      `json:"status"`
}

// Time returns createdAt, falling back to timestamp
func (b *composerBubble) Time() *internal.Timestamp {
	if b.CreatedAt != nil {
		return b.CreatedAt
	}
	return b.Timestamp
}

// Role maps type 1 or role "user" to user and type 2 or role "assistant"
// to assistant. Other bubbles carry no conversation turn.
func (b *composerBubble) role() (internal.Role, bool) {
	switch {
	case b.Type == "1" || b.Role == "user":
		return internal.RoleUser, true
	case b.Type == "2" || b.Role == "assistant":
		return internal.RoleAssistant, true
	}
	return "", false
}

func (b *composerBubble) codeBlocks() []internal.CodeBlock {
	var blocks []internal.CodeBlock
	if len(b.CodeBlocks) == 0 || json.Unmarshal(b.CodeBlocks, &blocks) != nil {
		return nil
	}
	return blocks
}

// message converts a bubble. When renderCode is set, code blocks are
// rendered into the content as fences; otherwise they are kept raw.
func (b *composerBubble) message(role internal.Role, renderCode bool) internal.Message {
	msg := internal.Message{
		Role:      role,
		MessageID: b.BubbleID,
		Timestamp: b.Time(),
	}

	if renderCode {
		msg.Content = internal.ExtractBubbleText(b.Text, b.RichText, b.codeBlocks())
	} else {
		msg.Content = internal.ExtractBubbleText(b.Text, b.RichText, nil)
	}

	if role == internal.RoleUser {
		if b.Context != nil {
			msg.CodeContext = codeContexts(b.Context.Selections)
		}
		return msg
	}

	if !renderCode && len(b.CodeBlocks) > 0 && string(b.CodeBlocks) != "null" && string(b.CodeBlocks) != "[]" {
		var raw interface{}
		if json.Unmarshal(b.CodeBlocks, &raw) == nil {
			msg.Extra = map[string]interface{}{"code_blocks": raw}
		}
	}
	msg.Diffs = append(msg.Diffs, b.SuggestedCodeBlocks...)
	msg.Diffs = append(msg.Diffs, b.DiffHistories...)
	for _, raw := range b.ToolResults {
		msg.ToolResults = append(msg.ToolResults, rawToolResult(raw))
	}
	if tf := b.ToolFormerData; tf != nil && (tf.Name != "" || tf.ToolCallID != "") {
		msg.ToolCalls = append(msg.ToolCalls, internal.ToolCall{ID: tf.ToolCallID, Name: tf.Name, Input: tf.RawArgs, Timestamp: msg.Timestamp})
		if tf.Result != nil {
			ok := tf.Status != "error"
			msg.ToolResults = append(msg.ToolResults, internal.ToolResult{ToolCallID: tf.ToolCallID, Name: tf.Name, Output: tf.Result, Success: &ok})
		}
	}
	return msg
}

func rawToolResult(raw interface{}) internal.ToolResult {
	r := internal.ToolResult{Output: raw}
	if obj, ok := raw.(map[string]interface{}); ok {
		r.ToolCallID, _ = obj["toolCallId"].(string)
		r.Name, _ = obj["toolName"].(string)
		if r.Name == "" {
			r.Name, _ = obj["name"].(string)
		}
		if out, ok := obj["result"]; ok {
			r.Output = out
		}
	}
	return r
}

// inlineMessages converts an inline conversation array
func inlineMessages(bubbles []composerBubble) []internal.Message {
	var msgs []internal.Message
	for i := range bubbles {
		role, ok := bubbles[i].role()
		if !ok {
			continue
		}
		msgs = append(msgs, bubbles[i].message(role, false))
	}
	return msgs
}

// composerConversation fills the fields shared by every composer record
func composerConversation(source internal.Source, data *composerData, id string) *internal.Conversation {
	conv := &internal.Conversation{
		Source:    source,
		SessionID: firstNonEmpty(data.ComposerID, id),
		Title:     data.DisplayName(),
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.LastUpdatedAt,
	}
	conv.SetMeta("composer_id", conv.SessionID)
	conv.SetMeta("name", data.DisplayName())
	conv.SetMeta("status", data.Status)
	conv.SetMeta("unified_mode", data.UnifiedMode)
	return conv
}

// workspaceFolder reads workspace.json next to a workspace state.vscdb and
// returns its folder as a local path.
func workspaceFolder(fs afero.Fs, wsDir string) string {
	var ws struct {
		Folder string `json:"folder"`
	}
	if err := readJSONFile(fs, filepath.Join(wsDir, "workspace.json"), &ws); err != nil || ws.Folder == "" {
		return ""
	}
	return folderPath(ws.Folder)
}

// folderPath turns a file:// URI into a local path
func folderPath(uri string) string {
	p := strings.TrimPrefix(uri, "file://")
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	// file:///c%3A/Users -> c:/Users
	if len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return p
}

// WorkspaceDB is one workspace's state database
type WorkspaceDB struct {
	ID   string
	Path string
}

// WorkspaceDBs lists <root>/User/workspaceStorage/<id>/state.vscdb sorted by
// id, skipping the extension-development workspace.
func WorkspaceDBs(fs afero.Fs, root string) []WorkspaceDB {
	var dbs []WorkspaceDB
	dir := filepath.Join(root, "User", "workspaceStorage")
	for _, e := range sortedEntries(fs, dir) {
		if !e.IsDir() || e.Name() == workspaceSkip {
			continue
		}
		db := filepath.Join(dir, e.Name(), "state.vscdb")
		if exists(fs, db) {
			dbs = append(dbs, WorkspaceDB{ID: e.Name(), Path: db})
		}
	}
	return dbs
}

// GlobalDB returns <root>/User/globalStorage/state.vscdb when present
func GlobalDB(fs afero.Fs, root string) (string, bool) {
	db := filepath.Join(root, "User", "globalStorage", "state.vscdb")
	return db, exists(fs, db)
}
