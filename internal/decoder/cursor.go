package decoder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// Cursor ItemTable and cursorDiskKV keys
const (
	CursorChatKey        = "workbench.panel.aichat.view.aichat.chatdata"
	CursorComposerKey    = "composer.composerData"
	CursorPromptsKey     = "aiService.prompts"
	CursorGenerationsKey = "aiService.generations"

	ComposerDataPrefix   = "composerData:"
	BubblePrefix         = "bubbleId:"
	RequestContextPrefix = "messageRequestContext:"
)

// CursorDecoder reads Cursor's workspace and global state databases
type CursorDecoder struct {
	fs afero.Fs
}

// NewCursorDecoder creates a CursorDecoder
func NewCursorDecoder(fs afero.Fs) *CursorDecoder {
	return &CursorDecoder{fs: fs}
}

// Decode reads every workspace database, then the global one
func (d *CursorDecoder) Decode(root string) ([]*internal.Conversation, error) {
	var convs []*internal.Conversation

	for _, ws := range WorkspaceDBs(d.fs, root) {
		found, err := d.DecodeWorkspace(ws.Path, ws.ID)
		if err != nil {
			internal.LogWarn("cursor workspace %s: %v", ws.ID, err)
			continue
		}
		convs = append(convs, found...)
	}

	if path, ok := GlobalDB(d.fs, root); ok {
		found, err := d.DecodeGlobal(path)
		if err != nil {
			internal.LogWarn("cursor global storage: %v", err)
		} else {
			convs = append(convs, found...)
		}
	}

	for _, conv := range convs {
		conv.Installation = root
	}
	return convs, nil
}

// DecodeWorkspace reads chat tabs, workspace composers and aiService
// history from one workspace database.
func (d *CursorDecoder) DecodeWorkspace(dbPath, wsID string) ([]*internal.Conversation, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	folder := workspaceFolder(d.fs, filepath.Dir(dbPath))
	var convs []*internal.Conversation
	add := func(conv *internal.Conversation) {
		if conv = d.stamp(conv, dbPath, wsID, folder); conv != nil {
			convs = append(convs, conv)
		}
	}

	tabs, err := readChatTabs(db, CursorChatKey)
	if err != nil {
		return nil, err
	}
	for i := range tabs {
		add(tabConversation(internal.SourceCursorChat, &tabs[i]))
	}

	composers, err := readWorkspaceComposers(db)
	if err != nil {
		return nil, err
	}
	for i := range composers {
		add(workspaceComposerConversation(&composers[i]))
	}

	prompts, generations, err := readAIService(db)
	if err != nil {
		return nil, err
	}
	for i := 0; i < max(len(prompts), len(generations)); i++ {
		add(aiServiceConversation(prompts, generations, wsID, i))
	}

	return convs, nil
}

// stamp fills provenance and applies the emptiness rule
func (d *CursorDecoder) stamp(conv *internal.Conversation, dbPath, wsID, folder string) *internal.Conversation {
	if conv == nil {
		return nil
	}
	conv.DBPath = dbPath
	conv.SourceFile = dbPath
	if conv.ProjectPath == "" {
		conv.ProjectPath = folder
	}
	conv.SetMeta("workspace_id", wsID)
	return finish(conv, conv.SessionID)
}

// DecodeTab exports one legacy chat tab
func (d *CursorDecoder) DecodeTab(dbPath, wsID, tabID string) (*internal.Conversation, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tabs, err := readChatTabs(db, CursorChatKey)
	if err != nil {
		return nil, err
	}
	for i := range tabs {
		if tabs[i].TabID != tabID {
			continue
		}
		conv := d.stamp(tabConversation(internal.SourceCursorChat, &tabs[i]), dbPath, wsID, workspaceFolder(d.fs, filepath.Dir(dbPath)))
		if conv != nil {
			return conv, nil
		}
	}
	return nil, &internal.RecordNotFoundError{Source: string(internal.SourceCursorChat), Ref: fmt.Sprintf("%s tab %s", dbPath, tabID)}
}

// DecodeWorkspaceComposer exports one composer from composer.composerData
func (d *CursorDecoder) DecodeWorkspaceComposer(dbPath, wsID, composerID string) (*internal.Conversation, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	composers, err := readWorkspaceComposers(db)
	if err != nil {
		return nil, err
	}
	for i := range composers {
		if composers[i].ComposerID != composerID {
			continue
		}
		conv := d.stamp(workspaceComposerConversation(&composers[i]), dbPath, wsID, workspaceFolder(d.fs, filepath.Dir(dbPath)))
		if conv != nil {
			return conv, nil
		}
	}
	return nil, &internal.RecordNotFoundError{Source: string(internal.SourceCursorWorkspaceComposer), Ref: fmt.Sprintf("%s composer %s", dbPath, composerID)}
}

// DecodeAIService exports the prompt/generation pair at index
func (d *CursorDecoder) DecodeAIService(dbPath, wsID string, index int) (*internal.Conversation, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	prompts, generations, err := readAIService(db)
	if err != nil {
		return nil, err
	}
	conv := d.stamp(aiServiceConversation(prompts, generations, wsID, index), dbPath, wsID, workspaceFolder(d.fs, filepath.Dir(dbPath)))
	if conv == nil {
		return nil, &internal.RecordNotFoundError{Source: string(internal.SourceCursorAIService), Ref: fmt.Sprintf("%s index %d", dbPath, index)}
	}
	return conv, nil
}

func readWorkspaceComposers(db *sql.DB) ([]composerData, error) {
	var data struct {
		AllComposers []composerData `json:"allComposers"`
	}
	if _, err := internal.GetItemTableJSON(db, CursorComposerKey, &data); err != nil {
		return nil, err
	}
	return data.AllComposers, nil
}

func workspaceComposerConversation(data *composerData) *internal.Conversation {
	conv := composerConversation(internal.SourceCursorWorkspaceComposer, data, data.ComposerID)
	conv.Messages = inlineMessages(data.Conversation)
	return conv
}

type aiPrompt struct {
	Text        string      `json:"text"`
	CommandType interface{} `json:"commandType"`
}

type aiGeneration struct {
	Text    *string `json:"text"`
	Message string  `json:"message"`
}

// Content prefers text whenever the key is present
func (g *aiGeneration) Content() string {
	if g.Text != nil {
		return *g.Text
	}
	return g.Message
}

// readAIService loads both arrays. Entries that are not objects decode as
// nil so indexes stay aligned.
func readAIService(db *sql.DB) ([]*aiPrompt, []*aiGeneration, error) {
	var rawPrompts, rawGenerations []json.RawMessage
	if _, err := internal.GetItemTableJSON(db, CursorPromptsKey, &rawPrompts); err != nil {
		return nil, nil, err
	}
	if _, err := internal.GetItemTableJSON(db, CursorGenerationsKey, &rawGenerations); err != nil {
		return nil, nil, err
	}

	prompts := make([]*aiPrompt, len(rawPrompts))
	for i, raw := range rawPrompts {
		var p aiPrompt
		if isObject(raw) && json.Unmarshal(raw, &p) == nil {
			prompts[i] = &p
		}
	}
	generations := make([]*aiGeneration, len(rawGenerations))
	for i, raw := range rawGenerations {
		var g aiGeneration
		if isObject(raw) && json.Unmarshal(raw, &g) == nil {
			generations[i] = &g
		}
	}
	return prompts, generations, nil
}

func isObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}

func aiServiceConversation(prompts []*aiPrompt, generations []*aiGeneration, wsID string, index int) *internal.Conversation {
	if index < 0 || index >= max(len(prompts), len(generations)) {
		return nil
	}
	conv := &internal.Conversation{
		Source:    internal.SourceCursorAIService,
		SessionID: fmt.Sprintf("%s:%d", wsID, index),
	}
	conv.SetMeta("index", index)
	if index < len(prompts) && prompts[index] != nil {
		conv.Messages = append(conv.Messages, internal.Message{
			Role:        internal.RoleUser,
			Content:     prompts[index].Text,
			CommandType: prompts[index].CommandType,
		})
	}
	if index < len(generations) && generations[index] != nil {
		conv.Messages = append(conv.Messages, internal.Message{
			Role:    internal.RoleAssistant,
			Content: generations[index].Content(),
		})
	}
	return conv
}

// DecodeGlobal reads every composerData record of the global database
func (d *CursorDecoder) DecodeGlobal(dbPath string) ([]*internal.Conversation, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tables, err := internal.ListTables(db)
	if err != nil {
		return nil, err
	}
	if !tables["cursorDiskKV"] {
		return nil, nil
	}

	pairs, err := internal.QueryCursorDiskKV(db, ComposerDataPrefix+"%")
	if err != nil {
		return nil, err
	}

	var convs []*internal.Conversation
	for _, pair := range pairs {
		conv, err := composerFromRecord(db, pair.Key, pair.Value)
		if err != nil {
			internal.LogDebug("cursor %s: %v", pair.Key, err)
			continue
		}
		conv.DBPath = dbPath
		conv.SourceFile = dbPath
		if conv = finish(conv, conv.SessionID); conv != nil {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// DecodeComposer exports one global composer
func (d *CursorDecoder) DecodeComposer(dbPath, composerID string) (*internal.Conversation, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	key := ComposerDataPrefix + composerID
	value, ok, err := internal.GetCursorDiskKV(db, key)
	if err != nil {
		return nil, err
	}
	notFound := &internal.RecordNotFoundError{Source: string(internal.SourceCursorComposer), Ref: fmt.Sprintf("%s composer %s", dbPath, composerID)}
	if !ok {
		return nil, notFound
	}

	conv, err := composerFromRecord(db, key, value)
	if err != nil {
		return nil, err
	}
	conv.DBPath = dbPath
	conv.SourceFile = dbPath
	if conv = finish(conv, composerID); conv == nil {
		return nil, notFound
	}
	return conv, nil
}

// composerFromRecord decodes a composerData record. Inline conversations
// are used as stored; otherwise bubbles are loaded from their own rows.
func composerFromRecord(db *sql.DB, key, value string) (*internal.Conversation, error) {
	var data composerData
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return nil, &internal.ParseError{Source: string(internal.SourceCursorComposer), Key: key, Err: err}
	}
	id := strings.TrimPrefix(key, ComposerDataPrefix)
	conv := composerConversation(internal.SourceCursorComposer, &data, id)

	if len(data.Conversation) > 0 {
		conv.SetMeta("storage_type", "inline")
		conv.Messages = inlineMessages(data.Conversation)
		return conv, nil
	}

	conv.SetMeta("storage_type", "separate")
	bubbles, err := loadBubbles(db, conv.SessionID)
	if err != nil {
		return nil, err
	}
	contexts := loadRequestContexts(db, conv.SessionID)
	for _, b := range orderBubbles(bubbles, data.Headers) {
		role := internal.RoleAssistant
		if r, ok := b.role(); ok {
			role = r
		}
		msg := b.message(role, true)
		if ctx, ok := contexts[b.BubbleID]; ok {
			msg.Context = ctx
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, nil
}

// loadBubbles reads bubbleId:<composer>:<bubble> rows
func loadBubbles(db *sql.DB, composerID string) ([]*composerBubble, error) {
	prefix := BubblePrefix + composerID + ":"
	pairs, err := internal.QueryCursorDiskKV(db, prefix+"%")
	if err != nil {
		return nil, err
	}
	var bubbles []*composerBubble
	for _, pair := range pairs {
		var b composerBubble
		if err := json.Unmarshal([]byte(pair.Value), &b); err != nil {
			internal.LogDebug("cursor %s: %v", pair.Key, err)
			continue
		}
		if b.BubbleID == "" {
			b.BubbleID = strings.TrimPrefix(pair.Key, prefix)
		}
		bubbles = append(bubbles, &b)
	}
	return bubbles, nil
}

// loadRequestContexts reads messageRequestContext:<composer>:<id> rows
// keyed by the bubble they belong to.
func loadRequestContexts(db *sql.DB, composerID string) map[string]interface{} {
	pairs, err := internal.QueryCursorDiskKV(db, RequestContextPrefix+composerID+":%")
	if err != nil {
		return nil
	}
	contexts := make(map[string]interface{})
	for _, pair := range pairs {
		var ctx map[string]interface{}
		if json.Unmarshal([]byte(pair.Value), &ctx) != nil {
			continue
		}
		if id, ok := ctx["bubbleId"].(string); ok && id != "" {
			contexts[id] = ctx
		}
	}
	return contexts
}

// orderBubbles follows fullConversationHeadersOnly when present. Bubbles the
// headers do not name, and all bubbles when there are no headers, are
// ordered by time with unknown times first.
func orderBubbles(bubbles []*composerBubble, headers []composerHeader) []*composerBubble {
	byID := make(map[string]*composerBubble, len(bubbles))
	for _, b := range bubbles {
		byID[b.BubbleID] = b
	}

	var ordered []*composerBubble
	used := make(map[string]bool)
	for _, h := range headers {
		b, ok := byID[h.BubbleID]
		if !ok || used[h.BubbleID] {
			continue
		}
		if b.Type == "" {
			b.Type = h.Type
		}
		used[h.BubbleID] = true
		ordered = append(ordered, b)
	}

	var rest []*composerBubble
	for _, b := range bubbles {
		if !used[b.BubbleID] {
			rest = append(rest, b)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		ti, _ := rest[i].Time().Unix()
		tj, _ := rest[j].Time().Unix()
		return ti < tj
	})
	return append(ordered, rest...)
}
