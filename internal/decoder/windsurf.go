package decoder

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// windsurfChatKeys are tried in order; the first present key wins
var windsurfChatKeys = []string{
	CursorChatKey,
	"aiChat.chatdata",
	"chat.data",
	"cascade.chatdata",
}

var (
	windsurfAgentPrefixes = []string{ComposerDataPrefix, "agentData:", "flowData:"}
	windsurfItemPatterns  = []string{"%agent%", "%flow%", "%cascade%"}
)

// WindsurfDecoder reads Windsurf's workspace chat and global agent stores
type WindsurfDecoder struct {
	fs afero.Fs
}

// NewWindsurfDecoder creates a WindsurfDecoder
func NewWindsurfDecoder(fs afero.Fs) *WindsurfDecoder {
	return &WindsurfDecoder{fs: fs}
}

// Decode reads every workspace's chat tabs and the global agent records
func (d *WindsurfDecoder) Decode(root string) ([]*internal.Conversation, error) {
	var convs []*internal.Conversation

	for _, ws := range WorkspaceDBs(d.fs, root) {
		found, err := d.DecodeWorkspace(ws.Path, ws.ID)
		if err != nil {
			internal.LogDebug("windsurf workspace %s: %v", ws.ID, err)
			continue
		}
		convs = append(convs, found...)
	}

	if path, ok := GlobalDB(d.fs, root); ok {
		found, err := d.DecodeGlobal(path)
		if err != nil {
			internal.LogDebug("windsurf global storage: %v", err)
		} else {
			convs = append(convs, found...)
		}
	}

	for _, conv := range convs {
		conv.Installation = root
	}
	return convs, nil
}

// DecodeWorkspace reads chat tabs from one workspace database
func (d *WindsurfDecoder) DecodeWorkspace(dbPath, wsID string) ([]*internal.Conversation, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tabs, err := readChatTabs(db, windsurfChatKeys...)
	if err != nil {
		return nil, err
	}

	folder := workspaceFolder(d.fs, filepath.Dir(dbPath))
	var convs []*internal.Conversation
	for i := range tabs {
		conv := tabConversation(internal.SourceWindsurfChat, &tabs[i])
		conv.DBPath = dbPath
		conv.SourceFile = dbPath
		conv.ProjectPath = folder
		conv.SetMeta("workspace_id", wsID)
		if conv = finish(conv, conv.SessionID); conv != nil {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// DecodeGlobal reads agent and flow records from cursorDiskKV and ItemTable
func (d *WindsurfDecoder) DecodeGlobal(dbPath string) ([]*internal.Conversation, error) {
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tables, err := internal.ListTables(db)
	if err != nil {
		return nil, err
	}

	var pairs []internal.KeyValuePair
	if tables["cursorDiskKV"] {
		for _, prefix := range windsurfAgentPrefixes {
			found, err := internal.QueryCursorDiskKV(db, prefix+"%")
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, found...)
		}
	}
	if tables["ItemTable"] {
		found, err := internal.QueryItemTableLike(db, windsurfItemPatterns...)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, found...)
	}

	var convs []*internal.Conversation
	for _, pair := range pairs {
		var data composerData
		if err := json.Unmarshal([]byte(pair.Value), &data); err != nil {
			continue
		}
		id := ItemTableID(dbPath, pair.Key)
		if i := strings.IndexByte(pair.Key, ':'); i >= 0 {
			id = pair.Key[i+1:]
		}
		conv := composerConversation(internal.SourceWindsurfAgent, &data, id)
		conv.Messages = inlineMessages(data.Conversation)
		conv.DBPath = dbPath
		conv.SourceFile = dbPath
		conv.SetMeta("storage_key", pair.Key)
		if conv = finish(conv, id); conv != nil {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}
