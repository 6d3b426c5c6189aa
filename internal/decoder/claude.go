package decoder

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// ClaudeDecoder reads Claude Code project logs:
// <root>/projects/<project>/<session>.jsonl, or <root>/*.jsonl in the older
// flat layout. Sub-agent logs (agent-*.jsonl) are skipped.
type ClaudeDecoder struct {
	fs afero.Fs
}

// NewClaudeDecoder creates a ClaudeDecoder
func NewClaudeDecoder(fs afero.Fs) *ClaudeDecoder {
	return &ClaudeDecoder{fs: fs}
}

type claudeEntry struct {
	Type       string              `json:"type"`
	Timestamp  *internal.Timestamp `json:"timestamp"`
	Cwd        string              `json:"cwd"`
	SessionID  string              `json:"sessionId"`
	UUID       string              `json:"uuid"`
	Message    claudeMessage       `json:"message"`
	ToolUse    interface{}         `json:"toolUse"`
	ToolResult interface{}         `json:"toolResult"`
}

type claudeMessage struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   interface{}     `json:"usage"`
}

type claudeBlock struct {
	Type      string      `json:"type"`
	Text      string      `json:"text"`
	Thinking  string      `json:"thinking"`
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Input     interface{} `json:"input"`
	ToolUseID string      `json:"tool_use_id"`
	Content   interface{} `json:"content"`
	IsError   *bool       `json:"is_error"`
}

// SessionFiles lists the session logs of one installation
func (d *ClaudeDecoder) SessionFiles(root string) []string {
	var files []string
	projects := filepath.Join(root, "projects")
	if exists(d.fs, projects) {
		for _, proj := range sortedEntries(d.fs, projects) {
			if proj.IsDir() {
				files = append(files, globFiles(d.fs, filepath.Join(projects, proj.Name()), "*.jsonl")...)
			}
		}
	} else {
		files = globFiles(d.fs, root, "*.jsonl")
	}

	out := files[:0]
	for _, f := range files {
		if !strings.HasPrefix(filepath.Base(f), "agent-") {
			out = append(out, f)
		}
	}
	return out
}

// Decode reads every session below root
func (d *ClaudeDecoder) Decode(root string) ([]*internal.Conversation, error) {
	var convs []*internal.Conversation
	for _, path := range d.SessionFiles(root) {
		conv, err := d.DecodeFile(path)
		if err != nil {
			internal.LogDebug("claude: %v", err)
			continue
		}
		if conv != nil {
			conv.Installation = root
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// DecodeFile reads one session log. It returns nil when the log holds no
// usable messages.
func (d *ClaudeDecoder) DecodeFile(path string) (*internal.Conversation, error) {
	conv := &internal.Conversation{
		Source:     internal.SourceClaudeCode,
		SessionID:  fileStem(path),
		SourceFile: path,
	}
	if parent := filepath.Base(filepath.Dir(path)); parent != "projects" {
		conv.ProjectName = parent
	}
	linker := internal.NewToolLinker()

	err := forEachLine(d.fs, path, func(lineNo int, line []byte) {
		var entry claudeEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			internal.LogDebug("claude %s:%d: %v", path, lineNo, err)
			return
		}
		switch entry.Type {
		case "user":
			d.addUser(conv, linker, &entry)
		case "assistant":
			d.addAssistant(conv, linker, &entry)
		case "tool_result":
			if entry.ToolResult == nil {
				return
			}
			if n := len(conv.Messages); n > 0 {
				conv.Messages[n-1].ToolResults = append(conv.Messages[n-1].ToolResults,
					internal.ToolResult{Output: entry.ToolResult, Timestamp: entry.Timestamp})
			} else {
				recordUnattached(conv, entry.ToolResult)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return finish(conv, fileStem(path)), nil
}

func (d *ClaudeDecoder) addUser(conv *internal.Conversation, linker *internal.ToolLinker, entry *claudeEntry) {
	if entry.Cwd != "" {
		conv.ProjectPath = entry.Cwd
	}

	var text string
	var blocks []claudeBlock
	if err := json.Unmarshal(entry.Message.Content, &text); err != nil {
		if err := json.Unmarshal(entry.Message.Content, &blocks); err != nil {
			return
		}
	}

	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "tool_result":
			result := internal.ToolResult{
				ToolCallID: b.ToolUseID,
				Output:     b.Content,
				Timestamp:  entry.Timestamp,
			}
			if b.IsError != nil {
				ok := !*b.IsError
				result.Success = &ok
			}
			if !linker.AttachResult(conv.Messages, result) {
				recordUnattached(conv, result)
			}
		}
	}
	if len(parts) > 0 {
		text = strings.Join(parts, "\n")
	}
	if text == "" {
		return
	}

	msg := internal.Message{
		Role:      internal.RoleUser,
		Content:   text,
		Timestamp: entry.Timestamp,
		MessageID: entry.UUID,
	}
	if entry.ToolUse != nil {
		msg.Extra = map[string]interface{}{"tool_use": entry.ToolUse}
	}
	conv.Messages = append(conv.Messages, msg)
}

func (d *ClaudeDecoder) addAssistant(conv *internal.Conversation, linker *internal.ToolLinker, entry *claudeEntry) {
	msg := internal.Message{
		Role:      internal.RoleAssistant,
		Timestamp: entry.Timestamp,
		Model:     entry.Message.Model,
		MessageID: entry.UUID,
		Tokens:    entry.Message.Usage,
	}

	var text string
	var blocks []claudeBlock
	if err := json.Unmarshal(entry.Message.Content, &text); err != nil {
		if err := json.Unmarshal(entry.Message.Content, &blocks); err != nil {
			return
		}
	}

	parts := []string{}
	if text != "" {
		parts = append(parts, text)
	}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "thinking":
			if b.Thinking != "" {
				msg.Thoughts = append(msg.Thoughts, internal.Thought{Subject: "Thinking", Description: b.Thinking, Timestamp: entry.Timestamp})
			}
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, internal.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Input:     b.Input,
				Timestamp: entry.Timestamp,
			})
		}
	}
	msg.Content = strings.Join(parts, "\n")
	if msg.Content == "" && len(msg.ToolCalls) == 0 && len(msg.Thoughts) == 0 {
		return
	}

	idx := len(conv.Messages)
	for _, call := range msg.ToolCalls {
		linker.Register(call.ID, idx)
	}
	conv.Messages = append(conv.Messages, msg)
}
