package decoder

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// rolloutID pulls the session UUID out of rollout-<date>-<uuid>.jsonl names
var rolloutID = regexp.MustCompile(`([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`)

// CodexDecoder reads Codex CLI rollout logs
type CodexDecoder struct {
	fs afero.Fs
}

// NewCodexDecoder creates a CodexDecoder
func NewCodexDecoder(fs afero.Fs) *CodexDecoder {
	return &CodexDecoder{fs: fs}
}

type codexLine struct {
	Type      string              `json:"type"`
	Timestamp *internal.Timestamp `json:"timestamp"`
	Payload   json.RawMessage     `json:"payload"`
}

type codexMeta struct {
	ID        string              `json:"id"`
	Cwd       string              `json:"cwd"`
	Timestamp *internal.Timestamp `json:"timestamp"`
}

type codexEvent struct {
	Type      string      `json:"type"`
	Message   string      `json:"message"`
	Context   interface{} `json:"context"`
	Model     string      `json:"model"`
	Tool      string      `json:"tool"`
	Input     interface{} `json:"input"`
	Output    interface{} `json:"output"`
	File      string      `json:"file"`
	Diff      interface{} `json:"diff"`
	CallID    string      `json:"call_id"`
	Name      string      `json:"name"`
	Arguments interface{} `json:"arguments"`
}

// SessionFiles lists the rollout logs of one installation
func (d *CodexDecoder) SessionFiles(root string) []string {
	var files []string
	files = append(files, walkFiles(d.fs, filepath.Join(root, "sessions"), "rollout-*.jsonl")...)
	files = append(files, walkFiles(d.fs, filepath.Join(root, "projects"), "*.jsonl")...)
	return files
}

// Decode reads every rollout below root
func (d *CodexDecoder) Decode(root string) ([]*internal.Conversation, error) {
	var convs []*internal.Conversation
	for _, path := range d.SessionFiles(root) {
		conv, err := d.DecodeFile(path)
		if err != nil {
			internal.LogDebug("codex: %v", err)
			continue
		}
		if conv != nil {
			conv.Installation = root
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// DecodeFile reads one rollout log. Lines before session_meta are accepted;
// the meta record fills conversation fields whenever it appears.
func (d *CodexDecoder) DecodeFile(path string) (*internal.Conversation, error) {
	conv := &internal.Conversation{
		Source:     internal.SourceCodex,
		SourceFile: path,
	}
	linker := internal.NewToolLinker()

	err := forEachLine(d.fs, path, func(lineNo int, line []byte) {
		var obj codexLine
		if err := json.Unmarshal(line, &obj); err != nil {
			internal.LogDebug("codex %s:%d: %v", path, lineNo, err)
			return
		}
		switch obj.Type {
		case "session_meta":
			var meta codexMeta
			if err := json.Unmarshal(obj.Payload, &meta); err != nil {
				return
			}
			if meta.ID != "" {
				conv.SessionID = meta.ID
			}
			if meta.Cwd != "" {
				conv.ProjectPath = meta.Cwd
			}
			if meta.Timestamp != nil {
				conv.CreatedAt = meta.Timestamp
			}
		case "event_msg", "response_item":
			var ev codexEvent
			if err := json.Unmarshal(obj.Payload, &ev); err != nil {
				return
			}
			d.apply(conv, linker, &ev, obj.Timestamp)
		}
	})
	if err != nil {
		return nil, err
	}

	return finish(conv, codexFallbackID(path)), nil
}

func (d *CodexDecoder) apply(conv *internal.Conversation, linker *internal.ToolLinker, ev *codexEvent, ts *internal.Timestamp) {
	switch ev.Type {
	case "user_message", "agent_message":
		text := strings.TrimSpace(ev.Message)
		if text == "" {
			return
		}
		msg := internal.Message{Role: internal.RoleUser, Content: text, Timestamp: ts}
		if ev.Type == "agent_message" {
			msg.Role = internal.RoleAssistant
			msg.Model = ev.Model
		} else {
			msg.Context = ev.Context
		}
		conv.Messages = append(conv.Messages, msg)

	case "tool_use", "function_call":
		call := internal.ToolCall{ID: ev.CallID, Name: ev.Tool, Input: ev.Input, Timestamp: ts}
		if ev.Type == "function_call" {
			call.Name = ev.Name
			call.Input = ev.Arguments
		}
		idx := internal.LastAssistant(conv.Messages)
		if idx < 0 {
			recordUnattached(conv, map[string]interface{}{"type": "tool_use", "tool": call.Name, "input": call.Input, "timestamp": ts})
			return
		}
		conv.Messages[idx].ToolCalls = append(conv.Messages[idx].ToolCalls, call)
		linker.Register(call.ID, idx)

	case "tool_result", "function_call_output":
		result := internal.ToolResult{ToolCallID: ev.CallID, Name: ev.Tool, Output: ev.Output, Timestamp: ts}
		if !linker.AttachResult(conv.Messages, result) {
			recordUnattached(conv, map[string]interface{}{"type": "tool_result", "tool": ev.Tool, "output": ev.Output, "timestamp": ts})
		}

	case "diff":
		diff := map[string]interface{}{"file": ev.File, "diff": ev.Diff, "timestamp": ts}
		idx := internal.LastAssistant(conv.Messages)
		if idx < 0 {
			diff["type"] = "diff"
			recordUnattached(conv, diff)
			return
		}
		conv.Messages[idx].Diffs = append(conv.Messages[idx].Diffs, diff)
	}
}

func codexFallbackID(path string) string {
	stem := fileStem(path)
	if m := rolloutID.FindString(stem); m != "" {
		return m
	}
	return stem
}
