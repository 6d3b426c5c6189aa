package decoder

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// CopilotDecoder reads GitHub Copilot CLI session event streams and the
// older history-session-state summaries.
type CopilotDecoder struct {
	fs afero.Fs
}

// NewCopilotDecoder creates a CopilotDecoder
func NewCopilotDecoder(fs afero.Fs) *CopilotDecoder {
	return &CopilotDecoder{fs: fs}
}

type copilotEvent struct {
	Type      string              `json:"type"`
	Timestamp *internal.Timestamp `json:"timestamp"`
	Data      copilotEventData    `json:"data"`
}

type copilotEventData struct {
	SessionID      string               `json:"sessionId"`
	SessionIDSnake string               `json:"session_id"`
	StartTime      *internal.Timestamp  `json:"startTime"`
	CopilotVersion string               `json:"copilotVersion"`
	Producer       string               `json:"producer"`
	SelectedModel  string               `json:"selectedModel"`
	NewModel       string               `json:"newModel"`
	Content        string               `json:"content"`
	Attachments    []interface{}        `json:"attachments"`
	ToolRequests   []copilotToolRequest `json:"toolRequests"`
	Model          string               `json:"model"`
	MessageID      string               `json:"messageId"`
	ToolCallID     string               `json:"toolCallId"`
	ToolName       string               `json:"toolName"`
	Arguments      interface{}          `json:"arguments"`
	Success        *bool                `json:"success"`
	Result         interface{}          `json:"result"`
}

type copilotToolRequest struct {
	ToolCallID string      `json:"toolCallId"`
	Name       string      `json:"name"`
	Arguments  interface{} `json:"arguments"`
}

type copilotHistory struct {
	SessionID    string               `json:"sessionId"`
	StartTime    *internal.Timestamp  `json:"startTime"`
	ChatMessages []copilotChatMessage `json:"chatMessages"`
}

type copilotChatMessage struct {
	Role       string        `json:"role"`
	Content    interface{}   `json:"content"`
	ToolCallID string        `json:"tool_call_id"`
	ToolCalls  []interface{} `json:"tool_calls"`
}

// EventFiles lists both event layouts: session-state/<id>.jsonl and
// session-state/<dir>/events.jsonl.
func (d *CopilotDecoder) EventFiles(root string) []string {
	return walkFiles(d.fs, filepath.Join(root, "session-state"), "*.jsonl")
}

// HistoryFiles lists history-session-state/session_*.json summaries
func (d *CopilotDecoder) HistoryFiles(root string) []string {
	return globFiles(d.fs, filepath.Join(root, "history-session-state"), "session_*.json")
}

// Decode reads event streams first, then history summaries for sessions the
// streams did not cover.
func (d *CopilotDecoder) Decode(root string) ([]*internal.Conversation, error) {
	var convs []*internal.Conversation
	seen := make(map[string]bool)

	for _, path := range d.EventFiles(root) {
		conv, err := d.DecodeFile(path)
		if err != nil {
			internal.LogDebug("copilot: %v", err)
			continue
		}
		if conv == nil || seen[conv.SessionID] {
			continue
		}
		seen[conv.SessionID] = true
		conv.Installation = root
		convs = append(convs, conv)
	}

	for _, path := range d.HistoryFiles(root) {
		conv, err := d.DecodeHistoryFile(path)
		if err != nil {
			internal.LogDebug("copilot: %v", err)
			continue
		}
		if conv == nil || seen[conv.SessionID] {
			continue
		}
		seen[conv.SessionID] = true
		conv.Installation = root
		convs = append(convs, conv)
	}
	return convs, nil
}

// DecodeFile reads one event stream
func (d *CopilotDecoder) DecodeFile(path string) (*internal.Conversation, error) {
	conv := &internal.Conversation{
		Source:     internal.SourceCopilot,
		SourceFile: path,
	}
	linker := internal.NewToolLinker()
	var startTime *internal.Timestamp

	err := forEachLine(d.fs, path, func(lineNo int, line []byte) {
		var ev copilotEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			internal.LogDebug("copilot %s:%d: %v", path, lineNo, err)
			return
		}
		data := &ev.Data

		switch ev.Type {
		case "session.start":
			if id := firstNonEmpty(data.SessionID, data.SessionIDSnake); id != "" {
				conv.SessionID = id
			}
			startTime = data.StartTime
			if startTime == nil {
				startTime = ev.Timestamp
			}
			conv.SetMeta("copilot_version", data.CopilotVersion)
			conv.SetMeta("producer", data.Producer)
			conv.SetMeta("selected_model", data.SelectedModel)

		case "session.model_change":
			conv.SetMeta("selected_model", data.NewModel)

		case "user.message":
			msg := internal.Message{Role: internal.RoleUser, Content: data.Content, Timestamp: ev.Timestamp}
			if len(data.Attachments) > 0 {
				msg.Attachments = data.Attachments
			}
			conv.Messages = append(conv.Messages, msg)

		case "assistant.message":
			msg := internal.Message{
				Role:      internal.RoleAssistant,
				Content:   data.Content,
				Timestamp: ev.Timestamp,
				Model:     data.Model,
				MessageID: data.MessageID,
			}
			idx := len(conv.Messages)
			for _, req := range data.ToolRequests {
				msg.ToolCalls = append(msg.ToolCalls, internal.ToolCall{
					ID:        req.ToolCallID,
					Name:      req.Name,
					Input:     req.Arguments,
					Timestamp: ev.Timestamp,
				})
				linker.Register(req.ToolCallID, idx)
			}
			conv.Messages = append(conv.Messages, msg)

		case "tool.execution_start":
			call := internal.ToolCall{ID: data.ToolCallID, Name: data.ToolName, Input: data.Arguments, Timestamp: ev.Timestamp}
			idx := linker.Resolve(conv.Messages, call.ID)
			if idx < 0 {
				recordUnattached(conv, map[string]interface{}{"type": ev.Type, "toolCallId": call.ID, "toolName": call.Name, "arguments": call.Input, "timestamp": ev.Timestamp})
				return
			}
			mergeToolCall(&conv.Messages[idx], call)

		case "tool.execution_complete":
			result := internal.ToolResult{
				ToolCallID: data.ToolCallID,
				Name:       data.ToolName,
				Output:     data.Result,
				Success:    data.Success,
				Timestamp:  ev.Timestamp,
			}
			if !linker.AttachResult(conv.Messages, result) {
				recordUnattached(conv, map[string]interface{}{"type": ev.Type, "toolCallId": result.ToolCallID, "toolName": result.Name, "success": result.Success, "result": result.Output, "timestamp": ev.Timestamp})
			}
		}
	})
	if err != nil {
		return nil, err
	}

	fallback := CopilotFallbackID(path)
	if conv.SessionID == "" {
		conv.SessionID = fallback
	}
	conv.CreatedAt = startTime
	return finish(conv, fallback), nil
}

// CopilotFallbackID names an event stream that never announced its session:
// the directory for <id>/events.jsonl, the file stem for <id>.jsonl.
func CopilotFallbackID(path string) string {
	if filepath.Base(path) == "events.jsonl" {
		return filepath.Base(filepath.Dir(path))
	}
	return fileStem(path)
}

// mergeToolCall fills in a call already announced by a tool request, or
// appends it when the id is new.
func mergeToolCall(msg *internal.Message, call internal.ToolCall) {
	if call.ID != "" {
		for i := range msg.ToolCalls {
			existing := &msg.ToolCalls[i]
			if existing.ID != call.ID {
				continue
			}
			if existing.Name == "" {
				existing.Name = call.Name
			}
			if existing.Input == nil {
				existing.Input = call.Input
			}
			if existing.Timestamp == nil {
				existing.Timestamp = call.Timestamp
			}
			return
		}
	}
	msg.ToolCalls = append(msg.ToolCalls, call)
}

// DecodeHistoryFile reads a history-session-state summary
func (d *CopilotDecoder) DecodeHistoryFile(path string) (*internal.Conversation, error) {
	var hist copilotHistory
	if err := readJSONFile(d.fs, path, &hist); err != nil {
		return nil, err
	}

	id := hist.SessionID
	if id == "" {
		id = CopilotHistoryID(path)
	}
	if id == "" {
		return nil, nil
	}

	conv := &internal.Conversation{
		Source:     internal.SourceCopilot,
		SessionID:  id,
		SourceFile: path,
		CreatedAt:  hist.StartTime,
	}
	conv.SetMeta("format", "history-session-state")

	linker := internal.NewToolLinker()
	for _, m := range hist.ChatMessages {
		switch m.Role {
		case "user":
			conv.Messages = append(conv.Messages, internal.Message{Role: internal.RoleUser, Content: textOf(m.Content)})
		case "assistant":
			msg := internal.Message{Role: internal.RoleAssistant, Content: textOf(m.Content)}
			for _, raw := range m.ToolCalls {
				call := openAIToolCall(raw)
				linker.Register(call.ID, len(conv.Messages))
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
			conv.Messages = append(conv.Messages, msg)
		case "tool":
			result := internal.ToolResult{ToolCallID: m.ToolCallID, Output: m.Content}
			if !linker.AttachResult(conv.Messages, result) {
				recordUnattached(conv, map[string]interface{}{"type": "tool_result", "toolCallId": m.ToolCallID, "result": m.Content})
			}
		}
	}

	return finish(conv, id), nil
}

// CopilotHistoryID reads the id out of session_<id>_<timestamp>.json
func CopilotHistoryID(path string) string {
	parts := strings.Split(filepath.Base(path), "_")
	if len(parts) >= 2 && parts[0] == "session" {
		return strings.TrimSuffix(parts[1], ".json")
	}
	return ""
}

// openAIToolCall reads {id, function:{name, arguments}} shaped calls
func openAIToolCall(raw interface{}) internal.ToolCall {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return internal.ToolCall{Input: raw}
	}
	call := internal.ToolCall{}
	call.ID, _ = obj["id"].(string)
	if fn, ok := obj["function"].(map[string]interface{}); ok {
		call.Name, _ = fn["name"].(string)
		call.Input = fn["arguments"]
	} else {
		call.Name, _ = obj["name"].(string)
		call.Input = obj["arguments"]
	}
	return call
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
