package decoder

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// GeminiDecoder reads Gemini CLI checkpoint files under tmp/<hash>/chats
type GeminiDecoder struct {
	fs afero.Fs
}

// NewGeminiDecoder creates a GeminiDecoder
func NewGeminiDecoder(fs afero.Fs) *GeminiDecoder {
	return &GeminiDecoder{fs: fs}
}

type geminiSession struct {
	SessionID   string              `json:"sessionId"`
	ProjectHash string              `json:"projectHash"`
	StartTime   *internal.Timestamp `json:"startTime"`
	LastUpdated *internal.Timestamp `json:"lastUpdated"`
	Messages    []geminiMessage     `json:"messages"`
}

type geminiMessage struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Content   interface{}         `json:"content"`
	Timestamp *internal.Timestamp `json:"timestamp"`
	Model     string              `json:"model"`
	Thoughts  []internal.Thought  `json:"thoughts"`
	Tokens    interface{}         `json:"tokens"`
	ToolCalls []geminiToolCall    `json:"toolCalls"`
}

type geminiToolCall struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Args      interface{}         `json:"args"`
	Result    interface{}         `json:"result"`
	Status    string              `json:"status"`
	Timestamp *internal.Timestamp `json:"timestamp"`
}

// SessionFiles lists tmp/**/chats/session-*.json
func (d *GeminiDecoder) SessionFiles(root string) []string {
	var files []string
	for _, path := range walkFiles(d.fs, filepath.Join(root, "tmp"), "session-*.json") {
		if filepath.Base(filepath.Dir(path)) == "chats" {
			files = append(files, path)
		}
	}
	return files
}

// Decode reads every checkpoint below root
func (d *GeminiDecoder) Decode(root string) ([]*internal.Conversation, error) {
	var convs []*internal.Conversation
	for _, path := range d.SessionFiles(root) {
		conv, err := d.DecodeFile(path)
		if err != nil {
			internal.LogDebug("gemini: %v", err)
			continue
		}
		if conv != nil {
			conv.Installation = root
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// DecodeFile reads one checkpoint file
func (d *GeminiDecoder) DecodeFile(path string) (*internal.Conversation, error) {
	var session geminiSession
	if err := readJSONFile(d.fs, path, &session); err != nil {
		return nil, err
	}

	conv := &internal.Conversation{
		Source:      internal.SourceGemini,
		SessionID:   session.SessionID,
		ProjectHash: session.ProjectHash,
		CreatedAt:   session.StartTime,
		UpdatedAt:   session.LastUpdated,
		SourceFile:  path,
	}

	for _, m := range session.Messages {
		switch m.Type {
		case "user":
			conv.Messages = append(conv.Messages, internal.Message{
				Role:      internal.RoleUser,
				Content:   textOf(m.Content),
				Timestamp: m.Timestamp,
				MessageID: m.ID,
			})
		case "gemini":
			msg := internal.Message{
				Role:      internal.RoleAssistant,
				Content:   textOf(m.Content),
				Timestamp: m.Timestamp,
				MessageID: m.ID,
				Model:     m.Model,
				Thoughts:  m.Thoughts,
				Tokens:    m.Tokens,
			}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, internal.ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Args, Timestamp: tc.Timestamp})
				if tc.Result != nil {
					r := internal.ToolResult{ToolCallID: tc.ID, Name: tc.Name, Output: tc.Result, Timestamp: tc.Timestamp}
					if tc.Status != "" {
						ok := tc.Status == "success"
						r.Success = &ok
					}
					msg.ToolResults = append(msg.ToolResults, r)
				}
			}
			conv.Messages = append(conv.Messages, msg)
		}
	}

	return finish(conv, fileStem(path)), nil
}
