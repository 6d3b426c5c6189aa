package internal

import "encoding/json"

// Role is the speaker of a message. Tool activity is attached to messages
// and never forms a role of its own.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source tags which decoder variant produced a conversation
type Source string

const (
	SourceClaudeCode              Source = "claude-code"
	SourceCodex                   Source = "codex"
	SourceCopilot                 Source = "copilot-cli"
	SourceGemini                  Source = "gemini-cli"
	SourceOpenCode                Source = "opencode"
	SourceOpenCodeDesktop         Source = "opencode-desktop"
	SourceCursorChat              Source = "cursor-chat"
	SourceCursorWorkspaceComposer Source = "cursor-workspace-composer"
	SourceCursorAIService         Source = "cursor-aiservice"
	SourceCursorComposer          Source = "cursor-composer"
	SourceTrae                    Source = "trae"
	SourceWindsurfChat            Source = "windsurf-chat"
	SourceWindsurfAgent           Source = "windsurf-agent"
)

// Conversation is the normalized output unit shared by every decoder
type Conversation struct {
	Messages        []Message              `json:"messages" yaml:"messages"`
	Source          Source                 `json:"source" yaml:"source"`
	SessionID       string                 `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Title           string                 `json:"title,omitempty" yaml:"title,omitempty"`
	ProjectPath     string                 `json:"project_path,omitempty" yaml:"project_path,omitempty"`
	ProjectName     string                 `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	ProjectHash     string                 `json:"project_hash,omitempty" yaml:"project_hash,omitempty"`
	ParentSessionID string                 `json:"parent_session_id,omitempty" yaml:"parent_session_id,omitempty"`
	CreatedAt       *Timestamp             `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt       *Timestamp             `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	SourceFile      string                 `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	DBPath          string                 `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Installation    string                 `json:"installation,omitempty" yaml:"installation,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Message is one user or assistant turn, possibly assembled from several
// storage fragments.
type Message struct {
	Role        Role                   `json:"role" yaml:"role"`
	Content     string                 `json:"content" yaml:"content"`
	Timestamp   *Timestamp             `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	MessageID   string                 `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	Model       string                 `json:"model,omitempty" yaml:"model,omitempty"`
	Agent       string                 `json:"agent,omitempty" yaml:"agent,omitempty"`
	Tokens      interface{}            `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Cost        *float64               `json:"cost,omitempty" yaml:"cost,omitempty"`
	CommandType interface{}            `json:"command_type,omitempty" yaml:"command_type,omitempty"`
	Thoughts    []Thought              `json:"thoughts,omitempty" yaml:"thoughts,omitempty"`
	ToolCalls   []ToolCall             `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	ToolResults []ToolResult           `json:"tool_results,omitempty" yaml:"tool_results,omitempty"`
	CodeContext []CodeContext          `json:"code_context,omitempty" yaml:"code_context,omitempty"`
	Diffs       []interface{}          `json:"diffs,omitempty" yaml:"diffs,omitempty"`
	Attachments interface{}            `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	Context     interface{}            `json:"context,omitempty" yaml:"context,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Thought is a reasoning segment
type Thought struct {
	Subject     string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	Description string     `json:"description" yaml:"description"`
	Timestamp   *Timestamp `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// ToolCall is a tool invocation issued by an assistant message
type ToolCall struct {
	ID        string      `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string      `json:"name,omitempty" yaml:"name,omitempty"`
	Input     interface{} `json:"input,omitempty" yaml:"input,omitempty"`
	Timestamp *Timestamp  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// ToolResult is the output of a tool invocation
type ToolResult struct {
	ToolCallID string      `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty" yaml:"name,omitempty"`
	Output     interface{} `json:"output,omitempty" yaml:"output,omitempty"`
	Success    *bool       `json:"success,omitempty" yaml:"success,omitempty"`
	Timestamp  *Timestamp  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// CodeContext is a file selection attached to a message
type CodeContext struct {
	File  string      `json:"file" yaml:"file"`
	Code  string      `json:"code,omitempty" yaml:"code,omitempty"`
	Range interface{} `json:"range,omitempty" yaml:"range,omitempty"`
}

// HasToolActivity reports whether the message carries tool calls or results
func (m *Message) HasToolActivity() bool {
	return len(m.ToolCalls) > 0 || len(m.ToolResults) > 0
}

// Complete reports whether any message came from the assistant
func (c *Conversation) Complete() bool {
	for i := range c.Messages {
		if c.Messages[i].Role == RoleAssistant {
			return true
		}
	}
	return false
}

// HasTools reports whether any message carries tool activity
func (c *Conversation) HasTools() bool {
	for i := range c.Messages {
		if c.Messages[i].HasToolActivity() {
			return true
		}
	}
	return false
}

// SetMeta records a source-specific field, skipping empty values.
func (c *Conversation) SetMeta(key string, value interface{}) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		if v == "" {
			return
		}
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]interface{})
	}
	c.Metadata[key] = value
}

// MarshalJSON adds the derived complete and has_tools flags
func (c Conversation) MarshalJSON() ([]byte, error) {
	type plain Conversation
	return json.Marshal(struct {
		plain
		Complete bool `json:"complete"`
		HasTools bool `json:"has_tools"`
	}{plain(c), c.Complete(), c.HasTools()})
}
