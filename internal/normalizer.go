package internal

import "strings"

// Normalizer applies the rules shared by every decoder before a
// conversation is emitted.
type Normalizer struct{}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Finalize returns conv, or nil when it has no messages or when no message
// has content or tool activity.
func (n *Normalizer) Finalize(conv *Conversation) *Conversation {
	if conv == nil || len(conv.Messages) == 0 {
		return nil
	}
	for i := range conv.Messages {
		msg := &conv.Messages[i]
		if strings.TrimSpace(msg.Content) != "" || msg.HasToolActivity() {
			return conv
		}
	}
	LogDebug("dropping %s session %q: no content", conv.Source, conv.SessionID)
	return nil
}

// ToolLinker maps tool call ids to the index of the message that issued
// them, so results can be attached to their owner.
type ToolLinker struct {
	owner map[string]int
}

// NewToolLinker creates an empty ToolLinker
func NewToolLinker() *ToolLinker {
	return &ToolLinker{owner: make(map[string]int)}
}

// Register records that the message at idx issued the call id.
func (l *ToolLinker) Register(id string, idx int) {
	if id == "" {
		return
	}
	l.owner[id] = idx
}

// Resolve picks the message a tool event belongs to: the issuer of id when
// known, otherwise the most recent assistant message. It returns -1 when
// neither exists.
func (l *ToolLinker) Resolve(messages []Message, id string) int {
	if id != "" {
		if idx, ok := l.owner[id]; ok && idx >= 0 && idx < len(messages) {
			return idx
		}
	}
	return LastAssistant(messages)
}

// AttachResult appends r to the owning message. It reports false when no
// message could own it.
func (l *ToolLinker) AttachResult(messages []Message, r ToolResult) bool {
	idx := l.Resolve(messages, r.ToolCallID)
	if idx < 0 {
		return false
	}
	messages[idx].ToolResults = append(messages[idx].ToolResults, r)
	return true
}

// AttachCall appends c to the owning message using the same rule as results.
func (l *ToolLinker) AttachCall(messages []Message, c ToolCall) bool {
	idx := l.Resolve(messages, c.ID)
	if idx < 0 {
		return false
	}
	messages[idx].ToolCalls = append(messages[idx].ToolCalls, c)
	return true
}

// LastAssistant returns the index of the last assistant message, or -1.
func LastAssistant(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}
