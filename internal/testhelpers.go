package internal

// CreateTestConversation creates a two-turn conversation with sample data
func CreateTestConversation(id string) *Conversation {
	return &Conversation{
		Source:    SourceClaudeCode,
		SessionID: id,
		Title:     "Test Conversation",
		CreatedAt: NewTimestamp("2025-01-02T03:04:05Z"),
		Messages: []Message{
			{
				Role:      RoleUser,
				Content:   "Hello, how are you?",
				Timestamp: NewTimestamp("2025-01-02T03:04:05Z"),
			},
			{
				Role:      RoleAssistant,
				Content:   "I'm doing well, thank you!",
				Timestamp: NewTimestamp("2025-01-02T03:04:09Z"),
			},
		},
	}
}

// CreateTestConversationWithMessages creates a conversation with custom messages
func CreateTestConversationWithMessages(id string, messages []Message) *Conversation {
	return &Conversation{
		Source:    SourceClaudeCode,
		SessionID: id,
		Messages:  messages,
	}
}
