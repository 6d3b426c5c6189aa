package internal

import (
	"testing"
)

func TestNewDeduplicator(t *testing.T) {
	d := NewDeduplicator()
	if d == nil {
		t.Error("NewDeduplicator() returned nil")
	}
}

func TestDeduplicator_Deduplicate(t *testing.T) {
	hello := []Message{{Role: RoleUser, Content: "Hello"}}
	bye := []Message{{Role: RoleUser, Content: "Goodbye"}}

	tests := []struct {
		name  string
		convs []*Conversation
		want  int
	}{
		{
			name:  "empty",
			convs: []*Conversation{},
			want:  0,
		},
		{
			name: "distinct session ids",
			convs: []*Conversation{
				CreateTestConversationWithMessages("s1", hello),
				CreateTestConversationWithMessages("s2", hello),
			},
			want: 2,
		},
		{
			name: "repeated session id keeps first",
			convs: []*Conversation{
				CreateTestConversationWithMessages("s1", hello),
				CreateTestConversationWithMessages("s1", bye),
			},
			want: 1,
		},
		{
			name: "same id different source",
			convs: []*Conversation{
				CreateTestConversationWithMessages("s1", hello),
				{Source: SourceCodex, SessionID: "s1", Messages: hello},
			},
			want: 2,
		},
		{
			name: "same id from separate files",
			convs: []*Conversation{
				{Source: SourceTrae, SessionID: "log", SourceFile: "/p1/log.jsonl", Messages: hello},
				{Source: SourceTrae, SessionID: "log", SourceFile: "/p2/log.jsonl", Messages: bye},
			},
			want: 2,
		},
		{
			name: "same file decoded through overlapping roots",
			convs: []*Conversation{
				{Source: SourceCodex, SessionID: "s1", SourceFile: "/r/sessions/a.jsonl", Installation: "/r", Messages: hello},
				{Source: SourceCodex, SessionID: "s1", SourceFile: "/r/sessions/a.jsonl", Installation: "/r/sessions", Messages: hello},
			},
			want: 1,
		},
		{
			name: "same database, different storage keys",
			convs: []*Conversation{
				{Source: SourceTrae, SessionID: "x", DBPath: "/g/state.vscdb", Metadata: map[string]interface{}{"storage_key": "a"}, Messages: hello},
				{Source: SourceTrae, SessionID: "x", DBPath: "/g/state.vscdb", Metadata: map[string]interface{}{"storage_key": "b"}, Messages: hello},
			},
			want: 2,
		},
		{
			name: "no session id falls back to content",
			convs: []*Conversation{
				CreateTestConversationWithMessages("", hello),
				CreateTestConversationWithMessages("", hello),
				CreateTestConversationWithMessages("", bye),
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeduplicator()
			got := d.Deduplicate(tt.convs)
			if len(got) != tt.want {
				t.Errorf("Deduplicate() returned %d conversations, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDeduplicator_KeepsFirst(t *testing.T) {
	first := CreateTestConversationWithMessages("s1", []Message{{Role: RoleUser, Content: "first"}})
	second := CreateTestConversationWithMessages("s1", []Message{{Role: RoleUser, Content: "second"}})

	got := NewDeduplicator().Deduplicate([]*Conversation{first, second})
	if len(got) != 1 || got[0] != first {
		t.Fatalf("Deduplicate() did not keep the first conversation")
	}
}
