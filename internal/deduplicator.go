package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Deduplicator removes conversations decoded twice from the same stored
// record, as happens when two installation roots overlap.
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps the first conversation per record. A record is the
// file or database it was read from, its storage key and its session id.
// Conversations without a session id are keyed by content hash.
func (d *Deduplicator) Deduplicate(convs []*Conversation) []*Conversation {
	seen := make(map[string]bool)
	var unique []*Conversation

	for _, conv := range convs {
		key := d.key(conv)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, conv)
		}
	}

	return unique
}

func (d *Deduplicator) key(conv *Conversation) string {
	origin := conv.SourceFile
	if origin == "" {
		origin = conv.DBPath
	}
	storageKey, _ := conv.Metadata["storage_key"].(string)
	id := conv.SessionID
	if id == "" {
		id = "#" + d.hashContent(conv)
	}
	return strings.Join([]string{string(conv.Source), origin, storageKey, id}, "\x00")
}

// hashContent creates a content-based hash for a conversation
func (d *Deduplicator) hashContent(conv *Conversation) string {
	h := sha256.New()

	for _, msg := range conv.Messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte(msg.Content))
		h.Write([]byte(msg.Timestamp.String()))
	}

	return hex.EncodeToString(h.Sum(nil))
}
