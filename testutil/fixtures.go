package testutil

import (
	"encoding/binary"
	"path/filepath"
	"testing"
)

// KVRecord is one entry of a binary key-value store fixture
type KVRecord struct {
	Key   string
	Value string
}

// BuildKVStore encodes records as {u32le keylen}{key}{u32le vallen}{value}
func BuildKVStore(records ...KVRecord) []byte {
	var buf []byte
	var n [4]byte
	for _, r := range records {
		binary.LittleEndian.PutUint32(n[:], uint32(len(r.Key)))
		buf = append(buf, n[:]...)
		buf = append(buf, r.Key...)
		binary.LittleEndian.PutUint32(n[:], uint32(len(r.Value)))
		buf = append(buf, n[:]...)
		buf = append(buf, r.Value...)
	}
	return buf
}

// WriteKVStore writes a binary store fixture to path
func WriteKVStore(t *testing.T, path string, records ...KVRecord) {
	t.Helper()
	WriteFile(t, path, BuildKVStore(records...))
}

// CreateSQLiteFixture creates a global storage database with one composer
// holding two separate bubbles
func CreateSQLiteFixture(t *testing.T, dbPath string) {
	t.Helper()
	db := CreateVSCDB(t, dbPath)

	InsertDiskKVJSON(t, db, "composerData:composer1", map[string]interface{}{
		"composerId":    "composer1",
		"name":          "Test Conversation",
		"createdAt":     1700000000000,
		"lastUpdatedAt": 1700000060000,
		"fullConversationHeadersOnly": []map[string]interface{}{
			{"bubbleId": "bubble1", "type": 1},
			{"bubbleId": "bubble2", "type": 2},
		},
	})
	InsertDiskKVJSON(t, db, "bubbleId:composer1:bubble1", map[string]interface{}{
		"bubbleId":  "bubble1",
		"type":      1,
		"text":      "Hello world",
		"createdAt": "2023-11-14T22:13:20Z",
	})
	InsertDiskKVJSON(t, db, "bubbleId:composer1:bubble2", map[string]interface{}{
		"bubbleId":  "bubble2",
		"type":      2,
		"text":      "Hi there",
		"createdAt": "2023-11-14T22:14:20Z",
	})
}

// CreateWorkspaceFixture creates User/workspaceStorage/<hash> with a
// workspace.json pointing at folder and returns the workspace directory
func CreateWorkspaceFixture(t *testing.T, userDir, workspaceHash, folder string) string {
	t.Helper()
	workspaceDir := filepath.Join(userDir, "workspaceStorage", workspaceHash)
	WriteJSON(t, filepath.Join(workspaceDir, "workspace.json"), map[string]interface{}{
		"folder": "file://" + folder,
	})
	return workspaceDir
}
