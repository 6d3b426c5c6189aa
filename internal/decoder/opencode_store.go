package decoder

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// keyStore is the OpenCode key space (project/, session/, message/, part/)
// independent of whether keys live as JSON files or inside a KV file.
type keyStore interface {
	// List returns the sorted child names below prefix
	List(prefix string) []string
	// Get decodes the document stored under key
	Get(key string, v interface{}) error
	// Location names where key lives, for provenance
	Location(key string) string
}

// dirStore maps key a/b/c to <base>/a/b/c.json
type dirStore struct {
	fs   afero.Fs
	base string
}

func (s *dirStore) List(prefix string) []string {
	var names []string
	for _, e := range sortedEntries(s.fs, filepath.Join(s.base, filepath.FromSlash(prefix))) {
		if e.IsDir() {
			names = append(names, e.Name())
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	return names
}

func (s *dirStore) Get(key string, v interface{}) error {
	return readJSONFile(s.fs, s.Location(key), v)
}

func (s *dirStore) Location(key string) string {
	return filepath.Join(s.base, filepath.FromSlash(key)) + ".json"
}

// kvStore serves the same key space out of one binary KV file
type kvStore struct {
	path  string
	store *internal.KVStore
}

func (s *kvStore) List(prefix string) []string {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	seen := make(map[string]bool)
	var names []string
	for _, key := range s.store.KeysWithPrefix(prefix) {
		rest := strings.TrimPrefix(key, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		if rest == "" || seen[rest] {
			continue
		}
		seen[rest] = true
		names = append(names, rest)
	}
	sort.Strings(names)
	return names
}

func (s *kvStore) Get(key string, v interface{}) error {
	raw, ok := s.store.Get(key)
	if !ok {
		return &internal.RecordNotFoundError{Source: string(internal.SourceOpenCodeDesktop), Ref: key}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &internal.ParseError{Source: string(internal.SourceOpenCodeDesktop), Key: key, Err: err}
	}
	return nil
}

func (s *kvStore) Location(key string) string {
	return s.path + "#" + key
}
