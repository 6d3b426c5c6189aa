package internal

import (
	"encoding/binary"
	"encoding/json"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const (
	// kvLengthSize is the width of each little-endian length field.
	kvLengthSize = 4
	// MaxKVKeyLength and MaxKVValueLength reject lengths read from corrupt
	// or misaligned data.
	MaxKVKeyLength   = 64 << 10
	MaxKVValueLength = 256 << 20
)

// KVStore is the decoded content of a length-prefixed binary key-value file.
type KVStore struct {
	keys   []string
	values map[string]json.RawMessage
}

// DecodeKVStore decodes records of the form
//
//	{u32le key length}{key}{u32le value length}{JSON value}
//
// Decoding stops at the first record whose length field is truncated, whose
// length exceeds the sanity bound or whose slice would overrun the buffer.
// Records with invalid JSON values are skipped.
func DecodeKVStore(buf []byte) *KVStore {
	store := &KVStore{values: make(map[string]json.RawMessage)}
	offset := 0

	for {
		keyLen, ok := readKVLength(buf, offset, MaxKVKeyLength)
		if !ok {
			break
		}
		offset += kvLengthSize
		key := strings.ToValidUTF8(string(buf[offset:offset+keyLen]), "�")
		offset += keyLen

		valLen, ok := readKVLength(buf, offset, MaxKVValueLength)
		if !ok {
			break
		}
		offset += kvLengthSize
		value := buf[offset : offset+valLen]
		offset += valLen

		if !json.Valid(value) {
			LogDebug("kv store: skipping record %q with invalid JSON value", key)
			continue
		}
		if _, seen := store.values[key]; !seen {
			store.keys = append(store.keys, key)
		}
		store.values[key] = json.RawMessage(append([]byte(nil), value...))
	}

	return store
}

// readKVLength reads the length field at offset and checks that the slice it
// announces fits in buf.
func readKVLength(buf []byte, offset, limit int) (int, bool) {
	if len(buf)-offset < kvLengthSize {
		return 0, false
	}
	n := binary.LittleEndian.Uint32(buf[offset : offset+kvLengthSize])
	if uint64(n) > uint64(limit) {
		return 0, false
	}
	if uint64(len(buf)-offset-kvLengthSize) < uint64(n) {
		return 0, false
	}
	return int(n), true
}

// ReadKVStore reads and decodes a binary store file.
func ReadKVStore(fs afero.Fs, path string) (*KVStore, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "read", Err: err}
	}
	return DecodeKVStore(data), nil
}

// EncodeKVRecord appends one record in the binary store format.
func EncodeKVRecord(dst []byte, key string, value []byte) []byte {
	var n [kvLengthSize]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(key)))
	dst = append(dst, n[:]...)
	dst = append(dst, key...)
	binary.LittleEndian.PutUint32(n[:], uint32(len(value)))
	dst = append(dst, n[:]...)
	return append(dst, value...)
}

// Len returns the number of decoded entries
func (s *KVStore) Len() int {
	return len(s.keys)
}

// Keys returns keys in encounter order
func (s *KVStore) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Get returns the raw JSON stored under key
func (s *KVStore) Get(key string) (json.RawMessage, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Decode unmarshals the value under key into v.
func (s *KVStore) Decode(key string, v interface{}) bool {
	raw, ok := s.values[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// KeysWithPrefix returns matching keys sorted lexically
func (s *KVStore) KeysWithPrefix(prefix string) []string {
	var out []string
	for _, k := range s.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
