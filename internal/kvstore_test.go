package internal

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestDecodeKVStore_TruncatedTrailingRecord(t *testing.T) {
	var buf []byte
	buf = EncodeKVRecord(buf, "session/p1/s1", []byte(`{"id":"s1"}`))
	buf = EncodeKVRecord(buf, "message/s1/m1", []byte(`{"id":"m1","role":"user"}`))
	// A third record whose key length announces more bytes than remain.
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], 1000)
	buf = append(buf, n[:]...)
	buf = append(buf, "short"...)

	store := DecodeKVStore(buf)
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
	keys := store.Keys()
	if keys[0] != "session/p1/s1" || keys[1] != "message/s1/m1" {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestDecodeKVStore_InvalidJSONSkipped(t *testing.T) {
	var buf []byte
	buf = EncodeKVRecord(buf, "a", []byte(`{"ok":true}`))
	buf = EncodeKVRecord(buf, "b", []byte(`{not json`))
	buf = EncodeKVRecord(buf, "c", []byte(`[1,2]`))

	store := DecodeKVStore(buf)
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
	if _, ok := store.Get("b"); ok {
		t.Error("invalid JSON value was kept")
	}
	if _, ok := store.Get("c"); !ok {
		t.Error("record after invalid value was not decoded")
	}
}

func TestDecodeKVStore_Bounds(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"short length", []byte{1, 0}},
		{"key too long", func() []byte {
			var n [4]byte
			binary.LittleEndian.PutUint32(n[:], MaxKVKeyLength+1)
			return n[:]
		}()},
		{"value overrun", func() []byte {
			buf := EncodeKVRecord(nil, "k", []byte(`{}`))
			return buf[:len(buf)-1]
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeKVStore(tt.buf).Len(); got != 0 {
				t.Errorf("Len() = %d, want 0", got)
			}
		})
	}
}

func TestDecodeKVStore_RepeatedKey(t *testing.T) {
	var buf []byte
	buf = EncodeKVRecord(buf, "a", []byte(`1`))
	buf = EncodeKVRecord(buf, "b", []byte(`2`))
	buf = EncodeKVRecord(buf, "a", []byte(`3`))

	store := DecodeKVStore(buf)
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
	var v int
	if !store.Decode("a", &v) || v != 3 {
		t.Errorf("Decode(a) = %d, want 3", v)
	}
	if store.Keys()[0] != "a" {
		t.Errorf("repeated key lost its first position: %v", store.Keys())
	}
}

func TestKVStore_KeysWithPrefix(t *testing.T) {
	var buf []byte
	buf = EncodeKVRecord(buf, "part/m1/p2", []byte(`{}`))
	buf = EncodeKVRecord(buf, "message/s1/m1", []byte(`{}`))
	buf = EncodeKVRecord(buf, "part/m1/p1", []byte(`{}`))

	got := DecodeKVStore(buf).KeysWithPrefix("part/m1/")
	if len(got) != 2 || got[0] != "part/m1/p1" || got[1] != "part/m1/p2" {
		t.Errorf("KeysWithPrefix() = %v", got)
	}
}

func TestReadKVStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("data", "store.dat")
	if err := afero.WriteFile(fs, path, EncodeKVRecord(nil, "k", []byte(`"v"`)), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := ReadKVStore(fs, path)
	if err != nil {
		t.Fatalf("ReadKVStore() error = %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	if _, err := ReadKVStore(fs, "missing.dat"); err == nil {
		t.Error("ReadKVStore() on missing file returned nil error")
	}
}
