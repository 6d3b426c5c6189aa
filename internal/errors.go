package internal

import "fmt"

// StorageError represents errors accessing a source store
type StorageError struct {
	Path string
	Op   string // "open", "read", "query", "walk"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseError represents a record that could not be decoded
type ParseError struct {
	Source string // source tag, e.g. "codex"
	Key    string // storage key, file path or path:line
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RecordNotFoundError is returned when an export reference no longer
// resolves to a record in its store.
type RecordNotFoundError struct {
	Source string
	Ref    string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record not found [%s]: %s", e.Source, e.Ref)
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
