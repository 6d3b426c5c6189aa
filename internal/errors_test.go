package internal

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStorageError(t *testing.T) {
	originalErr := errors.New("permission denied")
	err := &StorageError{
		Path: "/test/path",
		Op:   "open",
		Err:  originalErr,
	}

	// Test Error() method
	errorMsg := err.Error()
	if errorMsg == "" {
		t.Error("StorageError.Error() returned empty string")
	}
	if !strings.Contains(errorMsg, "storage error") {
		t.Errorf("StorageError.Error() should contain 'storage error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "/test/path") {
		t.Errorf("StorageError.Error() should contain path, got: %q", errorMsg)
	}

	// Test Unwrap() method
	if !errors.Is(err, originalErr) {
		t.Error("StorageError.Unwrap() should return original error")
	}
}

func TestParseError(t *testing.T) {
	originalErr := errors.New("invalid JSON")
	err := &ParseError{
		Source: "cursor-composer",
		Key:    "test:key",
		Err:    originalErr,
	}

	// Test Error() method
	errorMsg := err.Error()
	if errorMsg == "" {
		t.Error("ParseError.Error() returned empty string")
	}
	if !strings.Contains(errorMsg, "parse error") {
		t.Errorf("ParseError.Error() should contain 'parse error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "cursor-composer") {
		t.Errorf("ParseError.Error() should contain source, got: %q", errorMsg)
	}

	// Test Unwrap() method
	if !errors.Is(err, originalErr) {
		t.Error("ParseError.Unwrap() should return original error")
	}
}

func TestRecordNotFoundError(t *testing.T) {
	err := &RecordNotFoundError{
		Source: "opencode",
		Ref:    "session ses_123",
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "record not found") {
		t.Errorf("RecordNotFoundError.Error() should contain 'record not found', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "ses_123") {
		t.Errorf("RecordNotFoundError.Error() should contain the reference, got: %q", errorMsg)
	}

	var target *RecordNotFoundError
	wrapped := fmt.Errorf("export: %w", err)
	if !errors.As(wrapped, &target) {
		t.Error("errors.As() should find RecordNotFoundError through wrapping")
	}
}

func TestExportError(t *testing.T) {
	originalErr := errors.New("write failed")
	err := &ExportError{
		Format: "jsonl",
		Path:   "/output/file.jsonl",
		Err:    originalErr,
	}

	// Test Error() method
	errorMsg := err.Error()
	if errorMsg == "" {
		t.Error("ExportError.Error() returned empty string")
	}
	if !strings.Contains(errorMsg, "export error") {
		t.Errorf("ExportError.Error() should contain 'export error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "jsonl") {
		t.Errorf("ExportError.Error() should contain format, got: %q", errorMsg)
	}

	// Test Unwrap() method
	if !errors.Is(err, originalErr) {
		t.Error("ExportError.Unwrap() should return original error")
	}
}
