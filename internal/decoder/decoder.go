// Package decoder turns each assistant tool's on-disk layout into
// normalized conversations.
package decoder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/locate"
)

// Decoder reads every conversation below one installation root.
type Decoder interface {
	Decode(root string) ([]*internal.Conversation, error)
}

// ForTool returns the decoder for tool
func ForTool(tool locate.Tool, fs afero.Fs) (Decoder, error) {
	switch tool {
	case locate.ToolClaudeCode:
		return NewClaudeDecoder(fs), nil
	case locate.ToolCodex:
		return NewCodexDecoder(fs), nil
	case locate.ToolCopilot:
		return NewCopilotDecoder(fs), nil
	case locate.ToolGemini:
		return NewGeminiDecoder(fs), nil
	case locate.ToolOpenCode:
		return NewOpenCodeDecoder(fs), nil
	case locate.ToolOpenCodeDesktop:
		return NewOpenCodeDesktopDecoder(fs), nil
	case locate.ToolCursor:
		return NewCursorDecoder(fs), nil
	case locate.ToolTrae:
		return NewTraeDecoder(fs), nil
	case locate.ToolWindsurf:
		return NewWindsurfDecoder(fs), nil
	}
	return nil, fmt.Errorf("no decoder for tool %q", tool)
}

// maxLineSize bounds a single event log line
const maxLineSize = 64 << 20

// forEachLine calls fn with every non-blank line of a JSONL file. Lines are
// numbered from 1.
func forEachLine(fs afero.Fs, path string, fn func(lineNo int, line []byte)) error {
	f, err := fs.Open(path)
	if err != nil {
		return &internal.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(lineNo, line)
	}
	if err := scanner.Err(); err != nil {
		return &internal.StorageError{Path: path, Op: "read", Err: err}
	}
	return nil
}

// readJSONFile decodes one JSON document
func readJSONFile(fs afero.Fs, path string, v interface{}) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return &internal.StorageError{Path: path, Op: "read", Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &internal.ParseError{Key: path, Err: err}
	}
	return nil
}

// sortedEntries lists dir sorted by name. Missing directories yield nothing.
func sortedEntries(fs afero.Fs, dir string) []os.FileInfo {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries
}

// walkFiles returns files below root whose base name matches pattern, in
// lexical path order.
func walkFiles(fs afero.Fs, root, pattern string) []string {
	var files []string
	_ = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, info.Name()); ok {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

// globFiles returns files directly inside dir matching pattern, sorted
func globFiles(fs afero.Fs, dir, pattern string) []string {
	var files []string
	for _, e := range sortedEntries(fs, dir) {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files
}

func exists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// textOf renders a loosely typed content value as text: strings as-is,
// arrays of text blocks joined by newline, anything else as JSON.
func textOf(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []interface{}:
		var parts []string
		for _, item := range x {
			switch it := item.(type) {
			case string:
				parts = append(parts, it)
			case map[string]interface{}:
				if s, ok := it["text"].(string); ok {
					parts = append(parts, s)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	case map[string]interface{}:
		if s, ok := x["text"].(string); ok {
			return s
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// finish applies metadata reconstruction and the emptiness rule
func finish(conv *internal.Conversation, fallbackID string) *internal.Conversation {
	internal.ReconstructMetadata(conv, fallbackID)
	return internal.NewNormalizer().Finalize(conv)
}

// recordUnattached keeps a tool event that no message could own
func recordUnattached(conv *internal.Conversation, event interface{}) {
	events, _ := conv.Metadata["unattached_tool_events"].([]interface{})
	conv.SetMeta("unattached_tool_events", append(events, event))
}
