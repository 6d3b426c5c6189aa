// Package extract dumps every conversation of a tool into one JSONL file.
package extract

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
	"github.com/iksnae/agent-sessions/internal/export"
	"github.com/iksnae/agent-sessions/internal/locate"
)

// DefaultDir is where bulk dumps go when no output directory is configured
const DefaultDir = "extracted_data"

var prefixes = map[locate.Tool]string{
	locate.ToolClaudeCode:      "claude_code_conversations",
	locate.ToolCodex:           "codex_conversations",
	locate.ToolCopilot:         "copilot_conversations",
	locate.ToolCursor:          "cursor_complete",
	locate.ToolGemini:          "gemini_conversations",
	locate.ToolOpenCode:        "opencode_conversations",
	locate.ToolOpenCodeDesktop: "opencode_desktop_conversations",
	locate.ToolTrae:            "trae_conversations",
	locate.ToolWindsurf:        "windsurf_conversations",
}

// Prefix returns the dump file prefix for tool
func Prefix(tool locate.Tool) string {
	if p, ok := prefixes[tool]; ok {
		return p
	}
	return string(tool) + "_conversations"
}

// Stats summarizes one dump
type Stats struct {
	Tool      locate.Tool
	Total     int
	Complete  int
	Messages  int
	WithTools int
	// Conversations per installation root
	PerInstallation map[string]int
	Path            string
	Size            int64
}

// Extractor decodes every installation of a tool and writes one dump file.
type Extractor struct {
	Fs    afero.Fs
	Dir   string
	Roots func(locate.Tool) []string
	Now   func() time.Time
}

// New creates an Extractor writing below dir
func New(fs afero.Fs, dir string, roots func(locate.Tool) []string) *Extractor {
	if dir == "" {
		dir = DefaultDir
	}
	return &Extractor{Fs: fs, Dir: dir, Roots: roots, Now: time.Now}
}

// Collect decodes every conversation of tool. A record reached through two
// overlapping roots is kept once. A root that fails to decode is skipped.
func (e *Extractor) Collect(ctx context.Context, tool locate.Tool) ([]*internal.Conversation, error) {
	dec, err := decoder.ForTool(tool, e.Fs)
	if err != nil {
		return nil, err
	}

	var all []*internal.Conversation
	for _, root := range e.Roots(tool) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		convs, err := dec.Decode(root)
		if err != nil {
			internal.LogWarn("skipping %s: %v", root, err)
			continue
		}
		internal.LogDebug("%s: %d conversation(s) in %s", tool, len(convs), root)
		for _, conv := range convs {
			if conv.Installation == "" {
				conv.Installation = root
			}
		}
		all = append(all, convs...)
	}
	return internal.NewDeduplicator().Deduplicate(all), nil
}

// Extract writes every conversation of tool to a new file
// <dir>/<prefix>_<YYYYMMDD_HHMMSS>.jsonl, suffixed __N when a run in the
// same second already wrote that name. Nothing is written when the tool has
// no conversations.
func (e *Extractor) Extract(ctx context.Context, tool locate.Tool) (*Stats, error) {
	convs, err := e.Collect(ctx, tool)
	if err != nil {
		return nil, err
	}

	stats := Summarize(tool, convs)
	if len(convs) == 0 {
		return stats, nil
	}

	if err := e.Fs.MkdirAll(e.Dir, 0755); err != nil {
		return nil, &internal.ExportError{Format: "jsonl", Path: e.Dir, Err: err}
	}
	name := fmt.Sprintf("%s_%s.jsonl", Prefix(tool), e.Now().Format("20060102_150405"))
	path, err := export.UniquePath(e.Fs, e.Dir, name)
	if err != nil {
		return nil, &internal.ExportError{Format: "jsonl", Path: e.Dir, Err: err}
	}

	if err := e.write(path, convs); err != nil {
		return nil, &internal.ExportError{Format: "jsonl", Path: path, Err: err}
	}
	stats.Path = path
	if info, err := e.Fs.Stat(path); err == nil {
		stats.Size = info.Size()
	}
	return stats, nil
}

func (e *Extractor) write(path string, convs []*internal.Conversation) error {
	f, err := e.Fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	exp := &export.JSONLExporter{}
	for _, conv := range convs {
		if err := exp.Export(conv, f); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

// Summarize counts conversations, messages and tool activity
func Summarize(tool locate.Tool, convs []*internal.Conversation) *Stats {
	stats := &Stats{Tool: tool, PerInstallation: make(map[string]int)}
	for _, conv := range convs {
		stats.Total++
		stats.Messages += len(conv.Messages)
		if conv.Complete() {
			stats.Complete++
		}
		if conv.HasTools() {
			stats.WithTools++
		}
		stats.PerInstallation[conv.Installation]++
	}
	return stats
}
