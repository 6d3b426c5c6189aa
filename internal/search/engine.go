package search

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/locate"
)

// ErrEmptyQuery is returned for a blank query
var ErrEmptyQuery = errors.New("no query provided")

// Tools lists the tools search can cover, in search order
var Tools = []locate.Tool{
	locate.ToolCodex,
	locate.ToolGemini,
	locate.ToolOpenCode,
	locate.ToolOpenCodeDesktop,
	locate.ToolCursor,
	locate.ToolClaudeCode,
	locate.ToolCopilot,
}

// Supported reports whether search can cover tool
func Supported(tool locate.Tool) bool {
	for _, t := range Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// Engine searches the installation roots its Roots func reports
type Engine struct {
	Fs     afero.Fs
	Roots  func(locate.Tool) []string
	Finder CandidateFinder
}

// NewEngine creates an Engine. A nil finder scans files directly.
func NewEngine(fs afero.Fs, roots func(locate.Tool) []string, finder CandidateFinder) *Engine {
	if finder == nil {
		finder = &DirectScanner{Fs: fs}
	}
	return &Engine{Fs: fs, Roots: roots, Finder: finder}
}

// Search returns every match of q in the given tools (all searchable tools
// when none are given), sorted oldest first and capped to q.MaxMatches.
func (e *Engine) Search(ctx context.Context, q Query, tools []locate.Tool) ([]Match, error) {
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	q.ContextChars = max(0, q.ContextChars)
	if len(tools) == 0 {
		tools = Tools
	}
	for _, t := range tools {
		if !Supported(t) {
			return nil, fmt.Errorf("search does not cover %s", t)
		}
	}

	var matches []Match
	for _, tool := range tools {
		seen := make(map[string]bool)
		for _, root := range e.Roots(tool) {
			if seen[root] {
				continue
			}
			seen[root] = true
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			found := e.searchRoot(ctx, tool, root, q)
			internal.LogDebug("search %s %s: %d matches", tool, root, len(found))
			matches = append(matches, found...)
		}
	}

	Sort(matches)
	return Cap(matches, q.MaxMatches), nil
}

func (e *Engine) searchRoot(ctx context.Context, tool locate.Tool, root string, q Query) []Match {
	switch tool {
	case locate.ToolCodex:
		return e.searchCodex(ctx, root, q)
	case locate.ToolGemini:
		return e.searchGemini(ctx, root, q)
	case locate.ToolOpenCode:
		return e.searchOpenCode(ctx, root, q)
	case locate.ToolOpenCodeDesktop:
		return e.searchOpenCodeDesktop(root, q)
	case locate.ToolCursor:
		return e.searchCursor(root, q)
	case locate.ToolClaudeCode:
		return e.searchClaude(ctx, root, q)
	case locate.ToolCopilot:
		return e.searchCopilot(ctx, root, q)
	}
	return nil
}

// candidates runs the finder over the roots that exist
func (e *Engine) candidates(ctx context.Context, q Query, glob string, roots ...string) []string {
	var existing []string
	for _, r := range roots {
		if info, err := e.Fs.Stat(r); err == nil && info.IsDir() {
			existing = append(existing, r)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	files, err := e.Finder.FilesWithMatches(ctx, q.Text, existing, glob)
	if err != nil {
		internal.LogDebug("candidate search in %v: %v", existing, err)
		return nil
	}
	return files
}

// maxLineSize bounds a single JSONL line
const maxLineSize = 64 << 20

// eachLine calls fn with every line of a JSONL file
func (e *Engine) eachLine(path string, fn func(line string)) error {
	f, err := e.Fs.Open(path)
	if err != nil {
		return &internal.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		fn(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return &internal.StorageError{Path: path, Op: "read", Err: err}
	}
	return nil
}
