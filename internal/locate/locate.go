// Package locate finds the on-disk roots where each assistant tool keeps its
// conversation logs.
package locate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// Tool names one supported assistant
type Tool string

const (
	ToolClaudeCode      Tool = "claude-code"
	ToolCodex           Tool = "codex"
	ToolCopilot         Tool = "copilot"
	ToolGemini          Tool = "gemini"
	ToolOpenCode        Tool = "opencode"
	ToolOpenCodeDesktop Tool = "opencode-desktop"
	ToolCursor          Tool = "cursor"
	ToolTrae            Tool = "trae"
	ToolWindsurf        Tool = "windsurf"
)

// AllTools lists every supported tool in display order
var AllTools = []Tool{
	ToolClaudeCode,
	ToolCodex,
	ToolCopilot,
	ToolCursor,
	ToolGemini,
	ToolOpenCode,
	ToolOpenCodeDesktop,
	ToolTrae,
	ToolWindsurf,
}

var toolAliases = map[string]Tool{
	"claude":       ToolClaudeCode,
	"claude_code":  ToolClaudeCode,
	"copilot-cli":  ToolCopilot,
	"gemini-cli":   ToolGemini,
	"opencode-cli": ToolOpenCode,
	"desktop":      ToolOpenCodeDesktop,
}

// ParseTool resolves a tool name or alias
func ParseTool(name string) (Tool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range AllTools {
		if string(t) == name {
			return t, nil
		}
	}
	if t, ok := toolAliases[name]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown tool %q", name)
}

// Installation is one on-disk root holding one tool's data
type Installation struct {
	Tool Tool   `json:"tool"`
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Locator resolves installation roots. Its fields are filled from the
// process environment by New and can be overridden in tests.
type Locator struct {
	Fs         afero.Fs
	Home       string
	GOOS       string
	ConfigHome string
	DataHome   string
	Getenv     func(string) string
	// Extra roots appended after the discovered ones, per tool
	Extra map[Tool][]string
}

// New creates a Locator for the current user
func New(extra map[Tool][]string) *Locator {
	home, err := os.UserHomeDir()
	if err != nil {
		internal.LogWarn("cannot resolve home directory: %v", err)
	}
	l := &Locator{
		Fs:     afero.NewOsFs(),
		Home:   home,
		GOOS:   runtime.GOOS,
		Getenv: os.Getenv,
		Extra:  extra,
	}
	if l.GOOS != "darwin" && l.GOOS != "windows" {
		l.ConfigHome = xdg.ConfigHome
		l.DataHome = xdg.DataHome
	}
	return l
}

type baseDir struct {
	kind string
	path string
}

// Find returns the existing roots for tool, de-duplicated by canonical path.
func (l *Locator) Find(tool Tool) []Installation {
	var candidates []Installation

	switch tool {
	case ToolClaudeCode:
		candidates = l.expand(tool, l.appBases(true), "claude", "claude-code", "claude-local", "claude-m2", "claude-zai",
			".claude", ".claude-code", ".claude-local", ".claude-m2", ".claude-zai")
	case ToolCodex:
		candidates = l.expand(tool, l.appBases(true), "codex", "codex-local", ".codex", ".codex-local")
	case ToolCopilot:
		bases := []baseDir{{"home", l.Home}}
		if l.GOOS == "windows" {
			if p := l.getenv("USERPROFILE"); p != "" {
				bases = append([]baseDir{{"userprofile", p}}, bases...)
			}
		}
		candidates = l.expand(tool, bases, ".copilot")
	case ToolGemini:
		candidates = l.expand(tool, l.geminiBases(), "gemini", ".gemini")
	case ToolOpenCode:
		for _, b := range []baseDir{
			{"data", filepath.Join(l.dataDir(), "opencode", "storage")},
			{"data", filepath.Join(l.Home, ".local", "share", "opencode", "storage")},
			{"home", filepath.Join(l.Home, ".opencode", "storage")},
			{"app-support", filepath.Join(l.appSupport(), "opencode", "storage")},
		} {
			candidates = append(candidates, Installation{Tool: tool, Kind: b.kind, Path: b.path})
		}
	case ToolOpenCodeDesktop:
		candidates = l.expand(tool, l.appBases(false), "ai.opencode.desktop", "opencode-desktop")
	case ToolCursor:
		candidates = l.expand(tool, l.appBases(false), "Cursor")
	case ToolTrae:
		candidates = l.expand(tool, l.appBases(true), "trae", ".trae", "Trae")
	case ToolWindsurf:
		candidates = l.expand(tool, l.appBases(false), "Windsurf", "windsurf", ".windsurf")
	}

	for _, p := range l.Extra[tool] {
		candidates = append(candidates, Installation{Tool: tool, Kind: "configured", Path: p})
	}

	return l.existing(candidates)
}

// FindAll runs Find for each tool, or for every tool when none are given.
func (l *Locator) FindAll(tools ...Tool) map[Tool][]Installation {
	if len(tools) == 0 {
		tools = AllTools
	}
	out := make(map[Tool][]Installation, len(tools))
	for _, t := range tools {
		out[t] = l.Find(t)
	}
	return out
}

// Paths returns the installation paths in order
func Paths(installs []Installation) []string {
	paths := make([]string, 0, len(installs))
	for _, in := range installs {
		paths = append(paths, in.Path)
	}
	return paths
}

func (l *Locator) expand(tool Tool, bases []baseDir, names ...string) []Installation {
	var out []Installation
	for _, b := range bases {
		if b.path == "" {
			continue
		}
		for _, name := range names {
			out = append(out, Installation{Tool: tool, Kind: b.kind, Path: filepath.Join(b.path, name)})
		}
	}
	return out
}

// existing keeps candidates that exist, canonicalizing and de-duplicating
// them. Nothing is ever created.
func (l *Locator) existing(candidates []Installation) []Installation {
	seen := make(map[string]bool)
	var out []Installation
	for _, c := range candidates {
		if c.Path == "" {
			continue
		}
		if _, err := l.Fs.Stat(c.Path); err != nil {
			continue
		}
		canonical := Canonical(c.Path)
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		c.Path = canonical
		out = append(out, c)
	}
	return out
}

// Canonical returns the absolute, symlink-resolved form of path when it can
// be computed, falling back to the cleaned absolute path.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func (l *Locator) appBases(withHome bool) []baseDir {
	var bases []baseDir
	switch l.GOOS {
	case "darwin":
		bases = []baseDir{{"app-support", l.appSupport()}, {"config", l.configDir()}}
	case "windows":
		bases = []baseDir{{"appdata", l.appData()}, {"localappdata", l.localAppData()}}
	default:
		bases = []baseDir{{"config", l.configDir()}, {"data", l.dataDir()}}
	}
	if withHome {
		bases = append(bases, baseDir{"home", l.Home})
	}
	return bases
}

func (l *Locator) geminiBases() []baseDir {
	switch l.GOOS {
	case "darwin":
		return []baseDir{{"home", l.Home}, {"config", l.configDir()}}
	case "windows":
		profile := l.getenv("USERPROFILE")
		if profile == "" {
			profile = l.Home
		}
		return []baseDir{{"userprofile", profile}, {"localappdata", l.localAppData()}, {"home", l.Home}}
	default:
		return []baseDir{{"home", l.Home}, {"config", l.configDir()}, {"data", l.dataDir()}}
	}
}

func (l *Locator) getenv(key string) string {
	if l.Getenv == nil {
		return ""
	}
	return l.Getenv(key)
}

func (l *Locator) configDir() string {
	if l.ConfigHome != "" {
		return l.ConfigHome
	}
	return filepath.Join(l.Home, ".config")
}

func (l *Locator) dataDir() string {
	if l.DataHome != "" {
		return l.DataHome
	}
	return filepath.Join(l.Home, ".local", "share")
}

func (l *Locator) appSupport() string {
	return filepath.Join(l.Home, "Library", "Application Support")
}

func (l *Locator) appData() string {
	if p := l.getenv("APPDATA"); p != "" {
		return p
	}
	return filepath.Join(l.Home, "AppData", "Roaming")
}

func (l *Locator) localAppData() string {
	if p := l.getenv("LOCALAPPDATA"); p != "" {
		return p
	}
	return filepath.Join(l.Home, "AppData", "Local")
}

// SortedTools returns the keys of m in AllTools order
func SortedTools(m map[Tool][]Installation) []Tool {
	order := make(map[Tool]int, len(AllTools))
	for i, t := range AllTools {
		order[t] = i
	}
	tools := make([]Tool, 0, len(m))
	for t := range m {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return order[tools[i]] < order[tools[j]] })
	return tools
}
