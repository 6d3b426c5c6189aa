// Package config loads agent-sessions settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/locate"
)

const (
	// EnvPrefix marks environment overrides, e.g. AGENT_SESSIONS_SEARCH_MAX_MATCHES
	EnvPrefix = "AGENT_SESSIONS_"

	maxConfigFileSize = 1024 * 1024

	DefaultContextChars = 50
	DefaultOutputDir    = "extracted_data"
	DefaultExportDir    = "."
	DefaultLogLevel     = "warn"
)

// Config holds every setting the CLI reads
type Config struct {
	OutputDir string              `koanf:"output_dir"`
	ExportDir string              `koanf:"export_dir"`
	Search    SearchConfig        `koanf:"search"`
	Log       LogConfig           `koanf:"log"`
	Roots     map[string][]string `koanf:"roots"`
}

// SearchConfig tunes the search command
type SearchConfig struct {
	ContextChars int `koanf:"context_chars"`
	// MaxMatches keeps only the newest matches; 0 keeps all
	MaxMatches  int    `koanf:"max_matches"`
	UseRipgrep  *bool  `koanf:"use_ripgrep"`
	RipgrepPath string `koanf:"ripgrep_path"`
}

// LogConfig sets the log level
type LogConfig struct {
	Level string `koanf:"level"`
}

// DefaultPath returns $XDG_CONFIG_HOME/agent-sessions/config.yaml
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "agent-sessions", "config.yaml")
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path, if it exists, then applies
// AGENT_SESSIONS_* environment overrides.
//
// Precedence (highest first): environment, config file, defaults.
// An empty path means DefaultPath.
func Load(fs afero.Fs, path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultPath()
	}
	content, err := readConfigFile(fs, path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(fs afero.Fs, path string) ([]byte, error) {
	info, err := fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// topLevelKeys are keys whose own name contains an underscore
var topLevelKeys = map[string]bool{
	"output_dir": true,
	"export_dir": true,
}

// envKey maps AGENT_SESSIONS_SEARCH_MAX_MATCHES to search.max_matches. The
// section is split off at the first underscore only.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if topLevelKeys[lower] {
		return lower
	}
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func applyDefaults(cfg *Config) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = DefaultExportDir
	}
	if cfg.Search.ContextChars == 0 {
		cfg.Search.ContextChars = DefaultContextChars
	}
	if cfg.Search.UseRipgrep == nil {
		on := true
		cfg.Search.UseRipgrep = &on
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// Validate rejects negative limits, unknown log levels and roots for
// unknown tools.
func (c *Config) Validate() error {
	if c.Search.ContextChars < 0 {
		return fmt.Errorf("search.context_chars must be >= 0, got %d", c.Search.ContextChars)
	}
	if c.Search.MaxMatches < 0 {
		return fmt.Errorf("search.max_matches must be >= 0, got %d", c.Search.MaxMatches)
	}
	switch strings.ToLower(c.Log.Level) {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("log.level must be one of error, warn, info, debug, got %q", c.Log.Level)
	}
	for name := range c.Roots {
		if _, err := parseRootTool(name); err != nil {
			return fmt.Errorf("roots: %w", err)
		}
	}
	return nil
}

// Ripgrep reports whether search may shell out to rg
func (c *Config) Ripgrep() bool {
	return c.Search.UseRipgrep == nil || *c.Search.UseRipgrep
}

// LogLevel converts log.level for internal.SetLogLevel
func (c *Config) LogLevel() internal.LogLevel {
	return internal.ParseLogLevel(c.Log.Level)
}

// ExtraRoots returns the configured roots keyed by tool. Environment
// variables cannot carry '-', so opencode_desktop names opencode-desktop.
func (c *Config) ExtraRoots() map[locate.Tool][]string {
	if len(c.Roots) == 0 {
		return nil
	}
	out := make(map[locate.Tool][]string, len(c.Roots))
	for name, paths := range c.Roots {
		tool, err := parseRootTool(name)
		if err != nil {
			continue
		}
		for _, p := range paths {
			if p = strings.TrimSpace(p); p != "" {
				out[tool] = append(out[tool], p)
			}
		}
	}
	return out
}

func parseRootTool(name string) (locate.Tool, error) {
	if tool, err := locate.ParseTool(name); err == nil {
		return tool, nil
	}
	return locate.ParseTool(strings.ReplaceAll(name, "_", "-"))
}
