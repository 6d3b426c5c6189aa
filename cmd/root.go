package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/config"
	"github.com/iksnae/agent-sessions/internal/locate"
)

var (
	verbose    bool
	configPath string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

var (
	appFs   afero.Fs = afero.NewOsFs()
	cfg              = config.Default()
	locator *locate.Locator
	// rootsOverride replaces installation discovery in tests
	rootsOverride func(locate.Tool) []string
)

// exitError carries a process exit code. An empty message prints nothing.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func exitWith(code int, format string, args ...interface{}) error {
	return &exitError{code: code, msg: fmt.Sprintf(format, args...)}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "agent-sessions",
	Short: "Find, search and export AI coding assistant sessions",
	Long: `Read the conversation logs that AI coding assistants keep on disk and
normalize them into one record format.

Supported tools: claude-code, codex, copilot, cursor, gemini, opencode,
opencode-desktop, trae, windsurf.

Quick Start:
  agent-sessions healthcheck               # Show which installations exist
  agent-sessions extract codex             # Dump every codex session as JSONL
  agent-sessions search "TODO(perf)"       # Search every store and export a hit
  agent-sessions list claude-code          # List sessions of one tool
  agent-sessions show codex <session-id>   # Print one session`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(appFs, configPath)
		if err != nil {
			return exitWith(2, "%v", err)
		}
		cfg = loaded
		internal.SetLogLevel(cfg.LogLevel())
		if verbose {
			internal.SetVerbose(true)
		}
		locator = locate.New(cfg.ExtraRoots())
		return nil
	},
}

// toolRoots returns the installation paths of tool
func toolRoots(tool locate.Tool) []string {
	if rootsOverride != nil {
		return rootsOverride(tool)
	}
	return locate.Paths(toolInstallations(tool))
}

// parseTools resolves tool names, returning nil for none
func parseTools(names []string) ([]locate.Tool, error) {
	var tools []locate.Tool
	for _, name := range names {
		tool, err := locate.ParseTool(name)
		if err != nil {
			return nil, exitWith(2, "%v", err)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return exitCode(rootCmd.Execute())
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(os.Stderr, exit.msg)
		}
		return exit.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/agent-sessions/config.yaml)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.SetFlagErrorFunc(flagError)
}

// flagError reports a malformed command line as invalid input
func flagError(cmd *cobra.Command, err error) error {
	return exitWith(2, "Error: %v\nRun '%s --help' for usage.", err, cmd.CommandPath())
}
