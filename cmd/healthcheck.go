package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/config"
	"github.com/iksnae/agent-sessions/internal/decoder"
	"github.com/iksnae/agent-sessions/internal/locate"
)

var healthcheckCount bool

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check which tool installations can be found",
	Long: `Check the health of agent-sessions by verifying:
  • Configuration loading
  • Installation roots found for every supported tool
  • Optionally, how many sessions each tool decodes to (--count)

This command is useful for debugging storage issues, especially in CI/CD environments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("Agent Sessions Health Check"))
		fmt.Fprintln(out)

		fmt.Fprintln(out, infoStyle.Render("Configuration"))
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		fmt.Fprintln(out, successStyle.Render("✅ Loaded"))
		if verbose {
			fmt.Fprintf(out, "   File: %s\n", path)
			fmt.Fprintf(out, "   Output dir: %s\n", cfg.OutputDir)
			fmt.Fprintf(out, "   Export dir: %s\n", cfg.ExportDir)
		}
		fmt.Fprintln(out)

		found := 0
		for _, tool := range locate.AllTools {
			installs := toolInstallations(tool)
			if len(installs) > 0 {
				found++
			}
			checkTool(out, tool, installs)
		}

		fmt.Fprintln(out, sectionStyle.Render("Summary"))
		fmt.Fprintln(out)
		if found == 0 {
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			fmt.Fprintln(out, "   • No installation of any supported tool was found")
			return fmt.Errorf("health check failed: no installations found")
		}
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		fmt.Fprintf(out, "   • Tools with data: %d of %d\n", found, len(locate.AllTools))
		return nil
	},
}

func checkTool(out io.Writer, tool locate.Tool, installs []locate.Installation) {
	fmt.Fprintln(out, infoStyle.Render(string(tool)))
	if len(installs) == 0 {
		fmt.Fprintln(out, warningStyle.Render("⚠️  No installation found"))
		fmt.Fprintln(out)
		return
	}

	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %d installation(s)", len(installs))))
	if verbose {
		for _, in := range installs {
			fmt.Fprintf(out, "   [%s] %s\n", in.Kind, in.Path)
		}
	}

	if healthcheckCount {
		dec, err := decoder.ForTool(tool, appFs)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ "+err.Error()))
		} else {
			total := 0
			for _, in := range installs {
				convs, err := dec.Decode(in.Path)
				if err != nil {
					fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠️  %s: %v", in.Path, err)))
					continue
				}
				total += len(convs)
			}
			fmt.Fprintf(out, "   Sessions: %d\n", total)
		}
	}
	internal.LogDebug("healthcheck %s: %d installation(s)", tool, len(installs))
	fmt.Fprintln(out)
}

// toolInstallations returns the discovered installations of tool
func toolInstallations(tool locate.Tool) []locate.Installation {
	if rootsOverride != nil {
		var installs []locate.Installation
		for _, p := range rootsOverride(tool) {
			installs = append(installs, locate.Installation{Tool: tool, Kind: "configured", Path: p})
		}
		return installs
	}
	if locator == nil {
		locator = locate.New(cfg.ExtraRoots())
	}
	return locator.Find(tool)
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVar(&healthcheckCount, "count", false, "Decode every installation and report session counts")
}
