package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/extract"
	"github.com/iksnae/agent-sessions/internal/locate"
)

var listLimit int

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	workspaceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

var listCmd = &cobra.Command{
	Use:   "list <tool>",
	Short: "List the sessions of one tool",
	Long:  `List every session of one tool, newest first, across all of its installations.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := locate.ParseTool(args[0])
		if err != nil {
			return exitWith(2, "%v", err)
		}

		convs, err := extract.New(appFs, "", toolRoots).Collect(cmd.Context(), tool)
		if err != nil {
			return fmt.Errorf("failed to load %s sessions: %w", tool, err)
		}
		sortNewestFirst(convs)
		if listLimit > 0 && len(convs) > listLimit {
			convs = convs[:listLimit]
		}

		displaySessions(cmd.OutOrStdout(), tool, convs, time.Now())
		return nil
	},
}

// sortNewestFirst orders by creation time; sessions without one go last
func sortNewestFirst(convs []*internal.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, aok := convs[i].CreatedAt.Unix()
		b, bok := convs[j].CreatedAt.Unix()
		if aok != bok {
			return aok
		}
		return a > b
	})
}

// sessionName is the title, else the first user message
func sessionName(conv *internal.Conversation) string {
	if conv.Title != "" {
		return conv.Title
	}
	for _, m := range conv.Messages {
		if m.Role == internal.RoleUser && m.Content != "" {
			return strings.Join(strings.Fields(m.Content), " ")
		}
	}
	return "Untitled"
}

// formatCreated renders t relative to now
func formatCreated(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func displaySessions(w io.Writer, tool locate.Tool, convs []*internal.Conversation, now time.Time) {
	if len(convs) == 0 {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("No %s sessions found", tool)))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Found %d %s session(s)", len(convs), tool)))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, titleStyle.Render("ID")+"\t"+titleStyle.Render("Name")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Created")+"\t"+titleStyle.Render("Project")+"\t")

	for _, conv := range convs {
		id := conv.SessionID
		if id == "" {
			id = "?"
		}
		name := runewidth.Truncate(sessionName(conv), 50, "...")

		created := dateStyle.Render("-")
		if secs, ok := conv.CreatedAt.Unix(); ok {
			created = dateStyle.Render(formatCreated(time.Unix(int64(secs), 0), now))
		}

		project := dateStyle.Render("-")
		if p := conv.ProjectPath; p != "" {
			project = workspaceStyle.Render(runewidth.Truncate(filepath.Base(p), 25, "..."))
		} else if conv.ProjectName != "" {
			project = workspaceStyle.Render(runewidth.Truncate(conv.ProjectName, 25, "..."))
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(id), name, countStyle.Render(strconv.Itoa(len(conv.Messages))), created, project)
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(w, idStyle.Render(fmt.Sprintf("Tip: agent-sessions show %s %s", tool, firstID(convs))))
}

func firstID(convs []*internal.Conversation) string {
	for _, c := range convs {
		if c.SessionID != "" {
			return c.SessionID
		}
	}
	return "<session-id>"
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Show at most N sessions (0 = all)")
}
