package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/export"
	"github.com/iksnae/agent-sessions/internal/extract"
	"github.com/iksnae/agent-sessions/internal/locate"
)

var (
	limit      int
	since      string
	showFormat string
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <tool> <session-id>",
	Short: "Show messages for a specific session",
	Long: `Display the messages of one session. The session id may be shortened to
any unique prefix.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := locate.ParseTool(args[0])
		if err != nil {
			return exitWith(2, "%v", err)
		}

		var sinceTime *time.Time
		if since != "" {
			parsed, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return exitWith(2, "invalid --since timestamp format (expected RFC3339): %v", err)
			}
			sinceTime = &parsed
		}

		convs, err := extract.New(appFs, "", toolRoots).Collect(cmd.Context(), tool)
		if err != nil {
			return fmt.Errorf("failed to load %s sessions: %w", tool, err)
		}
		conv, err := findSession(convs, args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if showFormat != "" && showFormat != "text" {
			exp, err := export.NewExporter(showFormat)
			if err != nil {
				return exitWith(2, "%v", err)
			}
			return exp.Export(conv, out)
		}

		displaySessionHeader(out, conv)

		messagesToShow := filterSince(conv.Messages, sinceTime)
		totalFiltered := len(messagesToShow)
		if limit > 0 && limit < len(messagesToShow) {
			messagesToShow = messagesToShow[:limit]
		}

		for i, msg := range messagesToShow {
			displayMessage(out, i+1, msg, totalFiltered)
		}

		if limit > 0 && limit < totalFiltered {
			fmt.Fprintln(out)
			fmt.Fprintln(out, timestampStyle.Render(fmt.Sprintf("... (%d more message(s))", totalFiltered-limit)))
		}
		return nil
	},
}

// findSession matches id exactly, then as a unique prefix
func findSession(convs []*internal.Conversation, id string) (*internal.Conversation, error) {
	var prefixed []*internal.Conversation
	for _, conv := range convs {
		if conv.SessionID == id {
			return conv, nil
		}
		if strings.HasPrefix(conv.SessionID, id) {
			prefixed = append(prefixed, conv)
		}
	}
	switch len(prefixed) {
	case 0:
		return nil, &internal.RecordNotFoundError{Source: "session", Ref: id}
	case 1:
		return prefixed[0], nil
	}
	return nil, exitWith(2, "session id %q is ambiguous (%d matches)", id, len(prefixed))
}

// filterSince keeps messages at or after t. Messages without a parseable
// timestamp are dropped once a filter is set.
func filterSince(messages []internal.Message, t *time.Time) []internal.Message {
	if t == nil {
		return messages
	}
	cutoff := float64(t.Unix())
	filtered := make([]internal.Message, 0, len(messages))
	for _, msg := range messages {
		if secs, ok := msg.Timestamp.Unix(); ok && secs >= cutoff {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

func displaySessionHeader(w io.Writer, conv *internal.Conversation) {
	if conv == nil {
		return
	}
	fmt.Fprintln(w, sessionHeaderStyle.Render(sessionName(conv)))

	metaParts := []string{fmt.Sprintf("Source: %s", conv.Source)}
	if conv.SessionID != "" {
		metaParts = append(metaParts, fmt.Sprintf("Session: %s", conv.SessionID))
	}
	if conv.CreatedAt != nil {
		metaParts = append(metaParts, fmt.Sprintf("Created: %s", conv.CreatedAt))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(conv.Messages)))
	if conv.ProjectPath != "" {
		metaParts = append(metaParts, fmt.Sprintf("Project: %s", conv.ProjectPath))
	}
	fmt.Fprintln(w, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(w)
}

func displayMessage(w io.Writer, index int, msg internal.Message, total int) {
	var actorStyle lipgloss.Style
	var actorLabel string

	switch msg.Role {
	case internal.RoleUser:
		actorStyle = userMessageStyle
		actorLabel = "User"
	case internal.RoleAssistant:
		actorStyle = assistantMessageStyle
		actorLabel = "Assistant"
	default:
		actorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		actorLabel = string(msg.Role)
	}

	header := actorStyle.Render(actorLabel) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if msg.Timestamp != nil {
		header += " " + timestampStyle.Render(msg.Timestamp.String())
	}
	fmt.Fprintln(w, header)

	content := strings.TrimSpace(msg.Content)
	if content != "" {
		fmt.Fprintln(w, messageContentStyle.Render(wrapText(content, 80)))
	} else {
		fmt.Fprintln(w, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	}
	for _, call := range msg.ToolCalls {
		fmt.Fprintln(w, timestampStyle.Render(fmt.Sprintf("  tool: %s", call.Name)))
	}
	fmt.Fprintln(w)
}

// wrapText wraps on word boundaries at width display columns
func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if runewidth.StringWidth(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		currentLine := ""
		for _, word := range strings.Fields(line) {
			switch {
			case currentLine == "":
				currentLine = word
			case runewidth.StringWidth(currentLine)+runewidth.StringWidth(word)+1 > width:
				wrapped = append(wrapped, currentLine)
				currentLine = word
			default:
				currentLine += " " + word
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
	showCmd.Flags().StringVar(&since, "since", "", "Show messages since timestamp (RFC3339)")
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "text", "Output format (text, json, jsonl, md, yaml)")
}
