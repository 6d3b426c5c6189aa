package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/agent-sessions/internal"
)

// MarkdownExporter exports a conversation in Markdown format
type MarkdownExporter struct{}

// Export exports a conversation to Markdown format
func (e *MarkdownExporter) Export(conv *internal.Conversation, w io.Writer) error {
	title := conv.Title
	if title == "" {
		title = conv.SessionID
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", title)

	if conv.SessionID != "" {
		_, _ = fmt.Fprintf(w, "**Session:** %s  \n", conv.SessionID)
	}
	_, _ = fmt.Fprintf(w, "**Source:** %s  \n", conv.Source)
	if conv.ProjectPath != "" {
		_, _ = fmt.Fprintf(w, "**Project:** %s  \n", conv.ProjectPath)
	}
	if conv.CreatedAt != nil {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", conv.CreatedAt)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(conv.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range conv.Messages {
		timestamp := ""
		if msg.Timestamp != nil {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp)
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n", msg.Role, timestamp)
		for _, th := range msg.Thoughts {
			_, _ = fmt.Fprintf(w, "> _%s:_ %s\n\n", th.Subject, oneLine(th.Description))
		}
		if content := escapeMarkdown(msg.Content); content != "" {
			_, _ = fmt.Fprintf(w, "%s\n\n", content)
		}
		for _, call := range msg.ToolCalls {
			_, _ = fmt.Fprintf(w, "- tool `%s`", call.Name)
			if call.ID != "" {
				_, _ = fmt.Fprintf(w, " (%s)", call.ID)
			}
			_, _ = fmt.Fprintln(w)
		}
		if len(msg.ToolCalls) > 0 {
			_, _ = fmt.Fprintln(w)
		}

		// Add horizontal rule after each message (except the last one)
		if i < len(conv.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// escapeMarkdown escapes markdown emphasis outside code fences
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
