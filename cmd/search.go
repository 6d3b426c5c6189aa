package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
	"github.com/iksnae/agent-sessions/internal/export"
	"github.com/iksnae/agent-sessions/internal/search"
)

var (
	searchTools        []string
	searchContextChars int
	searchMaxMatches   int
	searchNoRg         bool
	searchFormat       string
	searchOutputDir    string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search every session store and export one match",
	Long: `Search the native session stores for an exact, case-sensitive string.

Matches are listed oldest first. Pick an entry number to export that whole
session to the output directory; leave the prompt blank to cancel.

Exit codes: 0 success or cancelled, 1 no matches, 2 invalid input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		if query == "" {
			fmt.Fprint(out, "Search query (case-sensitive): ")
			query = strings.TrimSpace(readLine(in))
		}
		if query == "" {
			return exitWith(2, "No query provided.")
		}

		tools, err := parseTools(searchTools)
		if err != nil {
			return err
		}
		for _, t := range tools {
			if !search.Supported(t) {
				return exitWith(2, "search does not cover %s", t)
			}
		}

		q := search.Query{
			Text:         query,
			ContextChars: flagOr(cmd, "context-chars", searchContextChars, cfg.Search.ContextChars),
			MaxMatches:   flagOr(cmd, "max-matches", searchMaxMatches, cfg.Search.MaxMatches),
		}
		finder := search.NewFinder(appFs, cfg.Ripgrep() && !searchNoRg, cfg.Search.RipgrepPath)
		engine := search.NewEngine(appFs, toolRoots, finder)

		matches, err := engine.Search(cmd.Context(), q, tools)
		if errors.Is(err, search.ErrEmptyQuery) {
			return exitWith(2, "No query provided.")
		}
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Fprintln(out, "No matches found.")
			return &exitError{code: 1}
		}

		f := search.NewFormatter(out)
		for i, m := range matches {
			fmt.Fprintln(out, f.Line(i+1, m, query))
		}

		fmt.Fprint(out, "\nSelect entry number to export (blank to cancel): ")
		idx, err := parseSelection(readLine(in), len(matches))
		if err != nil || idx == 0 {
			return err
		}

		dir := searchOutputDir
		if !cmd.Flags().Changed("output-dir") {
			dir = cfg.ExportDir
		}
		path, err := exportMatch(matches[idx-1], query, dir, searchFormat)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nExported to: %s\n", path)
		return nil
	},
}

// readLine returns one line without its terminator. EOF reads as blank.
func readLine(r *bufio.Reader) string {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		internal.LogDebug("reading input: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// parseSelection returns the chosen 1-based index, or 0 for a blank answer
func parseSelection(answer string, n int) (int, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, nil
	}
	for _, r := range answer {
		if r < '0' || r > '9' {
			return 0, exitWith(2, "Invalid selection (expected a number).")
		}
	}
	idx, err := strconv.Atoi(answer)
	if err != nil || idx < 1 || idx > n {
		return 0, exitWith(2, "Selection out of range.")
	}
	return idx, nil
}

// exportMatch re-reads the matched session and writes it under dir
func exportMatch(m search.Match, query, dir, format string) (string, error) {
	conv, err := decoder.Resolve(appFs, m.Ref)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", m.Ref, err)
	}
	w, err := export.NewWriter(appFs, dir, format)
	if err != nil {
		return "", exitWith(2, "%v", err)
	}
	prefix, parts := m.Ref.ExportName(conv)
	return w.WriteConversation(export.BaseName(prefix, export.QueryPiece(query), parts...), conv)
}

// flagOr prefers an explicitly set flag over the configured value
func flagOr(cmd *cobra.Command, name string, flagValue, configured int) int {
	if cmd.Flags().Changed(name) {
		return flagValue
	}
	return configured
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringArrayVar(&searchTools, "tool", nil, "Limit search to a tool (repeatable). Default: all searchable tools")
	searchCmd.Flags().IntVar(&searchContextChars, "context-chars", search.DefaultContextChars, "Snippet context characters on each side")
	searchCmd.Flags().IntVar(&searchMaxMatches, "max-matches", 0, "After sorting, keep only the most recent N matches")
	searchCmd.Flags().BoolVar(&searchNoRg, "no-rg", false, "Disable ripgrep acceleration")
	searchCmd.Flags().StringVar(&searchFormat, "format", "json", "Export format (json, jsonl, md, yaml)")
	searchCmd.Flags().StringVar(&searchOutputDir, "output-dir", ".", "Directory to export the selected session to")
}
