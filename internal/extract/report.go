package extract

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteReport prints the counts, the per-installation breakdown and where
// the dump went.
func WriteReport(w io.Writer, s *Stats) error {
	fmt.Fprintf(w, "%s: %s conversation(s)\n", s.Tool, humanize.Comma(int64(s.Total)))
	if s.Total == 0 {
		return nil
	}
	fmt.Fprintf(w, "Complete conversations: %s\n", humanize.Comma(int64(s.Complete)))
	fmt.Fprintf(w, "Total messages: %s\n", humanize.Comma(int64(s.Messages)))
	fmt.Fprintf(w, "With tool use: %s\n", humanize.Comma(int64(s.WithTools)))
	fmt.Fprintln(w)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, WidthMax: 60},
		{Number: 2, Align: text.AlignRight},
	})
	tw.AppendHeader(table.Row{"Installation", "Conversations"})
	for _, inst := range sortedInstallations(s.PerInstallation) {
		tw.AppendRow(table.Row{installationLabel(inst), humanize.Comma(int64(s.PerInstallation[inst]))})
	}
	tw.Render()

	if s.Path != "" {
		fmt.Fprintf(w, "\nSaved to: %s\n", s.Path)
		fmt.Fprintf(w, "   Size: %s\n", humanize.Bytes(uint64(s.Size)))
		fmt.Fprintln(w, "   Format: JSONL (one conversation per line)")
	}
	return nil
}

// sortedInstallations orders by count, largest first, then by path
func sortedInstallations(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func installationLabel(path string) string {
	if path == "" {
		return "(unknown)"
	}
	return filepath.Base(filepath.Dir(path)) + "/" + filepath.Base(path)
}
