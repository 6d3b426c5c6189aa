package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/extract"
	"github.com/iksnae/agent-sessions/internal/locate"
)

var extractOutputDir string

var extractCmd = &cobra.Command{
	Use:   "extract [tool...]",
	Short: "Dump every session of one or more tools as JSONL",
	Long: `Decode every installation of each tool and write all of its sessions to
<output-dir>/<prefix>_<YYYYMMDD_HHMMSS>.jsonl, one conversation per line.

With no arguments every supported tool is extracted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tools, err := parseTools(args)
		if err != nil {
			return err
		}
		if len(tools) == 0 {
			tools = locate.AllTools
		}

		dir := cfg.OutputDir
		if cmd.Flags().Changed("output-dir") {
			dir = extractOutputDir
		}
		ex := extract.New(appFs, dir, toolRoots)
		out := cmd.OutOrStdout()

		failed, written := 0, 0
		for i, tool := range tools {
			if i > 0 {
				fmt.Fprintln(out)
			}
			var stats *extract.Stats
			err := internal.ShowProgress(cmd.Context(), fmt.Sprintf("Extracting %s", tool), func() error {
				var err error
				stats, err = ex.Extract(cmd.Context(), tool)
				return err
			})
			if err != nil {
				internal.PrintError(fmt.Sprintf("%s: %v", tool, err))
				failed++
				continue
			}
			if err := extract.WriteReport(out, stats); err != nil {
				return err
			}
			if stats.Total == 0 {
				internal.PrintWarning(fmt.Sprintf("%s: nothing to write", tool))
			} else {
				written++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d extraction(s) failed", failed, len(tools))
		}
		if written > 0 {
			internal.PrintSuccess(fmt.Sprintf("Wrote %d dump file(s) to %s", written, dir))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVarP(&extractOutputDir, "output-dir", "o", extract.DefaultDir, "Directory for the JSONL dumps")
}
