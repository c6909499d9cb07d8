package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"binpatch/internal/binpatch/styles"
	"binpatch/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [db] [target]",
	Short: "List runs recorded with --history",
	Example: `
# Last runs against any target
binpatch history runs.db

# Only one target, as JSON
binpatch history -j runs.db ./Client-Shipping.exe
  `,
	Args:         cobra.RangeArgs(1, 2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		var target string
		if len(args) == 2 {
			abs, err := filepath.Abs(args[1])
			if err != nil {
				return fmt.Errorf("failed to resolve target: %w", err)
			}
			target = abs
		}
		return runHistory(cmd.OutOrStdout(), args[0], target, limit, jsonOutput)
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "l", 20, "Maximum number of runs to list (0 for all)")
	historyCmd.Flags().BoolP("json", "j", false, "Output runs as JSON")
}

func runHistory(w io.Writer, dbPath, target string, limit int, jsonOutput bool) error {
	// Opening would create an empty ledger; a typo should be an error instead.
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("history not found: %w", err)
	}
	db, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer history.Close(db)

	runs, err := history.List(db, target, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		bts, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal runs: %w", err)
		}
		fmt.Fprintln(w, string(bts))
		return nil
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		counts := fmt.Sprintf("applied=%d", run.Applied)
		if run.DryRun {
			counts = fmt.Sprintf("candidates=%d", run.Candidates)
		}
		if run.Failed > 0 {
			counts += styles.Failure.Render(fmt.Sprintf(" failed=%d", run.Failed))
		}
		fmt.Fprintf(w, "%s %s %s %s %s %s→%s\n",
			styles.Offset.Render(fmt.Sprintf("#%d", run.ID)),
			styles.Muted.Render(run.StartedAt.Local().Format("2006-01-02 15:04:05")),
			run.Target,
			styles.Value.Render(run.Status),
			counts,
			run.OriginalDigest, run.FinalDigest,
		)
	}
	return nil
}
