package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tc-outcome/internal/runlog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the run log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		failedOnly, _ := cmd.Flags().GetBool("failed")

		path := cfg.Paths.RunLogPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "No run log at %s.\n", path)
			return nil
		}
		entries, err := runlog.Read(path)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}

		sums := runlog.Summarize(entries)
		if failedOnly {
			sums = filterFailed(sums)
		}
		formatStatus(os.Stdout, sums)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("failed", false, "only show units whose last attempt failed")
	rootCmd.AddCommand(statusCmd)
}

func filterFailed(sums []runlog.UnitSummary) []runlog.UnitSummary {
	out := sums[:0:0]
	for _, s := range sums {
		if s.Last == runlog.StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// formatStatus writes one row per unit to w.
func formatStatus(out io.Writer, sums []runlog.UnitSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "UNIT\tLAST\tATTEMPTS\tCOMPLETE\tFAILED\tENDED\tMINUTES\tNOTE")
	_, _ = fmt.Fprintln(w, "----\t----\t--------\t--------\t------\t-----\t-------\t----")

	var complete, failed int
	for _, s := range sums {
		switch s.Last {
		case runlog.StatusComplete:
			complete++
		case runlog.StatusFailed:
			failed++
		}

		ended := ""
		if !s.LastEnded.IsZero() {
			ended = s.LastEnded.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%.1f\t%s\n",
			s.Unit,
			s.Last,
			s.Attempts,
			s.Completed,
			s.Failed,
			ended,
			s.Duration.Round(time.Second).Minutes(),
			truncateNote(s.LastNote),
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d units: %d complete, %d failed\n", len(sums), complete, failed)
}

// truncateNote shortens an engine message to a single display column.
func truncateNote(note string) string {
	if len(note) > 60 {
		return note[:57] + "..."
	}
	return note
}
