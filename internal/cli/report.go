package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var reportDownloadOut string

var reportCmd = &cobra.Command{
	Use:   "report [report-id]",
	Short: "Show a graded report",
	Long: `Show a graded report by id, or the most recently viewed report when no id
is given.

Examples:
  markpilot report            # most recently viewed
  markpilot report 66f1a2     # fetch by id`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		if len(args) == 1 {
			if err := reportStore.Fetch(context.Background(), args[0]); err != nil {
				return fmt.Errorf("fetch report: %w", err)
			}
		}

		id, report, _, lastErr := reportStore.Current()
		if report == nil {
			if lastErr != "" {
				return fmt.Errorf("report %s: %s", id, lastErr)
			}
			return fmt.Errorf("no report loaded, pass a report id")
		}

		fmt.Printf("%s  (report %s)\n", report.Title, id)
		fmt.Printf("Status: %s\n", report.Status)
		fmt.Printf("Score: %.1f / %.1f (%s%%)\n", report.EarnedMarks, report.TotalMarks, report.Percentage)
		if !report.GradedAt.IsZero() {
			fmt.Printf("Graded: %s\n", report.GradedAt.Format("Jan 2, 2006 15:04"))
		}
		if report.Feedback != "" {
			fmt.Printf("\n%s\n", report.Feedback)
		}
		if len(report.Parts) > 0 {
			fmt.Println()
			fmt.Printf("%-30s %10s %10s\n", "SECTION", "SCORE", "MAX")
			for _, p := range report.Parts {
				fmt.Printf("%-30s %10.1f %10.1f\n", p.Section, p.Score, p.MaxScore)
			}
		}
		return nil
	},
}

var reportDownloadCmd = &cobra.Command{
	Use:   "download <report-id>",
	Short: "Download a report as PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		id := args[0]
		out := reportDownloadOut
		if out == "" {
			out = fmt.Sprintf("report-%s.pdf", id)
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()

		n, err := historyStore.Download(context.Background(), id, f)
		if err != nil {
			os.Remove(out) // do not leave a partial file behind
			return fmt.Errorf("download report: %w", err)
		}

		fmt.Printf("Wrote %s (%d bytes)\n", out, n)
		return nil
	},
}

func init() {
	reportDownloadCmd.Flags().StringVarP(&reportDownloadOut, "output", "o", "", "output file (default report-<id>.pdf)")
	reportCmd.AddCommand(reportDownloadCmd)
	rootCmd.AddCommand(reportCmd)
}
