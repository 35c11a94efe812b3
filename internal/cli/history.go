package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var historyExportOut string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previously graded assignments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		if err := historyStore.Fetch(context.Background()); err != nil {
			// Show the cached list when offline rather than nothing.
			if cached := historyStore.Views(); len(cached) > 0 {
				fmt.Fprintf(os.Stderr, "Warning: using cached history: %v\n", err)
			} else {
				return fmt.Errorf("fetch history: %w", err)
			}
		}

		views := historyStore.Views()
		if len(views) == 0 {
			fmt.Println("No graded assignments yet")
			return nil
		}

		fmt.Printf("%-10s %-32s %-12s %-12s %-12s %s\n", "ID", "NAME", "GRADE", "SUBJECT", "STATUS", "DATE")
		for _, v := range views {
			name := v.Name
			if len(name) > 30 {
				name = name[:27] + "..."
			}
			fmt.Printf("%-10s %-32s %-12s %-12s %-12s %s\n", v.ID, name, v.Grade, v.Subject, v.Status, v.Date)
		}
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the history list as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		if err := historyStore.Fetch(context.Background()); err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}

		raw, err := yaml.Marshal(historyStore.Views())
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}

		if historyExportOut == "" {
			fmt.Print(string(raw))
			return nil
		}
		if err := os.WriteFile(historyExportOut, raw, 0644); err != nil {
			return fmt.Errorf("write %s: %w", historyExportOut, err)
		}
		fmt.Printf("Exported %d assignments to %s\n", len(historyStore.Views()), historyExportOut)
		return nil
	},
}

func init() {
	historyExportCmd.Flags().StringVarP(&historyExportOut, "output", "o", "", "write YAML to file instead of stdout")
	historyCmd.AddCommand(historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
