package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/robfarr/markpilot/internal/realtime"
	"github.com/robfarr/markpilot/internal/workflow"
)

var (
	scoreRubricFile   string
	scoreGuidelines   string
	scoreCustomRubric string
	scoreSaveName     string
	scoreNoSave       bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <assignment-file>",
	Short: "Upload, analyze and score an assignment",
	Long: `Run the full scoring workflow on an assignment file: upload it, let the
service analyze it, optionally attach a rubric, then score it and show the
graded report.

Guidelines and a custom rubric given here are remembered for the next run.

Examples:
  markpilot score essay.pdf
  markpilot score thesis.docx --rubric marking-scheme.pdf
  markpilot score report.pdf --guidelines "Focus on methodology"
  markpilot score essay.pdf --custom-rubric "Intro 20, Body 60, Conclusion 20"`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreRubricFile, "rubric", "r", "", "rubric file to score against")
	scoreCmd.Flags().StringVarP(&scoreGuidelines, "guidelines", "g", "", "free-text scoring guidelines")
	scoreCmd.Flags().StringVar(&scoreCustomRubric, "custom-rubric", "", "free-text rubric instead of a rubric file")
	scoreCmd.Flags().StringVar(&scoreSaveName, "name", "", "history entry name (default: the assignment file name)")
	scoreCmd.Flags().BoolVar(&scoreNoSave, "no-save", false, "do not save the result to your history")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	ctx := context.Background()

	wf := workflow.New(apiClient, logger)

	// Free-text fields survive across runs; flags override the draft.
	var draft workflow.Draft
	if ok, err := stateDB.LoadWorkflowDraft(&draft); err == nil && ok {
		wf.RestoreDraft(draft)
	}
	if scoreGuidelines != "" {
		wf.SetGuidelines(scoreGuidelines)
	}
	if scoreCustomRubric != "" {
		wf.SetCustomRubric(scoreCustomRubric)
	}
	defer func() {
		if err := stateDB.SaveWorkflowDraft(wf.DraftState()); err != nil {
			logger.Warn("saving workflow draft failed", "error", err)
		}
	}()

	if err := wf.SelectAssignment(args[0]); err != nil {
		return err
	}

	// The realtime channel feeds sub-progress for the phase in flight.
	if cfg.RealtimeEnabled() {
		connector := realtime.New(cfg.SocketURL, authStore, apiClient.Session, func(ev realtime.Event) {
			if ev.Type == "scoring_progress" && ev.Progress != nil {
				wf.ReportRemoteProgress(*ev.Progress)
			}
		}, logger)
		if err := connector.Connect(); err != nil {
			logger.Warn("continuing without realtime progress", "error", err)
		}
		defer connector.Disconnect()
	}

	runner := func(phase workflow.State) tea.Cmd {
		return func() tea.Msg {
			switch phase {
			case workflow.StateAnalyzing:
				return analysisDoneMsg{err: wf.StartAnalysis(ctx)}
			default:
				return scoringDoneMsg{err: wf.StartScoring(ctx)}
			}
		}
	}

	model := newScoreModel(wf, scoreRubricFile, runner)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("progress display: %w", err)
	}

	snap := wf.Snapshot()
	if snap.State != workflow.StateComplete {
		if snap.LastError != "" {
			return fmt.Errorf("scoring failed: %s", snap.LastError)
		}
		return fmt.Errorf("scoring did not complete")
	}

	printResult(snap)

	if !scoreNoSave {
		id, err := wf.SaveResult(ctx, scoreSaveName)
		if err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		// Load the saved report so "markpilot report" shows it next time.
		if err := reportStore.Fetch(ctx, id); err != nil {
			logger.Warn("caching saved report failed", "error", err)
		}
		fmt.Printf("\nSaved as report %s\n", id)
	}

	return nil
}

func printResult(snap workflow.Snapshot) {
	result := snap.Result

	fmt.Printf("\n%s\n", result.Title)
	fmt.Println(strings.Repeat("-", len(result.Title)))
	fmt.Printf("Score: %.1f / %.1f (%s%%)\n", result.EarnedMarks, result.TotalMarks, result.Percentage)
	if result.Feedback != "" {
		fmt.Printf("\n%s\n", result.Feedback)
	}

	if len(result.Parts) > 0 {
		fmt.Println()
		fmt.Printf("%-30s %10s %10s\n", "SECTION", "SCORE", "MAX")
		for _, p := range result.Parts {
			fmt.Printf("%-30s %10.1f %10.1f\n", p.Section, p.Score, p.MaxScore)
			if p.Feedback != "" {
				fmt.Fprintf(os.Stdout, "  %s\n", p.Feedback)
			}
		}
	}
}
