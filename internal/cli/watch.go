package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robfarr/markpilot/internal/realtime"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream realtime scoring events",
	Long: `Connect to the realtime channel and print scoring events as they happen,
until interrupted. Useful while a long scoring run is in flight elsewhere.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}
		if !cfg.RealtimeEnabled() {
			return fmt.Errorf("MARKPILOT_SOCKET_URL is not set, realtime features are disabled")
		}

		connector := realtime.New(cfg.SocketURL, authStore, apiClient.Session, printEvent, logger)
		if err := connector.Connect(); err != nil {
			return err
		}
		defer connector.Disconnect()

		fmt.Fprintln(os.Stderr, "Watching for scoring events, ctrl+c to stop")

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		return nil
	},
}

func printEvent(ev realtime.Event) {
	switch {
	case ev.Type == "scoring_progress" && ev.Progress != nil:
		fmt.Printf("progress  report=%s %.0f%%\n", ev.ReportID, *ev.Progress*100)
	case ev.Message != "":
		fmt.Printf("%-9s report=%s %s\n", ev.Type, ev.ReportID, ev.Message)
	default:
		fmt.Printf("%-9s report=%s\n", ev.Type, ev.ReportID)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
