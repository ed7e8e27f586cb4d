package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/workflow"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var watchCmd = &cobra.Command{
	Use:   "watch <run-id>",
	Short: "Follow a run until it finishes",
	Long: `Follow a run's progress events. On a terminal a progress bar is shown;
otherwise every event is printed as a line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		stage, err := apiClient.Status(ctx, args[0])
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		return watchRun(ctx, args[0], stage)
	},
}

func watchRun(ctx context.Context, runID string, stage models.Stage) error {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunProgress(ctx, apiClient, runID, stage)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var final *workflow.Event
	err := apiClient.WatchEvents(ctx, runID, 0, func(e workflow.Event) error {
		fmt.Println(formatEvent(e))
		if isFinalEvent(e.Type) {
			final = &e
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("watch: %w", err)
	}
	if final != nil && final.Type != workflow.EventCompleted {
		return eventError(*final)
	}
	return nil
}

func formatEvent(e workflow.Event) string {
	line := fmt.Sprintf("%s %-10s %-15s", e.Timestamp.Local().Format("15:04:05"), e.Type, e.Stage)
	if e.Attempt > 0 {
		line += fmt.Sprintf(" attempt=%d", e.Attempt)
	}
	if e.Message != "" {
		line += " " + e.Message
	}
	return line
}

func isFinalEvent(t workflow.EventType) bool {
	switch t {
	case workflow.EventCompleted, workflow.EventFailed, workflow.EventCancelled:
		return true
	}
	return false
}
