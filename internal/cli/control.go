package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Stop a run before its next step",
	Long: `Signal a run to stop. The step in progress finishes first; the run is
then marked cancelled and the user is notified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Cancel(context.Background(), args[0]); err != nil {
			return fmt.Errorf("cancel: %w", err)
		}
		fmt.Printf("Cancellation requested for %s\n", args[0])
		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <run-id>",
	Short: "Accept the final transcript of a completed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := apiClient.Confirm(context.Background(), args[0])
		return printDecision("confirm", job, err)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <run-id>",
	Short: "Reject the final transcript of a completed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := apiClient.Reject(context.Background(), args[0])
		return printDecision("reject", job, err)
	},
}

func printDecision(action string, job *models.TranscriptionJob, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	fmt.Printf("Job %s is now %s\n", job.ID, job.Status)
	return nil
}
