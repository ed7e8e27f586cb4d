package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [run-id]",
	Short: "List or inspect pipeline runs",
	Long: `List all pipeline runs or inspect a specific run by ID.

Examples:
  speechkit jobs           # List all runs
  speechkit jobs abc123    # Show details for run abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Print the current stage of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := apiClient.Status(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		fmt.Println(stage)
		return nil
	},
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if len(args) == 1 {
		return showRun(ctx, args[0])
	}
	return listRuns(ctx)
}

func listRuns(ctx context.Context) error {
	runs, err := apiClient.List(ctx)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-36s %-15s %-10s %-22s %s\n", "ID", "STAGE", "OUTCOME", "JOB STATUS", "STARTED")
	fmt.Println("--------------------------------------------------------------------------------------------------------")
	for _, run := range runs {
		jobStatus := ""
		if run.Job != nil {
			jobStatus = string(run.Job.Status)
		}
		fmt.Printf("%-36s %-15s %-10s %-22s %s\n",
			run.ID, run.Stage, run.Outcome, jobStatus, run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func showRun(ctx context.Context, id string) error {
	run, err := apiClient.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	printRun(run)
	return nil
}

func printRun(run *models.PipelineRun) {
	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("  Stage: %s\n", run.Stage)
	fmt.Printf("  Outcome: %s\n", run.Outcome)
	fmt.Printf("  Source: %s %s\n", run.Input.Source.Kind, run.Input.Source.Value)
	if run.Input.OriginalFilename != "" {
		fmt.Printf("  File: %s\n", run.Input.OriginalFilename)
	}
	if run.Cancelled {
		fmt.Println("  Cancel requested: yes")
	}
	fmt.Printf("  Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Printf("  Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	if run.Error != "" {
		fmt.Printf("  Error: %s\n", run.Error)
	}

	if job := run.Job; job != nil {
		fmt.Println("\nJob:")
		fmt.Printf("  ID: %s\n", job.ID)
		fmt.Printf("  Status: %s\n", job.Status)
		fmt.Printf("  Final transcript: %s\n", job.Paths.FinalTranscript)
		if job.Error != "" {
			fmt.Printf("  Error: %s\n", job.Error)
		}
	}
}
