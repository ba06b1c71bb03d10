package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect jobs",
	Long: `List all jobs or inspect a specific job by ID.

Examples:
  scribe jobs           # List all jobs
  scribe jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	list, err := newClient().ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s %-13s %-5s %-9s %s\n", "ID", "STATUS", "PCT", "CREATED", "FILE")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, job := range list {
		fmt.Printf("%-36s %-13s %4d%% %-9s %s\n",
			job.ID, job.Status, job.Percent, job.CreatedAt.Format("15:04:05"), job.Filename)
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := newClient().GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  File: %s\n", job.Filename)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %d%%\n", job.Percent)
	if job.Message != "" {
		fmt.Printf("  Message: %s\n", job.Message)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
	if job.Status.Terminal() {
		fmt.Printf("  Duration: %s\n", job.UpdatedAt.Sub(job.CreatedAt).Round(time.Second))
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}
	if job.OutputPath != "" {
		fmt.Printf("  Output: %s\n", job.OutputPath)
	}
	return nil
}
