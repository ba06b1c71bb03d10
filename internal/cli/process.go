package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scribe-go/internal/jobs"
)

var processDownloadDir string

var processCmd = &cobra.Command{
	Use:   "process <audio-file>",
	Short: "Submit a recording and follow its progress",
	Long: `Upload an audio file to the server and follow the pipeline with a live
progress bar. Ctrl+C detaches; the job keeps running on the server.

With --download the finished document is saved locally once the job is done.

Examples:
  scribe process meeting.mp3
  scribe process -d . interview.m4a`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processDownloadDir, "download", "d", "", "directory to save the finished document to")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := newClient()
	ctx := cmd.Context()

	jobID, err := c.Upload(ctx, path)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Printf("Job %s submitted\n", jobID)

	if err := RunJobProgress(ctx, c, jobID); err != nil {
		return err
	}

	if processDownloadDir != "" {
		// Skip the download if the user detached before the job finished.
		job, err := c.GetJob(ctx, jobID)
		if err != nil || job.Status != jobs.StatusDone {
			return err
		}
		dest, err := c.Download(ctx, jobID, processDownloadDir)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		fmt.Printf("Saved %s\n", dest)
	}
	return nil
}
