package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Re-run a failed job from its last checkpoint",
	Long: `Re-run a failed job. Transcript segments and transformed chunks that were
committed before the failure are reused; only the remaining work runs again.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	c := newClient()
	ctx := cmd.Context()

	if err := c.Resume(ctx, args[0]); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	fmt.Printf("Job %s resumed\n", args[0])

	return RunJobProgress(ctx, c, args[0])
}
