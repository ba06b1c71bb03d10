package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scribe-go/internal/jobs"
)

var watchStream bool

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Attach to a running job's progress",
	Long: `Attach a live progress bar to a job that is already running.

With --stream, raw progress events are printed line by line over the
WebSocket endpoint instead, which is useful for piping into other tools.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchStream, "stream", false, "print raw events instead of the progress bar")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c := newClient()
	ctx := cmd.Context()

	if !watchStream {
		return RunJobProgress(ctx, c, args[0])
	}

	return c.Watch(ctx, args[0], func(e jobs.Event) error {
		fmt.Printf("%-13s %3d%%  %s\n", e.Status, e.Percent, e.Message)
		if e.Error != "" {
			fmt.Printf("error: %s\n", e.Error)
		}
		return nil
	})
}
