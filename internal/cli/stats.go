package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/scribe-go/internal/metrics"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show per-operation timing statistics from a running server.

Examples:
  scribe stats
  scribe stats --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the raw JSON snapshot")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	raw, err := newClient().Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if statsJSON {
		fmt.Println(string(raw))
		return nil
	}

	var snap metrics.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	uptime := time.Duration(snap.UptimeSeconds * float64(time.Second))
	fmt.Printf("Uptime: %s\n\n", uptime.Round(time.Second))

	fmt.Printf("%-15s %7s %8s %10s %10s %10s\n", "OPERATION", "COUNT", "FAILED", "AVG", "MIN", "MAX")
	printOp("stt_segment", snap.STTSegment)
	printOp("llm_clean", snap.LLMClean)
	printOp("llm_structure", snap.LLMStructure)
	printOp("checkpoint_io", snap.CheckpointIO)
	return nil
}

func printOp(name string, op *metrics.OperationSnapshot) {
	if op == nil {
		return
	}
	fmt.Printf("%-15s %7d %8d %9.1fms %8dms %8dms\n",
		name, op.Count, op.Failures, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
