package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/voxrecon/internal/metrics"
)

var statsDetailed bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server pipeline statistics",
	Long: `Show the server's in-memory timing statistics per pipeline stage and
token usage of language model calls. Counters reset on server restart.

Examples:
  voxrecon stats
  voxrecon stats --detailed`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsDetailed, "detailed", false, "show min/max timings and token ranges")
}

func runStats(cmd *cobra.Command, args []string) error {
	snap, err := apiClient.PipelineStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get pipeline stats: %w", err)
	}
	printPipelineStats(cmd.OutOrStdout(), snap, statsDetailed)
	return nil
}

// printPipelineStats displays runtime statistics in operation order.
func printPipelineStats(w io.Writer, snap *metrics.Snapshot, detailed bool) {
	fmt.Fprintf(w, "Pipeline Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", snap.UptimeSeconds)

	ops := make([]string, 0, len(snap.Operations))
	for op := range snap.Operations {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	if len(ops) == 0 {
		fmt.Fprintln(w, "\nNo operations recorded yet.")
		return
	}

	for _, op := range ops {
		s := snap.Operations[op]
		fmt.Fprintf(w, "\n%s:\n", op)
		fmt.Fprintf(w, "  Calls: %d, Total: %dms, avg %.1fms\n", s.Count, s.TotalTimeMs, s.AvgTimeMs)
		if detailed {
			fmt.Fprintf(w, "  Time: min %dms, max %dms\n", s.MinTimeMs, s.MaxTimeMs)
		}
		printTokenStats(w, s, detailed)
	}
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot, detailed bool) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	if detailed && op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	if detailed && op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(w)
}
