package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/voxrecon/internal/scheduler"
)

var (
	scheduleStatus        string
	scheduleRecordedEnd   int64
	scheduleProcessedEnd  int64
	scheduleIndex         int
	scheduleDisabled      bool
	scheduleInterval      int64
	scheduleOverlap       int64
	scheduleCumulative    int
	scheduleAnalysisEvery int
	scheduleJSON          bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the next incremental processing window",
	Long: `Evaluate the incremental scheduler for a session snapshot and print
whether a window should run, its bounds and mode.

Scheduler parameters default to the configured values.

Examples:
  voxrecon schedule --recorded-end 200000
  voxrecon schedule --recorded-end 400000 --processed-end 180000 --index 2
  voxrecon schedule --status processing --recorded-end 400000`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	f := scheduleCmd.Flags()
	f.StringVar(&scheduleStatus, "status", scheduler.StatusRecording, "session status")
	f.Int64Var(&scheduleRecordedEnd, "recorded-end", 0, "end of recorded, unprocessed audio in ms")
	f.Int64Var(&scheduleProcessedEnd, "processed-end", 0, "end of the last processed window in ms")
	f.IntVar(&scheduleIndex, "index", 0, "zero-based index of the next increment")
	f.BoolVar(&scheduleDisabled, "disabled", false, "treat incremental processing as disabled")
	f.Int64Var(&scheduleInterval, "interval", 0, "interval in ms")
	f.Int64Var(&scheduleOverlap, "overlap", 0, "chunk overlap in ms")
	f.IntVar(&scheduleCumulative, "cumulative", 0, "number of leading cumulative increments")
	f.IntVar(&scheduleAnalysisEvery, "analysis-every", 0, "run analysis on every Kth increment")
	f.BoolVar(&scheduleJSON, "json", false, "print the decision as JSON")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	sc := cfg.Scheduler
	flags := cmd.Flags()
	if flags.Changed("interval") {
		sc.IntervalMs = scheduleInterval
	}
	if flags.Changed("overlap") {
		sc.OverlapMs = scheduleOverlap
	}
	if flags.Changed("cumulative") {
		sc.CumulativeThreshold = scheduleCumulative
	}
	if flags.Changed("analysis-every") {
		sc.AnalysisEvery = scheduleAnalysisEvery
	}

	dec := scheduler.Decide(scheduler.Input{
		Enabled:            !scheduleDisabled && sc.IntervalMs > 0,
		Status:             scheduleStatus,
		UnprocessedEndMs:   scheduleRecordedEnd,
		LastProcessedEndMs: scheduleProcessedEnd,
		IncrementIndex:     scheduleIndex,
		Config:             sc,
	})

	w := cmd.OutOrStdout()
	if scheduleJSON {
		return writeJSON(w, dec)
	}

	t := defaultTheme
	if !dec.Schedule {
		fmt.Fprintf(w, "%s %s\n", t.hintStyle().Render("no window:"), dec.Reason)
		return nil
	}
	fmt.Fprintf(w, "%s increment %d, %s %s-%s",
		t.speakerStyle().Render("run"), dec.IncrementIndex, dec.Mode, clock(dec.StartMs), clock(dec.EndMs))
	if dec.RunAnalysis {
		fmt.Fprint(w, " + analysis")
	}
	fmt.Fprintln(w)
	return nil
}
