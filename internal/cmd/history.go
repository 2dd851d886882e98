package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"loadswarm/internal/core"
	"loadswarm/internal/history"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded load test runs",
		Long: `Show the most recent load test runs recorded by "loadswarm run" and the
success rate trend for each worker type.

Examples:
  loadswarm history
  loadswarm history --type session --limit 5
  loadswarm history --history-db /var/lib/loadswarm/history.db`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().String("history-db", "", "SQLite history database (default "+history.DefaultPath+")")
	cmd.Flags().String("config", "", "Path to YAML config file naming the history database")
	cmd.Flags().String("type", "", "Only show runs of this worker type")
	cmd.Flags().Int("limit", 10, "Maximum number of runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	types := core.WorkerTypes
	if raw, _ := cmd.Flags().GetString("type"); raw != "" {
		wt, err := core.ParseWorkerType(raw)
		if err != nil {
			return err
		}
		types = []core.WorkerType{wt}
	}

	fc, err := loadConfigFile(cmd)
	if err != nil {
		return err
	}
	store, err := history.NewStore(historyPath(cmd, fc))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	filter := ""
	if len(types) == 1 {
		filter = string(types[0])
	}
	runs, err := store.Recent(ctx, filter, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	printRuns(out, runs)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Trend (last %d runs per type)\n", limit)
	for _, wt := range types {
		trend, err := store.Trend(ctx, string(wt), limit)
		if err != nil {
			return err
		}
		if trend.Runs == 0 {
			continue
		}
		fmt.Fprintf(out, "  %-10s runs: %d  passed: %d  avg: %.1f%%  min: %.1f%%  max: %.1f%%  last: %.1f%%\n",
			trend.WorkerType, trend.Runs, trend.PassedRuns, trend.AvgRate, trend.MinRate, trend.MaxRate, trend.LastRate)
	}
	return nil
}

func printRuns(w io.Writer, runs []*history.Run) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "%-5s %-20s %-10s %-12s %7s %7s %7s %8s  %s\n",
		"ID", "STARTED", "TYPE", "ENV", "TOTAL", "PASSED", "FAILED", "RATE", "RESULT")
	for _, r := range runs {
		verdict := green("PASS")
		if !r.PassedThreshold {
			verdict = red("FAIL")
		}
		fmt.Fprintf(w, "%-5d %-20s %-10s %-12s %7d %7d %7d %7.1f%%  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.WorkerType, r.Environment,
			r.Total, r.Passed, r.Failed, r.SuccessRate, verdict)
	}
}
