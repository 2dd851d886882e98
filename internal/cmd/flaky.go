package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"loadswarm/internal/flaky"
)

// ErrTooManyFlaky is returned by flaky when more tests are flaky than allowed.
var ErrTooManyFlaky = errors.New("too many flaky tests")

// NewFlakyCommand creates the flaky command
func NewFlakyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flaky REPORT.xml [REPORT.xml...]",
		Short: "Find flaky tests across JUnit reports",
		Long: `Compare the JUnit XML reports written by repeated worker runs and
classify every test as stable, flaky or broken by its pass rate.

A test is stable when its pass rate is at least --threshold, broken when
it never passed and flaky otherwise.

Examples:
  loadswarm flaky load-test-results/junit-*.xml
  loadswarm flaky --threshold 95 --max-flaky 2 reports/*.xml
  loadswarm flaky --json reports/*.xml`,
		Args: cobra.MinimumNArgs(1),
		RunE: runFlaky,
	}

	cmd.Flags().Float64("threshold", flaky.DefaultStableThreshold, "Pass rate (percent) at which a test counts as stable")
	cmd.Flags().Int("max-flaky", 0, "Fail when more than this many tests are flaky (-1 disables)")
	cmd.Flags().Bool("json", false, "Print the analysis as JSON")

	return cmd
}

func runFlaky(cmd *cobra.Command, args []string) error {
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	if threshold <= 0 || threshold > 100 {
		return fmt.Errorf("--threshold must be in (0, 100], got %g", threshold)
	}

	a := flaky.NewAnalyzer()
	for _, path := range args {
		if err := a.AddFile(path); err != nil {
			return err
		}
	}
	report := a.Report(threshold)

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		flaky.FormatText(out, report)
	}

	maxFlaky, _ := cmd.Flags().GetInt("max-flaky")
	if maxFlaky >= 0 && report.Flaky > maxFlaky {
		return fmt.Errorf("%w: %d flaky, %d allowed", ErrTooManyFlaky, report.Flaky, maxFlaky)
	}
	return nil
}
