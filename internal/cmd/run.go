package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"loadswarm/internal/collector"
	"loadswarm/internal/config"
	"loadswarm/internal/coordinator"
	"loadswarm/internal/data"
	"loadswarm/internal/filelock"
	"loadswarm/internal/history"
	"loadswarm/internal/launcher"
	"loadswarm/internal/progress"
)

// ErrThresholdFailed is returned by run when the success rate is below the
// threshold for the worker type.
var ErrThresholdFailed = errors.New("success rate below threshold")

// runFlags are passed to config.Resolve under the same name when set.
var runFlags = []struct {
	key   string
	usage string
}{
	{config.KeyType, "Worker type: session, identity or financial (required)"},
	{config.KeyDuration, "Spawn budget in minutes, or a duration such as 90s (default 10)"},
	{config.KeyInterval, "Seconds between spawn attempts, or a duration (default 15)"},
	{config.KeyEnv, "Target environment passed to workers (default development)"},
	{config.KeyMaxWorkers, "Maximum concurrent workers (default 30)"},
	{config.KeyMaxRuns, "Stop spawning after this many workers have completed"},
	{config.KeyResultsDir, "Directory workers write result files to (default load-test-results)"},
	{config.KeySummary, "Summary JSON path (default <results-dir>/summary.json)"},
	{config.KeyGracePeriod, "Seconds to wait for running workers after spawning stops (default 300)"},
	{config.KeyDrainPoll, "Seconds between checks while draining (default 5)"},
	{config.KeyWorkerTimeout, "Minutes before a worker is killed (default 10)"},
}

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a load test by spawning one worker process per interval until the
duration budget is spent, then wait for running workers, collect their
result files and write a summary.

Configuration is loaded from --config if given. Flags override the
file's defaults.

Examples:
  loadswarm run --type session
  loadswarm run --type identity --duration 30 --interval 10 --env staging
  loadswarm run --type financial --max-runs 20 --max-workers 5
  loadswarm run --config loadswarm.yaml --type session --quiet`,
		Args: cobra.NoArgs,
		RunE: runLoadTest,
	}

	for _, f := range runFlags {
		cmd.Flags().String(f.key, "", f.usage)
	}
	cmd.Flags().String("config", "", "Path to YAML config file")
	cmd.Flags().Bool("quiet", false, "Disable the live progress line")
	cmd.Flags().String("history-db", "", "SQLite history database (default "+history.DefaultPath+")")
	cmd.Flags().Bool("no-history", false, "Do not record this run in the history database")

	return cmd
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}

	fc, err := loadConfigFile(cmd)
	if err != nil {
		return err
	}
	values := make(map[string]string)
	for _, f := range runFlags {
		if cmd.Flags().Changed(f.key) {
			values[f.key], _ = cmd.Flags().GetString(f.key)
		}
	}
	cfg, err := config.Build(values, fc)
	if err != nil {
		return err
	}

	lock, err := filelock.AcquireRunLock(cfg.ResultsDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	removed, err := collector.ResetResultsDir(cfg.ResultsDir)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.WithField("files", removed).Debug("Removed stale result files")
	}

	var src *data.Source
	if cfg.Data != nil {
		mode, err := data.ParseMode(cfg.Data.Mode)
		if err != nil {
			return fmt.Errorf("%w: data: %v", config.ErrInvalidConfig, err)
		}
		if src, err = data.LoadFile(cfg.Data.File, mode); err != nil {
			return err
		}
		log.WithField("rows", src.Len()).Info("Loaded worker data")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// a second signal gets the default behaviour and kills the process
		<-ctx.Done()
		stop()
	}()

	coord := coordinator.New(cfg, launcher.New(cfg, log),
		coordinator.WithLogger(log),
		coordinator.WithData(src),
	)

	quiet, _ := cmd.Flags().GetBool("quiet")
	prog := progress.NewProgress(coord, quiet || !progress.IsTerminal(cmd.ErrOrStderr()))
	prog.SetOutput(cmd.ErrOrStderr())
	log.SetOutput(prog)
	prog.Start()
	out := coord.Run(ctx)
	prog.Stop()
	log.SetOutput(cmd.ErrOrStderr())

	records, err := collector.Collect(context.Background(), cfg.ResultsDir, log)
	if err != nil {
		return err
	}
	summary := collector.Summarize(out, records, cfg)

	if err := collector.WriteSummary(cfg.SummaryPath, summary); err != nil {
		return err
	}
	log.WithField("path", cfg.SummaryPath).Info("Summary written")

	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		recordHistory(cmd, fc, summary, cfg.SummaryPath, log)
	}

	collector.FormatText(cmd.OutOrStdout(), summary)

	if summary.ExitCode() != 0 {
		return fmt.Errorf("%w: %s%% < %g%% for %s", ErrThresholdFailed,
			summary.Results.SuccessRate, summary.Threshold, summary.TestType)
	}
	return nil
}

// recordHistory stores the run. Failures are logged; they never fail the run.
func recordHistory(cmd *cobra.Command, fc *config.FileConfig, s *collector.Summary, summaryPath string, log logrus.FieldLogger) {
	store, err := history.NewStore(historyPath(cmd, fc))
	if err != nil {
		log.WithError(err).Warn("Could not open history database")
		return
	}
	defer store.Close()

	run := history.FromSummary(s, summaryPath)
	if err := store.Record(context.Background(), run); err != nil {
		log.WithError(err).Warn("Could not record run history")
		return
	}
	log.WithField("id", run.ID).Debug("Run recorded in history")
}

func loadConfigFile(cmd *cobra.Command) (*config.FileConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil, nil
	}
	return config.LoadFile(path)
}

// historyPath prefers --history-db, then the config file, then the default.
func historyPath(cmd *cobra.Command, fc *config.FileConfig) string {
	if path, _ := cmd.Flags().GetString("history-db"); path != "" {
		return path
	}
	if fc != nil && fc.HistoryDB != "" {
		return fc.HistoryDB
	}
	return history.DefaultPath
}
