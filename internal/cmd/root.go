package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for loadswarm
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadswarm",
		Short: "Load-test orchestrator for end-to-end browser workers",
		Long: `loadswarm runs end-to-end test workers as separate processes on a fixed
interval, keeps at most a configured number of them running at once, waits
for them to drain and reports a per-scenario success rate.

The process exits non-zero when the success rate is below the threshold
for the worker type.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewFlakyCommand())

	return cmd
}

// newLogger builds the logger for a command, writing to its stderr.
func newLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
	return log, nil
}
