// Package launcher starts worker processes and reports how they ended.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"loadswarm/internal/config"
	"loadswarm/internal/core"
	"loadswarm/internal/template"
)

// Environment variables every worker receives.
const (
	EnvWorkerID   = "WORKER_ID"
	EnvWorkerType = "WORKER_TYPE"
	EnvTestEnv    = "TEST_ENV"
	EnvResultsDir = "RESULTS_DIR"
	envDataPrefix = "DATA_"
)

const (
	// DefaultTailBytes is how much of each output stream is kept.
	DefaultTailBytes = 2000

	// waitDelay bounds how long Wait blocks on open pipes after the
	// worker has been killed.
	waitDelay = 5 * time.Second
)

// ProcessLauncher runs one OS process per worker.
type ProcessLauncher struct {
	Command   []string          // argv, may contain ${...} placeholders
	Env       map[string]string // extra env, may contain placeholders
	Dir       string
	Timeout   time.Duration
	TailBytes int
	Log       logrus.FieldLogger
}

// New creates a ProcessLauncher from a resolved run config.
func New(cfg *config.RunConfig, log logrus.FieldLogger) *ProcessLauncher {
	return &ProcessLauncher{
		Command:   cfg.Command,
		Env:       cfg.WorkerEnv,
		Dir:       cfg.WorkerDir,
		Timeout:   cfg.WorkerTimeout,
		TailBytes: DefaultTailBytes,
		Log:       log,
	}
}

// Launch runs the worker to completion. It never returns an error: spawn
// failures, non-zero exits and timeouts all become a failed WorkerResult.
func (l *ProcessLauncher) Launch(ctx context.Context, spec core.WorkerSpec) core.WorkerResult {
	start := time.Now()
	log := l.logger().WithField("worker", spec.ID)

	result := core.WorkerResult{ExitCode: -1}

	vars := core.WorkerVariables(spec)
	argv, err := template.SubstituteArgs(l.Command, vars)
	if err == nil && len(argv) == 0 {
		err = errors.New("empty command")
	}
	if err != nil {
		result.Error = fmt.Sprintf("building command: %v", err)
		result.Duration = time.Since(start)
		log.WithError(err).Error("Could not build worker command")
		return result
	}
	env, err := l.environ(spec, vars)
	if err != nil {
		result.Error = fmt.Sprintf("building environment: %v", err)
		result.Duration = time.Since(start)
		log.WithError(err).Error("Could not build worker environment")
		return result
	}

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	tail := l.TailBytes
	if tail <= 0 {
		tail = DefaultTailBytes
	}
	stdout := newTailBuffer(tail)
	stderr := newTailBuffer(tail)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = l.Dir
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	log.WithField("command", cmd.String()).Debug("Starting worker")
	err = cmd.Run()

	result.Duration = time.Since(start)
	result.StdoutTail = stdout.String()
	result.StderrTail = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Error = fmt.Sprintf("timed out after %v", l.Timeout)
		log.Warn("Worker timed out and was killed")
	case err == nil:
		result.Success = true
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		result.Error = err.Error()
		log.WithField("exit_code", result.ExitCode).Debug("Worker exited with failure")
	default:
		result.Error = fmt.Sprintf("spawn failed: %v", err)
		log.WithError(err).Error("Could not start worker")
	}
	return result
}

func (l *ProcessLauncher) environ(spec core.WorkerSpec, vars core.Variables) ([]string, error) {
	extra, err := template.SubstituteMap(l.Env, vars)
	if err != nil {
		return nil, err
	}

	resultsDir := spec.ResultsDir
	if abs, err := filepath.Abs(resultsDir); err == nil {
		resultsDir = abs
	}

	env := os.Environ()
	env = append(env,
		EnvWorkerID+"="+spec.ID,
		EnvWorkerType+"="+string(spec.Type),
		EnvTestEnv+"="+spec.Environment,
		EnvResultsDir+"="+resultsDir,
	)

	for _, k := range sortedKeys(extra) {
		env = append(env, k+"="+extra[k])
	}
	for _, field := range sortedKeys(spec.Data) {
		env = append(env, envDataPrefix+envName(field)+"="+fmt.Sprintf("%v", spec.Data[field]))
	}
	return env, nil
}

func (l *ProcessLauncher) logger() logrus.FieldLogger {
	if l.Log == nil {
		return logrus.StandardLogger()
	}
	return l.Log
}

// envName turns a data column such as "first name" or "monthlyRent" into
// FIRST_NAME / MONTHLYRENT.
func envName(field string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, field)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
