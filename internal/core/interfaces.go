// Package core defines the fundamental interfaces and types for loadswarm.
package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// WorkerType selects which end-to-end scenario a worker runs.
type WorkerType string

const (
	WorkerSession   WorkerType = "session"
	WorkerIdentity  WorkerType = "identity"
	WorkerFinancial WorkerType = "financial"
)

// WorkerTypes lists every supported scenario in display order.
var WorkerTypes = []WorkerType{WorkerSession, WorkerIdentity, WorkerFinancial}

// ParseWorkerType converts user input into a WorkerType.
func ParseWorkerType(s string) (WorkerType, error) {
	wt := WorkerType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range WorkerTypes {
		if wt == known {
			return wt, nil
		}
	}
	return "", fmt.Errorf("unknown worker type %q (want session, identity or financial)", s)
}

// WorkerSpec is everything a launcher needs to start one worker.
type WorkerSpec struct {
	ID          string
	Type        WorkerType
	Environment string
	ResultsDir  string
	Data        map[string]any // optional row from a data file
}

// WorkerResult is the process-level outcome of a single worker.
// A launcher always produces one, even when the process never started.
type WorkerResult struct {
	Success    bool
	Duration   time.Duration
	ExitCode   int
	StdoutTail string
	StderrTail string
	Error      string
}

// WorkerOutcome pairs a finished worker with its launcher result.
type WorkerOutcome struct {
	ID        string
	StartedAt time.Time
	Result    WorkerResult
}

// Launcher starts a worker and blocks until it has finished.
// Implementations must never panic or return without a result.
type Launcher interface {
	Launch(ctx context.Context, spec WorkerSpec) WorkerResult
}

// LauncherFunc adapts a plain function to the Launcher interface.
type LauncherFunc func(ctx context.Context, spec WorkerSpec) WorkerResult

func (f LauncherFunc) Launch(ctx context.Context, spec WorkerSpec) WorkerResult {
	return f(ctx, spec)
}

// Stats is a point-in-time view of a run, used for progress output.
type Stats struct {
	Spawned   int
	Active    int
	Completed int
	Passed    int
	Failed    int
	Skipped   int  // ticks dropped because the worker cap was reached
	Draining  bool // spawning has stopped
}
