// Package collector reads the result files workers leave behind and turns
// a finished run into a summary.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ResultFilePattern is the naming convention for worker result files.
const ResultFilePattern = "worker-*.json"

// collectParallelism bounds how many result files are parsed at once.
const collectParallelism = 8

// Record is the JSON document a worker writes on completion. Its status is
// informational; pass/fail comes from the launcher.
type Record struct {
	WorkerID       string   `json:"workerId"`
	Type           string   `json:"type,omitempty"`
	StartTime      string   `json:"startTime,omitempty"`
	EndTime        string   `json:"endTime,omitempty"`
	Duration       float64  `json:"duration"` // ms
	Status         string   `json:"status"`
	SessionID      string   `json:"sessionId,omitempty"`
	ApplicantEmail string   `json:"applicantEmail,omitempty"`
	StepsCompleted []string `json:"stepsCompleted"`
	Errors         []string `json:"errors"`
}

// ResultFileName returns the file a worker with the given id writes.
func ResultFileName(workerID string) string {
	return "worker-" + workerID + ".json"
}

// ResetResultsDir creates dir and removes result files left by an earlier run.
// It returns how many files were removed.
func ResetResultsDir(dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating results directory: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(dir, ResultFilePattern))
	if err != nil {
		return 0, err
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("removing stale result file: %w", err)
		}
	}
	return len(stale), nil
}

// Collect parses every result file in dir. Files that cannot be read or
// parsed are logged and skipped; only a failure to list dir is an error.
// Records are returned sorted by worker id.
func Collect(ctx context.Context, dir string, log logrus.FieldLogger) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading results directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(ResultFilePattern, e.Name()); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	parsed := make([]*Record, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(collectParallelism)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := readRecord(path)
			if err != nil {
				log.WithField("file", filepath.Base(path)).WithError(err).Warn("Skipping unreadable result file")
				return nil
			}
			parsed[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(parsed))
	for _, rec := range parsed {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].WorkerID < records[j].WorkerID })
	return records, nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.WorkerID == "" {
		name := filepath.Base(path)
		rec.WorkerID = strings.TrimSuffix(strings.TrimPrefix(name, "worker-"), ".json")
	}
	return &rec, nil
}
