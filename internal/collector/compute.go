package collector

import (
	"sort"
	"strconv"
	"time"

	"loadswarm/internal/config"
	"loadswarm/internal/coordinator"
)

// Summary is the report of one run. Pass/fail counts come only from the
// launcher; records are attached for context.
type Summary struct {
	TestType        string          `json:"testType"`
	Environment     string          `json:"environment"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         time.Time       `json:"endTime"`
	ExecutionTime   string          `json:"executionTime"`
	Config          config.Snapshot `json:"config"`
	Results         Results         `json:"results"`
	Timing          DurationMetrics `json:"timing"`
	Threshold       float64         `json:"threshold"`
	PassedThreshold bool            `json:"passedThreshold"`
	Workers         []WorkerSummary `json:"workers"`
	Incomplete      []string        `json:"incompleteWorkers,omitempty"`
	Records         []Record        `json:"records"`
}

// Results holds the aggregate counts. Total is always Passed + Failed;
// workers still running when draining ended are counted in Incomplete only.
type Results struct {
	Total        int    `json:"total"`
	Passed       int    `json:"passed"`
	Failed       int    `json:"failed"`
	SuccessRate  string `json:"successRate"`
	Incomplete   int    `json:"incomplete"`
	Spawned      int    `json:"spawned"`
	SkippedTicks int    `json:"skippedTicks"`
	Reported     int    `json:"resultFiles"`

	rate float64
}

// Rate returns the unrounded success rate in percent.
func (r Results) Rate() float64 { return r.rate }

// WorkerSummary merges a worker's launcher result with its result file.
type WorkerSummary struct {
	ID             string   `json:"workerId"`
	Success        bool     `json:"success"`
	ExitCode       int      `json:"exitCode"`
	DurationMs     int64    `json:"durationMs"`
	Error          string   `json:"error,omitempty"`
	StderrTail     string   `json:"stderrTail,omitempty"`
	ReportedStatus string   `json:"reportedStatus,omitempty"`
	StepsCompleted []string `json:"stepsCompleted,omitempty"`
}

// DurationMetrics contains worker duration statistics in milliseconds.
type DurationMetrics struct {
	Avg int64 `json:"avgDuration"`
	Min int64 `json:"minDuration"`
	Max int64 `json:"maxDuration"`
	P50 int64 `json:"p50Duration"`
	P95 int64 `json:"p95Duration"`
}

// Summarize builds the run summary. Pure function, no side effects.
func Summarize(run *coordinator.Outcome, records []Record, cfg *config.RunConfig) *Summary {
	s := &Summary{
		TestType:      string(cfg.WorkerType),
		Environment:   cfg.Environment,
		StartTime:     run.Started,
		EndTime:       run.Finished,
		ExecutionTime: run.Finished.Sub(run.Started).Round(time.Millisecond).String(),
		Config:        cfg.Snapshot(),
		Threshold:     Threshold(cfg.WorkerType, cfg.Thresholds),
		Incomplete:    run.Incomplete,
		Records:       records,
	}
	if s.Records == nil {
		s.Records = []Record{}
	}

	byID := make(map[string]Record, len(records))
	for _, rec := range records {
		byID[rec.WorkerID] = rec
	}

	durations := make([]time.Duration, 0, len(run.Completed))
	s.Workers = make([]WorkerSummary, 0, len(run.Completed))
	for _, w := range run.Completed {
		ws := WorkerSummary{
			ID:         w.ID,
			Success:    w.Result.Success,
			ExitCode:   w.Result.ExitCode,
			DurationMs: w.Result.Duration.Milliseconds(),
			Error:      w.Result.Error,
		}
		if !w.Result.Success {
			ws.StderrTail = w.Result.StderrTail
		}
		if rec, ok := byID[w.ID]; ok {
			ws.ReportedStatus = rec.Status
			ws.StepsCompleted = rec.StepsCompleted
			s.Results.Reported++
		}
		s.Workers = append(s.Workers, ws)
		durations = append(durations, w.Result.Duration)
	}

	s.Results.Passed = run.Passed()
	s.Results.Failed = run.Failed()
	s.Results.Total = s.Results.Passed + s.Results.Failed
	s.Results.Incomplete = len(run.Incomplete)
	s.Results.Spawned = run.Spawned
	s.Results.SkippedTicks = run.SkippedTicks
	if s.Results.Total > 0 {
		s.Results.rate = float64(s.Results.Passed*100) / float64(s.Results.Total)
	}
	s.PassedThreshold = s.Results.rate >= s.Threshold
	s.Results.SuccessRate = formatRate(s.Results.rate, s.Threshold)

	s.Timing = ComputeDurationMetrics(durations)
	return s
}

// formatRate prints rate with one decimal, adding digits when rounding
// would put it on the other side of threshold (89.96 must not read 90.0).
func formatRate(rate, threshold float64) string {
	passed := rate >= threshold
	for prec := 1; prec <= 6; prec++ {
		text := strconv.FormatFloat(rate, 'f', prec, 64)
		if shown, _ := strconv.ParseFloat(text, 64); (shown >= threshold) == passed {
			return text
		}
	}
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

// ExitCode is 0 when the success rate met the threshold and 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.PassedThreshold {
		return 0
	}
	return 1
}

// ComputePercentile calculates the percentile value from a sorted slice of durations.
// The percentile p should be between 0 and 1 (e.g., 0.95 for p95).
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	// nearest rank
	return sorted[int(float64(len(sorted)-1)*p)]
}

// ComputeDurationMetrics calculates duration statistics from unsorted durations.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Avg: (total / time.Duration(len(sorted))).Milliseconds(),
		Min: sorted[0].Milliseconds(),
		Max: sorted[len(sorted)-1].Milliseconds(),
		P50: ComputePercentile(sorted, 0.50).Milliseconds(),
		P95: ComputePercentile(sorted, 0.95).Milliseconds(),
	}
}
