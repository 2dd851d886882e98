package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadswarm/internal/collector"
	"loadswarm/internal/config"
	"loadswarm/internal/coordinator"
	"loadswarm/internal/core"
)

var base = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func run(wt string, offset time.Duration, rate float64, passed bool) *Run {
	return &Run{
		WorkerType:      wt,
		Environment:     "staging",
		StartedAt:       base.Add(offset),
		EndedAt:         base.Add(offset + 10*time.Minute),
		Total:           10,
		Passed:          int(rate / 10),
		Failed:          10 - int(rate/10),
		SuccessRate:     rate,
		Threshold:       80,
		PassedThreshold: passed,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := run("session", 0, 90, true)
	second := run("session", time.Hour, 70, false)
	other := run("identity", 30*time.Minute, 80, true)
	for _, r := range []*Run{first, second, other} {
		require.NoError(t, s.Record(ctx, r))
		assert.NotZero(t, r.ID)
	}

	all, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, second.ID, all[0].ID, "newest run first")
	assert.Equal(t, other.ID, all[1].ID)
	assert.Equal(t, first.ID, all[2].ID)

	sessions, err := s.Recent(ctx, "session", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	got := sessions[1]
	assert.Equal(t, "staging", got.Environment)
	assert.True(t, got.StartedAt.Equal(first.StartedAt))
	assert.True(t, got.EndedAt.Equal(first.EndedAt))
	assert.Equal(t, 90.0, got.SuccessRate)
	assert.True(t, got.PassedThreshold)

	limited, err := s.Recent(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecent_SubSecondOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, run("session", 500*time.Millisecond, 90, true)))
	require.NoError(t, s.Record(ctx, run("session", 0, 50, false)))

	runs, err := s.Recent(ctx, "session", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 90.0, runs[0].SuccessRate)
}

func TestTrend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rates := []float64{100, 60, 80, 90}
	for i, rate := range rates {
		require.NoError(t, s.Record(ctx, run("financial", time.Duration(i)*time.Hour, rate, rate >= 80)))
	}

	trend, err := s.Trend(ctx, "financial", 10)
	require.NoError(t, err)
	assert.Equal(t, 4, trend.Runs)
	assert.Equal(t, 3, trend.PassedRuns)
	assert.Equal(t, 82.5, trend.AvgRate)
	assert.Equal(t, 60.0, trend.MinRate)
	assert.Equal(t, 100.0, trend.MaxRate)
	assert.Equal(t, 90.0, trend.LastRate)

	recent, err := s.Trend(ctx, "financial", 2)
	require.NoError(t, err)
	assert.Equal(t, 85.0, recent.AvgRate)
}

func TestTrend_NoRuns(t *testing.T) {
	s := newTestStore(t)

	trend, err := s.Trend(context.Background(), "identity", 10)
	require.NoError(t, err)
	assert.Equal(t, &Trend{WorkerType: "identity"}, trend)
}

func TestNewStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, run("session", 0, 100, true)))
	require.NoError(t, s.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestFromSummary(t *testing.T) {
	cfg, err := config.Resolve(map[string]string{config.KeyType: "session", config.KeyEnv: "rc"})
	require.NoError(t, err)

	out := &coordinator.Outcome{
		Started:  base,
		Finished: base.Add(11 * time.Minute),
		Spawned:  4,
		Completed: []core.WorkerOutcome{
			{ID: "a", Result: core.WorkerResult{Success: true}},
			{ID: "b", Result: core.WorkerResult{Success: true}},
			{ID: "c", Result: core.WorkerResult{ExitCode: 2}},
		},
		Incomplete: []string{"d"},
	}
	summary := collector.Summarize(out, nil, cfg)

	r := FromSummary(summary, "load-test-results/summary.json")

	assert.Equal(t, "session", r.WorkerType)
	assert.Equal(t, "rc", r.Environment)
	assert.Equal(t, 4, r.Spawned)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Passed)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Incomplete)
	assert.InDelta(t, 66.67, r.SuccessRate, 0.01)
	assert.False(t, r.PassedThreshold)
	assert.Equal(t, "load-test-results/summary.json", r.SummaryPath)
}
