package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"loadswarm/internal/core"
)

func TestResolve_Defaults(t *testing.T) {
	cfg, err := Resolve(map[string]string{KeyType: "session"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.WorkerType != core.WorkerSession {
		t.Errorf("expected worker type session, got %q", cfg.WorkerType)
	}
	if cfg.Duration != 10*time.Minute {
		t.Errorf("expected duration 10m, got %v", cfg.Duration)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected interval 15s, got %v", cfg.Interval)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected environment development, got %q", cfg.Environment)
	}
	if cfg.MaxWorkers != 30 {
		t.Errorf("expected max workers 30, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxRuns != 0 {
		t.Errorf("expected max runs unset, got %d", cfg.MaxRuns)
	}
	if cfg.GracePeriod != 5*time.Minute {
		t.Errorf("expected grace period 5m, got %v", cfg.GracePeriod)
	}
	if cfg.SummaryPath != filepath.Join(DefaultResultsDir, "summary.json") {
		t.Errorf("unexpected summary path %q", cfg.SummaryPath)
	}
	if !reflect.DeepEqual(cfg.Command, DefaultCommand(core.WorkerSession)) {
		t.Errorf("unexpected default command %v", cfg.Command)
	}
}

func TestResolve_AllValues(t *testing.T) {
	cfg, err := Resolve(map[string]string{
		KeyType:       "financial",
		KeyDuration:   "2",
		KeyInterval:   "5",
		KeyEnv:        "staging",
		KeyMaxWorkers: "4",
		KeyMaxRuns:    "12",
		KeyResultsDir: "out",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.WorkerType != core.WorkerFinancial {
		t.Errorf("expected financial, got %q", cfg.WorkerType)
	}
	if cfg.Duration != 2*time.Minute {
		t.Errorf("expected 2m, got %v", cfg.Duration)
	}
	if cfg.Interval != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.Interval)
	}
	if cfg.Environment != "staging" {
		t.Errorf("expected staging, got %q", cfg.Environment)
	}
	if cfg.MaxWorkers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxRuns != 12 {
		t.Errorf("expected 12 runs, got %d", cfg.MaxRuns)
	}
	if cfg.SummaryPath != filepath.Join("out", "summary.json") {
		t.Errorf("expected summary under results dir, got %q", cfg.SummaryPath)
	}
}

func TestResolve_DurationStrings(t *testing.T) {
	cfg, err := Resolve(map[string]string{
		KeyType:      "identity",
		KeyDuration:  "90s",
		KeyInterval:  "250ms",
		KeyDrainPoll: "0.5",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Duration != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Duration)
	}
	if cfg.Interval != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Interval)
	}
	if cfg.DrainPoll != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", cfg.DrainPoll)
	}
}

func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"missing type", map[string]string{}},
		{"unknown type", map[string]string{KeyType: "payroll"}},
		{"zero interval", map[string]string{KeyType: "session", KeyInterval: "0"}},
		{"negative duration", map[string]string{KeyType: "session", KeyDuration: "-1"}},
		{"garbage duration", map[string]string{KeyType: "session", KeyDuration: "soon"}},
		{"zero workers", map[string]string{KeyType: "session", KeyMaxWorkers: "0"}},
		{"non-numeric workers", map[string]string{KeyType: "session", KeyMaxWorkers: "many"}},
		{"zero max runs", map[string]string{KeyType: "session", KeyMaxRuns: "0"}},
		{"empty env", map[string]string{KeyType: "session", KeyEnv: " "}},
		{"unknown key", map[string]string{KeyType: "session", "workers": "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(tt.values)
			if err == nil {
				t.Fatalf("expected error, got config %+v", cfg)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if cfg != nil {
				t.Error("expected nil config on error")
			}
		})
	}
}

func TestLoadFile_Full(t *testing.T) {
	content := `
defaults:
  duration: 5
  interval: 30
  env: rc
  max-workers: 10
workers:
  session:
    command: ["node", "workers/session.js", "${workerId}"]
    env:
      BASE_URL: https://rc.example.com
    dir: e2e
thresholds:
  session: 97.5
  identity: 60
data:
  file: applicants.csv
  mode: random
historyDB: history.db
`
	path := createTempFile(t, content)

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.Defaults[KeyMaxWorkers] != "10" {
		t.Errorf("expected max-workers default 10, got %q", fc.Defaults[KeyMaxWorkers])
	}
	if fc.HistoryDB != "history.db" {
		t.Errorf("expected historyDB, got %q", fc.HistoryDB)
	}
	if fc.Dir() != filepath.Dir(path) {
		t.Errorf("expected dir %q, got %q", filepath.Dir(path), fc.Dir())
	}

	cfg, err := Build(map[string]string{KeyType: "session", KeyMaxWorkers: "3"}, fc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.Duration != 5*time.Minute {
		t.Errorf("expected file default duration 5m, got %v", cfg.Duration)
	}
	if cfg.Environment != "rc" {
		t.Errorf("expected file default env rc, got %q", cfg.Environment)
	}
	if cfg.MaxWorkers != 3 {
		t.Errorf("expected flag to override file, got %d", cfg.MaxWorkers)
	}
	if !reflect.DeepEqual(cfg.Command, []string{"node", "workers/session.js", "${workerId}"}) {
		t.Errorf("unexpected command %v", cfg.Command)
	}
	if cfg.WorkerEnv["BASE_URL"] != "https://rc.example.com" {
		t.Errorf("unexpected worker env %v", cfg.WorkerEnv)
	}
	if cfg.WorkerDir != filepath.Join(filepath.Dir(path), "e2e") {
		t.Errorf("expected worker dir relative to config, got %q", cfg.WorkerDir)
	}
	if cfg.Thresholds[core.WorkerSession] != 97.5 {
		t.Errorf("expected session threshold 97.5, got %v", cfg.Thresholds[core.WorkerSession])
	}
	if cfg.Data == nil || cfg.Data.File != filepath.Join(filepath.Dir(path), "applicants.csv") {
		t.Errorf("expected data file relative to config, got %+v", cfg.Data)
	}
}

func TestBuild_FileWithoutWorkerSection(t *testing.T) {
	fc, err := LoadFile(createTempFile(t, "defaults:\n  env: staging\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := Build(map[string]string{KeyType: "identity"}, fc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(cfg.Command, DefaultCommand(core.WorkerIdentity)) {
		t.Errorf("expected default command, got %v", cfg.Command)
	}
}

func TestBuild_NilFile(t *testing.T) {
	cfg, err := Build(map[string]string{KeyType: "session"}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.WorkerType != core.WorkerSession {
		t.Errorf("expected session, got %q", cfg.WorkerType)
	}
}

func TestBuild_BadThresholds(t *testing.T) {
	tests := map[string]string{
		"unknown type":  "thresholds:\n  payroll: 50\n",
		"out of range":  "thresholds:\n  session: 150\n",
		"bad file type": "defaults:\n  type: payroll\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			fc, err := LoadFile(createTempFile(t, content))
			if err != nil {
				t.Fatalf("unexpected load error: %v", err)
			}
			values := map[string]string{}
			if name != "bad file type" {
				values[KeyType] = "session"
			}
			if _, err := Build(values, fc); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadFile_NotFound(t *testing.T) {
	_, err := LoadFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	content := `
defaults:
  env: "broken
  workers: [[[invalid
`
	_, err := LoadFile(createTempFile(t, content))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for invalid YAML, got %v", err)
	}
}

func TestLoadFile_EmptyFile(t *testing.T) {
	fc, err := LoadFile(createTempFile(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.Defaults) != 0 {
		t.Errorf("expected no defaults, got %v", fc.Defaults)
	}
}

func TestSnapshot(t *testing.T) {
	cfg, err := Resolve(map[string]string{KeyType: "session", KeyMaxRuns: "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := cfg.Snapshot()
	if snap.TestType != "session" || snap.MaxRuns != 2 || snap.SpawnInterval != "15s" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return tmpFile
}
