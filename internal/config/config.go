// Package config resolves run parameters and the optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"loadswarm/internal/core"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultDuration      = 10 * time.Minute
	DefaultInterval      = 15 * time.Second
	DefaultEnvironment   = "development"
	DefaultMaxWorkers    = 30
	DefaultResultsDir    = "load-test-results"
	DefaultSummaryFile   = "summary.json"
	DefaultGracePeriod   = 5 * time.Minute
	DefaultDrainPoll     = 5 * time.Second
	DefaultWorkerTimeout = 10 * time.Minute
)

// Keys accepted by Resolve. They match the run command's flag names.
const (
	KeyType          = "type"
	KeyDuration      = "duration"       // minutes, or a Go duration
	KeyInterval      = "interval"       // seconds, or a Go duration
	KeyEnv           = "env"
	KeyMaxWorkers    = "max-workers"
	KeyMaxRuns       = "max-runs"
	KeyResultsDir    = "results-dir"
	KeySummary       = "summary"
	KeyGracePeriod   = "grace"          // seconds, or a Go duration
	KeyDrainPoll     = "drain-poll"     // seconds, or a Go duration
	KeyWorkerTimeout = "worker-timeout" // minutes, or a Go duration
)

var knownKeys = map[string]bool{
	KeyType: true, KeyDuration: true, KeyInterval: true, KeyEnv: true,
	KeyMaxWorkers: true, KeyMaxRuns: true, KeyResultsDir: true, KeySummary: true,
	KeyGracePeriod: true, KeyDrainPoll: true, KeyWorkerTimeout: true,
}

// RunConfig is the validated, immutable configuration of one run.
type RunConfig struct {
	WorkerType  core.WorkerType
	Duration    time.Duration
	Interval    time.Duration
	Environment string
	MaxWorkers  int
	MaxRuns     int // 0 means unset

	ResultsDir    string
	SummaryPath   string
	GracePeriod   time.Duration
	DrainPoll     time.Duration
	WorkerTimeout time.Duration

	// Populated from the config file.
	Command    []string
	WorkerEnv  map[string]string
	WorkerDir  string
	Thresholds map[core.WorkerType]float64
	Data       *DataConfig
}

// Snapshot is the JSON form of a RunConfig recorded in the run summary.
type Snapshot struct {
	TestType      string   `json:"testType"`
	Duration      string   `json:"duration"`
	SpawnInterval string   `json:"spawnInterval"`
	Environment   string   `json:"environment"`
	MaxWorkers    int      `json:"maxConcurrentWorkers"`
	MaxRuns       int      `json:"maxCompletedRuns,omitempty"`
	GracePeriod   string   `json:"gracePeriod"`
	WorkerTimeout string   `json:"workerTimeout"`
	Command       []string `json:"command,omitempty"`
}

func (c *RunConfig) Snapshot() Snapshot {
	return Snapshot{
		TestType:      string(c.WorkerType),
		Duration:      c.Duration.String(),
		SpawnInterval: c.Interval.String(),
		Environment:   c.Environment,
		MaxWorkers:    c.MaxWorkers,
		MaxRuns:       c.MaxRuns,
		GracePeriod:   c.GracePeriod.String(),
		WorkerTimeout: c.WorkerTimeout.String(),
		Command:       c.Command,
	}
}

// Resolve builds a RunConfig from command-line style key/value pairs,
// applying defaults for anything absent. It has no side effects.
func Resolve(values map[string]string) (*RunConfig, error) {
	if err := checkKeys(values); err != nil {
		return nil, err
	}

	rawType, ok := values[KeyType]
	if !ok || strings.TrimSpace(rawType) == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidConfig, KeyType)
	}
	wt, err := core.ParseWorkerType(rawType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := &RunConfig{
		WorkerType:    wt,
		Duration:      DefaultDuration,
		Interval:      DefaultInterval,
		Environment:   DefaultEnvironment,
		MaxWorkers:    DefaultMaxWorkers,
		ResultsDir:    DefaultResultsDir,
		GracePeriod:   DefaultGracePeriod,
		DrainPoll:     DefaultDrainPoll,
		WorkerTimeout: DefaultWorkerTimeout,
		Command:       DefaultCommand(wt),
	}

	durations := []struct {
		key  string
		unit time.Duration
		dst  *time.Duration
	}{
		{KeyDuration, time.Minute, &cfg.Duration},
		{KeyInterval, time.Second, &cfg.Interval},
		{KeyGracePeriod, time.Second, &cfg.GracePeriod},
		{KeyDrainPoll, time.Second, &cfg.DrainPoll},
		{KeyWorkerTimeout, time.Minute, &cfg.WorkerTimeout},
	}
	for _, d := range durations {
		raw, ok := values[d.key]
		if !ok {
			continue
		}
		v, err := parsePositiveDuration(raw, d.unit)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.key, err)
		}
		*d.dst = v
	}

	if raw, ok := values[KeyMaxWorkers]; ok {
		n, err := parsePositiveInt(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, KeyMaxWorkers, err)
		}
		cfg.MaxWorkers = n
	}
	if raw, ok := values[KeyMaxRuns]; ok {
		n, err := parsePositiveInt(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, KeyMaxRuns, err)
		}
		cfg.MaxRuns = n
	}

	if env, ok := values[KeyEnv]; ok {
		env = strings.TrimSpace(env)
		if env == "" {
			return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidConfig, KeyEnv)
		}
		cfg.Environment = env
	}
	if dir, ok := values[KeyResultsDir]; ok && strings.TrimSpace(dir) != "" {
		cfg.ResultsDir = dir
	}
	cfg.SummaryPath = filepath.Join(cfg.ResultsDir, DefaultSummaryFile)
	if path, ok := values[KeySummary]; ok && strings.TrimSpace(path) != "" {
		cfg.SummaryPath = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants a RunConfig must hold.
func (c *RunConfig) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidConfig)
	case c.MaxWorkers < 1:
		return fmt.Errorf("%w: max-workers must be >= 1", ErrInvalidConfig)
	case c.MaxRuns < 0:
		return fmt.Errorf("%w: max-runs must not be negative", ErrInvalidConfig)
	case len(c.Command) == 0:
		return fmt.Errorf("%w: no worker command for type %s", ErrInvalidConfig, c.WorkerType)
	}
	for wt, pct := range c.Thresholds {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: threshold for %s must be between 0 and 100, got %v", ErrInvalidConfig, wt, pct)
		}
	}
	return nil
}

// DefaultCommand is the Playwright invocation used when the config file
// does not name a command for the worker type.
func DefaultCommand(wt core.WorkerType) []string {
	return []string{
		"npx", "playwright", "test",
		fmt.Sprintf("tests/load/%s-worker.spec.ts", wt),
		"--reporter=line",
	}
}

func checkKeys(values map[string]string) error {
	var unknown []string
	for k := range values {
		if !knownKeys[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: unknown option(s) %s", ErrInvalidConfig, strings.Join(unknown, ", "))
}

// parsePositiveDuration accepts either a bare number in the given unit
// ("15", "0.5") or a Go duration string ("90s", "1m30s").
func parsePositiveDuration(raw string, unit time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	var d time.Duration
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		d = time.Duration(f * float64(unit))
	} else {
		d, err = time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %q", raw)
	}
	return d, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

// FileConfig is the optional YAML config file.
type FileConfig struct {
	Defaults   map[string]string       `yaml:"defaults"`
	Workers    map[string]WorkerConfig `yaml:"workers"`
	Thresholds map[string]float64      `yaml:"thresholds"`
	Data       *DataConfig             `yaml:"data,omitempty"`
	HistoryDB  string                  `yaml:"historyDB"`

	dir string
}

// WorkerConfig overrides how workers of one type are launched.
type WorkerConfig struct {
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`
}

// DataConfig points at a CSV or JSON file whose rows are handed to workers.
type DataConfig struct {
	File string `yaml:"file"`
	Mode string `yaml:"mode"`
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: parsing config file: %v", ErrInvalidConfig, err)
	}
	fc.dir = filepath.Dir(path)
	return &fc, nil
}

// Dir returns the directory the config file was loaded from.
func (fc *FileConfig) Dir() string {
	if fc == nil {
		return ""
	}
	return fc.dir
}

// Build resolves flag values on top of the file's defaults and applies the
// file's per-type worker settings and thresholds. fc may be nil.
func Build(values map[string]string, fc *FileConfig) (*RunConfig, error) {
	merged := make(map[string]string, len(values))
	if fc != nil {
		for k, v := range fc.Defaults {
			merged[k] = v
		}
	}
	for k, v := range values {
		merged[k] = v
	}

	cfg, err := Resolve(merged)
	if err != nil || fc == nil {
		return cfg, err
	}

	if wc, ok := fc.Workers[string(cfg.WorkerType)]; ok {
		if len(wc.Command) > 0 {
			cfg.Command = wc.Command
		}
		cfg.WorkerEnv = wc.Env
		cfg.WorkerDir = fc.resolvePath(wc.Dir)
	}

	if len(fc.Thresholds) > 0 {
		cfg.Thresholds = make(map[core.WorkerType]float64, len(fc.Thresholds))
		for name, pct := range fc.Thresholds {
			wt, err := core.ParseWorkerType(name)
			if err != nil {
				return nil, fmt.Errorf("%w: thresholds: %v", ErrInvalidConfig, err)
			}
			cfg.Thresholds[wt] = pct
		}
	}

	if fc.Data != nil && fc.Data.File != "" {
		cfg.Data = &DataConfig{File: fc.resolvePath(fc.Data.File), Mode: fc.Data.Mode}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *FileConfig) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || fc.dir == "" {
		return p
	}
	return filepath.Join(fc.dir, p)
}
