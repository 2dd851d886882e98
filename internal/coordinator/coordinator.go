// Package coordinator drives the spawn loop: it launches workers on a fixed
// interval under a concurrency cap, then drains them.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"loadswarm/internal/config"
	"loadswarm/internal/core"
	"loadswarm/internal/data"
)

// capacityLogInterval throttles the "at capacity" message when every tick
// finds the pool full.
const capacityLogInterval = 30 * time.Second

// State is the scheduler's lifecycle phase.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Handle tracks one launched worker. Its result becomes visible once Done
// is closed, which happens exactly once.
type Handle struct {
	ID        string
	StartedAt time.Time

	done   chan struct{}
	result core.WorkerResult
}

func newHandle(id string, startedAt time.Time) *Handle {
	return &Handle{ID: id, StartedAt: startedAt, done: make(chan struct{})}
}

// Done is closed when the worker has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Completed reports whether the worker has finished.
func (h *Handle) Completed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the worker's result and true, or false while it is still running.
func (h *Handle) Result() (core.WorkerResult, bool) {
	if !h.Completed() {
		return core.WorkerResult{}, false
	}
	return h.result, true
}

func (h *Handle) complete(res core.WorkerResult) {
	h.result = res
	close(h.done)
}

// Outcome is what a run produced, frozen at the moment draining ended.
// Workers that finish afterwards do not change it.
type Outcome struct {
	Started      time.Time
	DrainStarted time.Time
	Finished     time.Time

	Spawned      int
	SkippedTicks int

	Completed  []core.WorkerOutcome // in spawn order
	Incomplete []string             // ids still running when the grace period expired
}

// Passed counts completed workers whose launcher reported success.
func (o *Outcome) Passed() int {
	n := 0
	for _, w := range o.Completed {
		if w.Result.Success {
			n++
		}
	}
	return n
}

// Failed counts completed workers that did not succeed.
func (o *Outcome) Failed() int {
	return len(o.Completed) - o.Passed()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock core.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithLogger sets the logger; the default is logrus's standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithData hands one row of src to every spawned worker.
func WithData(src *data.Source) Option {
	return func(c *Coordinator) { c.data = src }
}

// WithIDFunc overrides worker id generation.
func WithIDFunc(fn func(core.WorkerType) string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// Coordinator spawns workers on a fixed interval under a concurrency cap,
// drains them and freezes the outcome. Create one per run.
type Coordinator struct {
	cfg      *config.RunConfig
	launcher core.Launcher
	clock    core.Clock
	log      logrus.FieldLogger
	data     *data.Source
	newID    func(core.WorkerType) string

	mu      sync.Mutex
	handles map[string]*Handle
	order   []string

	wg        sync.WaitGroup
	state     atomic.Int32
	spawned   atomic.Int32
	active    atomic.Int32
	completed atomic.Int32
	passed    atomic.Int32
	skipped   atomic.Int32

	capacityLog rate.Sometimes
}

// New creates a Coordinator for cfg that starts workers through launcher.
func New(cfg *config.RunConfig, launcher core.Launcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:         cfg,
		launcher:    launcher,
		clock:       core.RealClock{},
		log:         logrus.StandardLogger(),
		newID:       core.NewWorkerID,
		handles:     make(map[string]*Handle),
		capacityLog: rate.Sometimes{First: 1, Interval: capacityLogInterval},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run spawns workers until the duration budget is spent, MaxRuns workers
// have completed or ctx is cancelled, then waits up to the grace period for
// in-flight workers. Cancelling ctx stops spawning but never kills workers;
// they are bounded by their own timeout.
func (c *Coordinator) Run(ctx context.Context) *Outcome {
	out := &Outcome{Started: c.clock.Now()}
	c.log.WithFields(logrus.Fields{
		"type":        c.cfg.WorkerType,
		"env":         c.cfg.Environment,
		"duration":    c.cfg.Duration,
		"interval":    c.cfg.Interval,
		"max_workers": c.cfg.MaxWorkers,
		"max_runs":    c.cfg.MaxRuns,
	}).Info("Starting load test")

	c.spawnLoop(ctx, out.Started)

	out.DrainStarted = c.clock.Now()
	c.state.Store(int32(StateDraining))
	c.log.WithField("active", c.active.Load()).Info("Spawning stopped, draining workers")
	c.drain(out.DrainStarted)

	out.Finished = c.clock.Now()
	c.snapshot(out)
	c.state.Store(int32(StateDone))

	if len(out.Incomplete) > 0 {
		c.log.WithFields(logrus.Fields{
			"incomplete": len(out.Incomplete),
			"grace":      c.cfg.GracePeriod,
		}).Warn("Grace period expired, excluding unfinished workers from the summary")
	}
	c.log.WithFields(logrus.Fields{
		"spawned":   out.Spawned,
		"completed": len(out.Completed),
		"passed":    out.Passed(),
		"failed":    out.Failed(),
	}).Info("Load test finished")
	return out
}

func (c *Coordinator) spawnLoop(ctx context.Context, start time.Time) {
	workerCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			c.log.Info("Run cancelled, no more workers will be spawned")
			return
		}
		elapsed := c.clock.Since(start)
		if elapsed >= c.cfg.Duration {
			return
		}
		if c.cfg.MaxRuns > 0 && int(c.completed.Load()) >= c.cfg.MaxRuns {
			c.log.WithField("max_runs", c.cfg.MaxRuns).Info("Reached max completed runs")
			return
		}

		if active := int(c.active.Load()); active < c.cfg.MaxWorkers {
			if err := c.spawn(workerCtx); err != nil {
				c.log.WithError(err).Warn("No more workers will be spawned")
				return
			}
		} else {
			c.skipped.Add(1)
			c.capacityLog.Do(func() {
				c.log.WithField("active", active).Warn("At max concurrent workers, skipping spawn")
			})
		}

		wait := min(c.cfg.Interval, c.cfg.Duration-elapsed)
		select {
		case <-ctx.Done():
		case <-c.clock.After(wait):
		}
	}
}

// spawn starts one worker. It fails only when the data source has no row
// left to give it.
func (c *Coordinator) spawn(ctx context.Context) error {
	var row map[string]any
	if c.data != nil {
		var err error
		if row, err = c.data.Next(); err != nil {
			return err
		}
	}

	h := c.register()
	spec := core.WorkerSpec{
		ID:          h.ID,
		Type:        c.cfg.WorkerType,
		Environment: c.cfg.Environment,
		ResultsDir:  c.cfg.ResultsDir,
		Data:        row,
	}

	c.spawned.Add(1)
	c.active.Add(1)
	c.wg.Add(1)
	c.log.WithField("worker", h.ID).Debug("Spawning worker")

	go func() {
		defer c.wg.Done()
		res := c.launch(ctx, spec)

		// Counters first, so Stats agrees with the handles once Done is closed.
		if res.Success {
			c.passed.Add(1)
		}
		c.completed.Add(1)
		c.active.Add(-1)
		h.complete(res)

		c.log.WithFields(logrus.Fields{
			"worker":    h.ID,
			"success":   res.Success,
			"exit_code": res.ExitCode,
			"duration":  res.Duration.Round(time.Millisecond),
		}).Info("Worker finished")
	}()
	return nil
}

// register creates a handle under a fresh id.
func (c *Coordinator) register() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.newID(c.cfg.WorkerType)
	id := base
	for n := 1; c.handles[id] != nil; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	h := newHandle(id, c.clock.Now())
	c.handles[id] = h
	c.order = append(c.order, id)
	return h
}

func (c *Coordinator) launch(ctx context.Context, spec core.WorkerSpec) (res core.WorkerResult) {
	defer c.recoverPanic(spec.ID, &res)
	return c.launcher.Launch(ctx, spec)
}

// recoverPanic recovers from a panicking launcher and records a failed result.
func (c *Coordinator) recoverPanic(workerID string, res *core.WorkerResult) {
	if r := recover(); r != nil {
		*res = core.WorkerResult{ExitCode: -1, Error: fmt.Sprintf("panic: %v", r)}
		c.log.WithField("worker", workerID).Errorf("Launcher panicked: %v", r)
	}
}

func (c *Coordinator) drain(start time.Time) {
	deadline := start.Add(c.cfg.GracePeriod)
	for {
		pending := c.pending()
		if pending == 0 {
			return
		}
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return
		}
		c.log.WithFields(logrus.Fields{
			"pending":   pending,
			"remaining": remaining.Round(time.Second),
		}).Debug("Waiting for workers")
		<-c.clock.After(min(c.cfg.DrainPoll, remaining))
	}
}

func (c *Coordinator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, h := range c.handles {
		if !h.Completed() {
			n++
		}
	}
	return n
}

func (c *Coordinator) snapshot(out *Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out.Spawned = len(c.order)
	out.SkippedTicks = int(c.skipped.Load())
	for _, id := range c.order {
		h := c.handles[id]
		res, ok := h.Result()
		if !ok {
			out.Incomplete = append(out.Incomplete, id)
			continue
		}
		out.Completed = append(out.Completed, core.WorkerOutcome{ID: id, StartedAt: h.StartedAt, Result: res})
	}
}

// Handle returns the handle for a worker id.
func (c *Coordinator) Handle(id string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	return h, ok
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Stats implements progress.StatsSource.
func (c *Coordinator) Stats() core.Stats {
	completed := int(c.completed.Load())
	passed := int(c.passed.Load())
	return core.Stats{
		Spawned:   int(c.spawned.Load()),
		Active:    int(c.active.Load()),
		Completed: completed,
		Passed:    passed,
		Failed:    completed - passed,
		Skipped:   int(c.skipped.Load()),
		Draining:  c.State() != StateRunning,
	}
}

// Wait blocks until every launched worker goroutine has returned,
// including those left behind by an expired grace period.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
