package core

import (
	"sync"
	"time"
)

// Clock provides time operations that can be mocked for testing.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration       { return time.Since(t) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FakeClock is a test clock that can be manually advanced.
// After advances the clock by d and fires once the configured yield has
// passed in real time, which gives worker goroutines a chance to run.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	yield   time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FakeClock) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	f.mu.Unlock()
}

func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

// SetYield sets how long After blocks in real time before firing.
func (f *FakeClock) SetYield(d time.Duration) {
	f.mu.Lock()
	f.yield = d
	f.mu.Unlock()
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.current = f.current.Add(d)
	now, yield := f.current, f.yield
	f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if yield <= 0 {
		ch <- now
		return ch
	}
	time.AfterFunc(yield, func() { ch <- now })
	return ch
}
