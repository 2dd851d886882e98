package core

import (
	"bytes"
	"context"
	"sync"
)

// SyncBuffer is an io.Writer that is safe to write from several goroutines,
// for capturing progress and log output in tests.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// RecordingLauncher returns Result for every launch and remembers the
// specs it was given.
type RecordingLauncher struct {
	Result WorkerResult

	mu    sync.Mutex
	specs []WorkerSpec
}

func (l *RecordingLauncher) Launch(ctx context.Context, spec WorkerSpec) WorkerResult {
	l.mu.Lock()
	l.specs = append(l.specs, spec)
	l.mu.Unlock()
	return l.Result
}

// Specs returns the launched specs in launch order.
func (l *RecordingLauncher) Specs() []WorkerSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]WorkerSpec(nil), l.specs...)
}
