package core

import (
	"testing"
	"time"
)

var clockEpoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	var clock Clock = RealClock{}

	start := clock.Now()
	<-clock.After(10 * time.Millisecond)
	if elapsed := clock.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("After(10ms) fired after %v", elapsed)
	}
}

func TestFakeClock_ManualControl(t *testing.T) {
	clock := NewFakeClock(clockEpoch)
	if !clock.Now().Equal(clockEpoch) || clock.Since(clockEpoch) != 0 {
		t.Fatalf("new clock should start at %v, got %v", clockEpoch, clock.Now())
	}

	clock.Advance(5 * time.Minute)
	if got := clock.Since(clockEpoch); got != 5*time.Minute {
		t.Errorf("after Advance(5m), Since = %v", got)
	}

	later := clockEpoch.Add(48 * time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("after Set, Now = %v, want %v", clock.Now(), later)
	}
}

// A spawn loop waiting 15s per tick sees ticks at 0s, 15s, 30s and 45s of
// a one minute budget.
func TestFakeClock_SpawnTicks(t *testing.T) {
	clock := NewFakeClock(clockEpoch)
	budget, interval := time.Minute, 15*time.Second

	var ticks []time.Duration
	for elapsed := clock.Since(clockEpoch); elapsed < budget; elapsed = clock.Since(clockEpoch) {
		ticks = append(ticks, elapsed)
		fired := <-clock.After(min(interval, budget-elapsed))
		if !fired.Equal(clock.Now()) {
			t.Fatalf("After fired with %v, clock reads %v", fired, clock.Now())
		}
	}

	want := []time.Duration{0, 15 * time.Second, 30 * time.Second, 45 * time.Second}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Errorf("tick %d at %v, want %v", i, ticks[i], want[i])
		}
	}
}

func TestFakeClock_AfterYield(t *testing.T) {
	clock := NewFakeClock(clockEpoch)
	clock.SetYield(20 * time.Millisecond)

	begin := time.Now()
	<-clock.After(time.Hour)
	if real := time.Since(begin); real < 20*time.Millisecond {
		t.Errorf("After with yield returned after %v, expected >= 20ms", real)
	}
	if got := clock.Since(clockEpoch); got != time.Hour {
		t.Errorf("fake time advanced by %v, want 1h", got)
	}
}
