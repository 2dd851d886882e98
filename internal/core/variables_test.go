package core

import (
	"context"
	"regexp"
	"testing"
)

func TestMapVariables(t *testing.T) {
	vars := NewVariables()
	vars.Set("key", "value")
	val, ok := vars.Get("key")
	if !ok || val != "value" {
		t.Errorf("expected 'value', got %v", val)
	}
	_, ok = vars.Get("missing")
	if ok {
		t.Error("expected not found")
	}
}

func TestWorkerVariables(t *testing.T) {
	spec := WorkerSpec{
		ID:          "session-1-abcd1234",
		Type:        WorkerSession,
		Environment: "staging",
		ResultsDir:  "/tmp/results",
		Data:        map[string]any{"email": "a@example.com"},
	}
	vars := WorkerVariables(spec)

	expected := map[string]any{
		"workerId":   "session-1-abcd1234",
		"type":       "session",
		"env":        "staging",
		"resultsDir": "/tmp/results",
		"data.email": "a@example.com",
	}
	for key, want := range expected {
		got, ok := vars.Get(key)
		if !ok || got != want {
			t.Errorf("%s: expected %v, got %v", key, want, got)
		}
	}
}

func TestParseWorkerType(t *testing.T) {
	for _, input := range []string{"session", "IDENTITY", " financial "} {
		if _, err := ParseWorkerType(input); err != nil {
			t.Errorf("ParseWorkerType(%q): unexpected error %v", input, err)
		}
	}
	if _, err := ParseWorkerType("payroll"); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := ParseWorkerType(""); err == nil {
		t.Error("expected error for empty type")
	}
}

func TestNewWorkerID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^identity-\d+-[0-9a-f]{8}$`)
	id := NewWorkerID(WorkerIdentity)
	if !pattern.MatchString(id) {
		t.Errorf("unexpected worker id format: %q", id)
	}
}

func TestNewWorkerID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewWorkerID(WorkerSession)
		if seen[id] {
			t.Fatalf("duplicate worker id %q after %d ids", id, i)
		}
		seen[id] = true
	}
}

func TestLauncherFunc(t *testing.T) {
	var got WorkerSpec
	l := LauncherFunc(func(_ context.Context, spec WorkerSpec) WorkerResult {
		got = spec
		return WorkerResult{Success: true}
	})
	res := l.Launch(context.Background(), WorkerSpec{ID: "w1"})
	if !res.Success || got.ID != "w1" {
		t.Errorf("LauncherFunc did not forward call: %+v %+v", res, got)
	}
}
