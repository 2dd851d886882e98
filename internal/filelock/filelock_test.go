package filelock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireRunLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")

	lock, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("AcquireRunLock: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(lock.Path()); err != nil {
		t.Errorf("expected lock file at %s: %v", lock.Path(), err)
	}
	if filepath.Base(lock.Path()) != LockFileName {
		t.Errorf("expected lock file name %s, got %s", LockFileName, filepath.Base(lock.Path()))
	}
}

func TestAcquireRunLock_HeldElsewhere(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("first AcquireRunLock: %v", err)
	}

	// flock locks belong to the open file description, so a second
	// descriptor in the same process contends like another process would.
	_, err = AcquireRunLock(dir)
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("expected lock to be free after release: %v", err)
	}
	second.Release()
}

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "summary.json")

	if err := AtomicWrite(path, []byte(`{"total":1}`)); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	if err := AtomicWrite(path, []byte(`{"total":2}`)); err != nil {
		t.Fatalf("AtomicWrite overwrite: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"total":2}` {
		t.Errorf("expected overwritten content, got %s", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0644 {
		t.Errorf("expected 0644, got %v", info.Mode().Perm())
	}
}

func TestAtomicWrite_UnwritableDir(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	os.WriteFile(parent, []byte("x"), 0644)

	if err := AtomicWrite(filepath.Join(parent, "summary.json"), []byte("{}")); err == nil {
		t.Error("expected error when parent is a regular file")
	}
}

func TestAtomicWrite_FailedRenameLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "summary.json")
	if err := os.MkdirAll(filepath.Join(target, "occupied"), 0755); err != nil {
		t.Fatal(err)
	}

	err := AtomicWrite(target, []byte("{}"))
	if err == nil {
		t.Fatal("expected error when a directory sits at the target path")
	}
	if !strings.Contains(err.Error(), "failed to replace") {
		t.Errorf("expected rename failure, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
