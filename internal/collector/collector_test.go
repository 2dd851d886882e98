package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func writeResult(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func validResult(id string) string {
	return fmt.Sprintf(`{"workerId":%q,"type":"session","duration":2100,"status":"passed","stepsCompleted":["create-session","verify-email"],"errors":[]}`, id)
}

func TestCollect_ParsesResultFiles(t *testing.T) {
	dir := t.TempDir()
	writeResult(t, dir, "worker-b.json", validResult("b"))
	writeResult(t, dir, "worker-a.json", validResult("a"))
	writeResult(t, dir, "summary.json", `{"results":{}}`)
	writeResult(t, dir, "worker-c.txt", "not a result")
	os.Mkdir(filepath.Join(dir, "worker-dir.json"), 0755)

	log, _ := test.NewNullLogger()
	records, err := Collect(context.Background(), dir, log)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].WorkerID != "a" || records[1].WorkerID != "b" {
		t.Errorf("expected records sorted by worker id, got %s, %s", records[0].WorkerID, records[1].WorkerID)
	}
	if records[0].Duration != 2100 || len(records[0].StepsCompleted) != 2 {
		t.Errorf("unexpected record %+v", records[0])
	}
}

func TestCollect_CorruptFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("session-%d", i)
		writeResult(t, dir, ResultFileName(id), validResult(id))
	}

	log, hook := test.NewNullLogger()
	before, err := Collect(context.Background(), dir, log)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	writeResult(t, dir, "worker-truncated.json", `{"workerId":"truncated","status":`)
	after, err := Collect(context.Background(), dir, log)
	if err != nil {
		t.Fatalf("Collect with corrupt file: %v", err)
	}

	if len(after) != len(before) {
		t.Errorf("expected corrupt file to be excluded, got %d records vs %d", len(after), len(before))
	}

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["file"] == "worker-truncated.json" {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a warning naming the corrupt file")
	}
}

func TestCollect_MissingWorkerIDFallsBackToFileName(t *testing.T) {
	dir := t.TempDir()
	writeResult(t, dir, "worker-financial-1-abc.json", `{"status":"failed","errors":["bank link timed out"]}`)

	log, _ := test.NewNullLogger()
	records, err := Collect(context.Background(), dir, log)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 1 || records[0].WorkerID != "financial-1-abc" {
		t.Errorf("expected worker id from file name, got %+v", records)
	}
}

func TestCollect_MissingDirectory(t *testing.T) {
	log, _ := test.NewNullLogger()
	if _, err := Collect(context.Background(), filepath.Join(t.TempDir(), "missing"), log); err == nil {
		t.Error("expected error for missing results directory")
	}
}

func TestCollect_ManyFiles(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("identity-%03d", i)
		writeResult(t, dir, ResultFileName(id), validResult(id))
	}

	log, _ := test.NewNullLogger()
	records, err := Collect(context.Background(), dir, log)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 100 {
		t.Errorf("expected 100 records, got %d", len(records))
	}
}

func TestResetResultsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")

	if n, err := ResetResultsDir(dir); err != nil || n != 0 {
		t.Fatalf("ResetResultsDir on new dir = %d, %v", n, err)
	}

	writeResult(t, dir, "worker-old-1.json", validResult("old-1"))
	writeResult(t, dir, "worker-old-2.json", validResult("old-2"))
	writeResult(t, dir, "notes.txt", "keep me")

	n, err := ResetResultsDir(dir)
	if err != nil {
		t.Fatalf("ResetResultsDir: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 stale files removed, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("unrelated files should be kept")
	}

	log, _ := test.NewNullLogger()
	if records, _ := Collect(context.Background(), dir, log); len(records) != 0 {
		t.Errorf("expected no records after reset, got %d", len(records))
	}
}
