// Package data hands rows from a CSV or JSON fixture file to workers, one
// row per worker, e.g. a pool of applicant identities.
package data

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrExhausted is returned by Next in ModeUnique once every row was used.
var ErrExhausted = errors.New("data rows exhausted")

// Mode selects which row the next worker receives.
type Mode string

const (
	// ModeSequential hands rows out in file order, wrapping around.
	ModeSequential Mode = "sequential"
	// ModeRandom picks any row each time.
	ModeRandom Mode = "random"
	// ModeUnique hands out each row at most once, for fixtures the
	// application under test refuses to see twice.
	ModeUnique Mode = "unique"
)

// ParseMode validates a mode name; empty means sequential.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return ModeSequential, nil
	case ModeSequential, ModeRandom, ModeUnique:
		return m, nil
	}
	return "", fmt.Errorf("unknown data mode %q (use sequential, random or unique)", s)
}

// Source is a set of rows shared by all workers of a run. Safe for
// concurrent use.
type Source struct {
	mode Mode

	mu   sync.Mutex
	rows []map[string]any
	next int
	rng  *rand.Rand
}

// NewSource wraps already loaded rows.
func NewSource(rows []map[string]any, mode Mode) *Source {
	if mode == "" {
		mode = ModeSequential
	}
	return &Source{
		rows: rows,
		mode: mode,
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}
}

// Len returns the number of rows loaded.
func (s *Source) Len() int {
	return len(s.rows)
}

// Remaining returns how many rows ModeUnique can still hand out. Other
// modes never run out and report Len.
func (s *Source) Remaining() int {
	if s.mode != ModeUnique {
		return len(s.rows)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows) - s.next
}

// Next returns a copy of the row for the next worker.
func (s *Source) Next() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rows) == 0 {
		return nil, ErrExhausted
	}

	var idx int
	switch s.mode {
	case ModeRandom:
		idx = s.rng.Intn(len(s.rows))
	case ModeUnique:
		if s.next >= len(s.rows) {
			return nil, ErrExhausted
		}
		idx = s.next
		s.next++
	default:
		idx = s.next % len(s.rows)
		s.next++
	}

	row := make(map[string]any, len(s.rows[idx]))
	for k, v := range s.rows[idx] {
		row[k] = v
	}
	return row, nil
}

// LoadFile reads a .csv or .json fixture file.
func LoadFile(path string, mode Mode) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	var rows []map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = readCSV(f)
	case ".json":
		rows, err = readJSON(f)
	default:
		return nil, fmt.Errorf("unsupported data file format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("data file %s has no rows", path)
	}
	return NewSource(rows, mode), nil
}

// readCSV treats the first record as the header. Short records are padded
// with empty strings; blank header cells are rejected.
func readCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			return nil, fmt.Errorf("column %d has an empty header", i+1)
		}
	}

	var rows []map[string]any
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(header))
		for i, h := range header {
			row[h] = ""
			if i < len(record) {
				row[h] = record[i]
			}
		}
		rows = append(rows, row)
	}
}

func readJSON(r io.Reader) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("expected an array of objects: %w", err)
	}
	return rows, nil
}
