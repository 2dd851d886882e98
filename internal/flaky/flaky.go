// Package flaky classifies end-to-end tests across repeated JUnit reports
// as stable, flaky or broken.
package flaky

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/jstemmer/go-junit-report/v2/junit"
)

// DefaultStableThreshold is the pass rate, in percent, a test needs to be stable.
const DefaultStableThreshold = 100.0

// Class is the verdict for one test.
type Class string

const (
	ClassStable  Class = "stable"
	ClassFlaky   Class = "flaky"
	ClassBroken  Class = "broken"
	ClassSkipped Class = "skipped" // never executed in any report
)

// classOrder sorts the most actionable tests first.
var classOrder = map[Class]int{ClassBroken: 0, ClassFlaky: 1, ClassStable: 2, ClassSkipped: 3}

// TestStats is the history of one test across reports.
type TestStats struct {
	Name        string  `json:"name"`
	Classname   string  `json:"classname"`
	Runs        int     `json:"runs"` // executed, skips excluded
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	PassRate    float64 `json:"passRate"`
	Class       Class   `json:"class"`
	LastFailure string  `json:"lastFailure,omitempty"`
}

// Key identifies a test across reports.
func (t *TestStats) Key() string {
	return t.Classname + " › " + t.Name
}

// Report is the result of an analysis.
type Report struct {
	Reports   int          `json:"reports"`
	Threshold float64      `json:"threshold"`
	Tests     []*TestStats `json:"tests"`
	Stable    int          `json:"stable"`
	Flaky     int          `json:"flaky"`
	Broken    int          `json:"broken"`
}

// Analyzer accumulates JUnit reports.
type Analyzer struct {
	reports int
	tests   map[string]*TestStats
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{tests: make(map[string]*TestStats)}
}

// ParseFile reads a JUnit XML report. Both a <testsuites> root and a bare
// <testsuite> root are accepted.
func ParseFile(path string) (junit.Testsuites, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return junit.Testsuites{}, fmt.Errorf("reading report: %w", err)
	}

	var suites junit.Testsuites
	errSuites := xml.Unmarshal(data, &suites)
	if errSuites == nil {
		return suites, nil
	}

	var suite junit.Testsuite
	if err := xml.Unmarshal(data, &suite); err != nil {
		return junit.Testsuites{}, fmt.Errorf("parsing %s: %w", path, errors.Join(errSuites, err))
	}
	suites.AddSuite(suite)
	return suites, nil
}

// AddFile parses and adds one report file.
func (a *Analyzer) AddFile(path string) error {
	suites, err := ParseFile(path)
	if err != nil {
		return err
	}
	a.Add(suites)
	return nil
}

// Add records every testcase of one report as a single run.
func (a *Analyzer) Add(suites junit.Testsuites) {
	a.reports++
	for _, suite := range suites.Suites {
		for _, tc := range suite.Testcases {
			classname := tc.Classname
			if classname == "" {
				classname = suite.Name
			}
			key := classname + " › " + tc.Name
			st, ok := a.tests[key]
			if !ok {
				st = &TestStats{Name: tc.Name, Classname: classname}
				a.tests[key] = st
			}

			switch {
			case tc.Skipped != nil:
				st.Skipped++
			case tc.Failure != nil:
				st.Runs++
				st.Failed++
				st.LastFailure = tc.Failure.Message
			case tc.Error != nil:
				st.Runs++
				st.Failed++
				st.LastFailure = tc.Error.Message
			default:
				st.Runs++
				st.Passed++
			}
		}
	}
}

// Report classifies every test seen so far. A test is stable when its pass
// rate reaches threshold, broken when it never passed, and flaky otherwise.
func (a *Analyzer) Report(threshold float64) *Report {
	r := &Report{Reports: a.reports, Threshold: threshold}
	for _, st := range a.tests {
		s := *st
		if s.Runs > 0 {
			s.PassRate = float64(s.Passed*100) / float64(s.Runs)
		}
		s.Class = classify(&s, threshold)
		switch s.Class {
		case ClassStable:
			r.Stable++
		case ClassFlaky:
			r.Flaky++
		case ClassBroken:
			r.Broken++
		}
		r.Tests = append(r.Tests, &s)
	}

	sort.Slice(r.Tests, func(i, j int) bool {
		a, b := r.Tests[i], r.Tests[j]
		if classOrder[a.Class] != classOrder[b.Class] {
			return classOrder[a.Class] < classOrder[b.Class]
		}
		if a.PassRate != b.PassRate {
			return a.PassRate < b.PassRate
		}
		return a.Key() < b.Key()
	})
	return r
}

func classify(s *TestStats, threshold float64) Class {
	switch {
	case s.Runs == 0:
		return ClassSkipped
	case s.Passed == 0:
		return ClassBroken
	case s.PassRate >= threshold:
		return ClassStable
	default:
		return ClassFlaky
	}
}

// FormatText writes the non-stable tests and a one-line tally.
func FormatText(w io.Writer, r *Report) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	bold.Fprintf(w, "Flaky test analysis (%d reports, stable at %.0f%%)\n\n", r.Reports, r.Threshold)

	for _, t := range r.Tests {
		var c *color.Color
		switch t.Class {
		case ClassBroken:
			c = red
		case ClassFlaky:
			c = yellow
		default:
			continue
		}
		c.Fprintf(w, "  %-7s", t.Class)
		fmt.Fprintf(w, " %5.1f%%  %d/%d  %s\n", t.PassRate, t.Passed, t.Runs, t.Key())
		if t.LastFailure != "" {
			fmt.Fprintf(w, "           last failure: %s\n", t.LastFailure)
		}
	}
	if r.Flaky == 0 && r.Broken == 0 {
		green.Fprintln(w, "  no flaky or broken tests")
	}

	fmt.Fprintf(w, "\nstable: %d  flaky: %d  broken: %d\n", r.Stable, r.Flaky, r.Broken)
}
