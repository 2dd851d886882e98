package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// FormatText writes the summary in human-readable form. Colors follow
// color.NoColor.
func FormatText(w io.Writer, s *Summary) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w, "")
	bold.Fprintln(w, "Load Test Results")
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Test type:      %s\n", s.TestType)
	fmt.Fprintf(w, "Environment:    %s\n", s.Environment)
	fmt.Fprintf(w, "Execution time: %s\n", s.ExecutionTime)
	fmt.Fprintf(w, "Spawned:        %s\n", formatNumber(s.Results.Spawned))

	if s.Results.Total == 0 {
		fmt.Fprintln(w, "")
		yellow.Fprintln(w, "No workers completed")
	} else {
		fmt.Fprintf(w, "Completed:      %s (", formatNumber(s.Results.Total))
		green.Fprintf(w, "%s passed", formatNumber(s.Results.Passed))
		fmt.Fprint(w, ", ")
		if s.Results.Failed > 0 {
			red.Fprintf(w, "%s failed", formatNumber(s.Results.Failed))
		} else {
			fmt.Fprintf(w, "%d failed", s.Results.Failed)
		}
		fmt.Fprintln(w, ")")
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Worker Durations:")
		fmt.Fprintf(w, "  Min:    %s\n", formatMs(s.Timing.Min))
		fmt.Fprintf(w, "  Avg:    %s\n", formatMs(s.Timing.Avg))
		fmt.Fprintf(w, "  P50:    %s\n", formatMs(s.Timing.P50))
		fmt.Fprintf(w, "  P95:    %s\n", formatMs(s.Timing.P95))
		fmt.Fprintf(w, "  Max:    %s\n", formatMs(s.Timing.Max))
	}

	if s.Results.Incomplete > 0 {
		fmt.Fprintln(w, "")
		yellow.Fprintf(w, "Incomplete:     %d (still running when the grace period expired, not counted)\n", s.Results.Incomplete)
	}
	if s.Results.SkippedTicks > 0 {
		fmt.Fprintf(w, "Skipped ticks:  %d (worker cap reached)\n", s.Results.SkippedTicks)
	}

	if failures := failedWorkers(s); len(failures) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Failures:")
		for _, ws := range failures {
			fmt.Fprintf(w, "  %s  exit=%d  %s\n", ws.ID, ws.ExitCode, ws.Error)
		}
	}

	fmt.Fprintln(w, "")
	symbol, c := "✓", green
	if !s.PassedThreshold {
		symbol, c = "✗", red
	}
	c.Fprintf(w, "%s success rate %s%% (threshold %g%%)\n", symbol, s.Results.SuccessRate, s.Threshold)
}

// FormatJSON writes the summary as indented JSON.
func FormatJSON(w io.Writer, s *Summary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s)
}

// FormatMarkdown writes the summary as a GitHub-flavored markdown report.
func FormatMarkdown(w io.Writer, s *Summary) {
	verdict := "PASSED"
	if !s.PassedThreshold {
		verdict = "FAILED"
	}

	fmt.Fprintf(w, "# Load test: %s (%s)\n\n", s.TestType, s.Environment)
	fmt.Fprintf(w, "**%s**: success rate %s%%, threshold %g%%\n\n", verdict, s.Results.SuccessRate, s.Threshold)
	fmt.Fprintf(w, "Started %s, ran for %s.\n\n", s.StartTime.Format("2006-01-02 15:04:05 MST"), s.ExecutionTime)

	fmt.Fprintln(w, "| Metric | Value |")
	fmt.Fprintln(w, "|---|---|")
	fmt.Fprintf(w, "| Spawned | %d |\n", s.Results.Spawned)
	fmt.Fprintf(w, "| Total | %d |\n", s.Results.Total)
	fmt.Fprintf(w, "| Passed | %d |\n", s.Results.Passed)
	fmt.Fprintf(w, "| Failed | %d |\n", s.Results.Failed)
	fmt.Fprintf(w, "| Incomplete | %d |\n", s.Results.Incomplete)
	fmt.Fprintf(w, "| Result files | %d |\n", s.Results.Reported)
	fmt.Fprintf(w, "| Avg duration | %s |\n", formatMs(s.Timing.Avg))
	fmt.Fprintf(w, "| Min duration | %s |\n", formatMs(s.Timing.Min))
	fmt.Fprintf(w, "| Max duration | %s |\n", formatMs(s.Timing.Max))

	if len(s.Workers) == 0 {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "## Workers")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "| Worker | Result | Exit | Duration | Steps | Error |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for _, ws := range s.Workers {
		result := "pass"
		if !ws.Success {
			result = "fail"
		}
		fmt.Fprintf(w, "| %s | %s | %d | %s | %d | %s |\n",
			ws.ID, result, ws.ExitCode, formatMs(ws.DurationMs), len(ws.StepsCompleted), escapeCell(ws.Error))
	}
}

// RenderHTML renders the markdown report as a standalone HTML page.
func RenderHTML(s *Summary) ([]byte, error) {
	var md bytes.Buffer
	FormatMarkdown(&md, s)

	converter := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := converter.Convert(md.Bytes(), &body); err != nil {
		return nil, fmt.Errorf("rendering html summary: %w", err)
	}

	var page bytes.Buffer
	title := html.EscapeString(fmt.Sprintf("Load test: %s (%s)", s.TestType, s.Environment))
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n", title)
	page.WriteString("<style>body{font-family:sans-serif;margin:2em}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}</style>\n")
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

func failedWorkers(s *Summary) []WorkerSummary {
	var out []WorkerSummary
	for _, ws := range s.Workers {
		if !ws.Success {
			out = append(out, ws)
		}
	}
	return out
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}
