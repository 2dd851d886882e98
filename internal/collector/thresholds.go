package collector

import (
	"fmt"
	"time"

	"loadswarm/internal/core"
)

// DefaultThresholds is the minimum success rate, in percent, each scenario
// must reach. Identity verification depends on document OCR and gets the
// lowest bar.
var DefaultThresholds = map[core.WorkerType]float64{
	core.WorkerSession:   90,
	core.WorkerIdentity:  70,
	core.WorkerFinancial: 80,
}

// Threshold returns the pass mark for wt, preferring overrides.
func Threshold(wt core.WorkerType, overrides map[core.WorkerType]float64) float64 {
	if pct, ok := overrides[wt]; ok {
		return pct
	}
	return DefaultThresholds[wt]
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func formatMs(ms int64) string {
	return FormatDuration(time.Duration(ms) * time.Millisecond)
}
