package formatter

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// newTableWriter returns a kubectl style tabwriter
func newTableWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

// printTimestamp prints the run timestamp and duration
func printTimestamp(w io.Writer, startTime time.Time, duration time.Duration) {
	// Format the run time
	timeStr := startTime.Format("2006-01-02 15:04:05")

	// Format the duration
	durationStr := fmt.Sprintf("%.2fs", duration.Seconds())

	fmt.Fprintf(w, "Run completed at %s (took %s)\n", timeStr, durationStr)
}

// orNone replaces an empty cell
func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
