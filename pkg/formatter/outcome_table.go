package formatter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/younsl/snapkeeper/internal/models"
)

// MAX_DETAIL_WIDTH defines the maximum width for the DETAIL column
const MAX_DETAIL_WIDTH = 80

// PrintOutcomesTable prints one row per processed volume
func PrintOutcomesTable(w io.Writer, outcomes []models.Outcome, startTime time.Time, duration time.Duration) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No volumes processed.")
		return
	}

	tw := newTableWriter(w)

	fmt.Fprintln(tw, "VOLUME ID\tOPERATION\tRESULT\tSNAPSHOTS\tATTEMPTS\tDURATION\tDETAIL")

	for _, outcome := range outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			outcome.VolumeID,
			outcome.Operation,
			outcome.Result,
			orNone(strings.Join(outcome.SnapshotIDs, ",")),
			outcome.Attempts,
			outcome.Duration.Round(time.Millisecond),
			orNone(truncate(outcome.Detail(), MAX_DETAIL_WIDTH)),
		)
	}

	tw.Flush()

	printTimestamp(w, startTime, duration)
}

// PrintOutcomesSummary prints how many volumes ended in each result
func PrintOutcomesSummary(w io.Writer, outcomes []models.Outcome) {
	if len(outcomes) == 0 {
		return
	}

	counts := make(map[models.Result]int)
	snapshots := 0
	for _, outcome := range outcomes {
		counts[outcome.Result]++
		snapshots += len(outcome.SnapshotIDs)
	}

	fmt.Fprintln(w, "\n## Summary")

	tw := newTableWriter(w)
	fmt.Fprintln(tw, "SUCCEEDED\tSKIPPED\tFAILED\tSNAPSHOTS")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n",
		counts[models.ResultSucceeded],
		counts[models.ResultSkipped],
		counts[models.ResultFailed],
		snapshots,
	)
	tw.Flush()
}
