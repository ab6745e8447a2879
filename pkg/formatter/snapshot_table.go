package formatter

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/younsl/snapkeeper/internal/models"
	"github.com/younsl/snapkeeper/pkg/utils"
)

// SnapshotRow is a snapshot as shown by the list command
type SnapshotRow struct {
	Snapshot models.SnapshotInfo
	Expired  bool
	Err      error
	VolumeID string
}

// PrintSnapshotsTable prints completed snapshots, newest first within each volume.
// Rows with Err set are printed as a single error line for their volume.
func PrintSnapshotsTable(w io.Writer, rows []SnapshotRow, now time.Time) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No completed snapshots found.")
		return
	}

	tw := newTableWriter(w)

	fmt.Fprintln(tw, "VOLUME ID\tSNAPSHOT ID\tSTARTED\tAGE\tDAYS\tSIZE\tRETENTION")

	var totalSize uint64
	expired := 0
	for _, row := range rows {
		if row.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\terror: %s\n", row.VolumeID, truncate(row.Err.Error(), MAX_DETAIL_WIDTH))
			continue
		}
		if row.Snapshot.SnapshotID == "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\tno snapshots\n", row.VolumeID)
			continue
		}

		retention := "keep"
		if row.Expired {
			retention = "purge"
			expired++
		}

		size := uint64(row.Snapshot.SizeGB) * humanize.GiByte
		totalSize += size

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			row.VolumeID,
			row.Snapshot.SnapshotID,
			row.Snapshot.StartTime.Format("2006-01-02 15:04:05"),
			humanize.RelTime(row.Snapshot.StartTime, now, "ago", "from now"),
			utils.CalculateElapsedDays(row.Snapshot.StartTime, now),
			humanize.IBytes(size),
			retention,
		)
	}

	fmt.Fprintf(tw, "Total:\t\t\t\t\t%s\t%d to purge\n", humanize.IBytes(totalSize), expired)

	tw.Flush()
}
