package lifecycle

import (
	"sort"

	"github.com/younsl/snapkeeper/internal/models"
)

// SortOldestFirst returns a copy of snapshots ordered by start time ascending.
// Snapshots with equal start times keep their listing order.
func SortOldestFirst(snapshots []models.SnapshotInfo) []models.SnapshotInfo {
	sorted := make([]models.SnapshotInfo, len(snapshots))
	copy(sorted, snapshots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})
	return sorted
}

// SelectExpired returns the snapshots the policy no longer retains, oldest first
func SelectExpired(snapshots []models.SnapshotInfo, policy models.RetentionPolicy) []models.SnapshotInfo {
	sorted := SortOldestFirst(snapshots)
	return sorted[:policy.Excess(len(sorted))]
}

// Latest returns the snapshot with the greatest start time. On ties the first
// listed snapshot wins. ok is false for an empty slice.
func Latest(snapshots []models.SnapshotInfo) (latest models.SnapshotInfo, ok bool) {
	for i, snapshot := range snapshots {
		if i == 0 || snapshot.StartTime.After(latest.StartTime) {
			latest = snapshot
		}
	}
	return latest, len(snapshots) > 0
}
