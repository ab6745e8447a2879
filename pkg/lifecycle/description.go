package lifecycle

import (
	"fmt"
	"time"

	"github.com/younsl/snapkeeper/pkg/utils"
)

// SnapshotDescription is the description of a snapshot taken of a named volume
func SnapshotDescription(name, volumeID string, at time.Time) string {
	return fmt.Sprintf("%s snapshot of %s at %s", name, volumeID, utils.FormatSnapshotTime(at))
}

// CopyDescription is the description of a disaster recovery copy
func CopyDescription(snapshotID, sourceRegion, volumeID string, at time.Time) string {
	return fmt.Sprintf("[Copied %s from %s] %s-%s", snapshotID, sourceRegion, volumeID, utils.FormatSnapshotDate(at))
}
