package utils

import (
	"time"
)

const (
	// SnapshotTimeLayout is the day-first timestamp embedded in snapshot descriptions
	SnapshotTimeLayout = "02-01-2006 15:04:05"
	// SnapshotDateLayout is the day-first date embedded in copied snapshot descriptions
	SnapshotDateLayout = "02-01-2006"
)

// FormatSnapshotTime formats t for a snapshot description
func FormatSnapshotTime(t time.Time) string {
	return t.Format(SnapshotTimeLayout)
}

// FormatSnapshotDate formats the date part of t for a copied snapshot description
func FormatSnapshotDate(t time.Time) string {
	return t.Format(SnapshotDateLayout)
}

// CalculateElapsedDays calculates the number of whole days between since and now
func CalculateElapsedDays(since, now time.Time) int {
	return int(now.Sub(since).Hours() / 24)
}
