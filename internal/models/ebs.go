package models

import "time"

// NameTag is the tag key that correlates a snapshot with its source volume
const NameTag = "Name"

// Volume represents an EBS volume attached to the current instance
type Volume struct {
	VolumeID   string
	DeviceName string
}

// SnapshotState mirrors the EBS snapshot lifecycle states
type SnapshotState string

const (
	SnapshotPending   SnapshotState = "pending"
	SnapshotCompleted SnapshotState = "completed"
	SnapshotError     SnapshotState = "error"
)

// SnapshotInfo represents an EBS snapshot correlated with its volume through the Name tag
type SnapshotInfo struct {
	SnapshotID  string
	VolumeID    string // value of the Name tag, empty when the snapshot cannot be attributed
	Description string
	State       SnapshotState
	StartTime   time.Time
	SizeGB      int
	Region      string
}
