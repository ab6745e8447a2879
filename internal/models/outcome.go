package models

import "time"

// Operation names a lifecycle operation
type Operation string

const (
	OperationCreate Operation = "create"
	OperationPurge  Operation = "purge"
	OperationCopy   Operation = "copy"
)

// Result is the per-volume result of an operation
type Result string

const (
	ResultSucceeded Result = "succeeded"
	ResultSkipped   Result = "skipped"
	ResultFailed    Result = "failed"
)

// Outcome records what happened to a single volume during a batch
type Outcome struct {
	VolumeID    string
	Operation   Operation
	Result      Result
	SnapshotIDs []string
	Attempts    int
	Err         error
	Duration    time.Duration
}

// Detail returns the error text of a failed or skipped outcome
func (o Outcome) Detail() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
