package models

import "fmt"

// DefaultKeep is the number of snapshots retained per volume when nothing else is configured
const DefaultKeep = 14

// RetentionPolicy keeps the Keep most recent completed snapshots of every volume
type RetentionPolicy struct {
	Keep int
}

// NewRetentionPolicy validates keep and returns the policy
func NewRetentionPolicy(keep int) (RetentionPolicy, error) {
	if keep < 0 {
		return RetentionPolicy{}, fmt.Errorf("keep must be zero or greater, got %d", keep)
	}
	return RetentionPolicy{Keep: keep}, nil
}

// Excess returns how many snapshots exceed the policy, never less than zero
func (p RetentionPolicy) Excess(count int) int {
	if count <= p.Keep {
		return 0
	}
	return count - p.Keep
}

// CopyRequest describes a disaster recovery copy of a volume's latest snapshot
type CopyRequest struct {
	VolumeID          string
	SourceRegion      string
	DestinationRegion string
}
