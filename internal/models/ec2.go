package models

// Instance identifies the EC2 instance the tool runs on
type Instance struct {
	InstanceID       string
	Region           string
	AvailabilityZone string
}
