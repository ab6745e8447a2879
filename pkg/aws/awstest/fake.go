// Package awstest provides in-memory fakes of the EC2 and instance metadata APIs.
package awstest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// Call records a single mutating API call
type Call struct {
	Op         string
	ResourceID string
}

// EC2 is an in-memory EC2 API for a single region.
//
// Errors are injected through Errs, keyed either by operation ("DeleteSnapshot") or by
// operation and resource ("DeleteSnapshot:snap-1"), and through FailN which fails the
// next N calls of an operation.
type EC2 struct {
	Region    string
	Instances map[string][]string
	Snapshots []types.Snapshot
	Tags      map[string]map[string]string
	Errs      map[string]error
	FailN     map[string]int
	Now       func() time.Time

	Calls             []Call
	SnapshotQueries   []*ec2.DescribeSnapshotsInput
	CopyInputs        []*ec2.CopySnapshotInput
	CreateInputs      []*ec2.CreateSnapshotInput
	DescribeTagsCalls int

	nextID int
}

// NewEC2 creates an empty fake for region
func NewEC2(region string) *EC2 {
	return &EC2{
		Region:    region,
		Instances: make(map[string][]string),
		Tags:      make(map[string]map[string]string),
		Errs:      make(map[string]error),
		FailN:     make(map[string]int),
		Now:       time.Now,
	}
}

// APIError returns a provider error with the given code
func APIError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code + " (fake)", Fault: smithy.FaultServer}
}

// AttachVolumes maps volume ids to an instance
func (f *EC2) AttachVolumes(instanceID string, volumeIDs ...string) {
	f.Instances[instanceID] = append(f.Instances[instanceID], volumeIDs...)
}

// SetTag sets a tag on any resource
func (f *EC2) SetTag(resourceID, key, value string) {
	if f.Tags[resourceID] == nil {
		f.Tags[resourceID] = make(map[string]string)
	}
	f.Tags[resourceID][key] = value
}

// AddSnapshot seeds a snapshot. A non-empty name becomes its Name tag.
func (f *EC2) AddSnapshot(id, name string, state types.SnapshotState, start time.Time) {
	f.Snapshots = append(f.Snapshots, types.Snapshot{
		SnapshotId: aws.String(id),
		State:      state,
		StartTime:  aws.Time(start),
		VolumeSize: aws.Int32(8),
	})
	if name != "" {
		f.SetTag(id, "Name", name)
	}
}

// Deleted returns the ids of deleted snapshots in call order
func (f *EC2) Deleted() []string {
	return f.callsFor("DeleteSnapshot")
}

// CallCount returns how many times op was invoked
func (f *EC2) CallCount(op string) int {
	count := 0
	for _, call := range f.Calls {
		if call.Op == op {
			count++
		}
	}
	return count
}

func (f *EC2) callsFor(op string) []string {
	var ids []string
	for _, call := range f.Calls {
		if call.Op == op {
			ids = append(ids, call.ResourceID)
		}
	}
	return ids
}

func (f *EC2) errFor(op, resourceID string) error {
	if err, ok := f.Errs[op+":"+resourceID]; ok {
		return err
	}
	if err, ok := f.Errs[op]; ok {
		return err
	}
	if f.FailN[op] > 0 {
		f.FailN[op]--
		return APIError("RequestLimitExceeded")
	}
	return nil
}

func (f *EC2) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%s-%04d", prefix, f.Region, f.nextID)
}

func (f *EC2) tagsOf(resourceID string) []types.Tag {
	keys := make([]string, 0, len(f.Tags[resourceID]))
	for key := range f.Tags[resourceID] {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tags := make([]types.Tag, 0, len(keys))
	for _, key := range keys {
		tags = append(tags, types.Tag{Key: aws.String(key), Value: aws.String(f.Tags[resourceID][key])})
	}
	return tags
}

func (f *EC2) DescribeInstances(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	out := &ec2.DescribeInstancesOutput{}
	for _, id := range params.InstanceIds {
		f.Calls = append(f.Calls, Call{Op: "DescribeInstances", ResourceID: id})
		if err := f.errFor("DescribeInstances", id); err != nil {
			return nil, err
		}
		volumeIDs, ok := f.Instances[id]
		if !ok {
			continue
		}
		instance := types.Instance{InstanceId: aws.String(id)}
		for i, volumeID := range volumeIDs {
			instance.BlockDeviceMappings = append(instance.BlockDeviceMappings, types.InstanceBlockDeviceMapping{
				DeviceName: aws.String(fmt.Sprintf("/dev/xvd%c", 'a'+i)),
				Ebs:        &types.EbsInstanceBlockDevice{VolumeId: aws.String(volumeID)},
			})
		}
		out.Reservations = append(out.Reservations, types.Reservation{Instances: []types.Instance{instance}})
	}
	return out, nil
}

func (f *EC2) DescribeSnapshots(_ context.Context, params *ec2.DescribeSnapshotsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
	f.SnapshotQueries = append(f.SnapshotQueries, params)
	if err := f.errFor("DescribeSnapshots", ""); err != nil {
		return nil, err
	}

	out := &ec2.DescribeSnapshotsOutput{}
	for _, snapshot := range f.Snapshots {
		snapshot.Tags = f.tagsOf(aws.ToString(snapshot.SnapshotId))
		if f.matches(snapshot, params.Filters) {
			out.Snapshots = append(out.Snapshots, snapshot)
		}
	}
	return out, nil
}

func (f *EC2) matches(snapshot types.Snapshot, filters []types.Filter) bool {
	for _, filter := range filters {
		var actual string
		name := aws.ToString(filter.Name)
		switch {
		case name == "status":
			actual = string(snapshot.State)
		case strings.HasPrefix(name, "tag:"):
			actual = f.Tags[aws.ToString(snapshot.SnapshotId)][strings.TrimPrefix(name, "tag:")]
		default:
			continue
		}
		if !contains(filter.Values, actual) {
			return false
		}
	}
	return true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func (f *EC2) DescribeTags(_ context.Context, params *ec2.DescribeTagsInput, _ ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error) {
	f.DescribeTagsCalls++
	out := &ec2.DescribeTagsOutput{}
	for _, filter := range params.Filters {
		if aws.ToString(filter.Name) != "resource-id" {
			continue
		}
		for _, resourceID := range filter.Values {
			if err := f.errFor("DescribeTags", resourceID); err != nil {
				return nil, err
			}
			for _, tag := range f.tagsOf(resourceID) {
				out.Tags = append(out.Tags, types.TagDescription{
					Key:        tag.Key,
					Value:      tag.Value,
					ResourceId: aws.String(resourceID),
				})
			}
		}
	}
	return out, nil
}

func (f *EC2) CreateSnapshot(_ context.Context, params *ec2.CreateSnapshotInput, _ ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error) {
	volumeID := aws.ToString(params.VolumeId)
	f.CreateInputs = append(f.CreateInputs, params)
	f.Calls = append(f.Calls, Call{Op: "CreateSnapshot", ResourceID: volumeID})
	if err := f.errFor("CreateSnapshot", volumeID); err != nil {
		return nil, err
	}

	id := f.newID("snap")
	f.Snapshots = append(f.Snapshots, types.Snapshot{
		SnapshotId:  aws.String(id),
		VolumeId:    params.VolumeId,
		Description: params.Description,
		State:       types.SnapshotStatePending,
		StartTime:   aws.Time(f.Now()),
	})
	return &ec2.CreateSnapshotOutput{SnapshotId: aws.String(id), VolumeId: params.VolumeId}, nil
}

func (f *EC2) CreateTags(_ context.Context, params *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	for _, resourceID := range params.Resources {
		f.Calls = append(f.Calls, Call{Op: "CreateTags", ResourceID: resourceID})
		if err := f.errFor("CreateTags", resourceID); err != nil {
			return nil, err
		}
		for _, tag := range params.Tags {
			f.SetTag(resourceID, aws.ToString(tag.Key), aws.ToString(tag.Value))
		}
	}
	return &ec2.CreateTagsOutput{}, nil
}

func (f *EC2) DeleteSnapshot(_ context.Context, params *ec2.DeleteSnapshotInput, _ ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error) {
	id := aws.ToString(params.SnapshotId)
	f.Calls = append(f.Calls, Call{Op: "DeleteSnapshot", ResourceID: id})
	if err := f.errFor("DeleteSnapshot", id); err != nil {
		return nil, err
	}

	for i, snapshot := range f.Snapshots {
		if aws.ToString(snapshot.SnapshotId) == id {
			f.Snapshots = append(f.Snapshots[:i], f.Snapshots[i+1:]...)
			delete(f.Tags, id)
			return &ec2.DeleteSnapshotOutput{}, nil
		}
	}
	return nil, APIError("InvalidSnapshot.NotFound")
}

func (f *EC2) CopySnapshot(_ context.Context, params *ec2.CopySnapshotInput, _ ...func(*ec2.Options)) (*ec2.CopySnapshotOutput, error) {
	sourceID := aws.ToString(params.SourceSnapshotId)
	f.CopyInputs = append(f.CopyInputs, params)
	f.Calls = append(f.Calls, Call{Op: "CopySnapshot", ResourceID: sourceID})
	if err := f.errFor("CopySnapshot", sourceID); err != nil {
		return nil, err
	}

	id := f.newID("snap")
	f.Snapshots = append(f.Snapshots, types.Snapshot{
		SnapshotId:  aws.String(id),
		Description: params.Description,
		State:       types.SnapshotStatePending,
		StartTime:   aws.Time(f.Now()),
	})
	return &ec2.CopySnapshotOutput{SnapshotId: aws.String(id)}, nil
}

// Metadata is an in-memory instance metadata service
type Metadata struct {
	Values map[string]string
	Err    error
	Paths  []string
}

// NewMetadata returns a metadata fake describing instanceID in availabilityZone
func NewMetadata(instanceID, availabilityZone string) *Metadata {
	return &Metadata{
		Values: map[string]string{
			"instance-id":                 instanceID,
			"placement/availability-zone": availabilityZone,
		},
	}
}

func (m *Metadata) GetMetadata(ctx context.Context, params *imds.GetMetadataInput, _ ...func(*imds.Options)) (*imds.GetMetadataOutput, error) {
	m.Paths = append(m.Paths, params.Path)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, ok := m.Values[params.Path]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: params.Path + " not found"}
	}
	return &imds.GetMetadataOutput{Content: io.NopCloser(strings.NewReader(value))}, nil
}
