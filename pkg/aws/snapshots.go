package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/younsl/snapkeeper/internal/models"
	"github.com/younsl/snapkeeper/pkg/utils"
)

// GetCompletedSnapshots returns the completed snapshots owned by this account whose
// Name tag equals volumeID, in the order the API listed them.
func (c *Client) GetCompletedSnapshots(ctx context.Context, volumeID string) ([]models.SnapshotInfo, error) {
	// Each criterion needs its own filter, a single filter with both would only match the last one
	filters := []types.Filter{
		{
			Name:   aws.String("status"),
			Values: []string{string(types.SnapshotStateCompleted)},
		},
		{
			Name:   aws.String("tag:" + models.NameTag),
			Values: []string{volumeID},
		},
	}

	input := &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters:  filters,
	}

	snapshots := []models.SnapshotInfo{}

	paginator := ec2.NewDescribeSnapshotsPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapClientError("DescribeSnapshots", err)
		}

		for _, snapshot := range page.Snapshots {
			// Snapshots that cannot be attributed to the volume never take part in lifecycle decisions
			if snapshot.State != types.SnapshotStateCompleted ||
				!utils.HasTagWithValue(snapshot.Tags, models.NameTag, volumeID) {
				continue
			}
			snapshots = append(snapshots, c.toSnapshotInfo(snapshot))
		}
	}

	return snapshots, nil
}

func (c *Client) toSnapshotInfo(snapshot types.Snapshot) models.SnapshotInfo {
	info := models.SnapshotInfo{
		SnapshotID:  aws.ToString(snapshot.SnapshotId),
		VolumeID:    utils.GetName(snapshot.Tags),
		Description: aws.ToString(snapshot.Description),
		State:       models.SnapshotState(snapshot.State),
		SizeGB:      int(aws.ToInt32(snapshot.VolumeSize)),
		Region:      c.region,
	}
	if snapshot.StartTime != nil {
		info.StartTime = *snapshot.StartTime
	}
	return info
}

// GetResourceTags returns the tags of a resource as a map.
// An empty resourceID yields an empty map without calling the API.
func (c *Client) GetResourceTags(ctx context.Context, resourceID string) (map[string]string, error) {
	tags := make(map[string]string)
	if resourceID == "" {
		return tags, nil
	}

	input := &ec2.DescribeTagsInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("resource-id"),
				Values: []string{resourceID},
			},
		},
	}

	paginator := ec2.NewDescribeTagsPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapClientError("DescribeTags", err)
		}
		for key, value := range utils.GetTagDescriptionsMap(page.Tags) {
			tags[key] = value
		}
	}

	return tags, nil
}

// TagResource creates or replaces a single tag on a resource
func (c *Client) TagResource(ctx context.Context, resourceID, key, value string) error {
	input := &ec2.CreateTagsInput{
		Resources: []string{resourceID},
		Tags: []types.Tag{
			{
				Key:   aws.String(key),
				Value: aws.String(value),
			},
		},
	}

	if _, err := c.client.CreateTags(ctx, input); err != nil {
		return wrapClientError("CreateTags", err)
	}
	return nil
}

// CreateSnapshot starts a snapshot of volumeID and returns the new snapshot id
func (c *Client) CreateSnapshot(ctx context.Context, volumeID, description string) (string, error) {
	input := &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(description),
	}

	result, err := c.client.CreateSnapshot(ctx, input)
	if err != nil {
		return "", wrapClientError("CreateSnapshot", err)
	}
	return aws.ToString(result.SnapshotId), nil
}

// DeleteSnapshot deletes a snapshot in the client's region
func (c *Client) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	input := &ec2.DeleteSnapshotInput{
		SnapshotId: aws.String(snapshotID),
	}

	if _, err := c.client.DeleteSnapshot(ctx, input); err != nil {
		return wrapClientError("DeleteSnapshot", err)
	}
	return nil
}

// CopySnapshot copies snapshotID from sourceRegion into the client's region and
// returns the id of the new snapshot. The client must be scoped to the destination,
// the SDK derives the destination region from it.
func (c *Client) CopySnapshot(ctx context.Context, sourceRegion, snapshotID, description string) (string, error) {
	input := &ec2.CopySnapshotInput{
		SourceRegion:     aws.String(sourceRegion),
		SourceSnapshotId: aws.String(snapshotID),
		Description:      aws.String(description),
	}

	result, err := c.client.CopySnapshot(ctx, input)
	if err != nil {
		return "", wrapClientError("CopySnapshot", err)
	}
	return aws.ToString(result.SnapshotId), nil
}
