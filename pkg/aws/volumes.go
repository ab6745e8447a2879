package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/younsl/snapkeeper/internal/models"
	"github.com/younsl/snapkeeper/pkg/utils"
)

// ErrNoBlockDevices is returned when the instance has no EBS block device mappings
var ErrNoBlockDevices = errors.New("no EBS block devices attached")

// GetAttachedVolumes returns the EBS volumes mapped to the given instance
func (c *Client) GetAttachedVolumes(ctx context.Context, instanceID string) ([]models.Volume, error) {
	input := &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}

	result, err := c.client.DescribeInstances(ctx, input)
	if err != nil {
		return nil, wrapClientError("DescribeInstances", err)
	}

	volumes := []models.Volume{}

	for _, reservation := range result.Reservations {
		for _, instance := range reservation.Instances {
			for _, mapping := range instance.BlockDeviceMappings {
				// Instance store devices have no Ebs section
				if mapping.Ebs == nil || mapping.Ebs.VolumeId == nil {
					continue
				}

				volumes = append(volumes, models.Volume{
					VolumeID:   *mapping.Ebs.VolumeId,
					DeviceName: utils.SafeDeref(mapping.DeviceName),
				})
			}
		}
	}

	if len(volumes) == 0 {
		return nil, fmt.Errorf("instance %s: %w", instanceID, ErrNoBlockDevices)
	}

	return volumes, nil
}
