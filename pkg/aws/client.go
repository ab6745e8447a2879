package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// EC2API is the subset of the EC2 API used for snapshot lifecycle management.
// *ec2.Client satisfies it; tests substitute an in-memory fake.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DescribeTags(ctx context.Context, params *ec2.DescribeTagsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error)
	CreateSnapshot(ctx context.Context, params *ec2.CreateSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteSnapshot(ctx context.Context, params *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
	CopySnapshot(ctx context.Context, params *ec2.CopySnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CopySnapshotOutput, error)
}

var _ EC2API = (*ec2.Client)(nil)

// Credentials is an optional static access key pair.
// When empty the default credential chain is used.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// IsSet reports whether an explicit key pair was configured
func (c Credentials) IsSet() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Client wraps an EC2 API handle scoped to a single region
type Client struct {
	client EC2API
	region string
}

// NewClient creates a new Client for region
func NewClient(ctx context.Context, region string, creds Credentials) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if creds.IsSet() {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}

	return NewClientFromAPI(ec2.NewFromConfig(cfg), region), nil
}

// NewClientFromAPI wraps an existing EC2 API handle
func NewClientFromAPI(api EC2API, region string) *Client {
	return &Client{
		client: api,
		region: region,
	}
}

// Region returns the region the client is scoped to
func (c *Client) Region() string {
	return c.region
}

// ClientFactory builds a Client for a region.
// Operations that span regions receive a factory instead of sharing one client.
type ClientFactory func(ctx context.Context, region string) (*Client, error)

// NewClientFactory returns a factory that authenticates every client with creds.
// An empty region falls back to defaultRegion.
func NewClientFactory(creds Credentials, defaultRegion string) ClientFactory {
	return func(ctx context.Context, region string) (*Client, error) {
		if region == "" {
			region = defaultRegion
		}
		return NewClient(ctx, region, creds)
	}
}
