package aws

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/younsl/snapkeeper/internal/models"
	"github.com/zeebo/errs"
)

// MetadataError is the error class for instance metadata failures.
// Without an instance identity nothing else can run, so callers treat it as fatal.
var MetadataError = errs.Class("instance metadata")

// DefaultMetadataTimeout bounds each request to the instance metadata service
const DefaultMetadataTimeout = 2 * time.Second

const (
	instanceIDPath       = "instance-id"
	availabilityZonePath = "placement/availability-zone"
)

// MetadataAPI is the subset of the IMDS client used to resolve the instance identity
type MetadataAPI interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

var _ MetadataAPI = (*imds.Client)(nil)

// MetadataResolver discovers the current instance via the EC2 instance metadata service
type MetadataResolver struct {
	client  MetadataAPI
	timeout time.Duration
}

// NewMetadataResolver creates a resolver against the link-local metadata endpoint.
// Requests are not retried.
func NewMetadataResolver(timeout time.Duration) *MetadataResolver {
	client := imds.New(imds.Options{
		Retryer: aws.NopRetryer{},
	})
	return NewMetadataResolverFromAPI(client, timeout)
}

// NewMetadataResolverFromAPI wraps an existing metadata client
func NewMetadataResolverFromAPI(api MetadataAPI, timeout time.Duration) *MetadataResolver {
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}
	return &MetadataResolver{
		client:  api,
		timeout: timeout,
	}
}

// InstanceID returns the id of the instance this process runs on
func (r *MetadataResolver) InstanceID(ctx context.Context) (string, error) {
	return r.get(ctx, instanceIDPath)
}

// Resolve returns the full identity of the current instance. The region is the
// availability zone without its trailing zone letter (us-east-1a -> us-east-1).
func (r *MetadataResolver) Resolve(ctx context.Context) (models.Instance, error) {
	instanceID, err := r.InstanceID(ctx)
	if err != nil {
		return models.Instance{}, err
	}

	zone, err := r.get(ctx, availabilityZonePath)
	if err != nil {
		return models.Instance{}, err
	}
	region, err := regionFromZone(zone)
	if err != nil {
		return models.Instance{}, err
	}

	return models.Instance{
		InstanceID:       instanceID,
		Region:           region,
		AvailabilityZone: zone,
	}, nil
}

func regionFromZone(zone string) (string, error) {
	if len(zone) < 2 {
		return "", MetadataError.New("malformed availability zone %q", zone)
	}
	return zone[:len(zone)-1], nil
}

func (r *MetadataResolver) get(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		return "", MetadataError.Wrap(fmt.Errorf("unable to get %s from metadata service: %w", path, err))
	}
	defer out.Content.Close()

	body, err := io.ReadAll(out.Content)
	if err != nil {
		return "", MetadataError.Wrap(fmt.Errorf("unable to read %s from metadata service: %w", path, err))
	}

	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", MetadataError.New("metadata service returned an empty %s", path)
	}
	return value, nil
}
