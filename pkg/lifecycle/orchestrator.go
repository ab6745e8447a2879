// Package lifecycle creates, purges and copies EBS snapshots of the volumes
// attached to an instance. Every volume is handled on its own: a failure is
// logged, recorded in the volume's outcome and the batch moves on.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/younsl/snapkeeper/internal/models"
	"github.com/younsl/snapkeeper/pkg/aws"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the error class for per-volume lifecycle failures
var Error = errs.Class("lifecycle")

var (
	// ErrMissingNameTag means the volume has no Name tag to describe its snapshot with
	ErrMissingNameTag = errors.New("volume has no Name tag")
	// ErrNoSnapshot means the volume has no completed snapshot in the source region
	ErrNoSnapshot = errors.New("no snapshot to copy")
	// ErrRetriesExhausted means every attempt of a retried operation failed
	ErrRetriesExhausted = errors.New("retries exhausted")
)

const (
	// CopyAttempts is the number of cross-region copy attempts per volume
	CopyAttempts = 5
	// DefaultWaitInterval is the delay between copy attempts
	DefaultWaitInterval = 5 * time.Second
)

// Orchestrator drives snapshot lifecycle operations against EC2
type Orchestrator struct {
	log          *zap.Logger
	clients      aws.ClientFactory
	now          func() time.Time
	sleep        SleepFunc
	waitInterval time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock overrides the clock used for snapshot descriptions
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep overrides how the copy retry loop waits between attempts
func WithSleep(sleep SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithWaitInterval sets the fixed delay between copy attempts
func WithWaitInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.waitInterval = d }
}

// New creates an Orchestrator that obtains region scoped clients from clients
func New(log *zap.Logger, clients aws.ClientFactory, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}

	o := &Orchestrator{
		log:          log,
		clients:      clients,
		now:          time.Now,
		sleep:        Sleep,
		waitInterval: DefaultWaitInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Volumes returns the volumes attached to instance. Lookup failures are logged
// and yield no volumes, which turns every batch into a no-op.
func (o *Orchestrator) Volumes(ctx context.Context, instance models.Instance) []models.Volume {
	log := o.log.With(zap.String("instance", instance.InstanceID), zap.String("region", instance.Region))

	client, err := o.clients(ctx, instance.Region)
	if err != nil {
		log.Error("unable to connect to EC2", zap.Error(err))
		return nil
	}

	volumes, err := client.GetAttachedVolumes(ctx, instance.InstanceID)
	if err != nil {
		log.Error("unable to get block devices attached to instance", zap.Error(err))
		return nil
	}

	log.Info("found attached volumes", zap.Int("count", len(volumes)))
	return volumes
}

// Create snapshots volumeID and tags the snapshot with the volume id.
// The volume must carry a Name tag. Tagging the snapshot is best effort.
func (o *Orchestrator) Create(ctx context.Context, client *aws.Client, volumeID string) (string, error) {
	log := o.log.With(zap.String("volume", volumeID), zap.String("region", client.Region()))

	tags, err := client.GetResourceTags(ctx, volumeID)
	if err != nil {
		return "", Error.Wrap(fmt.Errorf("reading tags of volume %s: %w", volumeID, err))
	}

	name := tags[models.NameTag]
	if name == "" {
		return "", Error.Wrap(fmt.Errorf("volume %s: %w", volumeID, ErrMissingNameTag))
	}

	description := SnapshotDescription(name, volumeID, o.now())

	log.Info("creating snapshot of volume")
	snapshotID, err := client.CreateSnapshot(ctx, volumeID, description)
	if err != nil {
		return "", Error.Wrap(fmt.Errorf("creating snapshot of volume %s: %w", volumeID, err))
	}
	log.Info("snapshot created successfully", zap.String("snapshot", snapshotID))

	o.tagSnapshot(ctx, client, snapshotID, volumeID)
	return snapshotID, nil
}

// Plan is the retention view of one volume's completed snapshots
type Plan struct {
	VolumeID  string
	Region    string
	Snapshots []models.SnapshotInfo // oldest first
	Expired   []models.SnapshotInfo // oldest first, the leading entries of Snapshots
	Err       error
}

// PlanPurge lists the completed snapshots of volumeID and selects those the policy expires
func (o *Orchestrator) PlanPurge(ctx context.Context, client *aws.Client, volumeID string, policy models.RetentionPolicy) (Plan, error) {
	snapshots, err := client.GetCompletedSnapshots(ctx, volumeID)
	if err != nil {
		return Plan{}, Error.Wrap(fmt.Errorf("listing snapshots of volume %s: %w", volumeID, err))
	}

	return Plan{
		VolumeID:  volumeID,
		Region:    client.Region(),
		Snapshots: SortOldestFirst(snapshots),
		Expired:   SelectExpired(snapshots, policy),
	}, nil
}

// Purge deletes the completed snapshots of volumeID beyond the policy, oldest
// first. A failed deletion does not stop the remaining ones. It returns the ids
// deleted, or with dryRun the ids that would have been deleted.
func (o *Orchestrator) Purge(ctx context.Context, client *aws.Client, volumeID string, policy models.RetentionPolicy, dryRun bool) ([]string, error) {
	log := o.log.With(zap.String("volume", volumeID), zap.String("region", client.Region()))

	log.Info("searching for snapshots of volume")
	plan, err := o.PlanPurge(ctx, client, volumeID, policy)
	if err != nil {
		return nil, err
	}
	log.Info("snapshots will be deleted",
		zap.Int("count", len(plan.Expired)),
		zap.Int("completed", len(plan.Snapshots)),
		zap.Int("keep", policy.Keep))

	var deleted []string
	var failures []error
	for _, snapshot := range plan.Expired {
		snapshotLog := log.With(zap.String("snapshot", snapshot.SnapshotID), zap.Time("started", snapshot.StartTime))
		if dryRun {
			snapshotLog.Info("dry run, not purging snapshot")
			deleted = append(deleted, snapshot.SnapshotID)
			continue
		}

		snapshotLog.Info("purging snapshot")
		if err := client.DeleteSnapshot(ctx, snapshot.SnapshotID); err != nil {
			snapshotLog.Error("unable to purge snapshot, check IAM permissions", zap.Error(err))
			failures = append(failures, err)
			continue
		}
		snapshotLog.Info("snapshot purged successfully")
		deleted = append(deleted, snapshot.SnapshotID)
	}

	if len(failures) > 0 {
		return deleted, Error.Wrap(fmt.Errorf("purged %d of %d snapshots of volume %s: %w",
			len(deleted), len(plan.Expired), volumeID, errors.Join(failures...)))
	}
	return deleted, nil
}

// Copy copies the most recent completed snapshot of the requested volume from the
// source client's region to the destination region. Each attempt connects a new
// destination client; at most CopyAttempts are made with a fixed wait in between.
// It returns the id of the copy and the number of attempts made.
func (o *Orchestrator) Copy(ctx context.Context, source *aws.Client, req models.CopyRequest) (string, int, error) {
	log := o.log.With(
		zap.String("volume", req.VolumeID),
		zap.String("src", req.SourceRegion),
		zap.String("dst", req.DestinationRegion))

	log.Info("looking for snapshots of volume")
	snapshots, err := source.GetCompletedSnapshots(ctx, req.VolumeID)
	if err != nil {
		return "", 0, Error.Wrap(fmt.Errorf("listing snapshots of volume %s: %w", req.VolumeID, err))
	}

	latest, ok := Latest(snapshots)
	if !ok {
		return "", 0, Error.Wrap(fmt.Errorf("volume %s in %s: %w", req.VolumeID, req.SourceRegion, ErrNoSnapshot))
	}
	log = log.With(zap.String("snapshot", latest.SnapshotID))
	log.Info("latest snapshot of volume selected for copy", zap.Time("started", latest.StartTime))

	description := CopyDescription(latest.SnapshotID, req.SourceRegion, req.VolumeID, o.now())

	var copyID string
	attempts, err := Retry(ctx, CopyAttempts, o.waitInterval, o.sleep, func(ctx context.Context, attempt int) error {
		attemptLog := log.With(zap.Int("attempt", attempt))

		dst, err := o.clients(ctx, req.DestinationRegion)
		if err != nil {
			attemptLog.Error("unable to connect to destination region", zap.Error(err))
			return err
		}

		attemptLog.Info("copying snapshot")
		id, err := dst.CopySnapshot(ctx, req.SourceRegion, latest.SnapshotID, description)
		if err != nil {
			attemptLog.Error("unable to copy snapshot, check IAM permissions", zap.Error(err))
			return err
		}

		copyID = id
		attemptLog.Info("snapshot copied successfully", zap.String("copy", id))
		o.tagSnapshot(ctx, dst, id, req.VolumeID)
		return nil
	})
	if err != nil {
		return "", attempts, Error.Wrap(fmt.Errorf("copying snapshot %s of volume %s from %s to %s: %w",
			latest.SnapshotID, req.VolumeID, req.SourceRegion, req.DestinationRegion, err))
	}

	return copyID, attempts, nil
}

// tagSnapshot writes the Name tag that correlates a snapshot with its volume.
// Failures are logged only, the snapshot itself already exists.
func (o *Orchestrator) tagSnapshot(ctx context.Context, client *aws.Client, snapshotID, volumeID string) {
	log := o.log.With(zap.String("snapshot", snapshotID), zap.String("region", client.Region()))

	log.Info("creating name tag for snapshot")
	if err := client.TagResource(ctx, snapshotID, models.NameTag, volumeID); err != nil {
		log.Error("unable to create name tag for snapshot", zap.Error(err))
		return
	}
	log.Info("name tag for snapshot created successfully")
}
