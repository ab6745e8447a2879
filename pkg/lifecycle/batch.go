package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/younsl/snapkeeper/internal/models"
	"go.uber.org/zap"
)

// CreateAll snapshots every volume in region
func (o *Orchestrator) CreateAll(ctx context.Context, region string, volumes []models.Volume) []models.Outcome {
	o.log.Info("creating snapshots", zap.String("region", region), zap.Int("volumes", len(volumes)))

	client, connErr := o.clients(ctx, region)
	outcomes := make([]models.Outcome, 0, len(volumes))
	for _, volume := range volumes {
		started := o.now()
		if connErr != nil {
			outcomes = append(outcomes, o.record(models.OperationCreate, volume.VolumeID, started, nil, 0, connErr))
			continue
		}

		snapshotID, err := o.Create(ctx, client, volume.VolumeID)
		var ids []string
		if snapshotID != "" {
			ids = []string{snapshotID}
		}
		outcomes = append(outcomes, o.record(models.OperationCreate, volume.VolumeID, started, ids, 1, err))
	}

	o.log.Info("finished creating snapshots", zap.String("region", region))
	return outcomes
}

// PurgeAll applies policy to every volume's snapshots in region
func (o *Orchestrator) PurgeAll(ctx context.Context, region string, volumes []models.Volume, policy models.RetentionPolicy, dryRun bool) []models.Outcome {
	o.log.Info("purging snapshots", zap.String("region", region), zap.Int("keep", policy.Keep), zap.Bool("dry-run", dryRun))

	client, connErr := o.clients(ctx, region)
	outcomes := make([]models.Outcome, 0, len(volumes))
	for _, volume := range volumes {
		started := o.now()
		if connErr != nil {
			outcomes = append(outcomes, o.record(models.OperationPurge, volume.VolumeID, started, nil, 0, connErr))
			continue
		}

		deleted, err := o.Purge(ctx, client, volume.VolumeID, policy, dryRun)
		outcomes = append(outcomes, o.record(models.OperationPurge, volume.VolumeID, started, deleted, 1, err))
	}

	o.log.Info("finished purging snapshots", zap.String("region", region))
	return outcomes
}

// CopyAll copies the latest snapshot of every volume from src to dst
func (o *Orchestrator) CopyAll(ctx context.Context, src, dst string, volumes []models.Volume) []models.Outcome {
	o.log.Info("copying snapshots", zap.String("src", src), zap.String("dst", dst), zap.Int("volumes", len(volumes)))

	source, connErr := o.clients(ctx, src)
	outcomes := make([]models.Outcome, 0, len(volumes))
	for _, volume := range volumes {
		started := o.now()
		if connErr != nil {
			outcomes = append(outcomes, o.record(models.OperationCopy, volume.VolumeID, started, nil, 0, connErr))
			continue
		}

		req := models.CopyRequest{
			VolumeID:          volume.VolumeID,
			SourceRegion:      src,
			DestinationRegion: dst,
		}
		copyID, attempts, err := o.Copy(ctx, source, req)
		var ids []string
		if copyID != "" {
			ids = []string{copyID}
		}
		outcomes = append(outcomes, o.record(models.OperationCopy, volume.VolumeID, started, ids, attempts, err))
	}

	o.log.Info("finished copying snapshots", zap.String("src", src), zap.String("dst", dst))
	return outcomes
}

// PlanAll builds the retention plan of every volume in region without changing anything.
// A volume whose snapshots cannot be listed gets a Plan with Err set.
func (o *Orchestrator) PlanAll(ctx context.Context, region string, volumes []models.Volume, policy models.RetentionPolicy) []Plan {
	client, connErr := o.clients(ctx, region)

	plans := make([]Plan, 0, len(volumes))
	for _, volume := range volumes {
		if connErr != nil {
			plans = append(plans, Plan{VolumeID: volume.VolumeID, Region: region, Err: connErr})
			continue
		}

		plan, err := o.PlanPurge(ctx, client, volume.VolumeID, policy)
		if err != nil {
			o.log.Error("unable to list snapshots of volume", zap.String("volume", volume.VolumeID), zap.Error(err))
			plan = Plan{VolumeID: volume.VolumeID, Region: region, Err: err}
		}
		plans = append(plans, plan)
	}
	return plans
}

func (o *Orchestrator) record(op models.Operation, volumeID string, started time.Time, ids []string, attempts int, err error) models.Outcome {
	outcome := models.Outcome{
		VolumeID:    volumeID,
		Operation:   op,
		Result:      models.ResultSucceeded,
		SnapshotIDs: ids,
		Attempts:    attempts,
		Err:         err,
		Duration:    o.now().Sub(started),
	}

	log := o.log.With(zap.String("volume", volumeID), zap.String("operation", string(op)))
	switch {
	case err == nil:
		log.Info("volume done", zap.Strings("snapshots", ids))
	case errors.Is(err, ErrMissingNameTag), errors.Is(err, ErrNoSnapshot):
		outcome.Result = models.ResultSkipped
		log.Error("volume skipped", zap.Error(err))
	default:
		outcome.Result = models.ResultFailed
		log.Error("volume failed", zap.Int("attempts", attempts), zap.Error(err))
	}
	return outcome
}
