package lifecycle_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/younsl/snapkeeper/internal/models"
	"github.com/younsl/snapkeeper/pkg/aws"
	"github.com/younsl/snapkeeper/pkg/aws/awstest"
	"github.com/younsl/snapkeeper/pkg/lifecycle"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	fakes  map[string]*awstest.EC2
	orch   *lifecycle.Orchestrator
	logs   *observer.ObservedLogs
	sleeps []time.Duration
}

func newTestEnv(t *testing.T, regions ...string) *testEnv {
	t.Helper()

	env := &testEnv{fakes: make(map[string]*awstest.EC2)}
	for _, region := range regions {
		fake := awstest.NewEC2(region)
		fake.Now = func() time.Time { return now }
		env.fakes[region] = fake
	}

	factory := func(_ context.Context, region string) (*aws.Client, error) {
		fake, ok := env.fakes[region]
		if !ok {
			return nil, fmt.Errorf("no endpoint for region %q", region)
		}
		return aws.NewClientFromAPI(fake, region), nil
	}

	core, logs := observer.New(zapcore.InfoLevel)
	env.logs = logs
	env.orch = lifecycle.New(zap.New(core), factory,
		lifecycle.WithClock(func() time.Time { return now }),
		lifecycle.WithWaitInterval(7*time.Second),
		lifecycle.WithSleep(func(_ context.Context, d time.Duration) error {
			env.sleeps = append(env.sleeps, d)
			return nil
		}),
	)
	return env
}

func volumes(ids ...string) []models.Volume {
	out := make([]models.Volume, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Volume{VolumeID: id})
	}
	return out
}

// seedSnapshots adds n completed snapshots of volumeID at hourly steps T1..Tn,
// listed in a scrambled order. The snapshot at Ti is named "<volume>-ti".
func seedSnapshots(fake *awstest.EC2, volumeID string, n int) {
	order := make([]int, 0, n)
	for i := 1; i <= n; i += 2 {
		order = append(order, i)
	}
	for i := n - n%2; i >= 2; i -= 2 {
		order = append(order, i)
	}
	for _, i := range order {
		fake.AddSnapshot(fmt.Sprintf("%s-t%d", volumeID, i), volumeID, types.SnapshotStateCompleted,
			now.Add(-time.Duration(100-i)*time.Hour))
	}
}

func TestCreateDescribesAndTagsSnapshot(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	fake.SetTag("vol-3", "Name", "db-data")

	outcomes := env.orch.CreateAll(context.Background(), "us-east-1", volumes("vol-3"))

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ResultSucceeded, outcomes[0].Result)
	require.Len(t, outcomes[0].SnapshotIDs, 1)

	require.Len(t, fake.CreateInputs, 1)
	assert.Equal(t, "db-data snapshot of vol-3 at 01-01-2024 00:00:00", sdkaws.ToString(fake.CreateInputs[0].Description))
	assert.Equal(t, "vol-3", fake.Tags[outcomes[0].SnapshotIDs[0]]["Name"])
}

func TestCreateSkipsVolumeWithoutNameTag(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	fake.SetTag("vol-b", "Name", "logs")
	fake.SetTag("vol-a", "team", "storage")

	outcomes := env.orch.CreateAll(context.Background(), "us-east-1", volumes("vol-a", "vol-b"))

	require.Len(t, outcomes, 2)
	assert.Equal(t, models.ResultSkipped, outcomes[0].Result)
	assert.ErrorIs(t, outcomes[0].Err, lifecycle.ErrMissingNameTag)
	assert.True(t, lifecycle.Error.Has(outcomes[0].Err))
	assert.Equal(t, models.ResultSucceeded, outcomes[1].Result)

	assert.Equal(t, []string{"vol-b"}, volumeIDs(fake.CreateInputs))
	assert.Equal(t, 1, env.logs.FilterMessage("volume skipped").Len())
}

func TestCreateTagFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	fake.SetTag("vol-1", "Name", "root")
	fake.Errs["CreateTags"] = awstest.APIError("RequestLimitExceeded")

	outcomes := env.orch.CreateAll(context.Background(), "us-east-1", volumes("vol-1"))

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ResultSucceeded, outcomes[0].Result)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, env.logs.FilterMessage("unable to create name tag for snapshot").Len())
}

func TestCreateProviderErrorIsNotRetried(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	fake.SetTag("vol-1", "Name", "root")
	fake.SetTag("vol-2", "Name", "data")
	fake.Errs["CreateSnapshot:vol-1"] = awstest.APIError("SnapshotCreationPerVolumeRateExceeded")

	outcomes := env.orch.CreateAll(context.Background(), "us-east-1", volumes("vol-1", "vol-2"))

	require.Len(t, outcomes, 2)
	assert.Equal(t, models.ResultFailed, outcomes[0].Result)
	assert.Equal(t, "SnapshotCreationPerVolumeRateExceeded", aws.ErrorCode(outcomes[0].Err))
	assert.Equal(t, models.ResultSucceeded, outcomes[1].Result)
	assert.Equal(t, 2, fake.CallCount("CreateSnapshot"))
	assert.Empty(t, env.sleeps)
}

func TestPurgeDeletesOldestBeyondRetention(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	seedSnapshots(fake, "vol-1", 16)

	policy, err := models.NewRetentionPolicy(14)
	require.NoError(t, err)

	outcomes := env.orch.PurgeAll(context.Background(), "us-east-1", volumes("vol-1"), policy, false)

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ResultSucceeded, outcomes[0].Result)
	assert.Equal(t, []string{"vol-1-t1", "vol-1-t2"}, fake.Deleted())
	assert.Equal(t, []string{"vol-1-t1", "vol-1-t2"}, outcomes[0].SnapshotIDs)
}

func TestPurgeCounts(t *testing.T) {
	tests := []struct {
		n, keep int
	}{
		{0, 0}, {0, 14}, {3, 0}, {3, 3}, {3, 5}, {10, 4}, {16, 14},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d keep=%d", tt.n, tt.keep), func(t *testing.T) {
			env := newTestEnv(t, "us-east-1")
			fake := env.fakes["us-east-1"]
			seedSnapshots(fake, "vol-1", tt.n)
			// a sibling volume's snapshots are never candidates
			seedSnapshots(fake, "vol-x", 3)

			policy, err := models.NewRetentionPolicy(tt.keep)
			require.NoError(t, err)
			env.orch.PurgeAll(context.Background(), "us-east-1", volumes("vol-1"), policy, false)

			expected := []string{}
			for i := 1; i <= tt.n-tt.keep; i++ {
				expected = append(expected, fmt.Sprintf("vol-1-t%d", i))
			}
			deleted := fake.Deleted()
			if deleted == nil {
				deleted = []string{}
			}
			assert.Equal(t, expected, deleted)
		})
	}
}

func TestPurgeContinuesAfterDeleteFailure(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	seedSnapshots(fake, "vol-1", 5)
	seedSnapshots(fake, "vol-2", 3)
	fake.Errs["DeleteSnapshot:vol-1-t2"] = awstest.APIError("InvalidSnapshot.InUse")

	policy, err := models.NewRetentionPolicy(2)
	require.NoError(t, err)
	outcomes := env.orch.PurgeAll(context.Background(), "us-east-1", volumes("vol-1", "vol-2"), policy, false)

	assert.Equal(t, []string{"vol-1-t1", "vol-1-t2", "vol-1-t3", "vol-2-t1"}, fake.Deleted())
	require.Len(t, outcomes, 2)
	assert.Equal(t, models.ResultFailed, outcomes[0].Result)
	assert.Equal(t, []string{"vol-1-t1", "vol-1-t3"}, outcomes[0].SnapshotIDs)
	assert.Equal(t, "InvalidSnapshot.InUse", aws.ErrorCode(outcomes[0].Err))
	assert.Equal(t, models.ResultSucceeded, outcomes[1].Result)
	assert.Empty(t, env.sleeps)
}

func TestPurgeDryRun(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	seedSnapshots(fake, "vol-1", 4)

	policy, err := models.NewRetentionPolicy(1)
	require.NoError(t, err)
	outcomes := env.orch.PurgeAll(context.Background(), "us-east-1", volumes("vol-1"), policy, true)

	assert.Empty(t, fake.Deleted())
	require.Len(t, outcomes, 1)
	assert.Equal(t, []string{"vol-1-t1", "vol-1-t2", "vol-1-t3"}, outcomes[0].SnapshotIDs)
}

func TestPurgeUsesRequestedRegion(t *testing.T) {
	env := newTestEnv(t, "us-east-1", "eu-west-1")
	seedSnapshots(env.fakes["us-east-1"], "vol-1", 3)
	seedSnapshots(env.fakes["eu-west-1"], "vol-1", 3)

	policy, err := models.NewRetentionPolicy(1)
	require.NoError(t, err)
	env.orch.PurgeAll(context.Background(), "eu-west-1", volumes("vol-1"), policy, false)

	assert.Empty(t, env.fakes["us-east-1"].Deleted())
	assert.Equal(t, []string{"vol-1-t1", "vol-1-t2"}, env.fakes["eu-west-1"].Deleted())
}

func TestPurgeListingFailureIsolatedPerVolume(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	fake.Errs["DescribeSnapshots"] = awstest.APIError("UnauthorizedOperation")

	policy, err := models.NewRetentionPolicy(1)
	require.NoError(t, err)
	outcomes := env.orch.PurgeAll(context.Background(), "us-east-1", volumes("vol-1", "vol-2"), policy, false)

	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		assert.Equal(t, models.ResultFailed, outcome.Result)
	}
}

func TestCopyLatestSnapshot(t *testing.T) {
	env := newTestEnv(t, "eu-west-1", "us-east-1")
	src, dst := env.fakes["eu-west-1"], env.fakes["us-east-1"]
	seedSnapshots(src, "vol-1", 6)
	src.AddSnapshot("vol-1-pending", "vol-1", types.SnapshotStatePending, now)

	outcomes := env.orch.CopyAll(context.Background(), "eu-west-1", "us-east-1", volumes("vol-1"))

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ResultSucceeded, outcomes[0].Result)
	assert.Equal(t, 1, outcomes[0].Attempts)
	require.Len(t, dst.CopyInputs, 1)
	input := dst.CopyInputs[0]
	assert.Equal(t, "vol-1-t6", sdkaws.ToString(input.SourceSnapshotId))
	assert.Equal(t, "eu-west-1", sdkaws.ToString(input.SourceRegion))
	assert.Equal(t, "[Copied vol-1-t6 from eu-west-1] vol-1-01-01-2024", sdkaws.ToString(input.Description))

	require.Len(t, outcomes[0].SnapshotIDs, 1)
	assert.Equal(t, "vol-1", dst.Tags[outcomes[0].SnapshotIDs[0]]["Name"])
	assert.Zero(t, src.CallCount("CopySnapshot"))
}

func TestCopyWithoutSnapshotsMovesOn(t *testing.T) {
	env := newTestEnv(t, "eu-west-1", "us-east-1")
	seedSnapshots(env.fakes["eu-west-1"], "vol-3", 2)

	outcomes := env.orch.CopyAll(context.Background(), "eu-west-1", "us-east-1", volumes("vol-2", "vol-3"))

	require.Len(t, outcomes, 2)
	assert.Equal(t, models.ResultSkipped, outcomes[0].Result)
	assert.ErrorIs(t, outcomes[0].Err, lifecycle.ErrNoSnapshot)
	assert.Contains(t, outcomes[0].Detail(), "no snapshot to copy")
	assert.Equal(t, models.ResultSucceeded, outcomes[1].Result)
	assert.Equal(t, 1, env.fakes["us-east-1"].CallCount("CopySnapshot"))
}

func TestCopyRetriesFiveTimesThenGivesUp(t *testing.T) {
	env := newTestEnv(t, "eu-west-1", "us-east-1")
	src, dst := env.fakes["eu-west-1"], env.fakes["us-east-1"]
	seedSnapshots(src, "vol-1", 2)
	seedSnapshots(src, "vol-2", 2)
	dst.Errs["CopySnapshot:vol-1-t2"] = awstest.APIError("ResourceLimitExceeded")

	outcomes := env.orch.CopyAll(context.Background(), "eu-west-1", "us-east-1", volumes("vol-1", "vol-2"))

	require.Len(t, outcomes, 2)
	assert.Equal(t, models.ResultFailed, outcomes[0].Result)
	assert.Equal(t, lifecycle.CopyAttempts, outcomes[0].Attempts)
	assert.ErrorIs(t, outcomes[0].Err, lifecycle.ErrRetriesExhausted)
	assert.Equal(t, "ResourceLimitExceeded", aws.ErrorCode(outcomes[0].Err))

	assert.Equal(t, models.ResultSucceeded, outcomes[1].Result)
	assert.Equal(t, 6, dst.CallCount("CopySnapshot"))
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second, 7 * time.Second, 7 * time.Second}, env.sleeps)
}

func TestCopySucceedsAfterTransientFailures(t *testing.T) {
	env := newTestEnv(t, "eu-west-1", "us-east-1")
	seedSnapshots(env.fakes["eu-west-1"], "vol-1", 1)
	env.fakes["us-east-1"].FailN["CopySnapshot"] = 2

	outcomes := env.orch.CopyAll(context.Background(), "eu-west-1", "us-east-1", volumes("vol-1"))

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ResultSucceeded, outcomes[0].Result)
	assert.Equal(t, 3, outcomes[0].Attempts)
	assert.Len(t, env.sleeps, 2)
	assert.Equal(t, 2, env.logs.FilterMessage("unable to copy snapshot, check IAM permissions").Len())
}

func TestCopyRetriesDestinationConnectFailures(t *testing.T) {
	env := newTestEnv(t, "eu-west-1")
	seedSnapshots(env.fakes["eu-west-1"], "vol-1", 1)

	outcomes := env.orch.CopyAll(context.Background(), "eu-west-1", "ap-nowhere-1", volumes("vol-1"))

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ResultFailed, outcomes[0].Result)
	assert.Equal(t, lifecycle.CopyAttempts, outcomes[0].Attempts)
	assert.Equal(t, lifecycle.CopyAttempts, env.logs.FilterMessage("unable to connect to destination region").Len())
}

func TestCopyTagFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, "eu-west-1", "us-east-1")
	seedSnapshots(env.fakes["eu-west-1"], "vol-1", 1)
	env.fakes["us-east-1"].Errs["CreateTags"] = awstest.APIError("RequestLimitExceeded")

	outcomes := env.orch.CopyAll(context.Background(), "eu-west-1", "us-east-1", volumes("vol-1"))

	require.Len(t, outcomes, 1)
	assert.Equal(t, models.ResultSucceeded, outcomes[0].Result)
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.Empty(t, env.sleeps)
}

func TestVolumes(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	env.fakes["us-east-1"].AttachVolumes("i-1", "vol-1", "vol-2")

	got := env.orch.Volumes(context.Background(), models.Instance{InstanceID: "i-1", Region: "us-east-1"})
	assert.Len(t, got, 2)

	got = env.orch.Volumes(context.Background(), models.Instance{InstanceID: "i-2", Region: "us-east-1"})
	assert.Empty(t, got)
	assert.Equal(t, 1, env.logs.FilterMessage("unable to get block devices attached to instance").Len())

	outcomes := env.orch.CreateAll(context.Background(), "us-east-1", got)
	assert.Empty(t, outcomes)
}

func TestPlanAll(t *testing.T) {
	env := newTestEnv(t, "us-east-1")
	fake := env.fakes["us-east-1"]
	seedSnapshots(fake, "vol-1", 4)

	policy, err := models.NewRetentionPolicy(3)
	require.NoError(t, err)
	plans := env.orch.PlanAll(context.Background(), "us-east-1", volumes("vol-1", "vol-2"), policy)

	require.Len(t, plans, 2)
	assert.Len(t, plans[0].Snapshots, 4)
	require.Len(t, plans[0].Expired, 1)
	assert.Equal(t, "vol-1-t1", plans[0].Expired[0].SnapshotID)
	assert.Equal(t, plans[0].Snapshots[:1], plans[0].Expired)
	assert.Empty(t, plans[1].Snapshots)
	assert.Empty(t, fake.Deleted())
}

func volumeIDs(inputs []*ec2.CreateSnapshotInput) []string {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, sdkaws.ToString(in.VolumeId))
	}
	return out
}
