package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ukydev/maintenance-tracker/internal/clock"
	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/models"
	"github.com/ukydev/maintenance-tracker/internal/recurrence"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newRunner(t *testing.T, now time.Time) (*Runner, *db.Memory) {
	t.Helper()
	mem := db.NewMemory()
	gen := &recurrence.Generator{Plans: mem, Requests: mem, Stages: mem, Assets: mem, Seq: mem, Clock: clock.Fixed{T: now}}
	return &Runner{Plans: mem, Assets: mem, Gen: gen}, mem
}

func seedPlan(t *testing.T, mem *db.Memory, assetID string, next time.Time, active bool) *models.Plan {
	t.Helper()
	plan, err := mem.InsertPlan(context.Background(), models.Plan{
		AssetID:       assetID,
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 2,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    next,
		NextDate:      next,
		Active:        active,
	})
	if err != nil {
		t.Fatalf("failed to insert plan: %v", err)
	}
	return plan
}

func TestRunOnceSweepsActivePlans(t *testing.T) {
	runner, mem := newRunner(t, date(2024, time.June, 12))
	ctx := context.Background()

	asset, err := mem.InsertAsset(ctx, models.Asset{Name: "Pump", Active: true})
	assert.NoError(t, err)

	active := seedPlan(t, mem, asset.ID.Hex(), date(2024, time.June, 15), true)
	seedPlan(t, mem, asset.ID.Hex(), date(2024, time.June, 20), false) // inactive, ignored

	created, err := runner.RunOnce(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, created) // Jun 15 and Jul 15

	requests, err := mem.FindRequestsByPlan(ctx, active.ID.Hex())
	assert.NoError(t, err)
	assert.Len(t, requests, 2)

	t.Run("repeat sweep is a no-op", func(t *testing.T) {
		created, err := runner.RunOnce(ctx)
		assert.NoError(t, err)
		assert.Zero(t, created)
	})
}

func TestRunOnceSkipsBrokenPlans(t *testing.T) {
	runner, mem := newRunner(t, date(2024, time.June, 12))
	ctx := context.Background()

	asset, err := mem.InsertAsset(ctx, models.Asset{Name: "Pump", Active: true})
	assert.NoError(t, err)

	// One plan with no asset and one with a dangling asset reference.
	seedPlan(t, mem, "", date(2024, time.June, 15), true)
	seedPlan(t, mem, "ghost-asset", date(2024, time.June, 15), true)
	healthy := seedPlan(t, mem, asset.ID.Hex(), date(2024, time.June, 18), true)

	created, err := runner.RunOnce(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, created)

	requests, err := mem.FindRequestsByPlan(ctx, healthy.ID.Hex())
	assert.NoError(t, err)
	assert.Len(t, requests, 2)
}

func TestStartRejectsBadSpec(t *testing.T) {
	runner, _ := newRunner(t, date(2024, time.June, 12))
	err := runner.Start("not a cron spec")
	assert.Error(t, err)
}

func TestStartAndStop(t *testing.T) {
	runner, _ := newRunner(t, date(2024, time.June, 12))
	assert.NoError(t, runner.Start("@daily"))
	runner.Stop()
}
