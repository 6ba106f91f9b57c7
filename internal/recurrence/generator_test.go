package recurrence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ukydev/maintenance-tracker/internal/clock"
	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/errs"
	"github.com/ukydev/maintenance-tracker/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, now time.Time) (*Generator, *db.Memory) {
	t.Helper()
	mem := db.NewMemory()
	gen := &Generator{
		Plans:    mem,
		Requests: mem,
		Stages:   mem,
		Assets:   mem,
		Seq:      mem,
		Clock:    clock.Fixed{T: now},
	}
	return gen, mem
}

func seedPlanAndAsset(t *testing.T, mem *db.Memory, plan models.Plan) (*models.Plan, *models.Asset) {
	t.Helper()
	asset, err := mem.InsertAsset(context.Background(), models.Asset{Name: "Pump", Active: true})
	if err != nil {
		t.Fatalf("failed to insert asset: %v", err)
	}
	plan.AssetID = asset.ID.Hex()
	created, err := mem.InsertPlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("failed to insert plan: %v", err)
	}
	return created, asset
}

func TestGenerateOccurrencesMonthEndClamping(t *testing.T) {
	gen, mem := newFixture(t, date(2024, time.February, 1))
	plan, asset := seedPlanAndAsset(t, mem, models.Plan{
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 3,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    date(2024, time.January, 31),
		NextDate:      date(2024, time.January, 31),
		Active:        true,
	})

	created, err := gen.GenerateOccurrences(context.Background(), plan, asset)
	assert.NoError(t, err)
	assert.Len(t, created, 3)

	var got []time.Time
	for _, r := range created {
		got = append(got, r.ScheduledDate)
	}
	assert.Equal(t, []time.Time{
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
	}, got)
}

func TestGenerateOccurrencesSkipsPastDates(t *testing.T) {
	gen, mem := newFixture(t, date(2024, time.June, 15))
	plan, asset := seedPlanAndAsset(t, mem, models.Plan{
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 2,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    date(2024, time.January, 1),
		NextDate:      date(2024, time.January, 1),
		Active:        true,
	})

	created, err := gen.GenerateOccurrences(context.Background(), plan, asset)
	assert.NoError(t, err)
	for _, r := range created {
		assert.False(t, r.ScheduledDate.Before(date(2024, time.June, 15)),
			"request dated %s is before today", r.ScheduledDate.Format("2006-01-02"))
	}
	assert.Len(t, created, 2) // Jul 1 and Aug 1
}

func TestGenerateOccurrencesIsIdempotent(t *testing.T) {
	gen, mem := newFixture(t, date(2024, time.February, 1))
	plan, asset := seedPlanAndAsset(t, mem, models.Plan{
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 3,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    date(2024, time.January, 31),
		NextDate:      date(2024, time.January, 31),
		Active:        true,
	})

	first, err := gen.GenerateOccurrences(context.Background(), plan, asset)
	assert.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := gen.GenerateOccurrences(context.Background(), plan, asset)
	assert.NoError(t, err)
	assert.Empty(t, second)

	all, err := mem.FindRequestsByPlan(context.Background(), plan.ID.Hex())
	assert.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGenerateOccurrencesRequestFields(t *testing.T) {
	gen, mem := newFixture(t, date(2024, time.February, 1))
	stage, err := mem.InsertStage(context.Background(), models.Stage{Key: models.StageKeyNew, Name: "New Request", Sequence: 1})
	assert.NoError(t, err)

	plan, asset := seedPlanAndAsset(t, mem, models.Plan{
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 1,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    date(2024, time.February, 15),
		NextDate:      date(2024, time.February, 15),
		Note:          "grease the bearings",
		Active:        true,
	})

	created, err := gen.GenerateOccurrences(context.Background(), plan, asset)
	assert.NoError(t, err)
	assert.Len(t, created, 1)

	r := created[0]
	assert.Equal(t, "MR00001", r.Code)
	assert.Equal(t, "Pump (Monthly)", r.Name)
	assert.Equal(t, models.KindPreventive, r.Kind)
	assert.Equal(t, models.TimerIdle, r.TimerState)
	assert.Equal(t, stage.ID.Hex(), r.StageID)
	assert.Equal(t, plan.ID.Hex(), *r.PlanID)
	assert.Equal(t, "grease the bearings", r.Description)
	assert.True(t, r.IsCurrentMonth)
	assert.False(t, r.IsPreviousMonth)
}

func TestGenerateNextOccurrence(t *testing.T) {
	gen, mem := newFixture(t, date(2024, time.March, 5))
	plan, asset := seedPlanAndAsset(t, mem, models.Plan{
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 1,
		HorizonUnit:   models.UnitYear,
		AnchorDate:    date(2024, time.February, 29),
		NextDate:      date(2024, time.February, 29),
		Active:        true,
	})

	next, err := gen.GenerateNextOccurrence(context.Background(), plan, asset, date(2024, time.February, 29))
	assert.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 29), next.ScheduledDate)

	// The plan chain advances with the new occurrence.
	stored, err := mem.FindPlanByID(context.Background(), plan.ID.Hex())
	assert.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 29), stored.NextDate)
	assert.Equal(t, date(2024, time.March, 29), stored.AnchorDate)
}

func TestGenerateNextOccurrenceIgnoresHorizonAndPast(t *testing.T) {
	gen, mem := newFixture(t, date(2024, time.June, 15))
	plan, asset := seedPlanAndAsset(t, mem, models.Plan{
		Interval:      1,
		IntervalUnit:  models.UnitWeek,
		HorizonLength: 1,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    date(2023, time.January, 2),
		NextDate:      date(2023, time.January, 2),
		Active:        true,
	})

	// A past schedule date still yields exactly one occurrence.
	next, err := gen.GenerateNextOccurrence(context.Background(), plan, asset, date(2023, time.January, 2))
	assert.NoError(t, err)
	assert.Equal(t, date(2023, time.January, 9), next.ScheduledDate)
}

func TestGenerateOccurrencesValidation(t *testing.T) {
	gen, mem := newFixture(t, date(2024, time.February, 1))

	t.Run("nil plan", func(t *testing.T) {
		_, err := gen.GenerateOccurrences(context.Background(), nil, &models.Asset{})
		assert.True(t, errs.IsValidation(err))
	})

	t.Run("non-positive interval", func(t *testing.T) {
		plan, asset := seedPlanAndAsset(t, mem, models.Plan{
			Interval:     0,
			IntervalUnit: models.UnitMonth,
			NextDate:     date(2024, time.March, 1),
			Active:       true,
		})
		_, err := gen.GenerateOccurrences(context.Background(), plan, asset)
		assert.True(t, errs.IsValidation(err))
	})

	t.Run("bad interval unit", func(t *testing.T) {
		plan, asset := seedPlanAndAsset(t, mem, models.Plan{
			Interval:     1,
			IntervalUnit: "fortnight",
			NextDate:     date(2024, time.March, 1),
			Active:       true,
		})
		_, err := gen.GenerateOccurrences(context.Background(), plan, asset)
		assert.True(t, errs.IsValidation(err))
	})

	t.Run("missing asset", func(t *testing.T) {
		plan, _ := seedPlanAndAsset(t, mem, models.Plan{
			Interval:     1,
			IntervalUnit: models.UnitMonth,
			NextDate:     date(2024, time.March, 1),
			Active:       true,
		})
		_, err := gen.GenerateOccurrences(context.Background(), plan, nil)
		assert.True(t, errs.IsValidation(err))
	})
}

func TestGenerateForPlanID(t *testing.T) {
	gen, mem := newFixture(t, date(2024, time.February, 1))
	plan, _ := seedPlanAndAsset(t, mem, models.Plan{
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 2,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    date(2024, time.February, 10),
		NextDate:      date(2024, time.February, 10),
		Active:        true,
	})

	created, err := gen.GenerateForPlanID(context.Background(), plan.ID.Hex())
	assert.NoError(t, err)
	assert.Len(t, created, 2)

	t.Run("unknown plan", func(t *testing.T) {
		_, err := gen.GenerateForPlanID(context.Background(), "no-such-plan")
		assert.Error(t, err)
	})
}
