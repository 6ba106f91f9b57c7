package recurrence

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/maintenance-tracker/internal/clock"
	"github.com/ukydev/maintenance-tracker/internal/dateutil"
	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/errs"
	"github.com/ukydev/maintenance-tracker/internal/models"
)

// Generator materializes maintenance requests from plan recurrence.
type Generator struct {
	Plans    db.PlanCollection
	Requests db.RequestCollection
	Stages   db.StageCollection
	Assets   db.AssetCollection
	Seq      db.SequenceAllocator
	Clock    clock.Clock
}

// GenerateOccurrences creates the missing preventive requests for a plan
// up to its planning horizon and returns them. Occurrences before today
// are skipped, and an existing request for a date suppresses a second one
// through the furthest-request lookup. Callers must not invoke this
// concurrently for the same plan; the store's uniqueness index is only a
// backstop.
func (g *Generator) GenerateOccurrences(ctx context.Context, plan *models.Plan, asset *models.Asset) ([]models.Request, error) {
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, errs.Validationf("plan %s has no associated asset", plan.Code)
	}

	today := dateutil.Today(g.Clock.Now())
	horizonUnit := plan.HorizonUnit
	if horizonUnit == "" {
		horizonUnit = models.UnitYear
	}
	horizonDate, err := dateutil.AddInterval(today, plan.HorizonLength, horizonUnit)
	if err != nil {
		return nil, err
	}

	intervalUnit := plan.IntervalUnit
	if intervalUnit == "" {
		intervalUnit = models.UnitYear
	}

	furthest, err := g.Requests.FindLatestScheduled(ctx, plan.ID.Hex(), plan.AnchorDate)
	if err != nil {
		return nil, err
	}

	// Each occurrence is computed as a whole multiple of the interval from
	// the plan's next-occurrence date, so month-end clamping never drifts
	// (Jan 31 yields Feb 29, Mar 31, Apr 30 rather than sliding to the
	// 29th).
	var created []models.Request
	for step := 0; ; step++ {
		next, err := dateutil.AddInterval(plan.NextDate, step*plan.Interval, intervalUnit)
		if err != nil {
			return created, err
		}
		if next.After(horizonDate) {
			break
		}
		if next.Before(today) {
			continue
		}
		if furthest != nil && !next.After(furthest.ScheduledDate) {
			continue
		}
		request, err := g.materialize(ctx, plan, asset, next, today)
		if err != nil {
			return created, err
		}
		created = append(created, *request)
	}
	return created, nil
}

// GenerateNextOccurrence advances the plan by one interval past the given
// request date and creates exactly one request at the new date, with no
// horizon bound and no past-date skip. The finish/cancel confirmation
// uses it to keep the chain alive even when the horizon window has
// already passed.
func (g *Generator) GenerateNextOccurrence(ctx context.Context, plan *models.Plan, asset *models.Asset, currentDate time.Time) (*models.Request, error) {
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, errs.Validationf("plan %s has no associated asset", plan.Code)
	}
	if plan.NextDate.IsZero() {
		return nil, errs.Validationf("plan %s has no next occurrence date", plan.Code)
	}

	intervalUnit := plan.IntervalUnit
	if intervalUnit == "" {
		intervalUnit = models.UnitYear
	}
	next, err := dateutil.AddInterval(currentDate, plan.Interval, intervalUnit)
	if err != nil {
		return nil, err
	}

	request, err := g.materialize(ctx, plan, asset, next, dateutil.Today(g.Clock.Now()))
	if err != nil {
		return nil, err
	}
	if err := g.Plans.UpdatePlanDates(ctx, plan.ID.Hex(), next, next); err != nil {
		return nil, err
	}
	plan.NextDate = next
	plan.AnchorDate = next
	return request, nil
}

// GenerateForPlanID loads a plan and its asset, then runs the horizon
// generation. Entry point for the manual trigger and the periodic sweep.
func (g *Generator) GenerateForPlanID(ctx context.Context, planID string) ([]models.Request, error) {
	plan, err := g.Plans.FindPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.AssetID == "" {
		return nil, errs.Validationf("plan %s has no associated asset", plan.Code)
	}
	if g.Assets == nil {
		return nil, errs.Configurationf("no asset collection configured")
	}
	asset, err := g.Assets.FindAssetByID(ctx, plan.AssetID)
	if err != nil {
		return nil, err
	}
	return g.GenerateOccurrences(ctx, plan, asset)
}

func (g *Generator) materialize(ctx context.Context, plan *models.Plan, asset *models.Asset, scheduled, today time.Time) (*models.Request, error) {
	code := models.CodeUnassigned
	if g.Seq != nil {
		var err error
		code, err = g.Seq.NextCode(ctx, db.SeqRequest)
		if err != nil {
			log.WithError(err).Warn("request code allocation failed, using sentinel")
			code = models.CodeUnassigned
		}
	}

	stageID := ""
	if g.Stages != nil {
		stage, err := g.Stages.FindStageByKey(ctx, models.StageKeyNew)
		if err != nil {
			return nil, err
		}
		if stage != nil {
			stageID = stage.ID.Hex()
		}
	}

	planID := plan.ID.Hex()
	name := asset.Name
	if name == "" {
		name = "Asset"
	}
	label := dateutil.FrequencyLabel(plan.Interval, plan.IntervalUnit)
	request := models.Request{
		Code:          code,
		Name:          name + " (" + label + ")",
		PlanID:        &planID,
		AssetID:       plan.AssetID,
		Kind:          models.KindPreventive,
		ScheduledDate: scheduled,
		IssueDate:     today,
		StageID:       stageID,
		TimerState:    models.TimerIdle,
		TechnicianID:  asset.TechnicianID,
		Description:   plan.Note,
	}
	prev, cur := models.ComputeMonthFlags(scheduled, "New Request", today)
	request.IsPreviousMonth, request.IsCurrentMonth = prev, cur

	created, err := g.Requests.InsertRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"plan":      plan.ID.Hex(),
		"request":   created.ID.Hex(),
		"scheduled": scheduled.Format("2006-01-02"),
	}).Debug("maintenance request created")
	return created, nil
}

func validatePlan(plan *models.Plan) error {
	if plan == nil {
		return errs.Validationf("plan is required")
	}
	if plan.Interval <= 0 {
		return errs.Validationf("plan %s interval must be positive, got %d", plan.Code, plan.Interval)
	}
	if plan.IntervalUnit != "" && !models.IsValidIntervalUnit(plan.IntervalUnit) {
		return errs.Validationf("plan %s has invalid interval unit %q", plan.Code, plan.IntervalUnit)
	}
	if plan.HorizonUnit != "" && !models.IsValidIntervalUnit(plan.HorizonUnit) {
		return errs.Validationf("plan %s has invalid horizon unit %q", plan.Code, plan.HorizonUnit)
	}
	return nil
}
