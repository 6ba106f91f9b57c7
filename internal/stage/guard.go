package stage

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/maintenance-tracker/internal/clock"
	"github.com/ukydev/maintenance-tracker/internal/dateutil"
	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/errs"
	"github.com/ukydev/maintenance-tracker/internal/models"
	"github.com/ukydev/maintenance-tracker/internal/notify"
)

// Principal is the acting user as seen by the guard.
type Principal interface {
	HasCapability(action string) bool
}

// NextGenerator is the single-step recurrence entry point the guard
// invokes on terminal confirmation. Satisfied by *recurrence.Generator.
type NextGenerator interface {
	GenerateNextOccurrence(ctx context.Context, plan *models.Plan, asset *models.Asset, currentDate time.Time) (*models.Request, error)
}

// Guard validates every stage change on a maintenance request. Terminal
// stages are reachable only through the confirm workflow, and entering
// one continues the plan's recurrence chain.
type Guard struct {
	Requests db.RequestCollection
	Stages   db.StageCollection
	Plans    db.PlanCollection
	Assets   db.AssetCollection
	Gen      NextGenerator
	Notifier notify.Notifier
	Clock    clock.Clock
}

// AssignStage is the guarded write path for the request's stage field.
// All board moves route through here. authorized is the escape flag the
// confirm workflow sets; board moves into terminal stages without it are
// rejected, and even authorized moves require the technical-admin
// capability.
func (g *Guard) AssignStage(ctx context.Context, principal Principal, requestID, targetStageID string, authorized bool) (*models.Request, error) {
	request, err := g.Requests.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	current, err := g.stageOf(ctx, request)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return nil, errs.Validationf("request %s cannot be moved: it is in restricted stage %q", request.Code, current.Name)
	}

	target, err := g.Stages.FindStageByID(ctx, targetStageID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, errs.Validationf("the requested stage does not exist")
		}
		return nil, err
	}

	if target.IsTerminal() {
		if !authorized {
			return nil, errs.Validationf(
				"request %s cannot be moved to %q from the board; use the finish or cancel workflow", request.Code, target.Name)
		}
		if principal == nil || !principal.HasCapability(models.ActionConfirmTerminal) {
			return nil, errs.Permissionf("you do not have the required permissions for this action")
		}
	}

	now := g.Clock.Now()
	request.StageID = target.ID.Hex()
	request.IsPreviousMonth, request.IsCurrentMonth = models.ComputeMonthFlags(request.ScheduledDate, target.Name, dateutil.Today(now))
	if target.IsTerminal() {
		g.stampTerminal(request, target, now)
		// The chain continues before the terminal stage is committed;
		// a failed generation leaves the request still confirmable.
		if request.PlanID != nil {
			if err := g.generateNext(ctx, request); err != nil {
				return nil, err
			}
		}
	}
	if err := g.Requests.UpdateRequest(ctx, request.ID.Hex(), *request); err != nil {
		return nil, err
	}

	if g.Notifier != nil {
		if err := g.Notifier.StageChanged(ctx, request, target); err != nil {
			// Hook failures must not roll back a committed transition.
			log.WithError(err).Warn("stage change notification failed")
		}
	}

	if err := g.RefreshAssetApproval(ctx, request.AssetID); err != nil {
		// Approval is derived data; a failed refresh must not roll back
		// a committed transition.
		log.WithError(err).Warn("asset approval refresh failed")
	}
	return request, nil
}

// RefreshAssetApproval recomputes the asset's approval status from its
// request history and persists it. An asset stays unapproved while an
// open corrective request exists or its latest past request was not
// finished.
func (g *Guard) RefreshAssetApproval(ctx context.Context, assetID string) error {
	if assetID == "" || g.Assets == nil {
		return nil
	}
	requests, err := g.Requests.FindRequestsByAsset(ctx, assetID)
	if err != nil {
		return err
	}
	stages, err := g.Stages.FindStages(ctx)
	if err != nil {
		return err
	}
	stageByID := make(map[string]models.Stage, len(stages))
	for _, s := range stages {
		stageByID[s.ID.Hex()] = s
	}
	plans, err := g.Plans.FindActivePlans(ctx)
	if err != nil {
		return err
	}
	hasPlans := false
	for _, p := range plans {
		if p.AssetID == assetID {
			hasPlans = true
			break
		}
	}
	status := models.ComputeApprovalStatus(hasPlans, requests, stageByID, dateutil.Today(g.Clock.Now()))
	return g.Assets.UpdateAssetApproval(ctx, assetID, status)
}

// ConfirmFinish moves the request into the done stage through the guarded
// workflow and continues the recurrence chain at the confirmed schedule
// date.
func (g *Guard) ConfirmFinish(ctx context.Context, principal Principal, requestID string) (*models.Request, error) {
	return g.confirm(ctx, principal, requestID, models.StageKeyDone, "Done")
}

// ConfirmCancel moves the request into the cancelled stage through the
// guarded workflow. The recurrence chain continues regardless of the
// outcome.
func (g *Guard) ConfirmCancel(ctx context.Context, principal Principal, requestID string) (*models.Request, error) {
	return g.confirm(ctx, principal, requestID, models.StageKeyCancelled, "Cancelled")
}

func (g *Guard) confirm(ctx context.Context, principal Principal, requestID, stageKey, legacyName string) (*models.Request, error) {
	request, err := g.Requests.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	current, err := g.stageOf(ctx, request)
	if err != nil {
		return nil, err
	}
	// Rejected before any confirmation dialog is shown.
	if current.IsTerminal() {
		return nil, errs.Validationf("request %s is already in terminal stage %q", request.Code, current.Name)
	}

	target, err := g.Stages.FindStageByKey(ctx, stageKey)
	if err != nil {
		return nil, err
	}
	if target == nil {
		target, err = g.Stages.FindStageByName(ctx, legacyName)
		if err != nil {
			return nil, err
		}
	}
	if target == nil {
		return nil, errs.Configurationf("no stage configured for %q", stageKey)
	}
	return g.AssignStage(ctx, principal, requestID, target.ID.Hex(), true)
}

// stageOf resolves the request's current stage; an unset or dangling
// stage reference counts as a non-terminal blank stage.
func (g *Guard) stageOf(ctx context.Context, request *models.Request) (*models.Stage, error) {
	if request.StageID == "" {
		return &models.Stage{}, nil
	}
	stage, err := g.Stages.FindStageByID(ctx, request.StageID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return &models.Stage{}, nil
		}
		return nil, err
	}
	return stage, nil
}

// stampTerminal records when the request was checked or cancelled,
// keeping an already-set timestamp.
func (g *Guard) stampTerminal(request *models.Request, target *models.Stage, now time.Time) {
	cancelled := target.Key == models.StageKeyCancelled || target.Name == "Cancelled"
	if cancelled {
		if request.CancelledAt == nil {
			request.CancelledAt = &now
		}
		return
	}
	if request.CheckedAt == nil {
		request.CheckedAt = &now
	}
}

// generateNext runs the single-step recurrence for the request's plan at
// the confirmed schedule date.
func (g *Guard) generateNext(ctx context.Context, request *models.Request) error {
	if g.Gen == nil {
		return nil
	}
	plan, err := g.Plans.FindPlanByID(ctx, *request.PlanID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Plan deleted after the request was issued; the chain ends here.
			log.WithField("request", request.ID.Hex()).Info("no plan to continue after terminal stage")
			return nil
		}
		return err
	}
	asset, err := g.Assets.FindAssetByID(ctx, plan.AssetID)
	if err != nil {
		return err
	}
	next, err := g.Gen.GenerateNextOccurrence(ctx, plan, asset, request.ScheduledDate)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"plan": plan.ID.Hex(),
		"next": next.ScheduledDate.Format("2006-01-02"),
	}).Debug("recurrence chain continued")
	return nil
}
