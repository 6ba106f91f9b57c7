package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/recurrence"
)

// Runner periodically walks the active plans and materializes their
// missing occurrences. Plans are swept one at a time, which also
// serializes the generator per plan as the recurrence contract requires.
type Runner struct {
	Plans   db.PlanCollection
	Assets  db.AssetCollection
	Gen     *recurrence.Generator
	Timeout time.Duration

	c *cron.Cron
}

// Start registers the sweep on the given cron spec ("@daily",
// "0 6 * * *", "@every 12h") and starts the scheduler.
func (r *Runner) Start(spec string) error {
	r.c = cron.New()
	_, err := r.c.AddFunc(spec, func() {
		timeout := r.Timeout
		if timeout == 0 {
			timeout = 5 * time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		created, err := r.RunOnce(ctx)
		if err != nil {
			log.WithError(err).Error("plan sweep failed")
			return
		}
		log.WithField("created", created).Info("plan sweep completed")
	})
	if err != nil {
		return err
	}
	r.c.Start()
	log.WithField("spec", spec).Info("plan sweep scheduled")
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (r *Runner) Stop() {
	if r.c != nil {
		<-r.c.Stop().Done()
	}
}

// RunOnce sweeps every active plan once and returns how many requests
// were created. A failing plan is logged and skipped so one bad plan
// cannot starve the rest; each plan's own writes remain all-or-nothing.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	plans, err := r.Plans.FindActivePlans(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for i := range plans {
		plan := &plans[i]
		if plan.AssetID == "" {
			log.WithField("plan", plan.Code).Warn("plan has no associated asset, skipping")
			continue
		}
		asset, err := r.Assets.FindAssetByID(ctx, plan.AssetID)
		if err != nil {
			log.WithError(err).WithField("plan", plan.Code).Warn("asset lookup failed, skipping plan")
			continue
		}
		requests, err := r.Gen.GenerateOccurrences(ctx, plan, asset)
		if err != nil {
			log.WithError(err).WithField("plan", plan.Code).Warn("occurrence generation failed")
			continue
		}
		created += len(requests)
	}
	return created, nil
}
