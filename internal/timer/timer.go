package timer

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/maintenance-tracker/internal/clock"
	"github.com/ukydev/maintenance-tracker/internal/dateutil"
	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/errs"
	"github.com/ukydev/maintenance-tracker/internal/models"
)

// Service drives the work-tracking state machine of a maintenance
// request: idle → active → pause → active → done. Transitions on the
// same request are serialized by a per-request lock so the
// close-before-open rule keeps at most one segment open.
type Service struct {
	Requests db.RequestCollection
	Segments db.SegmentCollection
	Stages   db.StageCollection
	Causes   db.PauseCauseCollection
	Clock    clock.Clock

	locks keyedMutex
}

// Start opens a new active segment at now. Any segment left open is
// closed first, so a repeated Start never leaves two open segments. Sets
// the start-of-execution timestamp on first use and advances the
// workflow stage to the configured in-progress stage when one exists.
func (s *Service) Start(ctx context.Context, requestID string) (*models.Request, error) {
	unlock := s.locks.lock(requestID)
	defer unlock()

	request, err := s.Requests.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TimerState == models.TimerDone {
		return nil, errs.Validationf("timer for request %s is already done", request.Code)
	}
	if err := s.rejectTerminalStage(ctx, request); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if _, err := s.Segments.CloseOpenSegments(ctx, requestID, now); err != nil {
		return nil, err
	}

	segment := models.TimeSegment{
		RequestID: requestID,
		Kind:      models.SegmentActive,
		Start:     now,
		Name:      "Work - " + requestLabel(request),
		Date:      now,
	}
	if _, err := s.Segments.InsertSegment(ctx, segment); err != nil {
		return nil, err
	}

	if request.StartedAt == nil {
		request.StartedAt = &now
	}
	request.TimerState = models.TimerActive

	if err := s.advanceStage(ctx, request, models.StageKeyInProgress, "In Progress"); err != nil {
		return nil, err
	}
	if err := s.saveWithDuration(ctx, request, now); err != nil {
		return nil, err
	}
	log.WithField("request", requestID).Debug("timer started")
	return request, nil
}

// Pause closes the open active segment and opens a pause segment carrying
// the given cause. The cause is mandatory and must be active.
func (s *Service) Pause(ctx context.Context, requestID, causeID string) (*models.Request, error) {
	unlock := s.locks.lock(requestID)
	defer unlock()

	request, err := s.Requests.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TimerState != models.TimerActive {
		return nil, errs.Validationf("cannot pause request %s: timer is %s", request.Code, request.TimerState)
	}
	if err := s.rejectTerminalStage(ctx, request); err != nil {
		return nil, err
	}
	if causeID == "" {
		return nil, errs.Validationf("a pause cause is required")
	}
	cause, err := s.Causes.FindPauseCauseByID(ctx, causeID)
	if err != nil {
		return nil, err
	}
	if !cause.Active {
		return nil, errs.Validationf("pause cause %q is inactive", cause.Name)
	}

	now := s.Clock.Now()
	if _, err := s.Segments.CloseOpenSegments(ctx, requestID, now); err != nil {
		return nil, err
	}
	segment := models.TimeSegment{
		RequestID:    requestID,
		Kind:         models.SegmentPause,
		PauseCauseID: causeID,
		Start:        now,
		Name:         "Pause - " + requestLabel(request),
		Date:         now,
	}
	if _, err := s.Segments.InsertSegment(ctx, segment); err != nil {
		return nil, err
	}

	request.TimerState = models.TimerPause
	if err := s.saveWithDuration(ctx, request, now); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"request": requestID, "cause": cause.Name}).Debug("timer paused")
	return request, nil
}

// Continue closes the open pause segment and opens a new active segment.
// No stage change.
func (s *Service) Continue(ctx context.Context, requestID string) (*models.Request, error) {
	unlock := s.locks.lock(requestID)
	defer unlock()

	request, err := s.Requests.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TimerState != models.TimerPause {
		return nil, errs.Validationf("cannot continue request %s: timer is %s", request.Code, request.TimerState)
	}
	if err := s.rejectTerminalStage(ctx, request); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if _, err := s.Segments.CloseOpenSegments(ctx, requestID, now); err != nil {
		return nil, err
	}
	segment := models.TimeSegment{
		RequestID: requestID,
		Kind:      models.SegmentActive,
		Start:     now,
		Name:      "Work - " + requestLabel(request),
		Date:      now,
	}
	if _, err := s.Segments.InsertSegment(ctx, segment); err != nil {
		return nil, err
	}

	request.TimerState = models.TimerActive
	if err := s.saveWithDuration(ctx, request, now); err != nil {
		return nil, err
	}
	log.WithField("request", requestID).Debug("timer continued")
	return request, nil
}

// Finish closes any open segment, stamps the end-of-execution timestamp
// and moves the timer to done. Advances the workflow stage to the
// configured review stage when one exists. Done is terminal for the
// timer, independent of the workflow stage's own terminality.
func (s *Service) Finish(ctx context.Context, requestID string) (*models.Request, error) {
	unlock := s.locks.lock(requestID)
	defer unlock()

	request, err := s.Requests.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TimerState != models.TimerActive && request.TimerState != models.TimerPause {
		return nil, errs.Validationf("cannot finish request %s: timer is %s", request.Code, request.TimerState)
	}
	if err := s.rejectTerminalStage(ctx, request); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if _, err := s.Segments.CloseOpenSegments(ctx, requestID, now); err != nil {
		return nil, err
	}

	if request.EndedAt == nil {
		request.EndedAt = &now
	}
	request.TimerState = models.TimerDone

	if err := s.advanceStage(ctx, request, models.StageKeyReview, "Review"); err != nil {
		return nil, err
	}
	if err := s.saveWithDuration(ctx, request, now); err != nil {
		return nil, err
	}
	log.WithField("request", requestID).Debug("timer finished")
	return request, nil
}

// ActiveDuration returns the request's total active work time as of now:
// closed active segments plus the live duration of an open active
// segment, never negative.
func (s *Service) ActiveDuration(ctx context.Context, requestID string) (hours float64, display string, err error) {
	segments, err := s.Segments.FindSegmentsByRequest(ctx, requestID)
	if err != nil {
		return 0, "", err
	}
	total := sumActive(segments, s.Clock.Now())
	return roundHours(total), models.FormatDuration(total), nil
}

// rejectTerminalStage bars timer transitions on a request whose workflow
// stage is terminal. Terminal requests change only through the guarded
// confirmation flow.
func (s *Service) rejectTerminalStage(ctx context.Context, request *models.Request) error {
	if s.Stages == nil || request.StageID == "" {
		return nil
	}
	stage, err := s.Stages.FindStageByID(ctx, request.StageID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return err
	}
	if stage.IsTerminal() {
		return errs.Validationf("request %s is in restricted stage %q", request.Code, stage.Name)
	}
	return nil
}

func (s *Service) advanceStage(ctx context.Context, request *models.Request, key, legacyName string) error {
	if s.Stages == nil {
		return nil
	}
	stage, err := s.Stages.FindStageByKey(ctx, key)
	if err != nil {
		return err
	}
	if stage == nil {
		stage, err = s.Stages.FindStageByName(ctx, legacyName)
		if err != nil {
			return err
		}
	}
	if stage == nil || request.StageID == stage.ID.Hex() {
		return nil
	}
	request.StageID = stage.ID.Hex()
	request.IsPreviousMonth, request.IsCurrentMonth = models.ComputeMonthFlags(
		request.ScheduledDate, stage.Name, dateutil.Today(s.Clock.Now()))
	return nil
}

// saveWithDuration recomputes the aggregate active duration from the
// request's segments and persists the request.
func (s *Service) saveWithDuration(ctx context.Context, request *models.Request, now time.Time) error {
	segments, err := s.Segments.FindSegmentsByRequest(ctx, request.ID.Hex())
	if err != nil {
		return err
	}
	total := sumActive(segments, now)
	request.DurationHours = roundHours(total)
	request.DurationDisplay = models.FormatDuration(total)
	return s.Requests.UpdateRequest(ctx, request.ID.Hex(), *request)
}

func sumActive(segments []models.TimeSegment, now time.Time) time.Duration {
	var total time.Duration
	for i := range segments {
		if segments[i].Kind == models.SegmentActive {
			total += segments[i].Duration(now)
		}
	}
	if total < 0 {
		total = 0
	}
	return total
}

func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}

func requestLabel(request *models.Request) string {
	if request.Name != "" {
		return request.Name
	}
	return request.Code
}

// keyedMutex hands out one mutex per request ID.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}
