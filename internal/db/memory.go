package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ukydev/maintenance-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is a map-backed store implementing every collection interface.
// It backs unit tests and broker-less demo runs; semantics mirror the
// Mongo implementations, including the (nil, nil) miss conventions.
type Memory struct {
	mu       sync.Mutex
	plans    map[string]models.Plan
	requests map[string]models.Request
	segments map[string]models.TimeSegment
	stages   map[string]models.Stage
	causes   map[string]models.PauseCause
	assets   map[string]models.Asset
	users    map[string]models.User
	counters map[string]int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		plans:    make(map[string]models.Plan),
		requests: make(map[string]models.Request),
		segments: make(map[string]models.TimeSegment),
		stages:   make(map[string]models.Stage),
		causes:   make(map[string]models.PauseCause),
		assets:   make(map[string]models.Asset),
		users:    make(map[string]models.User),
		counters: make(map[string]int64),
	}
}

// InsertPlan implements PlanCollection.
func (m *Memory) InsertPlan(_ context.Context, plan models.Plan) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan.ID = primitive.NewObjectID()
	plan.CreatedAt = time.Now()
	plan.UpdatedAt = time.Now()
	if plan.Code == "" {
		plan.Code = models.CodeUnassigned
	}
	m.plans[plan.ID.Hex()] = plan
	return &plan, nil
}

// FindPlanByID implements PlanCollection.
func (m *Memory) FindPlanByID(_ context.Context, id string) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return &plan, nil
}

// FindActivePlans implements PlanCollection.
func (m *Memory) FindActivePlans(_ context.Context) ([]models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var plans []models.Plan
	for _, p := range m.plans {
		if p.Active {
			plans = append(plans, p)
		}
	}
	return plans, nil
}

// UpdatePlan implements PlanCollection.
func (m *Memory) UpdatePlan(_ context.Context, id string, plan models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.plans[id]
	if !ok {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	plan.ID = existing.ID
	plan.UpdatedAt = time.Now()
	m.plans[id] = plan
	return nil
}

// UpdatePlanDates implements PlanCollection.
func (m *Memory) UpdatePlanDates(_ context.Context, id string, next, anchor time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[id]
	if !ok {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	plan.NextDate = next
	plan.AnchorDate = anchor
	plan.UpdatedAt = time.Now()
	m.plans[id] = plan
	return nil
}

// DeletePlan implements PlanCollection.
func (m *Memory) DeletePlan(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[id]; !ok {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	delete(m.plans, id)
	return nil
}

// InsertRequest implements RequestCollection.
func (m *Memory) InsertRequest(_ context.Context, request models.Request) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Enforce the same uniqueness the Mongo index provides.
	if request.PlanID != nil {
		for _, r := range m.requests {
			if r.PlanID != nil && *r.PlanID == *request.PlanID && sameDay(r.ScheduledDate, request.ScheduledDate) {
				return nil, fmt.Errorf("duplicate request for plan %s on %s", *request.PlanID, request.ScheduledDate.Format("2006-01-02"))
			}
		}
	}
	request.ID = primitive.NewObjectID()
	request.CreatedAt = time.Now()
	request.UpdatedAt = time.Now()
	if request.Code == "" {
		request.Code = models.CodeUnassigned
	}
	if request.TimerState == "" {
		request.TimerState = models.TimerIdle
	}
	m.requests[request.ID.Hex()] = request
	return &request, nil
}

// FindRequestByID implements RequestCollection.
func (m *Memory) FindRequestByID(_ context.Context, id string) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("maintenance request %s: %w", id, ErrNotFound)
	}
	return &request, nil
}

// FindRequestsByPlan implements RequestCollection.
func (m *Memory) FindRequestsByPlan(_ context.Context, planID string) ([]models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var requests []models.Request
	for _, r := range m.requests {
		if r.PlanID != nil && *r.PlanID == planID {
			requests = append(requests, r)
		}
	}
	return requests, nil
}

// FindRequestsByAsset implements RequestCollection.
func (m *Memory) FindRequestsByAsset(_ context.Context, assetID string) ([]models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var requests []models.Request
	for _, r := range m.requests {
		if r.AssetID == assetID {
			requests = append(requests, r)
		}
	}
	return requests, nil
}

// FindLatestScheduled implements RequestCollection.
func (m *Memory) FindLatestScheduled(_ context.Context, planID string, onOrAfter time.Time) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Request
	for _, r := range m.requests {
		if r.PlanID == nil || *r.PlanID != planID || r.ScheduledDate.Before(onOrAfter) {
			continue
		}
		r := r
		if latest == nil || r.ScheduledDate.After(latest.ScheduledDate) {
			latest = &r
		}
	}
	return latest, nil
}

// UpdateRequest implements RequestCollection.
func (m *Memory) UpdateRequest(_ context.Context, id string, request models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("maintenance request %s: %w", id, ErrNotFound)
	}
	request.ID = existing.ID
	request.UpdatedAt = time.Now()
	m.requests[id] = request
	return nil
}

// DeleteRequest implements RequestCollection.
func (m *Memory) DeleteRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return fmt.Errorf("maintenance request %s: %w", id, ErrNotFound)
	}
	delete(m.requests, id)
	return nil
}

// InsertSegment implements SegmentCollection.
func (m *Memory) InsertSegment(_ context.Context, segment models.TimeSegment) (*models.TimeSegment, error) {
	if err := segment.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	segment.ID = primitive.NewObjectID()
	segment.CreatedAt = time.Now()
	segment.UpdatedAt = time.Now()
	m.segments[segment.ID.Hex()] = segment
	return &segment, nil
}

// FindSegmentsByRequest implements SegmentCollection.
func (m *Memory) FindSegmentsByRequest(_ context.Context, requestID string) ([]models.TimeSegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var segments []models.TimeSegment
	for _, s := range m.segments {
		if s.RequestID == requestID {
			segments = append(segments, s)
		}
	}
	return segments, nil
}

// FindOpenSegment implements SegmentCollection.
func (m *Memory) FindOpenSegment(_ context.Context, requestID string) (*models.TimeSegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.segments {
		if s.RequestID == requestID && s.End == nil {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

// CloseOpenSegments implements SegmentCollection.
func (m *Memory) CloseOpenSegments(_ context.Context, requestID string, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := 0
	for id, s := range m.segments {
		if s.RequestID != requestID || s.End != nil {
			continue
		}
		segEnd := end
		if segEnd.Before(s.Start) {
			segEnd = s.Start
		}
		s.End = &segEnd
		s.Recompute(segEnd)
		s.UpdatedAt = time.Now()
		m.segments[id] = s
		closed++
	}
	return closed, nil
}

// DeleteSegmentsByRequest implements SegmentCollection.
func (m *Memory) DeleteSegmentsByRequest(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.segments {
		if s.RequestID == requestID {
			delete(m.segments, id)
		}
	}
	return nil
}

// InsertStage implements StageCollection.
func (m *Memory) InsertStage(_ context.Context, stage models.Stage) (*models.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stage.ID = primitive.NewObjectID()
	stage.CreatedAt = time.Now()
	m.stages[stage.ID.Hex()] = stage
	return &stage, nil
}

// FindStageByID implements StageCollection.
func (m *Memory) FindStageByID(_ context.Context, id string) (*models.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stage, ok := m.stages[id]
	if !ok {
		return nil, fmt.Errorf("stage %s: %w", id, ErrNotFound)
	}
	return &stage, nil
}

// FindStageByKey implements StageCollection.
func (m *Memory) FindStageByKey(_ context.Context, key string) (*models.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stages {
		if s.Key == key {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

// FindStageByName implements StageCollection.
func (m *Memory) FindStageByName(_ context.Context, name string) (*models.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stages {
		if s.Name == name {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

// FindStages implements StageCollection.
func (m *Memory) FindStages(_ context.Context) ([]models.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stages []models.Stage
	for _, s := range m.stages {
		stages = append(stages, s)
	}
	return stages, nil
}

// InsertPauseCause implements PauseCauseCollection.
func (m *Memory) InsertPauseCause(_ context.Context, cause models.PauseCause) (*models.PauseCause, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cause.ID = primitive.NewObjectID()
	cause.CreatedAt = time.Now()
	cause.UpdatedAt = time.Now()
	m.causes[cause.ID.Hex()] = cause
	return &cause, nil
}

// FindPauseCauseByID implements PauseCauseCollection.
func (m *Memory) FindPauseCauseByID(_ context.Context, id string) (*models.PauseCause, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cause, ok := m.causes[id]
	if !ok {
		return nil, fmt.Errorf("pause cause %s: %w", id, ErrNotFound)
	}
	return &cause, nil
}

// FindActivePauseCauses implements PauseCauseCollection.
func (m *Memory) FindActivePauseCauses(_ context.Context) ([]models.PauseCause, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var causes []models.PauseCause
	for _, c := range m.causes {
		if c.Active {
			causes = append(causes, c)
		}
	}
	return causes, nil
}

// SetPauseCauseActive implements PauseCauseCollection.
func (m *Memory) SetPauseCauseActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cause, ok := m.causes[id]
	if !ok {
		return fmt.Errorf("pause cause %s: %w", id, ErrNotFound)
	}
	cause.Active = active
	cause.UpdatedAt = time.Now()
	m.causes[id] = cause
	return nil
}

// InsertAsset implements AssetCollection.
func (m *Memory) InsertAsset(_ context.Context, asset models.Asset) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset.ID = primitive.NewObjectID()
	asset.CreatedAt = time.Now()
	if asset.ApprovalStatus == "" {
		asset.ApprovalStatus = models.AssetApproved
	}
	m.assets[asset.ID.Hex()] = asset
	return &asset, nil
}

// FindAssetByID implements AssetCollection.
func (m *Memory) FindAssetByID(_ context.Context, id string) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return &asset, nil
}

// FindAssets implements AssetCollection.
func (m *Memory) FindAssets(_ context.Context) ([]models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var assets []models.Asset
	for _, a := range m.assets {
		assets = append(assets, a)
	}
	return assets, nil
}

// UpdateAsset implements AssetCollection.
func (m *Memory) UpdateAsset(_ context.Context, id string, asset models.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.assets[id]
	if !ok {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	asset.ID = existing.ID
	m.assets[id] = asset
	return nil
}

// UpdateAssetApproval implements AssetCollection.
func (m *Memory) UpdateAssetApproval(_ context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[id]
	if !ok {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	asset.ApprovalStatus = status
	m.assets[id] = asset
	return nil
}

// DeleteAsset implements AssetCollection.
func (m *Memory) DeleteAsset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[id]; !ok {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	delete(m.assets, id)
	return nil
}

// NextCode implements SequenceAllocator.
func (m *Memory) NextCode(_ context.Context, name string) (string, error) {
	format, ok := codeFormats[name]
	if !ok {
		return models.CodeUnassigned, fmt.Errorf("unknown sequence %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
	return fmt.Sprintf(format, m.counters[name]), nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
