package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/maintenance-tracker/internal/models"
)

// ErrNotFound is wrapped by lookups that match no document.
var ErrNotFound = errors.New("not found")

// Sequence names used by the code allocator.
const (
	SeqPlan    = "maintenance.plan"
	SeqRequest = "maintenance.request"
)

// PlanCollection defines the interface for maintenance plan operations.
type PlanCollection interface {
	InsertPlan(ctx context.Context, plan models.Plan) (*models.Plan, error)
	FindPlanByID(ctx context.Context, id string) (*models.Plan, error)
	FindActivePlans(ctx context.Context) ([]models.Plan, error)
	UpdatePlan(ctx context.Context, id string, plan models.Plan) error
	UpdatePlanDates(ctx context.Context, id string, next, anchor time.Time) error
	DeletePlan(ctx context.Context, id string) error
}

// RequestCollection defines the interface for maintenance request operations.
type RequestCollection interface {
	InsertRequest(ctx context.Context, request models.Request) (*models.Request, error)
	FindRequestByID(ctx context.Context, id string) (*models.Request, error)
	FindRequestsByPlan(ctx context.Context, planID string) ([]models.Request, error)
	FindRequestsByAsset(ctx context.Context, assetID string) ([]models.Request, error)
	// FindLatestScheduled returns the request under planID with the
	// greatest scheduled date on or after onOrAfter, or (nil, nil) when
	// no such request exists.
	FindLatestScheduled(ctx context.Context, planID string, onOrAfter time.Time) (*models.Request, error)
	UpdateRequest(ctx context.Context, id string, request models.Request) error
	DeleteRequest(ctx context.Context, id string) error
}

// SegmentCollection defines the interface for time segment operations.
type SegmentCollection interface {
	InsertSegment(ctx context.Context, segment models.TimeSegment) (*models.TimeSegment, error)
	FindSegmentsByRequest(ctx context.Context, requestID string) ([]models.TimeSegment, error)
	// FindOpenSegment returns the request's open segment, or (nil, nil)
	// when every segment is closed.
	FindOpenSegment(ctx context.Context, requestID string) (*models.TimeSegment, error)
	// CloseOpenSegments sets the end timestamp on every open segment of
	// the request and refreshes their derived durations. Returns how many
	// segments were closed.
	CloseOpenSegments(ctx context.Context, requestID string, end time.Time) (int, error)
	DeleteSegmentsByRequest(ctx context.Context, requestID string) error
}

// StageCollection defines the interface for workflow stage operations.
type StageCollection interface {
	InsertStage(ctx context.Context, stage models.Stage) (*models.Stage, error)
	FindStageByID(ctx context.Context, id string) (*models.Stage, error)
	// FindStageByKey resolves a stage by its deployment-stable key, or
	// (nil, nil) when no stage carries the key.
	FindStageByKey(ctx context.Context, key string) (*models.Stage, error)
	FindStageByName(ctx context.Context, name string) (*models.Stage, error)
	FindStages(ctx context.Context) ([]models.Stage, error)
}

// PauseCauseCollection defines the interface for pause cause operations.
type PauseCauseCollection interface {
	InsertPauseCause(ctx context.Context, cause models.PauseCause) (*models.PauseCause, error)
	FindPauseCauseByID(ctx context.Context, id string) (*models.PauseCause, error)
	FindActivePauseCauses(ctx context.Context) ([]models.PauseCause, error)
	SetPauseCauseActive(ctx context.Context, id string, active bool) error
}

// AssetCollection defines the interface for asset operations.
type AssetCollection interface {
	InsertAsset(ctx context.Context, asset models.Asset) (*models.Asset, error)
	FindAssetByID(ctx context.Context, id string) (*models.Asset, error)
	FindAssets(ctx context.Context) ([]models.Asset, error)
	UpdateAsset(ctx context.Context, id string, asset models.Asset) error
	UpdateAssetApproval(ctx context.Context, id string, status string) error
	DeleteAsset(ctx context.Context, id string) error
}

// SequenceAllocator issues formatted code strings for plans and requests.
// Implementations return models.CodeUnassigned alongside the error when a
// code cannot be issued, so callers can persist the sentinel and move on.
type SequenceAllocator interface {
	NextCode(ctx context.Context, name string) (string, error)
}
