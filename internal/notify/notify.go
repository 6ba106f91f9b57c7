package notify

import (
	"context"

	"github.com/ukydev/maintenance-tracker/internal/models"
)

// StageEvent is published whenever a request changes workflow stage.
type StageEvent struct {
	RequestID   string `json:"request_id"`
	RequestCode string `json:"request_code"`
	RequestName string `json:"request_name"`
	AssetID     string `json:"asset_id"`
	StageID     string `json:"stage_id"`
	StageName   string `json:"stage_name"`
	Terminal    bool   `json:"terminal"`
	OccurredAt  string `json:"occurred_at"`
}

// Notifier is the downstream activity hook run after a stage change.
type Notifier interface {
	StageChanged(ctx context.Context, request *models.Request, stage *models.Stage) error
}

// Noop discards every event. Used in tests and deployments without a
// broker.
type Noop struct{}

func (Noop) StageChanged(context.Context, *models.Request, *models.Stage) error { return nil }
