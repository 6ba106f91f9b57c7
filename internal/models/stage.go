package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Well-known stage keys. Deployments seed stages carrying these keys so
// the workflow can resolve them without depending on display names.
const (
	StageKeyNew        = "new"
	StageKeyInProgress = "in_progress"
	StageKeyReview     = "review"
	StageKeyDone       = "done"
	StageKeyCancelled  = "cancelled"
)

// Stage represents one position in the maintenance workflow.
type Stage struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Key       string             `json:"key" bson:"key"` // deployment-stable identifier, may be empty on legacy data
	Name      string             `json:"name" bson:"name"`
	Sequence  int                `json:"sequence" bson:"sequence"`
	Terminal  bool               `json:"terminal" bson:"terminal"` // reachable only through the confirm workflow
	Folded    bool               `json:"folded" bson:"folded"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// legacyTerminalNames matches terminal stages on deployments that predate
// the Terminal flag and the stage keys. Compatibility fallback only; the
// Terminal flag is the source of truth.
var legacyTerminalNames = map[string]bool{
	"Done":      true,
	"Cancelled": true,
	"Repaired":  true,
	"Scrap":     true,
}

// IsTerminal reports whether the stage belongs to the terminal set.
func (s *Stage) IsTerminal() bool {
	if s == nil {
		return false
	}
	return s.Terminal || legacyTerminalNames[s.Name]
}
