package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// IntervalUnit is a calendar unit used by plan recurrence math.
type IntervalUnit string

const (
	UnitDay   IntervalUnit = "day"
	UnitWeek  IntervalUnit = "week"
	UnitMonth IntervalUnit = "month"
	UnitYear  IntervalUnit = "year"
)

// IsValidIntervalUnit checks if a unit is one of the supported calendar units.
func IsValidIntervalUnit(unit IntervalUnit) bool {
	switch unit {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	default:
		return false
	}
}

// CodeUnassigned is the sentinel code for records the sequence allocator
// has not numbered yet.
const CodeUnassigned = "/"

// Plan represents a recurring maintenance program for one asset.
type Plan struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Code          string             `json:"code" bson:"code"`
	Name          string             `json:"name" bson:"name"`
	AssetID       string             `json:"asset_id" bson:"asset_id"`
	Interval      int                `json:"interval" bson:"interval"` // must be > 0
	IntervalUnit  IntervalUnit       `json:"interval_unit" bson:"interval_unit"`
	HorizonLength int                `json:"horizon_length" bson:"horizon_length"`
	HorizonUnit   IntervalUnit       `json:"horizon_unit" bson:"horizon_unit"`
	AnchorDate    time.Time          `json:"anchor_date" bson:"anchor_date"` // start maintenance date
	NextDate      time.Time          `json:"next_date" bson:"next_date"`     // next occurrence date, non-decreasing
	Note          string             `json:"note" bson:"note"`               // work instructions shown on each request
	Active        bool               `json:"active" bson:"active"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}
