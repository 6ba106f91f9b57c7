package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TimerState is the work-tracking state of a maintenance request.
type TimerState string

const (
	TimerIdle   TimerState = "idle"
	TimerActive TimerState = "active"
	TimerPause  TimerState = "pause"
	TimerDone   TimerState = "done"
)

// RequestKind distinguishes plan-generated work from breakdown work.
type RequestKind string

const (
	KindPreventive RequestKind = "preventive"
	KindCorrective RequestKind = "corrective"
)

// Request represents one maintenance work-order instance.
type Request struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Code            string             `json:"code" bson:"code"`
	Name            string             `json:"name" bson:"name"`
	PlanID          *string            `json:"plan_id,omitempty" bson:"plan_id,omitempty"` // nil for corrective requests
	AssetID         string             `json:"asset_id" bson:"asset_id"`
	Kind            RequestKind        `json:"kind" bson:"kind"`
	ScheduledDate   time.Time          `json:"scheduled_date" bson:"scheduled_date"`
	IssueDate       time.Time          `json:"issue_date" bson:"issue_date"`
	DateLimit       *time.Time         `json:"date_limit,omitempty" bson:"date_limit,omitempty"`
	StageID         string             `json:"stage_id" bson:"stage_id"`
	TimerState      TimerState         `json:"timer_state" bson:"timer_state"`
	StartedAt       *time.Time         `json:"started_at,omitempty" bson:"started_at,omitempty"` // start of execution
	EndedAt         *time.Time         `json:"ended_at,omitempty" bson:"ended_at,omitempty"`     // end of execution
	CheckedAt       *time.Time         `json:"checked_at,omitempty" bson:"checked_at,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	DurationHours   float64            `json:"duration_hours" bson:"duration_hours"`
	DurationDisplay string             `json:"duration_display" bson:"duration_display"`
	TechnicianID    string             `json:"technician_id" bson:"technician_id"`
	HoursAssetUse   int                `json:"hours_asset_use" bson:"hours_asset_use"`
	Description     string             `json:"description" bson:"description"`
	IsPreviousMonth bool               `json:"is_previous_month" bson:"is_previous_month"`
	IsCurrentMonth  bool               `json:"is_current_month" bson:"is_current_month"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

// openStageNames are the stage names that count as still-open work for
// the previous-month board flag.
var openStageNames = map[string]bool{
	"new request": true,
	"in progress": true,
}

// ComputeMonthFlags recomputes the board bucket flags from the scheduled
// date and the current stage name. Previous-month only flags requests that
// are still in an open stage; current-month flags by date alone.
func ComputeMonthFlags(scheduled time.Time, stageName string, today time.Time) (isPreviousMonth, isCurrentMonth bool) {
	firstOfCurrent := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	lastOfPrevious := firstOfCurrent.AddDate(0, 0, -1)
	firstOfPrevious := time.Date(lastOfPrevious.Year(), lastOfPrevious.Month(), 1, 0, 0, 0, 0, today.Location())
	firstOfNext := firstOfCurrent.AddDate(0, 1, 0)

	d := time.Date(scheduled.Year(), scheduled.Month(), scheduled.Day(), 0, 0, 0, 0, today.Location())
	name := strings.ToLower(strings.TrimSpace(stageName))

	if !d.Before(firstOfPrevious) && d.Before(firstOfCurrent) {
		isPreviousMonth = openStageNames[name]
	}
	if !d.Before(firstOfCurrent) && d.Before(firstOfNext) {
		isCurrentMonth = true
	}
	return isPreviousMonth, isCurrentMonth
}
