package models

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SegmentKind is the kind of a time segment.
type SegmentKind string

const (
	SegmentActive SegmentKind = "active"
	SegmentPause  SegmentKind = "pause"
)

// TimeSegment is one continuous interval of active work or pause on a
// maintenance request. It doubles as an analytic-ledger line: the active
// duration is mirrored into UnitAmount so downstream cost reporting can
// consume it unchanged.
type TimeSegment struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RequestID       string             `json:"request_id" bson:"request_id"`
	Kind            SegmentKind        `json:"kind" bson:"kind"`
	PauseCauseID    string             `json:"pause_cause_id,omitempty" bson:"pause_cause_id,omitempty"` // required iff kind == pause
	Start           time.Time          `json:"start" bson:"start"`
	End             *time.Time         `json:"end,omitempty" bson:"end,omitempty"` // nil while the segment is open
	DurationHours   float64            `json:"duration_hours" bson:"duration_hours"`
	DurationDisplay string             `json:"duration_display" bson:"duration_display"`
	Description     string             `json:"description" bson:"description"`

	// Analytic-ledger fields.
	Name       string    `json:"name" bson:"name"`
	AccountID  string    `json:"account_id" bson:"account_id"`
	UnitAmount float64   `json:"unit_amount" bson:"unit_amount"`
	Date       time.Time `json:"date" bson:"date"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Open reports whether the segment has no end timestamp yet.
func (s *TimeSegment) Open() bool { return s.End == nil }

// Duration returns the segment's elapsed time as of now, clamped to >= 0.
// An open segment contributes its live duration.
func (s *TimeSegment) Duration(now time.Time) time.Duration {
	end := now
	if s.End != nil {
		end = *s.End
	}
	d := end.Sub(s.Start)
	if d < 0 {
		return 0
	}
	return d
}

// Recompute refreshes the derived duration fields from Start/End. Must be
// called whenever Kind, Start or End changes.
func (s *TimeSegment) Recompute(now time.Time) {
	d := s.Duration(now)
	s.DurationHours = math.Round(d.Hours()*100) / 100
	s.DurationDisplay = FormatDuration(d)
	s.UnitAmount = s.DurationHours
}

// Validate checks the segment's own invariants.
func (s *TimeSegment) Validate() error {
	if s.Start.IsZero() {
		return fmt.Errorf("time segment requires a start timestamp")
	}
	if s.End != nil && s.End.Before(s.Start) {
		return fmt.Errorf("time segment end %s is before start %s", s.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
	}
	if s.Kind == SegmentPause && s.PauseCauseID == "" {
		return fmt.Errorf("pause segments require a pause cause")
	}
	return nil
}

// FormatDuration renders a duration as HH:MM:SS, clamped to >= 0.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
