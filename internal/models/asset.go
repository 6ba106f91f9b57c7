package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Asset approval statuses.
const (
	AssetApproved   = "approved"
	AssetUnapproved = "unapproved"
)

// Asset represents one piece of maintained equipment.
type Asset struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code               string             `bson:"code" json:"code"`
	Name               string             `bson:"name" json:"name"`
	SerialNo           string             `bson:"serial_no" json:"serial_no"`
	Category           string             `bson:"category" json:"category"`
	Site               Location           `bson:"site" json:"site"`
	TechnicianID       string             `bson:"technician_id" json:"technician_id"`
	ReceptionDate      *time.Time         `bson:"reception_date,omitempty" json:"reception_date,omitempty"`
	WarrantyExpiration *time.Time         `bson:"warranty_expiration,omitempty" json:"warranty_expiration,omitempty"`
	ApprovalStatus     string             `bson:"approval_status" json:"approval_status"` // "approved" or "unapproved"
	Active             bool               `bson:"active" json:"active"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
}

// ComputeApprovalStatus derives an asset's approval status from its
// request history. An open corrective request marks the asset unapproved.
// Without plans the asset is approved by default. Otherwise the most
// recent past-dated request decides: approved only if it reached a
// terminal done-like stage.
func ComputeApprovalStatus(hasPlans bool, requests []Request, stageByID map[string]Stage, today time.Time) string {
	for _, r := range requests {
		if r.Kind != KindCorrective {
			continue
		}
		st, ok := stageByID[r.StageID]
		if !ok || !st.IsTerminal() {
			return AssetUnapproved
		}
	}

	if !hasPlans {
		return AssetApproved
	}

	var last *Request
	for i := range requests {
		r := &requests[i]
		if !r.ScheduledDate.Before(today) {
			continue
		}
		if last == nil || r.ScheduledDate.After(last.ScheduledDate) {
			last = r
		}
	}
	if last == nil {
		return AssetApproved
	}
	st, ok := stageByID[last.StageID]
	if ok && st.IsTerminal() && st.Key != StageKeyCancelled {
		return AssetApproved
	}
	return AssetUnapproved
}
