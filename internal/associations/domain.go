package associations

import (
	"context"
	"time"
)

// Status is the lifecycle state of an association.
type Status string

const (
	StatusCurrent  Status = "CURRENT"
	StatusPending  Status = "PENDING"
	StatusInactive Status = "INACTIVE"
)

// Association binds a user to a profile within a structure for a period.
type Association struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"userId"`
	ProfileCode string     `json:"profileCode"`
	StructureID int64      `json:"structureId"`
	TypeCode    string     `json:"typeCode"`
	StartDate   time.Time  `json:"startDate"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Expired reports whether the end date has passed at now.
func (a Association) Expired(now time.Time) bool {
	return a.EndDate != nil && !a.EndDate.After(now)
}

// Active reports whether the association can still be used at now.
func (a Association) Active(now time.Time) bool {
	return a.Status != StatusInactive && !a.Expired(now)
}

// Hook runs inside the user's critical section after an association became
// CURRENT. Returning an error rolls the change back.
type Hook func(ctx context.Context, promoted Association) error

// CreateInput carries the fields for a new association.
type CreateInput struct {
	UserID      int64
	ProfileCode string
	StructureID int64
	TypeCode    string
	StartDate   time.Time
	EndDate     *time.Time
	OnPromote   Hook
}

// SwitchResult describes a completed default switch.
type SwitchResult struct {
	Current  Association
	Demoted  *Association
	Switched bool
}
