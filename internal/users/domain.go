package users

import "time"

// User is an identity that may be bound to profiles.
type User struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Tel             string    `json:"tel"`
	HomeStructureID *int64    `json:"homeStructureId,omitempty"`
	Blocked         bool      `json:"blocked"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
