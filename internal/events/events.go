package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the association ledger.
const (
	AssociationCreated         = "association.created"
	AssociationRevoked         = "association.revoked"
	AssociationDefaultSwitched = "association.default_switched"
	AssociationExpired         = "association.expired"
)

// Event is the envelope written to the broker.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// New builds an event with a fresh id.
func New(eventType, key string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events after the originating change committed.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
