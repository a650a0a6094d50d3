package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses this service reacts to. The lifecycle itself is owned elsewhere.
const (
	OrderStatusPending  = "pending"
	OrderStatusAccepted = "accepted"
)

type Order struct {
	ID             uuid.UUID  `json:"id"`
	Number         string     `json:"order_number"`
	ClientID       uuid.UUID  `json:"client_id"`
	FreelancerID   *uuid.UUID `json:"freelancer_id,omitempty"`
	Status         string     `json:"status"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsParty reports whether userID is the client or the assigned freelancer.
func (o *Order) IsParty(userID uuid.UUID) bool {
	if o.ClientID == userID {
		return true
	}
	return o.FreelancerID != nil && *o.FreelancerID == userID
}

// OtherParty returns the party that is not userID. ok is false when userID
// is not a party or no freelancer is assigned yet.
func (o *Order) OtherParty(userID uuid.UUID) (uuid.UUID, bool) {
	if o.FreelancerID == nil {
		return uuid.Nil, false
	}
	switch userID {
	case o.ClientID:
		return *o.FreelancerID, true
	case *o.FreelancerID:
		return o.ClientID, true
	}
	return uuid.Nil, false
}

func (o *Order) Summary() *OrderSummary {
	return &OrderSummary{ID: o.ID, Number: o.Number, Status: o.Status}
}

type OrderSummary struct {
	ID     uuid.UUID `json:"id"`
	Number string    `json:"order_number"`
	Status string    `json:"status"`
}

// OrderStatusChanged is published by the order service on every transition.
type OrderStatusChanged struct {
	OrderID        uuid.UUID `json:"order_id"`
	PreviousStatus string    `json:"previous_status"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}
