package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusPending   Status = "pending"
	StatusWaitlist  Status = "waitlist"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusWaitlist, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Registration is a participant's attempt to reserve a seat at an event.
type Registration struct {
	ID                 uuid.UUID  `json:"id"`
	EventID            int64      `json:"event_id"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name,omitempty"`
	Phone              string     `json:"phone"`
	DesiredDomain      string     `json:"desired_domain,omitempty"`
	HasDomain          bool       `json:"has_domain"`
	Status             Status     `json:"status"`
	Token              *string    `json:"-"`
	TokenExpires       *time.Time `json:"-"`
	// ConfirmedTokenHash is the SHA-256 of the link token that confirmed the row.
	ConfirmedTokenHash *string    `json:"-"`
	PaymentSessionID   *string    `json:"payment_session_id,omitempty"`
	Amount             *int       `json:"amount,omitempty"`
	RegisteredAt       time.Time  `json:"registered_at"`
	ReservedAt         *time.Time `json:"reserved_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// FullName joins first and last name.
func (r *Registration) FullName() string {
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}
