package models

import "time"

// Event is a bookable event with an optional seat limit and deposit.
type Event struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	StartsAt        time.Time `json:"starts_at"`
	MaxPlace        int       `json:"max_place"` // 0 = unlimited
	PaymentRequired bool      `json:"payment_required"`
	AmountCents     int       `json:"amount_cents"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Unlimited reports whether the event has no seat limit.
func (e *Event) Unlimited() bool { return e.MaxPlace <= 0 }
