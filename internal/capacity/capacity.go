// Package capacity decides whether an event still has a seat to reserve.
package capacity

import (
	"context"
	"errors"
	"fmt"
)

// ErrCapacityExceeded signals a full event. Callers route the request to the waitlist instead of failing.
var ErrCapacityExceeded = errors.New("event capacity exceeded")

// Unlimited is the Remaining value reported for events without a seat limit.
const Unlimited = -1

// Decision is the outcome of a capacity check.
type Decision struct {
	Reservable bool `json:"reservable"`
	Limit      int  `json:"max_place"`
	Confirmed  int  `json:"confirmed"`
	Remaining  int  `json:"remaining"`
}

// Err returns ErrCapacityExceeded when the decision is not reservable.
func (d Decision) Err() error {
	if d.Reservable {
		return nil
	}
	return ErrCapacityExceeded
}

// Decide compares the confirmed count with the limit. A limit of zero or less means unlimited.
func Decide(limit, confirmed int) Decision {
	if limit <= 0 {
		return Decision{Reservable: true, Limit: 0, Confirmed: confirmed, Remaining: Unlimited}
	}
	remaining := limit - confirmed
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Reservable: confirmed < limit, Limit: limit, Confirmed: confirmed, Remaining: remaining}
}

// Source reports confirmed registrations for an event.
type Source interface {
	CountConfirmed(ctx context.Context, eventID int64) (int, error)
}

// Counter reads confirmed counts and decides. It holds no lock; writers must decide again under their own.
type Counter struct {
	src Source
}

// NewCounter creates a capacity counter.
func NewCounter(src Source) *Counter {
	return &Counter{src: src}
}

// Check returns the current decision for an event.
func (c *Counter) Check(ctx context.Context, eventID int64, limit int) (Decision, error) {
	if limit <= 0 {
		return Decide(limit, 0), nil
	}
	n, err := c.src.CountConfirmed(ctx, eventID)
	if err != nil {
		return Decision{}, fmt.Errorf("count confirmed: %w", err)
	}
	return Decide(limit, n), nil
}
