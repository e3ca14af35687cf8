// Package notify hands registration state changes to outbound collaborators (mail queue, event bus).
// Delivery is best-effort: callers log a failed dispatch and move on.
package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Kind selects the message a collaborator produces.
type Kind string

const (
	KindConfirmationRequest   Kind = "confirmation_request"
	KindRegistrationConfirmed Kind = "registration_confirmed"
	KindWaitlisted            Kind = "waitlisted"
	KindRegistrationCancelled Kind = "registration_cancelled"
	KindAdminNewRegistration  Kind = "admin_new_registration"
)

// Notification is one outbound message request.
type Notification struct {
	RegistrationID uuid.UUID         `json:"registration_id"`
	EventID        int64             `json:"event_id"`
	Recipient      string            `json:"recipient"`
	Kind           Kind              `json:"kind"`
	Context        map[string]string `json:"context,omitempty"`
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Dispatch(context.Context, Notification) error { return nil }

// Multi fans a notification out to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
