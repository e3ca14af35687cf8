package registrations

import (
	"errors"
	"fmt"

	"github.com/aura-events/backend/internal/events"
)

var (
	ErrNotFound            = errors.New("registration not found")
	ErrEventNotFound       = events.ErrNotFound
	ErrAlreadyRegistered   = errors.New("already registered for this event")
	ErrCheckoutUnavailable = errors.New("payment is required but no payment gateway is configured")
	ErrConfirmedImmutable  = errors.New("confirmed registrations cannot be cancelled here")
	ErrNotPending          = errors.New("registration is not pending")
)

// ValidationError reports bad input. Its message is safe to show the participant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// StorageError wraps a persistence failure. Op names the store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func isEventNotFound(err error) bool { return errors.Is(err, ErrEventNotFound) }
