package registrations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/models"
)

// ReserveRequest is everything Reserve needs to create or refresh a row.
type ReserveRequest struct {
	EventID       int64
	MaxPlace      int
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	DesiredDomain string
	HasDomain     bool
	// Token and TokenExpires go on new or refreshed pending rows; both nil for paid checkouts.
	Token        *string
	TokenExpires *time.Time
	Amount       *int
}

// ReserveOutcome says what Reserve did.
type ReserveOutcome string

const (
	OutcomeCreated   ReserveOutcome = "created"
	OutcomeRefreshed ReserveOutcome = "refreshed"
	OutcomeExisting  ReserveOutcome = "existing"
)

// ReserveResult is the row Reserve produced plus what happened to it.
type ReserveResult struct {
	Registration *models.Registration
	Outcome      ReserveOutcome
}

// Store persists registrations. Every status change is a conditional update on the current status.
type Store interface {
	// Reserve locks the event, rejects a confirmed duplicate, refreshes a pending one, or inserts
	// pending/waitlist according to capacity. All in one transaction.
	Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByPaymentSessionID(ctx context.Context, sessionID string) (*models.Registration, error)
	// Confirm flips pending to confirmed, clears the token and keeps the first session id. Reports whether the row changed.
	Confirm(ctx context.Context, id uuid.UUID, sessionID string) (bool, error)
	// ConfirmToken is Confirm for an emailed link: the row must still carry token. tokenHash is kept
	// so the same link can be opened again.
	ConfirmToken(ctx context.Context, id uuid.UUID, token, tokenHash string) (bool, error)
	// Cancel flips the row to cancelled only if its status is one of from.
	Cancel(ctx context.Context, id uuid.UUID, from ...models.Status) (bool, error)
	SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string, amount int) error
	ListByEvent(ctx context.Context, eventID int64, status models.Status) ([]models.Registration, error)
	CountByStatus(ctx context.Context, eventID int64) (map[models.Status]int, error)
	CountConfirmed(ctx context.Context, eventID int64) (int, error)
}

// NormalizeEmail is the participant identity within an event.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
