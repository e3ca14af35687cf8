package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/models"
)

// SessionRecorder stores the created session on the registration.
type SessionRecorder interface {
	SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string, amount int) error
}

// CheckoutRequest is the input to Orchestrator.CreateSession.
type CheckoutRequest struct {
	Registration *models.Registration
	Description  string
	AmountCents  int
	Currency     string
	SuccessURL   string
	CancelURL    string
}

// Orchestrator turns a pending registration into a provider checkout session.
type Orchestrator struct {
	gateway  PaymentGateway
	recorder SessionRecorder
	timeout  time.Duration
	logger   *zap.Logger
}

// NewOrchestrator creates a checkout orchestrator for one gateway.
func NewOrchestrator(gateway PaymentGateway, recorder SessionRecorder, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{gateway: gateway, recorder: recorder, timeout: timeout, logger: logger}
}

// Gateway returns the gateway name.
func (o *Orchestrator) Gateway() string { return o.gateway.Name() }

// CreateSession creates the session and records its id on the registration. Recording is best-effort:
// the webhook falls back to the registration id carried in session metadata.
func (o *Orchestrator) CreateSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	reg := req.Registration
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	sess, err := o.gateway.CreateSession(callCtx, SessionParams{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		CustomerEmail:  reg.Email,
		Description:    req.Description,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		AttemptID:      uuid.NewString(),
	})
	if err != nil {
		ge := AsGatewayError(o.gateway.Name(), err)
		o.logger.Error("checkout session failed",
			zap.String("gateway", ge.Gateway),
			zap.String("kind", string(ge.Kind)),
			zap.Int("status", ge.StatusCode),
			zap.String("registration_id", reg.ID.String()),
			zap.Error(err),
		)
		return nil, ge
	}

	if err := o.recorder.SetPaymentSession(ctx, reg.ID, sess.ID, req.AmountCents); err != nil {
		o.logger.Warn("record payment session failed",
			zap.String("registration_id", reg.ID.String()),
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	} else {
		reg.PaymentSessionID = &sess.ID
		amount := req.AmountCents
		reg.Amount = &amount
	}
	o.logger.Info("checkout session created",
		zap.String("gateway", o.gateway.Name()),
		zap.String("registration_id", reg.ID.String()),
		zap.String("session_id", sess.ID),
	)
	return sess, nil
}
