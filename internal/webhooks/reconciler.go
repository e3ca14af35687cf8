// Package webhooks applies signed payment provider events to registrations.
package webhooks

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/payments"
	"github.com/aura-events/backend/internal/registrations"
)

// Transitions is the part of the registration service the reconciler drives.
type Transitions interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*models.Registration, error)
	ConfirmPayment(ctx context.Context, reg *models.Registration, sessionID string) (*models.Registration, bool, error)
	CancelPayment(ctx context.Context, reg *models.Registration) (bool, error)
}

// Reconciler verifies webhook deliveries and applies them.
type Reconciler struct {
	gateways *payments.Registry
	regs     Transitions
	now      func() time.Time
	logger   *zap.Logger
}

// NewReconciler creates a webhook reconciler.
func NewReconciler(gateways *payments.Registry, regs Transitions, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{gateways: gateways, regs: regs, now: time.Now, logger: logger}
}

// SignatureHeader returns the header a gateway signs its deliveries in.
func (r *Reconciler) SignatureHeader(gateway string) (string, bool) {
	gw, ok := r.gateways.Get(gateway)
	if !ok {
		return "", false
	}
	return gw.SignatureHeader(), true
}

// Handle processes one delivery and returns the HTTP status for the provider. 2xx stops redelivery;
// 500 is returned only when retrying can help.
func (r *Reconciler) Handle(ctx context.Context, gateway string, payload []byte, header string) int {
	gw, ok := r.gateways.Get(gateway)
	if !ok {
		return http.StatusNotFound
	}
	log := r.logger.With(zap.String("gateway", gateway))

	if err := gw.VerifyWebhookSignature(payload, header, r.now()); err != nil {
		if errors.Is(err, payments.ErrWebhookSecretMissing) {
			log.Error("webhook secret not configured")
			return http.StatusInternalServerError
		}
		log.Warn("webhook signature rejected", zap.Error(err))
		return http.StatusBadRequest
	}

	ev, err := gw.ParseEvent(payload)
	if err != nil {
		log.Warn("malformed webhook payload", zap.Error(err))
		return http.StatusBadRequest
	}
	log = log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.ProviderType))

	if ev.Type == payments.EventUnknown {
		log.Debug("webhook event ignored")
		return http.StatusOK
	}

	reg, err := r.resolve(ctx, ev)
	if err != nil {
		log.Error("resolve registration failed", zap.String("session_id", ev.SessionID), zap.Error(err))
		return http.StatusInternalServerError
	}
	if reg == nil {
		log.Warn("webhook for unknown registration",
			zap.String("registration_id", ev.RegistrationID),
			zap.String("session_id", ev.SessionID),
		)
		return http.StatusOK
	}
	log = log.With(zap.String("registration_id", reg.ID.String()), zap.String("session_id", ev.SessionID))

	switch ev.Type {
	case payments.EventCheckoutCompleted:
		return r.completed(ctx, log, reg, ev)
	case payments.EventCheckoutExpired, payments.EventCheckoutFailed:
		return r.abandoned(ctx, log, reg, ev)
	}
	return http.StatusOK
}

// resolve finds the registration by metadata id, then by session id. A nil registration with a nil
// error means neither matched.
func (r *Reconciler) resolve(ctx context.Context, ev *payments.Event) (*models.Registration, error) {
	if id, err := uuid.Parse(ev.RegistrationID); err == nil {
		reg, err := r.regs.Get(ctx, id)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, registrations.ErrNotFound) {
			return nil, err
		}
	}
	if ev.SessionID == "" {
		return nil, nil
	}
	reg, err := r.regs.GetByPaymentSession(ctx, ev.SessionID)
	if errors.Is(err, registrations.ErrNotFound) {
		return nil, nil
	}
	return reg, err
}

func (r *Reconciler) completed(ctx context.Context, log *zap.Logger, reg *models.Registration, ev *payments.Event) int {
	if reg.Status == models.StatusConfirmed {
		log.Debug("payment already applied")
		return http.StatusOK
	}
	_, changed, err := r.regs.ConfirmPayment(ctx, reg, ev.SessionID)
	if err != nil {
		if errors.Is(err, registrations.ErrAlreadyRegistered) {
			log.Warn("payment completed for a participant already confirmed through another registration")
			return http.StatusOK
		}
		log.Error("confirm payment failed", zap.Error(err))
		return http.StatusInternalServerError
	}
	if !changed {
		log.Warn("payment completed for a registration that is no longer pending", zap.String("status", string(reg.Status)))
	}
	return http.StatusOK
}

func (r *Reconciler) abandoned(ctx context.Context, log *zap.Logger, reg *models.Registration, ev *payments.Event) int {
	if reg.Status != models.StatusPending {
		log.Debug("checkout end ignored", zap.String("status", string(reg.Status)))
		return http.StatusOK
	}
	if reg.PaymentSessionID != nil && ev.SessionID != "" && *reg.PaymentSessionID != ev.SessionID {
		log.Info("checkout end for a superseded session ignored", zap.String("current_session_id", *reg.PaymentSessionID))
		return http.StatusOK
	}
	if _, err := r.regs.CancelPayment(ctx, reg); err != nil {
		log.Error("cancel registration failed", zap.Error(err))
		return http.StatusInternalServerError
	}
	return http.StatusOK
}
