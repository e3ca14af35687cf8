package registrations

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/payments"
	"github.com/aura-events/backend/internal/tokens"
)

// EventReader loads event settings.
type EventReader interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// Checkout creates provider checkout sessions.
type Checkout interface {
	CreateSession(ctx context.Context, req payments.CheckoutRequest) (*payments.Session, error)
}

// Options holds the public URLs and addresses the service puts into links and notifications.
type Options struct {
	// PublicBaseURL prefixes confirmation links: {base}/registrations/{id}/confirm?token=...
	PublicBaseURL string
	// ReturnURL is where the provider sends the participant after checkout.
	ReturnURL  string
	AdminEmail string
}

// RegisterInput is a registration request.
type RegisterInput struct {
	EventID       int64  `json:"event_id" validate:"gt=0"`
	Email         string `json:"email" validate:"required,email,max=254"`
	FirstName     string `json:"first_name" validate:"required,max=100"`
	LastName      string `json:"last_name" validate:"max=100"`
	Phone         string `json:"phone" validate:"required,max=40"`
	DesiredDomain string `json:"desired_domain" validate:"omitempty,fqdn,max=253"`
	HasDomain     bool   `json:"has_domain"`
}

func (in *RegisterInput) normalize() {
	in.Email = NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.DesiredDomain = strings.ToLower(strings.TrimSpace(in.DesiredDomain))
}

// RegisterResult is what Register produced.
type RegisterResult struct {
	Registration *models.Registration
	Outcome      ReserveOutcome
	CheckoutURL  string
}

// Service drives the registration state machine.
type Service struct {
	store      Store
	events     EventReader
	tokens     *tokens.Service
	checkout   Checkout
	counter    *capacity.Counter
	dispatcher notify.Dispatcher
	validate   *validator.Validate
	opts       Options
	logger     *zap.Logger
}

// NewService creates the registration service. checkout may be nil when no gateway is configured.
func NewService(store Store, events EventReader, tok *tokens.Service, checkout Checkout, dispatcher notify.Dispatcher, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Service{
		store:      store,
		events:     events,
		tokens:     tok,
		checkout:   checkout,
		counter:    capacity.NewCounter(store),
		dispatcher: dispatcher,
		validate:   v,
		opts:       opts,
		logger:     logger,
	}
}

func (s *Service) validateInput(in RegisterInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: "invalid request"}
	}
	fe := verrs[0]
	msg := "is invalid"
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "email":
		msg = "must be a valid email address"
	case "gt":
		msg = "must be a positive number"
	case "max":
		msg = "is too long"
	case "fqdn":
		msg = "must be a domain name"
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}

// Register creates or refreshes the participant's registration. A full event yields a waitlist row;
// a paid event yields a checkout URL.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.normalize()
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	ev, err := s.events.GetByID(ctx, in.EventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("load event failed", zap.Int64("event_id", in.EventID), zap.Error(err))
		return nil, storageErr("load event", err)
	}
	paid := ev.PaymentRequired && ev.AmountCents > 0
	if paid && s.checkout == nil {
		return nil, ErrCheckoutUnavailable
	}

	req := ReserveRequest{
		EventID:       ev.ID,
		MaxPlace:      ev.MaxPlace,
		Email:         in.Email,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Phone:         in.Phone,
		DesiredDomain: in.DesiredDomain,
		HasDomain:     in.HasDomain,
	}
	if paid {
		amount := ev.AmountCents
		req.Amount = &amount
	} else {
		tok, exp, err := s.tokens.Issue()
		if err != nil {
			s.logger.Error("issue token failed", zap.Error(err))
			return nil, err
		}
		req.Token, req.TokenExpires = &tok, &exp
	}

	res, err := s.store.Reserve(ctx, req)
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) || errors.Is(err, ErrEventNotFound) {
			return nil, err
		}
		s.logger.Error("reserve registration failed", zap.Int64("event_id", ev.ID), zap.Error(err))
		return nil, storageErr("reserve", err)
	}
	reg := res.Registration
	out := &RegisterResult{Registration: reg, Outcome: res.Outcome}
	s.logger.Info("registration reserved",
		zap.String("registration_id", reg.ID.String()),
		zap.Int64("event_id", ev.ID),
		zap.String("status", string(reg.Status)),
		zap.String("outcome", string(res.Outcome)),
	)

	if res.Outcome == OutcomeCreated && s.opts.AdminEmail != "" {
		s.dispatch(ctx, s.notification(ev, reg, notify.KindAdminNewRegistration, s.opts.AdminEmail))
	}

	switch reg.Status {
	case models.StatusWaitlist:
		if res.Outcome == OutcomeCreated {
			s.dispatch(ctx, s.notification(ev, reg, notify.KindWaitlisted, reg.Email))
		}
	case models.StatusPending:
		if !paid {
			if reg.Token != nil {
				n := s.notification(ev, reg, notify.KindConfirmationRequest, reg.Email)
				n.Context["confirm_url"] = s.confirmURL(reg.ID, *reg.Token)
				n.Context["expires_at"] = reg.TokenExpires.UTC().Format("2006-01-02 15:04 MST")
				s.dispatch(ctx, n)
			}
			return out, nil
		}
		sess, err := s.checkout.CreateSession(ctx, payments.CheckoutRequest{
			Registration: reg,
			Description:  ev.Title,
			AmountCents:  ev.AmountCents,
			Currency:     ev.Currency,
			SuccessURL:   s.returnURL(reg.ID, "success"),
			CancelURL:    s.returnURL(reg.ID, "cancel"),
		})
		if err != nil {
			return nil, err
		}
		out.CheckoutURL = sess.URL
	}
	return out, nil
}

// Confirm redeems an emailed token. Opening the same link again after success returns the confirmed row.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, token string) (*models.Registration, error) {
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, tokens.ErrTokenInvalid
		}
		s.logger.Error("load registration failed", zap.String("registration_id", id.String()), zap.Error(err))
		return nil, storageErr("get", err)
	}
	if reg.Status == models.StatusConfirmed {
		if !redeemedWith(reg, token) {
			return nil, tokens.ErrTokenInvalid
		}
		return reg, nil
	}
	if reg.Status != models.StatusPending || reg.Token == nil || reg.TokenExpires == nil {
		return nil, tokens.ErrTokenInvalid
	}
	if err := s.tokens.Validate(token, *reg.Token, *reg.TokenExpires); err != nil {
		return nil, err
	}
	hash := tokens.Hash(token)
	updated, changed, err := s.confirm(ctx, reg, "email", func() (bool, error) {
		return s.store.ConfirmToken(ctx, reg.ID, token, hash)
	})
	if err != nil {
		return nil, err
	}
	// Unchanged means the token was replaced by a newer registration or redeemed concurrently.
	if !changed && !(updated.Status == models.StatusConfirmed && redeemedWith(updated, token)) {
		return nil, tokens.ErrTokenInvalid
	}
	return updated, nil
}

func redeemedWith(reg *models.Registration, token string) bool {
	return reg.ConfirmedTokenHash != nil && tokens.MatchesHash(token, *reg.ConfirmedTokenHash)
}

// ConfirmPayment applies a completed checkout. changed is false when the row was not pending.
func (s *Service) ConfirmPayment(ctx context.Context, reg *models.Registration, sessionID string) (*models.Registration, bool, error) {
	return s.confirm(ctx, reg, "payment", func() (bool, error) {
		return s.store.Confirm(ctx, reg.ID, sessionID)
	})
}

func (s *Service) confirm(ctx context.Context, reg *models.Registration, via string, update func() (bool, error)) (*models.Registration, bool, error) {
	changed, err := update()
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			s.logger.Warn("confirm rejected: participant already confirmed for event",
				zap.String("registration_id", reg.ID.String()), zap.Int64("event_id", reg.EventID))
			return reg, false, err
		}
		s.logger.Error("confirm registration failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		return reg, false, storageErr("confirm", err)
	}

	current := reg
	if fresh, err := s.store.GetByID(ctx, reg.ID); err == nil {
		current = fresh
	} else if !changed {
		return reg, false, storageErr("reload", err)
	} else {
		s.logger.Warn("reload after confirm failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		c := *reg
		c.Status = models.StatusConfirmed
		c.Token, c.TokenExpires = nil, nil
		current = &c
	}

	if changed {
		s.logger.Info("registration confirmed",
			zap.String("registration_id", reg.ID.String()),
			zap.Int64("event_id", reg.EventID),
			zap.String("via", via),
		)
		s.dispatch(ctx, s.notification(s.eventOrNil(ctx, reg.EventID), current, notify.KindRegistrationConfirmed, current.Email))
	}
	return current, changed, nil
}

// CancelPayment applies an expired or failed checkout. Only pending rows change.
func (s *Service) CancelPayment(ctx context.Context, reg *models.Registration) (bool, error) {
	changed, err := s.store.Cancel(ctx, reg.ID, models.StatusPending)
	if err != nil {
		s.logger.Error("cancel registration failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		return false, storageErr("cancel", err)
	}
	if changed {
		s.logger.Info("registration cancelled", zap.String("registration_id", reg.ID.String()), zap.String("via", "payment"))
		c := *reg
		c.Status = models.StatusCancelled
		s.dispatch(ctx, s.notification(s.eventOrNil(ctx, reg.EventID), &c, notify.KindRegistrationCancelled, c.Email))
	}
	return changed, nil
}

// Cancel is the operator cancellation of a pending or waitlisted registration.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch reg.Status {
	case models.StatusConfirmed:
		return nil, ErrConfirmedImmutable
	case models.StatusCancelled:
		return reg, nil
	}
	changed, err := s.store.Cancel(ctx, id, models.StatusPending, models.StatusWaitlist)
	if err != nil {
		s.logger.Error("cancel registration failed", zap.String("registration_id", id.String()), zap.Error(err))
		return nil, storageErr("cancel", err)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		if current.Status == models.StatusConfirmed {
			return nil, ErrConfirmedImmutable
		}
		return current, nil
	}
	s.logger.Info("registration cancelled", zap.String("registration_id", id.String()), zap.String("via", "operator"))
	s.dispatch(ctx, s.notification(s.eventOrNil(ctx, current.EventID), current, notify.KindRegistrationCancelled, current.Email))
	return current, nil
}

// ResendConfirmation re-sends the confirmation link of a pending registration with a live token.
func (s *Service) ResendConfirmation(ctx context.Context, id uuid.UUID) error {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if reg.Status != models.StatusPending || reg.Token == nil || reg.TokenExpires == nil {
		return ErrNotPending
	}
	if s.tokens.Now().After(*reg.TokenExpires) {
		return tokens.ErrTokenExpired
	}
	ev := s.eventOrNil(ctx, reg.EventID)
	n := s.notification(ev, reg, notify.KindConfirmationRequest, reg.Email)
	n.Context["confirm_url"] = s.confirmURL(reg.ID, *reg.Token)
	n.Context["expires_at"] = reg.TokenExpires.UTC().Format("2006-01-02 15:04 MST")
	return s.dispatcher.Dispatch(context.WithoutCancel(ctx), n)
}

// Get returns a registration by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get", err)
	}
	return reg, nil
}

// GetByPaymentSession returns the registration a checkout session was created for.
func (s *Service) GetByPaymentSession(ctx context.Context, sessionID string) (*models.Registration, error) {
	reg, err := s.store.GetByPaymentSessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get by session", err)
	}
	return reg, nil
}

// List returns an event's registrations, optionally filtered by status.
func (s *Service) List(ctx context.Context, eventID int64, status models.Status) ([]models.Registration, error) {
	if status != "" && !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "is invalid"}
	}
	list, err := s.store.ListByEvent(ctx, eventID, status)
	if err != nil {
		return nil, storageErr("list", err)
	}
	return list, nil
}

// Availability reports whether a new registration would currently get a seat.
func (s *Service) Availability(ctx context.Context, eventID int64) (capacity.Decision, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return capacity.Decision{}, ErrEventNotFound
		}
		return capacity.Decision{}, storageErr("load event", err)
	}
	d, err := s.counter.Check(ctx, ev.ID, ev.MaxPlace)
	if err != nil {
		return capacity.Decision{}, storageErr("capacity", err)
	}
	return d, nil
}

func (s *Service) dispatch(ctx context.Context, n notify.Notification) {
	if err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("kind", string(n.Kind)),
			zap.String("registration_id", n.RegistrationID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) eventOrNil(ctx context.Context, id int64) *models.Event {
	ev, err := s.events.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("load event for notification failed", zap.Int64("event_id", id), zap.Error(err))
		return nil
	}
	return ev
}

func (s *Service) notification(ev *models.Event, reg *models.Registration, kind notify.Kind, recipient string) notify.Notification {
	ctx := map[string]string{
		"first_name":      reg.FirstName,
		"last_name":       reg.LastName,
		"email":           reg.Email,
		"phone":           reg.Phone,
		"status":          string(reg.Status),
		"registration_id": reg.ID.String(),
	}
	if ev != nil {
		ctx["event_title"] = ev.Title
		ctx["event_starts_at"] = ev.StartsAt.UTC().Format("2006-01-02 15:04 MST")
	}
	if reg.Amount != nil {
		ctx["amount_cents"] = strconv.Itoa(*reg.Amount)
	}
	return notify.Notification{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		Recipient:      recipient,
		Kind:           kind,
		Context:        ctx,
	}
}

func (s *Service) confirmURL(id uuid.UUID, token string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/registrations/" + id.String() + "/confirm?token=" + url.QueryEscape(token)
}

func (s *Service) returnURL(id uuid.UUID, status string) string {
	q := url.Values{}
	q.Set("registration_id", id.String())
	q.Set("status", status)
	sep := "?"
	if strings.Contains(s.opts.ReturnURL, "?") {
		sep = "&"
	}
	return s.opts.ReturnURL + sep + q.Encode()
}
