// Package payments talks to checkout-session payment providers and verifies their webhooks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Gateway names accepted by configuration.
const (
	GatewayCard = "card"
	GatewayAlt  = "alt"
)

var (
	ErrSignatureInvalid      = errors.New("webhook signature invalid")
	ErrWebhookSecretMissing  = errors.New("webhook secret not configured")
	ErrMalformedPayload      = errors.New("malformed webhook payload")
	ErrUnknownGateway        = errors.New("unknown payment gateway")
	ErrCredentialsNotDefined = errors.New("gateway credentials not configured")
	ErrWebhookURLNotDefined  = errors.New("webhook url not configured")
	ErrWebhookNotRegistered  = errors.New("webhook endpoint not registered with provider")
)

// GatewayErrorKind separates transport failures from provider rejections.
type GatewayErrorKind string

const (
	KindNetwork GatewayErrorKind = "network"
	KindAPI     GatewayErrorKind = "api"
	KindNoURL   GatewayErrorKind = "no_url"
)

// GatewayError is returned when a checkout session cannot be created.
type GatewayError struct {
	Gateway    string
	Kind       GatewayErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s gateway %s error", e.Gateway, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// SessionParams describes one checkout attempt for one registration.
type SessionParams struct {
	RegistrationID uuid.UUID
	EventID        int64
	CustomerEmail  string
	Description    string
	AmountCents    int
	Currency       string
	SuccessURL     string
	CancelURL      string
	// AttemptID is unique per checkout attempt so a retried request reuses the provider's result
	// and a new attempt gets a fresh session.
	AttemptID string
}

// Session is a created checkout session.
type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"redirect_url"`
}

// EventType is the normalized kind of a webhook event.
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout.completed"
	EventCheckoutExpired   EventType = "checkout.expired"
	EventCheckoutFailed    EventType = "checkout.failed"
	EventUnknown           EventType = "unknown"
)

// Event is a provider webhook event reduced to what reconciliation needs.
type Event struct {
	ID             string
	Type           EventType
	ProviderType   string
	SessionID      string
	RegistrationID string
}

// PaymentGateway is a checkout-session provider with signed webhooks.
type PaymentGateway interface {
	Name() string
	CreateSession(ctx context.Context, p SessionParams) (*Session, error)
	VerifyWebhookSignature(payload []byte, header string, now time.Time) error
	ParseEvent(payload []byte) (*Event, error)
	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
}

// CredentialChecker is implemented by gateways that can test their API key.
type CredentialChecker interface {
	CheckCredentials(ctx context.Context) error
}

// WebhookChecker is implemented by gateways that can list the webhook endpoints of their account.
type WebhookChecker interface {
	CheckWebhookEndpoint(ctx context.Context) error
}

// Registry holds the configured gateways by name.
type Registry struct {
	gateways map[string]PaymentGateway
	active   string
}

// NewRegistry creates a registry; active names the gateway used for new checkouts ("" for none).
func NewRegistry(active string, gws ...PaymentGateway) (*Registry, error) {
	r := &Registry{gateways: make(map[string]PaymentGateway, len(gws)), active: active}
	for _, g := range gws {
		r.gateways[g.Name()] = g
	}
	if active != "" {
		if _, ok := r.gateways[active]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, active)
		}
	}
	return r, nil
}

// Get returns a gateway by name.
func (r *Registry) Get(name string) (PaymentGateway, bool) {
	g, ok := r.gateways[name]
	return g, ok
}

// Active returns the gateway used for new checkouts, if any.
func (r *Registry) Active() (PaymentGateway, bool) {
	if r.active == "" {
		return nil, false
	}
	return r.Get(r.active)
}

// Names returns the registered gateway names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
