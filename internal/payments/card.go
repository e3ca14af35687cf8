package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultCardAPIBase = "https://api.stripe.com"

// CardConfig configures the card checkout gateway.
type CardConfig struct {
	SecretKey     string
	WebhookSecret string
	APIBase       string
	// WebhookURL is where the provider account should deliver events; CheckWebhookEndpoint looks for it.
	WebhookURL    string
	Tolerance     time.Duration
	Timeout       time.Duration
}

// CardGateway creates hosted card checkout sessions over a form-encoded REST API.
type CardGateway struct {
	cfg    CardConfig
	client *http.Client
}

// NewCardGateway creates the card gateway. A nil client gets one with cfg.Timeout.
func NewCardGateway(cfg CardConfig, client *http.Client) *CardGateway {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultCardAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &CardGateway{cfg: cfg, client: newHTTPClient(client, cfg.Timeout)}
}

func (g *CardGateway) Name() string            { return GatewayCard }
func (g *CardGateway) SignatureHeader() string { return "Stripe-Signature" }

type cardSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type cardErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func cardErrorMessage(body []byte) string {
	var e cardErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return "unexpected response"
}

// CreateSession creates a one-item card checkout session for the registration.
func (g *CardGateway) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	if g.cfg.SecretKey == "" {
		return nil, &GatewayError{Gateway: GatewayCard, Kind: KindAPI, Err: ErrCredentialsNotDefined}
	}
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(p.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(p.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", p.Description)
	form.Set("line_items[0][quantity]", "1")
	form.Set("customer_email", p.CustomerEmail)
	form.Set("client_reference_id", p.RegistrationID.String())
	form.Set("metadata[registration_id]", p.RegistrationID.String())
	form.Set("metadata[event_id]", strconv.FormatInt(p.EventID, 10))
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &GatewayError{Gateway: GatewayCard, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", cardIdempotencyKey(p))

	var out cardSessionResponse
	if err := do(g.client, GatewayCard, req, &out, cardErrorMessage); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, &GatewayError{Gateway: GatewayCard, Kind: KindNoURL, Message: "session " + out.ID + " has no url"}
	}
	return &Session{ID: out.ID, URL: out.URL}, nil
}

func cardIdempotencyKey(p SessionParams) string {
	key := "checkout-" + p.RegistrationID.String() + "-" + strconv.Itoa(p.AmountCents)
	if p.AttemptID != "" {
		key += "-" + p.AttemptID
	}
	return key
}

// VerifyWebhookSignature checks the Stripe-Signature style header.
func (g *CardGateway) VerifyWebhookSignature(payload []byte, header string, now time.Time) error {
	return VerifySignature(payload, header, g.cfg.WebhookSecret, g.cfg.Tolerance, now)
}

type cardEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			ClientReferenceID string            `json:"client_reference_id"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a checkout.session.* event.
func (g *CardGateway) ParseEvent(payload []byte) (*Event, error) {
	var e cardEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	ev := &Event{ID: e.ID, ProviderType: e.Type, Type: EventUnknown}
	switch e.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		ev.Type = EventCheckoutCompleted
	case "checkout.session.expired":
		ev.Type = EventCheckoutExpired
	case "checkout.session.async_payment_failed":
		ev.Type = EventCheckoutFailed
	default:
		return ev, nil
	}
	obj := e.Data.Object
	ev.SessionID = obj.ID
	ev.RegistrationID = obj.Metadata["registration_id"]
	if ev.RegistrationID == "" {
		ev.RegistrationID = obj.ClientReferenceID
	}
	return ev, nil
}

// CheckCredentials lists one charge to prove the secret key works.
func (g *CardGateway) CheckCredentials(ctx context.Context) error {
	if g.cfg.SecretKey == "" {
		return ErrCredentialsNotDefined
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIBase+"/v1/charges?limit=1", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	return do(g.client, GatewayCard, req, nil, cardErrorMessage)
}

type cardWebhookEndpoints struct {
	Data []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"data"`
}

// CheckWebhookEndpoint lists the account's webhook endpoints and looks for cfg.WebhookURL.
// Trailing slashes are ignored.
func (g *CardGateway) CheckWebhookEndpoint(ctx context.Context) error {
	if g.cfg.SecretKey == "" {
		return ErrCredentialsNotDefined
	}
	if g.cfg.WebhookURL == "" {
		return ErrWebhookURLNotDefined
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIBase+"/v1/webhook_endpoints?limit=100", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	var out cardWebhookEndpoints
	if err := do(g.client, GatewayCard, req, &out, cardErrorMessage); err != nil {
		return err
	}
	want := strings.TrimRight(g.cfg.WebhookURL, "/")
	found := make([]string, 0, len(out.Data))
	for _, ep := range out.Data {
		if ep.URL != "" && strings.TrimRight(ep.URL, "/") == want {
			return nil
		}
		found = append(found, ep.URL)
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: account has no webhook endpoints", ErrWebhookNotRegistered)
	}
	return fmt.Errorf("%w: expected %s, found %s", ErrWebhookNotRegistered, want, strings.Join(found, ", "))
}
