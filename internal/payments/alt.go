package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultAltAPIBase = "https://api.mollie.com"

// AltConfig configures the alternative payments gateway.
type AltConfig struct {
	APIKey        string
	WebhookSecret string
	APIBase       string
	WebhookURL    string
	Tolerance     time.Duration
	Timeout       time.Duration
}

// AltGateway creates hosted payments over a JSON REST API and accepts signed event webhooks.
type AltGateway struct {
	cfg    AltConfig
	client *http.Client
}

// NewAltGateway creates the alternative gateway. A nil client gets one with cfg.Timeout.
func NewAltGateway(cfg AltConfig, client *http.Client) *AltGateway {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAltAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &AltGateway{cfg: cfg, client: newHTTPClient(client, cfg.Timeout)}
}

func (g *AltGateway) Name() string            { return GatewayAlt }
func (g *AltGateway) SignatureHeader() string { return "X-Webhook-Signature" }

type altAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type altPaymentRequest struct {
	Amount      altAmount         `json:"amount"`
	Description string            `json:"description"`
	RedirectURL string            `json:"redirectUrl"`
	CancelURL   string            `json:"cancelUrl,omitempty"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type altPaymentResponse struct {
	ID    string `json:"id"`
	Links struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

func altErrorMessage(body []byte) string {
	var e struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && (e.Detail != "" || e.Title != "") {
		if e.Detail == "" {
			return e.Title
		}
		return e.Detail
	}
	return "unexpected response"
}

// CreateSession creates a payment whose checkout link the participant is redirected to.
func (g *AltGateway) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	if g.cfg.APIKey == "" {
		return nil, &GatewayError{Gateway: GatewayAlt, Kind: KindAPI, Err: ErrCredentialsNotDefined}
	}
	body, err := json.Marshal(altPaymentRequest{
		Amount:      altAmount{Currency: strings.ToUpper(p.Currency), Value: formatAmount(p.AmountCents)},
		Description: p.Description,
		RedirectURL: p.SuccessURL,
		CancelURL:   p.CancelURL,
		WebhookURL:  g.cfg.WebhookURL,
		Metadata: map[string]string{
			"registration_id": p.RegistrationID.String(),
			"event_id":        strconv.FormatInt(p.EventID, 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payment: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIBase+"/v2/payments", bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Gateway: GatewayAlt, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var out altPaymentResponse
	if err := do(g.client, GatewayAlt, req, &out, altErrorMessage); err != nil {
		return nil, err
	}
	if out.Links.Checkout.Href == "" {
		return nil, &GatewayError{Gateway: GatewayAlt, Kind: KindNoURL, Message: "payment " + out.ID + " has no checkout link"}
	}
	return &Session{ID: out.ID, URL: out.Links.Checkout.Href}, nil
}

// VerifyWebhookSignature checks the "t=...,v1=..." header.
func (g *AltGateway) VerifyWebhookSignature(payload []byte, header string, now time.Time) error {
	return VerifySignature(payload, header, g.cfg.WebhookSecret, g.cfg.Tolerance, now)
}

type altEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		PaymentID string            `json:"payment_id"`
		Metadata  map[string]string `json:"metadata"`
	} `json:"data"`
}

// ParseEvent decodes a payment.* event.
func (g *AltGateway) ParseEvent(payload []byte) (*Event, error) {
	var e altEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	ev := &Event{ID: e.ID, ProviderType: e.Type, Type: EventUnknown}
	switch e.Type {
	case "payment.paid":
		ev.Type = EventCheckoutCompleted
	case "payment.expired":
		ev.Type = EventCheckoutExpired
	case "payment.failed", "payment.canceled":
		ev.Type = EventCheckoutFailed
	default:
		return ev, nil
	}
	ev.SessionID = e.Data.PaymentID
	ev.RegistrationID = e.Data.Metadata["registration_id"]
	return ev, nil
}

// CheckCredentials lists payment methods to prove the API key works.
func (g *AltGateway) CheckCredentials(ctx context.Context) error {
	if g.cfg.APIKey == "" {
		return ErrCredentialsNotDefined
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.APIBase+"/v2/methods", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	return do(g.client, GatewayAlt, req, nil, altErrorMessage)
}
