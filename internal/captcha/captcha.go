// Package captcha verifies hCaptcha tokens submitted with public forms.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL is the hCaptcha siteverify endpoint.
const DefaultVerifyURL = "https://hcaptcha.com/siteverify"

// ErrRejected means the token was missing or hCaptcha did not accept it.
var ErrRejected = errors.New("captcha rejected")

type verifyResponse struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier checks tokens against the siteverify endpoint.
type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// NewVerifier creates a verifier. An empty verifyURL uses DefaultVerifyURL.
func NewVerifier(secret, verifyURL string) *Verifier {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &Verifier{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify returns nil when the token is accepted, an error wrapping ErrRejected when it is not,
// and any other error when the endpoint could not be asked.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return fmt.Errorf("%w: token is empty", ErrRejected)
	}
	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build hcaptcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("hcaptcha request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hcaptcha status %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return fmt.Errorf("decode hcaptcha response: %w", err)
	}
	if !out.Success {
		if len(out.ErrorCodes) > 0 {
			return fmt.Errorf("%w: %s", ErrRejected, strings.Join(out.ErrorCodes, ", "))
		}
		return ErrRejected
	}
	return nil
}
