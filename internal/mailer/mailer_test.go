package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderConfirmationRequest(t *testing.T) {
	m, err := Render("confirmation_request", "a@x.com", map[string]string{
		"first_name":  "Ada",
		"event_title": "Open Day",
		"confirm_url": "https://events.example/registrations/1/confirm?token=abc",
		"expires_at":  "2026-03-03 12:00 UTC",
	})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", m.To)
	assert.Equal(t, "Please confirm your registration for Open Day", m.Subject)
	assert.Contains(t, m.Body, "https://events.example/registrations/1/confirm?token=abc")
	assert.Contains(t, m.Body, "Hello Ada,")
}

func TestRenderEveryKind(t *testing.T) {
	for _, kind := range []string{"confirmation_request", "registration_confirmed", "waitlisted", "registration_cancelled", "admin_new_registration"} {
		m, err := Render(kind, "a@x.com", nil)
		require.NoError(t, err, kind)
		assert.NotEmpty(t, m.Subject, kind)
		assert.NotContains(t, m.Body, "<no value>", kind)
	}
	_, err := Render("newsletter", "a@x.com", nil)
	assert.Error(t, err)
}

func TestSMTPSend(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example", Port: 587, User: "u", Pass: "p", FromAddress: "noreply@example.com", FromName: "Aura Events"}, nil)
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		assert.Equal(t, "noreply@example.com", from)
		return nil
	}
	require.NoError(t, s.Send(context.Background(), &Message{To: "a@x.com", Subject: "Hi", Body: "line1\nline2"}))
	assert.Equal(t, "smtp.example:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, []string{"a@x.com"}, gotTo)
	assert.Contains(t, gotMsg, "From: Aura Events <noreply@example.com>\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/plain; charset=UTF-8\r\n\r\nline1\r\nline2")
	assert.True(t, strings.HasPrefix(gotMsg, "From: "))
}

func TestSMTPSendErrors(t *testing.T) {
	assert.ErrorIs(t, NewSMTPSender(SMTPConfig{}, nil).Send(context.Background(), &Message{To: "a@x.com"}), ErrNotConfigured)

	s := NewSMTPSender(SMTPConfig{Host: "smtp.example", Port: 25}, nil)
	boom := errors.New("421 try later")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }
	assert.ErrorIs(t, s.Send(context.Background(), &Message{To: "a@x.com"}), boom)
}
