// Package mailer renders and sends plain-text registration emails.
package mailer

import (
	"bytes"
	"fmt"
	"text/template"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New("subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New("body").Option("missingkey=zero").Parse(body)),
	}
}

var templates = map[string]mailTemplate{
	"confirmation_request": mustTemplate(
		`Please confirm your registration for {{.event_title}}`,
		`Hello {{.first_name}},

thank you for registering for {{.event_title}} ({{.event_starts_at}}).

Please confirm your seat by opening this link:
{{.confirm_url}}

The link is valid until {{.expires_at}}. If you did not register, ignore this message.
`),
	"registration_confirmed": mustTemplate(
		`Your registration for {{.event_title}} is confirmed`,
		`Hello {{.first_name}},

your seat for {{.event_title}} on {{.event_starts_at}} is confirmed.

Registration reference: {{.registration_id}}
`),
	"waitlisted": mustTemplate(
		`You are on the waiting list for {{.event_title}}`,
		`Hello {{.first_name}},

{{.event_title}} is currently full, so we have put you on the waiting list.
We will contact you if a seat becomes available.

Registration reference: {{.registration_id}}
`),
	"registration_cancelled": mustTemplate(
		`Your registration for {{.event_title}} was cancelled`,
		`Hello {{.first_name}},

your registration for {{.event_title}} has been cancelled. No seat is held for you.
You are welcome to register again while places are available.
`),
	"admin_new_registration": mustTemplate(
		`New registration: {{.first_name}} {{.last_name}} for {{.event_title}}`,
		`A new registration was received.

Event:    {{.event_title}}
Name:     {{.first_name}} {{.last_name}}
Email:    {{.email}}
Phone:    {{.phone}}
Status:   {{.status}}
Reference: {{.registration_id}}
`),
}

// Render builds the email of a notification kind.
func Render(kind, to string, data map[string]string) (*Message, error) {
	t, ok := templates[kind]
	if !ok {
		return nil, fmt.Errorf("no template for %q", kind)
	}
	if data == nil {
		data = map[string]string{}
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	return &Message{To: to, Subject: subject.String(), Body: body.String()}, nil
}
