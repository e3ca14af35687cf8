package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
)

type fakeGateway struct {
	createFn func(ctx context.Context, p SessionParams) (*Session, error)
}

func (f *fakeGateway) Name() string            { return "fake" }
func (f *fakeGateway) SignatureHeader() string { return "X-Sig" }
func (f *fakeGateway) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	return f.createFn(ctx, p)
}
func (f *fakeGateway) VerifyWebhookSignature([]byte, string, time.Time) error { return nil }
func (f *fakeGateway) ParseEvent([]byte) (*Event, error)                     { return &Event{}, nil }

type recorderFunc func(ctx context.Context, id uuid.UUID, sessionID string, amount int) error

func (f recorderFunc) SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string, amount int) error {
	return f(ctx, id, sessionID, amount)
}

func pendingRegistration() *models.Registration {
	return &models.Registration{ID: uuid.New(), EventID: 5, Email: "a@x.com", Status: models.StatusPending}
}

func TestOrchestratorCreateSession(t *testing.T) {
	reg := pendingRegistration()
	var recorded string
	gw := &fakeGateway{createFn: func(ctx context.Context, p SessionParams) (*Session, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		assert.Equal(t, reg.ID, p.RegistrationID)
		assert.Equal(t, int64(5), p.EventID)
		return &Session{ID: "cs_1", URL: "https://pay/cs_1"}, nil
	}}
	o := NewOrchestrator(gw, recorderFunc(func(_ context.Context, id uuid.UUID, sid string, amount int) error {
		recorded = sid
		assert.Equal(t, 10000, amount)
		return nil
	}), time.Second, nil)

	sess, err := o.CreateSession(context.Background(), CheckoutRequest{Registration: reg, AmountCents: 10000, Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay/cs_1", sess.URL)
	assert.Equal(t, "cs_1", recorded)
	require.NotNil(t, reg.PaymentSessionID)
	assert.Equal(t, "cs_1", *reg.PaymentSessionID)
}

func TestOrchestratorNewAttemptPerCall(t *testing.T) {
	var attempts []string
	gw := &fakeGateway{createFn: func(_ context.Context, p SessionParams) (*Session, error) {
		attempts = append(attempts, p.AttemptID)
		return &Session{ID: "cs_1", URL: "https://pay/cs_1"}, nil
	}}
	o := NewOrchestrator(gw, recorderFunc(func(context.Context, uuid.UUID, string, int) error { return nil }), time.Second, nil)
	assert.Equal(t, "fake", o.Gateway())

	req := CheckoutRequest{Registration: pendingRegistration(), AmountCents: 10000, Currency: "EUR"}
	for i := 0; i < 2; i++ {
		_, err := o.CreateSession(context.Background(), req)
		require.NoError(t, err)
	}
	require.Len(t, attempts, 2)
	assert.NotEmpty(t, attempts[0])
	assert.NotEqual(t, attempts[0], attempts[1])
}

func TestOrchestratorRecordFailureIsNotFatal(t *testing.T) {
	reg := pendingRegistration()
	gw := &fakeGateway{createFn: func(context.Context, SessionParams) (*Session, error) {
		return &Session{ID: "cs_2", URL: "https://pay/cs_2"}, nil
	}}
	o := NewOrchestrator(gw, recorderFunc(func(context.Context, uuid.UUID, string, int) error {
		return errors.New("db down")
	}), 0, nil)

	sess, err := o.CreateSession(context.Background(), CheckoutRequest{Registration: reg, AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, "cs_2", sess.ID)
	assert.Nil(t, reg.PaymentSessionID)
}

func TestOrchestratorGatewayFailure(t *testing.T) {
	reg := pendingRegistration()
	called := false
	gw := &fakeGateway{createFn: func(context.Context, SessionParams) (*Session, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	o := NewOrchestrator(gw, recorderFunc(func(context.Context, uuid.UUID, string, int) error {
		called = true
		return nil
	}), 0, nil)

	_, err := o.CreateSession(context.Background(), CheckoutRequest{Registration: reg})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindNetwork, ge.Kind)
	assert.Equal(t, "fake", ge.Gateway)
	assert.False(t, called)
	assert.Equal(t, models.StatusPending, reg.Status)
}
