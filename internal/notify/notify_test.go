package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/pkg/queue"
)

type fakeEnqueuer struct {
	jobs []queue.EmailPayload
	err  error
}

func (f *fakeEnqueuer) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, p)
	return nil
}

type fakePublisher struct {
	keys     []string
	payloads []any
}

func (f *fakePublisher) Publish(_ context.Context, key string, payload any) error {
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestQueueDispatcher(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewQueueDispatcher(q, nil)
	id := uuid.New()

	err := d.Dispatch(context.Background(), Notification{
		RegistrationID: id,
		EventID:        3,
		Recipient:      "a@x.com",
		Kind:           KindRegistrationConfirmed,
		Context:        map[string]string{"event_title": "Workshop"},
	})
	require.NoError(t, err)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, "registration_confirmed", q.jobs[0].Kind)
	assert.Equal(t, id, q.jobs[0].RegistrationID)
	assert.Equal(t, "Workshop", q.jobs[0].Context["event_title"])

	// no recipient, nothing to send
	require.NoError(t, d.Dispatch(context.Background(), Notification{Kind: KindAdminNewRegistration}))
	assert.Len(t, q.jobs, 1)
}

func TestQueueDispatcherError(t *testing.T) {
	boom := errors.New("redis down")
	d := NewQueueDispatcher(&fakeEnqueuer{err: boom}, nil)
	err := d.Dispatch(context.Background(), Notification{Recipient: "a@x.com", Kind: KindWaitlisted})
	assert.ErrorIs(t, err, boom)
}

func TestEventDispatcherStripsConfirmURL(t *testing.T) {
	pub := &fakePublisher{}
	d := NewEventDispatcher(pub)

	n := Notification{
		Recipient: "a@x.com",
		Kind:      KindConfirmationRequest,
		Context:   map[string]string{"confirm_url": "https://x/confirm?token=secret", "event_title": "W"},
	}
	require.NoError(t, d.Dispatch(context.Background(), n))
	require.Len(t, pub.keys, 1)
	assert.Equal(t, "registration.confirmation_request", pub.keys[0])

	ev := pub.payloads[0].(LifecycleEvent)
	assert.NotContains(t, ev.Context, "confirm_url")
	assert.Equal(t, "W", ev.Context["event_title"])
	// caller's map untouched
	assert.Contains(t, n.Context, "confirm_url")

	require.NoError(t, d.Dispatch(context.Background(), Notification{Kind: KindAdminNewRegistration}))
	assert.Len(t, pub.keys, 1)
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &fakeEnqueuer{}
	m := Multi{NewQueueDispatcher(&fakeEnqueuer{err: boom}, nil), NewQueueDispatcher(ok, nil), Nop{}}

	err := m.Dispatch(context.Background(), Notification{Recipient: "a@x.com", Kind: KindWaitlisted})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.jobs, 1, "a failing dispatcher does not stop the others")
}
