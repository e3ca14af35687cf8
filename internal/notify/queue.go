package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-events/backend/pkg/queue"
)

// EmailEnqueuer is the part of the job queue the mail dispatcher needs.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// QueueDispatcher turns notifications into email jobs for the worker.
type QueueDispatcher struct {
	q      EmailEnqueuer
	logger *zap.Logger
}

// NewQueueDispatcher creates a dispatcher backed by the email job queue.
func NewQueueDispatcher(q EmailEnqueuer, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{q: q, logger: logger}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.Recipient == "" {
		d.logger.Debug("notification without recipient skipped", zap.String("kind", string(n.Kind)))
		return nil
	}
	err := d.q.EnqueueEmail(ctx, queue.EmailPayload{
		Kind:           string(n.Kind),
		EventID:        n.EventID,
		RegistrationID: n.RegistrationID,
		RecipientEmail: n.Recipient,
		Context:        n.Context,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s email: %w", n.Kind, err)
	}
	return nil
}
