// Package worker drains the email job queue and delivers notification mail.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/mailer"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/queue"
)

// ErrPermanent marks a job that will never succeed and must not be retried.
var ErrPermanent = errors.New("permanent job failure")

// JobQueue is the part of the Redis queue the worker consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m *mailer.Message) error
}

// LogStore records delivery attempts.
type LogStore interface {
	Create(ctx context.Context, el *models.EmailLog) (uuid.UUID, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor renders email jobs, sends them and records the outcome in email_logs.
type EmailProcessor struct {
	queue   JobQueue
	sender  Sender
	logs    LogStore
	backoff time.Duration
	logger  *zap.Logger
}

// NewEmailProcessor creates an email processor.
func NewEmailProcessor(q JobQueue, sender Sender, logs LogStore, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{queue: q, sender: sender, logs: logs, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("%w: unknown job type %s", ErrPermanent, job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", ErrPermanent, err)
	}
	msg, err := mailer.Render(payload.Kind, payload.RecipientEmail, payload.Context)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	entry := &models.EmailLog{
		EmailType:      payload.Kind,
		RecipientEmail: payload.RecipientEmail,
		Subject:        msg.Subject,
		Status:         models.EmailLogStatusPending,
	}
	if payload.EventID > 0 {
		entry.EventID = &payload.EventID
	}
	if payload.RegistrationID != uuid.Nil {
		entry.RegistrationID = &payload.RegistrationID
	}
	logID, err := p.logs.Create(ctx, entry)
	if err != nil {
		// delivery matters more than the log row
		p.logger.Warn("email log insert failed", zap.String("job_id", job.ID), zap.Error(err))
		logID = uuid.Nil
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		if logID != uuid.Nil {
			if mErr := p.logs.MarkFailed(ctx, logID, err.Error()); mErr != nil {
				p.logger.Warn("email log update failed", zap.String("log_id", logID.String()), zap.Error(mErr))
			}
		}
		return fmt.Errorf("send %s: %w", payload.Kind, err)
	}
	if logID != uuid.Nil {
		if err := p.logs.MarkSent(ctx, logID); err != nil {
			p.logger.Warn("email log update failed", zap.String("log_id", logID.String()), zap.Error(err))
		}
	}
	p.logger.Info("email sent",
		zap.String("job_id", job.ID),
		zap.String("kind", payload.Kind),
		zap.String("registration_id", payload.RegistrationID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			if errors.Is(err, ErrPermanent) {
				p.logger.Error("job dropped", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	if p.backoff <= 0 {
		return
	}
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
