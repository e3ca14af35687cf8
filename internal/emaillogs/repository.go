package emaillogs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/models"
)

// ErrNotFound is returned when a log row does not exist.
var ErrNotFound = errors.New("email log not found")

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending log row and returns its id.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) (uuid.UUID, error) {
	const q = `INSERT INTO email_logs (event_id, registration_id, email_type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at`
	status := el.Status
	if status == "" {
		status = models.EmailLogStatusPending
	}
	if err := r.pool.QueryRow(ctx, q, el.EventID, el.RegistrationID, el.EmailType, el.RecipientEmail, el.Subject, status).
		Scan(&el.ID, &el.CreatedAt); err != nil {
		return uuid.Nil, fmt.Errorf("insert email log: %w", err)
	}
	el.Status = status
	return el.ID, nil
}

// MarkSent flags a log row as delivered.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE email_logs SET status = 'sent', sent_at = NOW(), error_message = NULL WHERE id = $1`
	return r.exec(ctx, q, id)
}

// MarkFailed records the last delivery error on a log row.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `UPDATE email_logs SET status = 'failed', error_message = $2 WHERE id = $1`
	return r.exec(ctx, q, id, reason)
}

func (r *Repository) exec(ctx context.Context, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update email log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByEvent returns email logs for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]*models.EmailLog, error) {
	const q = `SELECT id, event_id, registration_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE event_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.EventID, &el.RegistrationID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
