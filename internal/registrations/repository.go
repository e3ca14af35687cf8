package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/models"
)

const (
	confirmedEmailIndex = "registrations_confirmed_email_uniq"
	uniqueViolation     = "23505"
)

const columns = `id, event_id, email, first_name, last_name, phone, desired_domain, has_domain, status,
	token, token_expires, payment_session_id, amount, registered_at, reserved_at, confirmed_at, updated_at,
	confirmed_token_hash`

// Status changes are conditional on the current status so repeated or racing calls are no-ops.
const (
	confirmQuery = `UPDATE registrations SET status = 'confirmed', token = NULL, token_expires = NULL,
		confirmed_at = NOW(), updated_at = NOW(),
		payment_session_id = COALESCE(payment_session_id, NULLIF($2, ''))
		WHERE id = $1 AND status = 'pending'`
	confirmTokenQuery = `UPDATE registrations SET status = 'confirmed', token = NULL, token_expires = NULL,
		confirmed_token_hash = $3, confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND token = $2`
	cancelQuery = `UPDATE registrations SET status = 'cancelled', token = NULL, token_expires = NULL, updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)`
	refreshPendingQuery = `UPDATE registrations SET first_name = $2, last_name = $3, phone = $4, desired_domain = $5,
		has_domain = $6, token = $7, token_expires = $8, amount = COALESCE($9, amount), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + columns
	setPaymentSessionQuery = `UPDATE registrations SET payment_session_id = $2, amount = $3, updated_at = NOW()
		WHERE id = $1 AND (payment_session_id IS NULL OR status = 'pending')`
)

// Repository is the Postgres Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var (
		reg    models.Registration
		status string
	)
	err := row.Scan(&reg.ID, &reg.EventID, &reg.Email, &reg.FirstName, &reg.LastName, &reg.Phone,
		&reg.DesiredDomain, &reg.HasDomain, &status, &reg.Token, &reg.TokenExpires, &reg.PaymentSessionID,
		&reg.Amount, &reg.RegisteredAt, &reg.ReservedAt, &reg.ConfirmedAt, &reg.UpdatedAt, &reg.ConfirmedTokenHash)
	if err != nil {
		return nil, err
	}
	reg.Status = models.Status(status)
	return &reg, nil
}

func isConfirmedDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == confirmedEmailIndex
}

// Reserve creates or refreshes the participant's row for an event under a lock on the event row.
func (r *Repository) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("reserve: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked int64
	if err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, req.EventID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, storageErr("reserve: lock event", err)
	}

	const findQ = `SELECT ` + columns + ` FROM registrations
		WHERE event_id = $1 AND lower(email) = $2 AND status IN ('confirmed', 'pending', 'waitlist')
		ORDER BY CASE status WHEN 'confirmed' THEN 0 WHEN 'pending' THEN 1 ELSE 2 END, registered_at DESC
		LIMIT 1`
	existing, err := scanRegistration(tx.QueryRow(ctx, findQ, req.EventID, NormalizeEmail(req.Email)))
	switch {
	case err == nil:
		return r.reserveExisting(ctx, tx, existing, req)
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, storageErr("reserve: find existing", err)
	}

	var confirmed int
	const countQ = `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = 'confirmed'`
	if err := tx.QueryRow(ctx, countQ, req.EventID).Scan(&confirmed); err != nil {
		return nil, storageErr("reserve: count confirmed", err)
	}

	status := models.StatusPending
	token, expires, amount := req.Token, req.TokenExpires, req.Amount
	now := time.Now()
	reservedAt := &now
	if err := capacity.Decide(req.MaxPlace, confirmed).Err(); errors.Is(err, capacity.ErrCapacityExceeded) {
		status = models.StatusWaitlist
		token, expires, amount, reservedAt = nil, nil, nil, nil
	}

	const insertQ = `INSERT INTO registrations
		(event_id, email, first_name, last_name, phone, desired_domain, has_domain, status, token, token_expires, amount, reserved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + columns
	reg, err := scanRegistration(tx.QueryRow(ctx, insertQ, req.EventID, req.Email, req.FirstName, req.LastName,
		req.Phone, req.DesiredDomain, req.HasDomain, string(status), token, expires, amount, reservedAt))
	if err != nil {
		return nil, storageErr("reserve: insert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("reserve: commit", err)
	}
	return &ReserveResult{Registration: reg, Outcome: OutcomeCreated}, nil
}

func (r *Repository) reserveExisting(ctx context.Context, tx pgx.Tx, existing *models.Registration, req ReserveRequest) (*ReserveResult, error) {
	switch existing.Status {
	case models.StatusConfirmed:
		return nil, ErrAlreadyRegistered
	case models.StatusPending:
		reg, err := scanRegistration(tx.QueryRow(ctx, refreshPendingQuery, existing.ID, req.FirstName, req.LastName, req.Phone,
			req.DesiredDomain, req.HasDomain, req.Token, req.TokenExpires, req.Amount))
		if err != nil {
			return nil, storageErr("reserve: refresh pending", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, storageErr("reserve: commit", err)
		}
		return &ReserveResult{Registration: reg, Outcome: OutcomeRefreshed}, nil
	default:
		return &ReserveResult{Registration: existing, Outcome: OutcomeExisting}, nil
	}
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM registrations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get by id", err)
	}
	return reg, nil
}

// GetByPaymentSessionID returns the registration a checkout session belongs to.
func (r *Repository) GetByPaymentSessionID(ctx context.Context, sessionID string) (*models.Registration, error) {
	const q = `SELECT ` + columns + ` FROM registrations WHERE payment_session_id = $1`
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get by session", err)
	}
	return reg, nil
}

// Confirm moves a pending row to confirmed.
func (r *Repository) Confirm(ctx context.Context, id uuid.UUID, sessionID string) (bool, error) {
	return r.execConfirm(ctx, confirmQuery, id, sessionID)
}

// ConfirmToken moves a pending row to confirmed only while it still holds token.
func (r *Repository) ConfirmToken(ctx context.Context, id uuid.UUID, token, tokenHash string) (bool, error) {
	return r.execConfirm(ctx, confirmTokenQuery, id, token, tokenHash)
}

func (r *Repository) execConfirm(ctx context.Context, q string, args ...interface{}) (bool, error) {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		if isConfirmedDuplicate(err) {
			return false, ErrAlreadyRegistered
		}
		return false, storageErr("confirm", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel moves the row to cancelled if its current status is one of from.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, from ...models.Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		if s == models.StatusConfirmed {
			continue
		}
		allowed = append(allowed, string(s))
	}
	tag, err := r.pool.Exec(ctx, cancelQuery, id, allowed)
	if err != nil {
		return false, storageErr("cancel", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPaymentSession records the checkout session on a row that has none yet.
func (r *Repository) SetPaymentSession(ctx context.Context, id uuid.UUID, sessionID string, amount int) error {
	if _, err := r.pool.Exec(ctx, setPaymentSessionQuery, id, sessionID, amount); err != nil {
		return storageErr("set payment session", err)
	}
	return nil
}

// ListByEvent returns registrations for an event in registration order. An empty status lists all.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64, status models.Status) ([]models.Registration, error) {
	q := `SELECT ` + columns + ` FROM registrations WHERE event_id = $1`
	args := []interface{}{eventID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, string(status))
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY registered_at, id`, args...)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, storageErr("list: scan", err)
		}
		list = append(list, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return list, nil
}

// CountByStatus returns the number of rows per status for an event.
func (r *Repository) CountByStatus(ctx context.Context, eventID int64) (map[models.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM registrations WHERE event_id = $1 GROUP BY status`, eventID)
	if err != nil {
		return nil, storageErr("count by status", err)
	}
	defer rows.Close()
	counts := make(map[models.Status]int, 4)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr("count by status: scan", err)
		}
		counts[models.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("count by status", err)
	}
	return counts, nil
}

// CountConfirmed returns confirmed registrations for an event.
func (r *Repository) CountConfirmed(ctx context.Context, eventID int64) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = 'confirmed'`
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&n); err != nil {
		return 0, storageErr("count confirmed", err)
	}
	return n, nil
}

// RevenueByEvent sums the amount of confirmed registrations.
func (r *Repository) RevenueByEvent(ctx context.Context, eventID int64) (int, error) {
	var cents int
	const q = `SELECT COALESCE(SUM(amount), 0) FROM registrations WHERE event_id = $1 AND status = 'confirmed'`
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&cents); err != nil {
		return 0, storageErr("revenue", err)
	}
	return cents, nil
}
