package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/backend/internal/models"
)

var (
	// ErrNotFound is returned when an event does not exist.
	ErrNotFound = errors.New("event not found")
	// ErrHasRegistrations is returned when deleting an event that still has registrations.
	ErrHasRegistrations = errors.New("event has registrations")
)

const foreignKeyViolation = "23503"

// DefaultCurrency is used when an event is created without one.
const DefaultCurrency = "EUR"

const columns = `id, title, starts_at, max_place, payment_required, amount_cents, currency, created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	if err := row.Scan(&e.ID, &e.Title, &e.StartsAt, &e.MaxPlace, &e.PaymentRequired, &e.AmountCents,
		&e.Currency, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	if e.Currency == "" {
		e.Currency = DefaultCurrency
	}
	e.Currency = strings.ToUpper(e.Currency)
	const q = `INSERT INTO events (title, starts_at, max_place, payment_required, amount_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.Title, e.StartsAt, e.MaxPlace, e.PaymentRequired, e.AmountCents, e.Currency).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns events ordered by start time, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM events ORDER BY starts_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// UpdateParams holds optional event changes. Nil fields are left as they are.
type UpdateParams struct {
	Title           *string
	StartsAt        *time.Time
	MaxPlace        *int
	PaymentRequired *bool
	AmountCents     *int
	Currency        *string
}

// Update applies the non-nil fields of p.
func (r *Repository) Update(ctx context.Context, id int64, p UpdateParams) (*models.Event, error) {
	if p.Currency != nil {
		c := strings.ToUpper(*p.Currency)
		p.Currency = &c
	}
	const q = `UPDATE events SET
		title = COALESCE($2, title),
		starts_at = COALESCE($3, starts_at),
		max_place = COALESCE($4, max_place),
		payment_required = COALESCE($5, payment_required),
		amount_cents = COALESCE($6, amount_cents),
		currency = COALESCE($7, currency),
		updated_at = NOW()
		WHERE id = $1
		RETURNING ` + columns
	e, err := scanEvent(r.pool.QueryRow(ctx, q, id, p.Title, p.StartsAt, p.MaxPlace, p.PaymentRequired, p.AmountCents, p.Currency))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// DeleteQuery removes an event only while no registration references it.
const DeleteQuery = `DELETE FROM events WHERE id = $1
	AND NOT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1)`

// Delete removes an event that has no registrations. Registrations are kept for audit and export,
// so an event that has any fails with ErrHasRegistrations.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, DeleteQuery, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrHasRegistrations
		}
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrHasRegistrations
	}
	return ErrNotFound
}
