package registrations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/events"
	"github.com/aura-events/backend/internal/models"
)

// memStore mirrors the Postgres repository: one lock stands in for the event row lock and the
// status predicates of the conditional updates.
type memStore struct {
	mu     sync.Mutex
	events map[int64]*models.Event
	rows   map[uuid.UUID]*models.Registration
	order  []uuid.UUID
	now    func() time.Time

	failConfirm error
}

func newMemStore(evs ...*models.Event) *memStore {
	s := &memStore{
		events: make(map[int64]*models.Event),
		rows:   make(map[uuid.UUID]*models.Registration),
		now:    time.Now,
	}
	for _, e := range evs {
		s.events[e.ID] = e
	}
	return s
}

func clone(r *models.Registration) *models.Registration {
	c := *r
	return &c
}

// eventsView serves the seeded events as an EventReader.
type eventsView struct{ s *memStore }

func (v eventsView) GetByID(_ context.Context, id int64) (*models.Event, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (s *memStore) Reserve(_ context.Context, req ReserveRequest) (*ReserveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[req.EventID]; !ok {
		return nil, ErrEventNotFound
	}
	email := NormalizeEmail(req.Email)
	var existing *models.Registration
	rank := map[models.Status]int{models.StatusConfirmed: 0, models.StatusPending: 1, models.StatusWaitlist: 2}
	for _, id := range s.order {
		r := s.rows[id]
		if r.EventID != req.EventID || NormalizeEmail(r.Email) != email {
			continue
		}
		rk, active := rank[r.Status]
		if !active {
			continue
		}
		if existing == nil || rk < rank[existing.Status] {
			existing = r
		}
	}
	now := s.now()
	if existing != nil {
		switch existing.Status {
		case models.StatusConfirmed:
			return nil, ErrAlreadyRegistered
		case models.StatusPending:
			existing.FirstName, existing.LastName, existing.Phone = req.FirstName, req.LastName, req.Phone
			existing.DesiredDomain, existing.HasDomain = req.DesiredDomain, req.HasDomain
			existing.Token, existing.TokenExpires = req.Token, req.TokenExpires
			if req.Amount != nil {
				existing.Amount = req.Amount
			}
			existing.UpdatedAt = now
			return &ReserveResult{Registration: clone(existing), Outcome: OutcomeRefreshed}, nil
		default:
			return &ReserveResult{Registration: clone(existing), Outcome: OutcomeExisting}, nil
		}
	}

	confirmed := s.countLocked(req.EventID, models.StatusConfirmed)
	reg := &models.Registration{
		ID:            uuid.New(),
		EventID:       req.EventID,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		DesiredDomain: req.DesiredDomain,
		HasDomain:     req.HasDomain,
		Status:        models.StatusPending,
		Token:         req.Token,
		TokenExpires:  req.TokenExpires,
		Amount:        req.Amount,
		RegisteredAt:  now,
		ReservedAt:    &now,
		UpdatedAt:     now,
	}
	if capacity.Decide(req.MaxPlace, confirmed).Err() != nil {
		reg.Status = models.StatusWaitlist
		reg.Token, reg.TokenExpires, reg.Amount, reg.ReservedAt = nil, nil, nil, nil
	}
	s.rows[reg.ID] = reg
	s.order = append(s.order, reg.ID)
	return &ReserveResult{Registration: clone(reg), Outcome: OutcomeCreated}, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (s *memStore) GetByPaymentSessionID(_ context.Context, sessionID string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.PaymentSessionID != nil && *r.PaymentSessionID == sessionID {
			return clone(r), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) Confirm(_ context.Context, id uuid.UUID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmLocked(id, sessionID, nil, "")
}

func (s *memStore) ConfirmToken(_ context.Context, id uuid.UUID, token, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmLocked(id, "", &token, tokenHash)
}

func (s *memStore) confirmLocked(id uuid.UUID, sessionID string, token *string, tokenHash string) (bool, error) {
	if s.failConfirm != nil {
		return false, s.failConfirm
	}
	r, ok := s.rows[id]
	if !ok || r.Status != models.StatusPending {
		return false, nil
	}
	if token != nil && (r.Token == nil || *r.Token != *token) {
		return false, nil
	}
	for _, other := range s.rows {
		if other.ID != id && other.EventID == r.EventID && other.Status == models.StatusConfirmed &&
			NormalizeEmail(other.Email) == NormalizeEmail(r.Email) {
			return false, ErrAlreadyRegistered
		}
	}
	now := s.now()
	r.Status = models.StatusConfirmed
	r.Token, r.TokenExpires = nil, nil
	r.ConfirmedAt = &now
	r.UpdatedAt = now
	if tokenHash != "" {
		h := tokenHash
		r.ConfirmedTokenHash = &h
	}
	if r.PaymentSessionID == nil && sessionID != "" {
		sid := sessionID
		r.PaymentSessionID = &sid
	}
	return true, nil
}

func (s *memStore) Cancel(_ context.Context, id uuid.UUID, from ...models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if st != models.StatusConfirmed && r.Status == st {
			r.Status = models.StatusCancelled
			r.Token, r.TokenExpires = nil, nil
			r.UpdatedAt = s.now()
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) SetPaymentSession(_ context.Context, id uuid.UUID, sessionID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil
	}
	if r.PaymentSessionID == nil || r.Status == models.StatusPending {
		sid := sessionID
		r.PaymentSessionID = &sid
		r.Amount = &amount
	}
	return nil
}

func (s *memStore) ListByEvent(_ context.Context, eventID int64, status models.Status) ([]models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Registration
	for _, id := range s.order {
		r := s.rows[id]
		if r.EventID == eventID && (status == "" || r.Status == status) {
			list = append(list, *r)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].RegisteredAt.Before(list[j].RegisteredAt) })
	return list, nil
}

func (s *memStore) CountByStatus(_ context.Context, eventID int64) (map[models.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.Status]int)
	for _, r := range s.rows {
		if r.EventID == eventID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

func (s *memStore) CountConfirmed(_ context.Context, eventID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(eventID, models.StatusConfirmed), nil
}

func (s *memStore) countLocked(eventID int64, status models.Status) int {
	n := 0
	for _, r := range s.rows {
		if r.EventID == eventID && r.Status == status {
			n++
		}
	}
	return n
}

// seedConfirmed inserts a confirmed row directly.
func (s *memStore) seedConfirmed(eventID int64, email string) *models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	r := &models.Registration{
		ID: uuid.New(), EventID: eventID, Email: email, FirstName: "Seed", Phone: "1",
		Status: models.StatusConfirmed, RegisteredAt: now, ConfirmedAt: &now, UpdatedAt: now,
	}
	s.rows[r.ID] = r
	s.order = append(s.order, r.ID)
	return clone(r)
}
