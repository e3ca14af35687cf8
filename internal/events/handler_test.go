package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/models"
)

type memEvents struct {
	next   int64
	events map[int64]*models.Event
	// registered marks events that registrations reference
	registered map[int64]bool
}

func newMemEvents() *memEvents {
	return &memEvents{events: map[int64]*models.Event{}, registered: map[int64]bool{}}
}

func (m *memEvents) Create(_ context.Context, e *models.Event) error {
	m.next++
	e.ID = m.next
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *memEvents) GetByID(_ context.Context, id int64) (*models.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEvents) List(context.Context) ([]models.Event, error) {
	var out []models.Event
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out, nil
}

func (m *memEvents) Update(_ context.Context, id int64, p UpdateParams) (*models.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.MaxPlace != nil {
		e.MaxPlace = *p.MaxPlace
	}
	if p.PaymentRequired != nil {
		e.PaymentRequired = *p.PaymentRequired
	}
	if p.AmountCents != nil {
		e.AmountCents = *p.AmountCents
	}
	cp := *e
	return &cp, nil
}

func (m *memEvents) Delete(_ context.Context, id int64) error {
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	if m.registered[id] {
		return ErrHasRegistrations
	}
	delete(m.events, id)
	return nil
}

type confirmedCount int

func (n confirmedCount) CountConfirmed(context.Context, int64) (int, error) { return int(n), nil }

func newRouter(store Store, confirmed int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, capacity.NewCounter(confirmedCount(confirmed)), "", nil)
	r := gin.New()
	r.GET("/events/:id", h.Get)
	r.GET("/admin/events", h.List)
	r.POST("/admin/events", h.Create)
	r.PATCH("/admin/events/:id", h.Update)
	r.DELETE("/admin/events/:id", h.Delete)
	return r
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetWithAvailability(t *testing.T) {
	store := newMemEvents()
	r := newRouter(store, 2)

	w := do(r, http.MethodPost, "/admin/events", gin.H{
		"title":     "Open Day",
		"starts_at": time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"max_place": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, DefaultCurrency, store.events[1].Currency)

	w = do(r, http.MethodGet, "/events/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data EventView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Open Day", body.Data.Title)
	assert.True(t, body.Data.Availability.Reservable)
	assert.Equal(t, 1, body.Data.Availability.Remaining)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/events/42", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/events/abc", nil).Code)
}

func TestCreateRejectsUnpricedPaidEvent(t *testing.T) {
	r := newRouter(newMemEvents(), 0)
	w := do(r, http.MethodPost, "/admin/events", gin.H{
		"title":            "Workshop",
		"starts_at":        "2026-05-01T09:00:00Z",
		"payment_required": true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/admin/events", gin.H{"title": "Workshop", "starts_at": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateChecksMergedPrice(t *testing.T) {
	store := newMemEvents()
	require.NoError(t, store.Create(context.Background(), &models.Event{Title: "Talk", MaxPlace: 10}))
	r := newRouter(store, 0)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPatch, "/admin/events/1", gin.H{"payment_required": true}).Code)

	w := do(r, http.MethodPatch, "/admin/events/1", gin.H{"payment_required": true, "amount_cents": 10000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, store.events[1].PaymentRequired)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPatch, "/admin/events/9", gin.H{"title": "x"}).Code)
}

func TestDeleteAndList(t *testing.T) {
	store := newMemEvents()
	require.NoError(t, store.Create(context.Background(), &models.Event{Title: "Talk"}))
	r := newRouter(store, 0)

	w := do(r, http.MethodGet, "/admin/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Talk")

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/admin/events/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/admin/events/1", nil).Code)
}

func TestDeleteRefusedWhileRegistrationsExist(t *testing.T) {
	store := newMemEvents()
	require.NoError(t, store.Create(context.Background(), &models.Event{Title: "Talk", PaymentRequired: true, AmountCents: 10000}))
	store.registered[1] = true
	r := newRouter(store, 1)

	w := do(r, http.MethodDelete, "/admin/events/1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "registrations")
	assert.Contains(t, store.events, int64(1))
}

func TestDeleteQueryGuardsRegistrations(t *testing.T) {
	assert.Contains(t, DeleteQuery, "NOT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1)")
}
