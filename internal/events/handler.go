package events

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/response"
)

// Store is the event persistence the handler needs.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id int64) (*models.Event, error)
	List(ctx context.Context) ([]models.Event, error)
	Update(ctx context.Context, id int64, p UpdateParams) (*models.Event, error)
	Delete(ctx context.Context, id int64) error
}

// CreateRequest is the body for POST /admin/events.
type CreateRequest struct {
	Title           string `json:"title" binding:"required,max=200"`
	StartsAt        string `json:"starts_at" binding:"required"`
	MaxPlace        int    `json:"max_place" binding:"min=0"`
	PaymentRequired bool   `json:"payment_required"`
	AmountCents     int    `json:"amount_cents" binding:"min=0"`
	Currency        string `json:"currency" binding:"omitempty,len=3"`
}

// UpdateRequest is the body for PATCH /admin/events/:id.
type UpdateRequest struct {
	Title           *string `json:"title" binding:"omitempty,max=200"`
	StartsAt        *string `json:"starts_at"`
	MaxPlace        *int    `json:"max_place" binding:"omitempty,min=0"`
	PaymentRequired *bool   `json:"payment_required"`
	AmountCents     *int    `json:"amount_cents" binding:"omitempty,min=0"`
	Currency        *string `json:"currency" binding:"omitempty,len=3"`
}

// EventView is an event with its live availability.
type EventView struct {
	models.Event
	Availability capacity.Decision `json:"availability"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo     Store
	counter  *capacity.Counter
	currency string
	logger   *zap.Logger
}

// NewHandler creates an event handler. counter reads confirmed seats for availability; currency is
// used for events created without one.
func NewHandler(repo Store, counter *capacity.Counter, currency string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Handler{repo: repo, counter: counter, currency: currency, logger: logger}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid event id")
		return 0, false
	}
	return id, true
}

func validPrice(paid bool, amount int) bool {
	return !paid || amount > 0
}

// Create handles POST /admin/events.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	if !validPrice(req.PaymentRequired, req.AmountCents) {
		response.BadRequest(c, "amount_cents must be positive when payment is required")
		return
	}
	e := &models.Event{
		Title:           req.Title,
		StartsAt:        startsAt,
		MaxPlace:        req.MaxPlace,
		PaymentRequired: req.PaymentRequired,
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
	}
	if e.Currency == "" {
		e.Currency = h.currency
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	h.logger.Info("event created", zap.Int64("event_id", e.ID), zap.Int("max_place", e.MaxPlace))
	response.Created(c, e)
}

// Get handles GET /events/:id. The response carries the current seat availability.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("get event failed", zap.Int64("event_id", id), zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	d, err := h.counter.Check(c.Request.Context(), e.ID, e.MaxPlace)
	if err != nil {
		h.logger.Error("availability check failed", zap.Int64("event_id", id), zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, EventView{Event: *e, Availability: d})
}

// List handles GET /admin/events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	if list == nil {
		list = []models.Event{}
	}
	response.OK(c, list)
}

// Update handles PATCH /admin/events/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := UpdateParams{
		Title:           req.Title,
		MaxPlace:        req.MaxPlace,
		PaymentRequired: req.PaymentRequired,
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
	}
	if req.StartsAt != nil {
		t, err := time.Parse(time.RFC3339, *req.StartsAt)
		if err != nil {
			response.BadRequest(c, "invalid starts_at")
			return
		}
		p.StartsAt = &t
	}
	if req.PaymentRequired != nil || req.AmountCents != nil {
		current, err := h.repo.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				response.NotFound(c, "event not found")
				return
			}
			response.Internal(c, "failed to update event")
			return
		}
		paid, amount := current.PaymentRequired, current.AmountCents
		if req.PaymentRequired != nil {
			paid = *req.PaymentRequired
		}
		if req.AmountCents != nil {
			amount = *req.AmountCents
		}
		if !validPrice(paid, amount) {
			response.BadRequest(c, "amount_cents must be positive when payment is required")
			return
		}
	}
	e, err := h.repo.Update(c.Request.Context(), id, p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("update event failed", zap.Int64("event_id", id), zap.Error(err))
		response.Internal(c, "failed to update event")
		return
	}
	response.OK(c, e)
}

// Delete handles DELETE /admin/events/:id. Events with registrations are refused with 409.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		if errors.Is(err, ErrHasRegistrations) {
			response.Conflict(c, "event has registrations and cannot be deleted")
			return
		}
		h.logger.Error("delete event failed", zap.Int64("event_id", id), zap.Error(err))
		response.Internal(c, "failed to delete event")
		return
	}
	response.NoContent(c)
}
