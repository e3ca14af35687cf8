package analytics

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/events"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/response"
)

// EventGetter loads an event.
type EventGetter interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// Stats aggregates registrations of an event.
type Stats interface {
	CountByStatus(ctx context.Context, eventID int64) (map[models.Status]int, error)
	RevenueByEvent(ctx context.Context, eventID int64) (int, error)
}

// Handler handles GET /admin/events/:id/summary.
type Handler struct {
	events EventGetter
	stats  Stats
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(ev EventGetter, stats Stats, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{events: ev, stats: stats, logger: logger}
}

// SummaryResponse is the JSON shape for the event summary.
type SummaryResponse struct {
	EventID            int64    `json:"event_id"`
	TotalRegistrations int      `json:"total_registrations"`
	Pending            int      `json:"pending"`
	Waitlist           int      `json:"waitlist"`
	Confirmed          int      `json:"confirmed"`
	Cancelled          int      `json:"cancelled"`
	MaxPlace           int      `json:"max_place"`
	Remaining          int      `json:"remaining"` // -1 = unlimited
	RevenueCents       *int     `json:"revenue_cents,omitempty"`
	Currency           string   `json:"currency,omitempty"`
	ConversionRate     *float64 `json:"conversion_rate,omitempty"`
}

// Summarize builds the summary of an event from its counts.
func Summarize(e *models.Event, counts map[models.Status]int, revenueCents int) SummaryResponse {
	out := SummaryResponse{
		EventID:   e.ID,
		Pending:   counts[models.StatusPending],
		Waitlist:  counts[models.StatusWaitlist],
		Confirmed: counts[models.StatusConfirmed],
		Cancelled: counts[models.StatusCancelled],
		MaxPlace:  e.MaxPlace,
	}
	out.TotalRegistrations = out.Pending + out.Waitlist + out.Confirmed + out.Cancelled
	out.Remaining = capacity.Decide(e.MaxPlace, out.Confirmed).Remaining
	if out.TotalRegistrations > 0 {
		conv := float64(out.Confirmed) / float64(out.TotalRegistrations)
		out.ConversionRate = &conv
	}
	if e.PaymentRequired || revenueCents > 0 {
		out.RevenueCents = &revenueCents
		out.Currency = e.Currency
	}
	return out
}

// GetByEvent handles GET /admin/events/:id/summary.
func (h *Handler) GetByEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()

	e, err := h.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("load event failed", zap.Int64("event_id", id), zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}

	counts, err := h.stats.CountByStatus(ctx, id)
	if err != nil {
		h.logger.Error("count registrations failed", zap.Int64("event_id", id), zap.Error(err))
		response.Internal(c, "failed to load registration counts")
		return
	}
	revenue, err := h.stats.RevenueByEvent(ctx, id)
	if err != nil {
		h.logger.Error("revenue query failed", zap.Int64("event_id", id), zap.Error(err))
		response.Internal(c, "failed to load revenue")
		return
	}

	response.OK(c, Summarize(e, counts, revenue))
}
