package webhooks

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/pkg/response"
)

const maxPayload = 1 << 20

// Handler exposes the reconciler over HTTP.
type Handler struct {
	rec    *Reconciler
	logger *zap.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(rec *Reconciler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{rec: rec, logger: logger}
}

// Receive handles POST /webhooks/:gateway. The raw body is needed for the signature check.
func (h *Handler) Receive(c *gin.Context) {
	name := c.Param("gateway")
	header, ok := h.rec.SignatureHeader(name)
	if !ok {
		response.NotFound(c, "unknown gateway")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayload+1))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if len(payload) > maxPayload {
		response.TooLarge(c, "payload too large")
		return
	}

	switch status := h.rec.Handle(c.Request.Context(), name, payload, c.GetHeader(header)); status {
	case http.StatusOK:
		response.OK(c, gin.H{"received": true})
	case http.StatusBadRequest:
		response.BadRequest(c, "invalid webhook")
	case http.StatusNotFound:
		response.NotFound(c, "unknown gateway")
	default:
		response.Status(c, status, "webhook not processed")
	}
}
