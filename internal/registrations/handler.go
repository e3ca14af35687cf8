package registrations

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/captcha"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/payments"
	"github.com/aura-events/backend/internal/tokens"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/storage"
)

// CaptchaVerifier checks a human-verification token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Archiver stores an export and returns a download URL.
type Archiver interface {
	ArchiveExport(ctx context.Context, key string, body io.Reader, size int64) (string, error)
}

// RegisterRequest is the body for POST /events/:id/register.
type RegisterRequest struct {
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone"`
	DesiredDomain string `json:"desired_domain"`
	HasDomain     bool   `json:"has_domain"`
	CaptchaToken  string `json:"captcha_token"`
}

// RegisterResponse is returned by the registration endpoint.
type RegisterResponse struct {
	RegistrationID uuid.UUID     `json:"registration_id"`
	Status         models.Status `json:"status"`
	CheckoutURL    string        `json:"checkout_url,omitempty"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc      *Service
	captcha  CaptchaVerifier
	archiver Archiver
	logger   *zap.Logger
}

// NewHandler creates a registration handler. captcha and archiver may be nil.
func NewHandler(svc *Service, captcha CaptchaVerifier, archiver Archiver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, captcha: captcha, archiver: archiver, logger: logger}
}

func parseEventID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid event id")
		return 0, false
	}
	return id, true
}

func parseRegistrationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps service errors to responses. Internal causes never reach the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		verr *ValidationError
		gerr *payments.GatewayError
		serr *StorageError
	)
	switch {
	case errors.As(err, &verr):
		response.BadRequest(c, verr.Error())
	case errors.Is(err, tokens.ErrTokenExpired):
		response.Gone(c, "expired")
	case errors.Is(err, tokens.ErrTokenInvalid):
		response.BadRequest(c, "invalid_link")
	case errors.Is(err, ErrAlreadyRegistered):
		response.Conflict(c, "you are already registered for this event")
	case errors.Is(err, ErrConfirmedImmutable):
		response.Conflict(c, ErrConfirmedImmutable.Error())
	case errors.Is(err, ErrNotPending):
		response.Conflict(c, ErrNotPending.Error())
	case errors.Is(err, ErrEventNotFound):
		response.NotFound(c, "event not found")
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "registration not found")
	case errors.Is(err, ErrCheckoutUnavailable):
		response.ServiceUnavailable(c, "payment is temporarily unavailable")
	case errors.As(err, &gerr):
		h.logger.Error("payment gateway failed",
			zap.String("gateway", gerr.Gateway),
			zap.String("kind", string(gerr.Kind)),
			zap.Int("status_code", gerr.StatusCode),
			zap.Error(err),
		)
		response.BadGateway(c, "payment could not be started, please try again")
	case errors.As(err, &serr):
		h.logger.Error("storage failure", zap.String("op", serr.Op), zap.Error(serr.Err))
		response.Internal(c, "internal error")
	default:
		h.logger.Error("request failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}

// Register handles POST /events/:id/register.
func (h *Handler) Register(c *gin.Context) {
	eventID, ok := parseEventID(c)
	if !ok {
		return
	}
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if h.captcha != nil {
		if err := h.captcha.Verify(c.Request.Context(), req.CaptchaToken, c.ClientIP()); err != nil {
			if errors.Is(err, captcha.ErrRejected) {
				response.BadRequest(c, "captcha verification failed")
				return
			}
			h.logger.Warn("captcha verification unavailable", zap.Error(err))
			response.ServiceUnavailable(c, "captcha verification unavailable")
			return
		}
	}
	res, err := h.svc.Register(c.Request.Context(), RegisterInput{
		EventID:       eventID,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		DesiredDomain: req.DesiredDomain,
		HasDomain:     req.HasDomain,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	body := RegisterResponse{
		RegistrationID: res.Registration.ID,
		Status:         res.Registration.Status,
		CheckoutURL:    res.CheckoutURL,
	}
	if res.Outcome == OutcomeCreated {
		response.Created(c, body)
		return
	}
	response.OK(c, body)
}

// Confirm handles GET /registrations/:id/confirm?token=.
func (h *Handler) Confirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid_link")
		return
	}
	reg, err := h.svc.Confirm(c.Request.Context(), id, c.Query("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"registration_id": reg.ID, "status": reg.Status})
}

// List handles GET /admin/events/:id/registrations?status=.
func (h *Handler) List(c *gin.Context) {
	eventID, ok := parseEventID(c)
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), eventID, models.Status(c.Query("status")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []models.Registration{}
	}
	response.OK(c, list)
}

// Export handles GET /admin/events/:id/registrations.csv.
func (h *Handler) Export(c *gin.Context) {
	eventID, ok := parseEventID(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(c.Request.Context(), eventID, &buf); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+ExportFilename(eventID)+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Archive handles POST /admin/events/:id/registrations/archive. The export goes to object storage.
func (h *Handler) Archive(c *gin.Context) {
	if h.archiver == nil {
		response.ServiceUnavailable(c, "export storage not configured")
		return
	}
	eventID, ok := parseEventID(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(c.Request.Context(), eventID, &buf); err != nil {
		h.writeError(c, err)
		return
	}
	key := storage.ExportKey(eventID, ExportFilename(eventID), time.Now())
	url, err := h.archiver.ArchiveExport(c.Request.Context(), key, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		h.logger.Error("archive export failed", zap.Int64("event_id", eventID), zap.Error(err))
		response.Internal(c, "failed to archive export")
		return
	}
	response.Created(c, gin.H{"key": key, "download_url": url})
}

// Cancel handles POST /admin/registrations/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := parseRegistrationID(c)
	if !ok {
		return
	}
	reg, err := h.svc.Cancel(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, reg)
}

// Resend handles POST /admin/registrations/:id/resend.
func (h *Handler) Resend(c *gin.Context) {
	id, ok := parseRegistrationID(c)
	if !ok {
		return
	}
	if err := h.svc.ResendConfirmation(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"registration_id": id, "resent": true})
}

// Get handles GET /admin/registrations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseRegistrationID(c)
	if !ok {
		return
	}
	reg, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, reg)
}
