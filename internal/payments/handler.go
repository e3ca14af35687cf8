package payments

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/pkg/response"
)

const checkTimeout = 10 * time.Second

// CheckResult is the outcome of one gateway credential check. Webhook is set for gateways
// that can list their webhook endpoints.
type CheckResult struct {
	Gateway string         `json:"gateway"`
	Active  bool           `json:"active"`
	OK      bool           `json:"ok"`
	Error   string         `json:"error,omitempty"`
	Webhook *WebhookResult `json:"webhook,omitempty"`
}

// WebhookResult says whether the provider account delivers events to this service.
type WebhookResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler serves operator endpoints for the configured gateways.
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger}
}

// CheckAll tests the API credentials of every registered gateway.
func (h *Handler) CheckAll(ctx context.Context) []CheckResult {
	active, _ := h.registry.Active()
	out := make([]CheckResult, 0, len(h.registry.gateways))
	for _, name := range h.registry.Names() {
		g, _ := h.registry.Get(name)
		res := CheckResult{Gateway: name, Active: active != nil && active.Name() == name}
		checker, ok := g.(CredentialChecker)
		if !ok {
			res.Error = "credential check not supported"
			out = append(out, res)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checker.CheckCredentials(cctx)
		cancel()
		if err != nil {
			h.logger.Warn("gateway credential check failed", zap.String("gateway", name), zap.Error(err))
			res.Error = err.Error()
		} else {
			res.OK = true
		}
		if wc, ok := g.(WebhookChecker); ok && res.OK {
			res.Webhook = h.checkWebhook(ctx, name, wc)
		}
		out = append(out, res)
	}
	return out
}

func (h *Handler) checkWebhook(ctx context.Context, name string, wc WebhookChecker) *WebhookResult {
	cctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := wc.CheckWebhookEndpoint(cctx); err != nil {
		h.logger.Warn("gateway webhook check failed", zap.String("gateway", name), zap.Error(err))
		return &WebhookResult{Error: err.Error()}
	}
	return &WebhookResult{OK: true}
}

// Check handles GET /admin/gateways/check.
func (h *Handler) Check(c *gin.Context) {
	response.OK(c, h.CheckAll(c.Request.Context()))
}
