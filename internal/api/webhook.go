package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/services"
	"github.com/c21501/rfc-service/pkg/models"
)

// WebhookHandler exposes the Planka webhook endpoints. These are not behind
// user authentication; the shared secret is the only credential.
type WebhookHandler struct {
	Service *services.WebhookService
	Logger  *logging.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(svc *services.WebhookService, logger *logging.Logger) *WebhookHandler {
	return &WebhookHandler{Service: svc, Logger: logger}
}

// RegisterHandlers mounts the webhook routes.
func (h *WebhookHandler) RegisterHandlers(g *echo.Group) {
	g.POST("", h.HandleEvent)
	g.POST("/card-moved", h.HandleCardMoved)
	g.POST("/card-updated", h.HandleCardUpdated)
	g.GET("/health", h.HandleHealth)
}

// HandleEvent accepts any board event envelope and dispatches on its declared
// event type.
// (POST /api/webhook/planka)
func (h *WebhookHandler) HandleEvent(c echo.Context) error {
	return h.handle(c, "")
}

// HandleCardMoved accepts an envelope and processes it as card_moved
// regardless of its declared type.
// (POST /api/webhook/planka/card-moved)
func (h *WebhookHandler) HandleCardMoved(c echo.Context) error {
	return h.handle(c, services.EventCardMoved)
}

// HandleCardUpdated accepts an envelope and processes it as card_updated.
// (POST /api/webhook/planka/card-updated)
func (h *WebhookHandler) HandleCardUpdated(c echo.Context) error {
	return h.handle(c, services.EventCardUpdated)
}

// HandleHealth reports webhook endpoint liveness.
// (GET /api/webhook/planka/health)
func (h *WebhookHandler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "rfc-service-webhook",
	})
}

func (h *WebhookHandler) handle(c echo.Context, forceEvent string) error {
	if err := h.Service.VerifySecret(webhookSecret(c)); err != nil {
		h.Logger.Warn("webhook rejected", "remote", c.RealIP(), "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
	}

	var evt services.Event
	if err := c.Bind(&evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if forceEvent != "" {
		evt.Event = forceEvent
	}

	if err := h.Service.HandleEvent(c.Request().Context(), &evt); err != nil {
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.Logger.Error("webhook event processing failed", "event", evt.Event, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "event processing failed")
	}
	return c.NoContent(http.StatusOK)
}

// webhookSecret extracts the shared secret from the dedicated header or the
// Authorization bearer token.
func webhookSecret(c echo.Context) string {
	if secret := c.Request().Header.Get("X-Webhook-Secret"); secret != "" {
		return secret
	}
	if authz := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}
