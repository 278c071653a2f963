package http

import (
	"errors"
	"net/http"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/internal/infrastructure/middleware"
	apperrors "eventsphere/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NotificationHandler lets API layers without bus access publish channel
// messages over HTTP.
type NotificationHandler struct {
	publisher ports.Publisher
	logger    *zap.SugaredLogger
}

func NewNotificationHandler(publisher ports.Publisher, logger *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{
		publisher: publisher,
		logger:    logger,
	}
}

// SetupRoutes mounts the endpoint on group, which must already carry
// authentication.
func (h *NotificationHandler) SetupRoutes(group *gin.RouterGroup) {
	group.POST("/notifications", middleware.RequireRole(domain.RoleAdmin), h.Publish)
}

type publishResponse struct {
	Status  string         `json:"status"`
	Channel domain.Channel `json:"channel"`
}

// Publish accepts a ChannelMessage with its channel set.
func (h *NotificationHandler) Publish(c *gin.Context) {
	var msg domain.ChannelMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		_ = c.Error(apperrors.InvalidRequest("body must be a channel message"))
		return
	}
	if msg.Channel == "" {
		_ = c.Error(apperrors.InvalidRequest("channel is required"))
		return
	}

	err := h.publisher.Publish(c.Request.Context(), msg)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnknownChannel),
		errors.Is(err, domain.ErrMalformedMessage),
		errors.Is(err, domain.ErrInvalidRoom):
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInvalidRequest, err.Error()))
		return
	default:
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeUnavailable, "message bus unavailable"))
		return
	}

	identity, _ := middleware.IdentityFrom(c)
	h.logger.Infow("notification published",
		"channel", msg.Channel,
		"event_type", msg.EventType,
		"target_room", msg.TargetRoom,
		"publisher", identity.ID,
	)
	c.JSON(http.StatusAccepted, publishResponse{Status: "published", Channel: msg.Channel})
}
