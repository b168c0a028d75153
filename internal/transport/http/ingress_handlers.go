package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/status"
	"github.com/medianest/gateway/internal/store"
)

// IngressHandlers exposes the Broadcast Service to the rest of the
// MediaNest application. These endpoints are the only way external code
// pushes events into the gateway.
type IngressHandlers struct {
	broadcaster   *core.Broadcaster
	tracker       *status.Tracker
	notifications store.NotificationStore
	log           *zerolog.Logger
}

// NewIngressHandlers creates the ingress handler set.
func NewIngressHandlers(broadcaster *core.Broadcaster, tracker *status.Tracker, notifications store.NotificationStore, logger *zerolog.Logger) *IngressHandlers {
	return &IngressHandlers{
		broadcaster:   broadcaster,
		tracker:       tracker,
		notifications: notifications,
		log:           logger,
	}
}

// StatusRequest reports one service's state.
type StatusRequest struct {
	Service string `json:"service" binding:"required"`
	Status  string `json:"status" binding:"required"`
}

// NotifyRequest carries one notification for one user.
type NotifyRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NotificationBody is the document delivered to the user's connections.
type NotificationBody struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AcceptedResponse acknowledges an ingress push. Delivery itself is
// at-most-once with no feedback channel.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// BroadcastStatus updates the tracker and fans the change out to the
// status room.
// POST /api/broadcast/status
func (h *IngressHandlers) BroadcastStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "service and status are required"})
		return
	}

	h.tracker.Set(req.Service, req.Status)
	h.broadcaster.BroadcastStatus(req.Service, req.Status)
	c.JSON(http.StatusAccepted, AcceptedResponse{Accepted: true})
}

// Notify persists a notification and pushes it to the user's live
// connections. A user with no live connection still gets the stored
// record; the push is simply delivered to nobody.
// POST /api/notify/:user_id
func (h *IngressHandlers) Notify(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	n := &store.Notification{
		UserID:  userID,
		Type:    req.Type,
		Payload: string(req.Payload),
	}
	if err := h.notifications.CreateNotification(c.Request.Context(), n); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("persist notification")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.broadcaster.SendNotification(userID, NotificationBody{
		ID:      n.ID,
		Type:    n.Type,
		Payload: req.Payload,
	})
	c.JSON(http.StatusAccepted, AcceptedResponse{Accepted: true})
}
