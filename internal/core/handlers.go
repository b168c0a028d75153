package core

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/proto"
	"github.com/medianest/gateway/internal/store"
)

// StatusSource supplies the last-known service statuses and accepts
// refresh nudges. Implemented by the status poller.
type StatusSource interface {
	// Snapshot returns every monitored service's last-known state.
	Snapshot() []proto.ServiceStatus
	// Refresh asks for an immediate re-check; it must not block.
	Refresh()
}

// Handlers binds the gateway's inbound event set onto admitted
// connections.
type Handlers struct {
	registry      *Registry
	broadcaster   *Broadcaster
	notifications store.NotificationStore
	status        StatusSource
	log           *zerolog.Logger
}

// NewHandlers builds the handler set.
func NewHandlers(registry *Registry, broadcaster *Broadcaster, notifications store.NotificationStore, status StatusSource, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		registry:      registry,
		broadcaster:   broadcaster,
		notifications: notifications,
		status:        status,
		log:           logger,
	}
}

// Bind registers every inbound handler on the connection. Called during
// admission, before the transport starts reading.
func (h *Handlers) Bind(d *Dispatcher, conn *Connection) {
	d.Register(conn, proto.InboundSubscribeStatus, h.subscribeStatus)
	d.Register(conn, proto.InboundUnsubscribeStatus, h.unsubscribeStatus)
	d.Register(conn, proto.InboundAdminRefresh, h.adminRefresh)
	d.Register(conn, proto.InboundSubscribeNotifications, h.subscribeNotifications)
	d.Register(conn, proto.InboundMarkNotificationRead, h.markNotificationRead)
}

func sendErr(conn *Connection, event string, gerr *GatewayError) {
	conn.Send(&proto.Outbound{
		Type:  proto.OutboundTypeError,
		Event: event,
		Error: &proto.Error{Code: gerr.Code, Msg: gerr.Message},
	})
}

// subscribeStatus joins the global status room and replies with the
// current snapshot so the client renders immediately.
func (h *Handlers) subscribeStatus(_ context.Context, conn *Connection, payload json.RawMessage) {
	if err := proto.ValidateEmpty(payload); err != nil {
		sendErr(conn, proto.InboundSubscribeStatus, gatewayError(ErrCodeBadPayload, "subscribe_status takes no payload"))
		return
	}

	h.registry.Join(conn, StatusRoom)
	conn.Send(&proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.OutboundStatusSnapshot,
		Data:  proto.StatusSnapshotData{Services: h.status.Snapshot()},
	})
}

func (h *Handlers) unsubscribeStatus(_ context.Context, conn *Connection, payload json.RawMessage) {
	if err := proto.ValidateEmpty(payload); err != nil {
		sendErr(conn, proto.InboundUnsubscribeStatus, gatewayError(ErrCodeBadPayload, "unsubscribe_status takes no payload"))
		return
	}
	h.registry.Leave(conn, StatusRoom)
}

// adminRefresh broadcasts the refreshing signal to the status room and
// kicks an immediate poll. Role-gated: the dispatcher is policy-free,
// the check lives here.
func (h *Handlers) adminRefresh(_ context.Context, conn *Connection, payload json.RawMessage) {
	if err := proto.ValidateEmpty(payload); err != nil {
		sendErr(conn, proto.InboundAdminRefresh, gatewayError(ErrCodeBadPayload, "admin_refresh takes no payload"))
		return
	}
	if !conn.Identity.IsAdmin() {
		h.log.Warn().
			Str("conn_id", conn.ID).
			Int64("user_id", conn.Identity.UserID).
			Msg("admin_refresh denied")
		sendErr(conn, proto.InboundAdminRefresh, gatewayError(ErrCodeUnauthorized, "admin role required"))
		return
	}

	h.broadcaster.EmitToRoom(StatusRoom, proto.OutboundRefreshing, nil)
	h.status.Refresh()
}

// subscribeNotifications auto-joins the caller's own user room. The room
// name is derived solely from the connection's identity, so a client can
// never subscribe to another user's notifications.
func (h *Handlers) subscribeNotifications(_ context.Context, conn *Connection, payload json.RawMessage) {
	if err := proto.ValidateEmpty(payload); err != nil {
		sendErr(conn, proto.InboundSubscribeNotifications, gatewayError(ErrCodeBadPayload, "subscribe_notifications takes no payload"))
		return
	}
	h.registry.Join(conn, UserRoom(conn.Identity.UserID))
}

func (h *Handlers) markNotificationRead(ctx context.Context, conn *Connection, payload json.RawMessage) {
	p, err := proto.ParseMarkRead(payload)
	if err != nil {
		sendErr(conn, proto.InboundMarkNotificationRead, gatewayError(ErrCodeBadPayload, "notification_id is required"))
		return
	}

	if err := h.notifications.MarkAsRead(ctx, p.NotificationID, conn.Identity.UserID); err != nil {
		msg := "failed to mark notification read"
		if errors.Is(err, store.ErrNotFound) {
			msg = "notification not found"
		} else {
			h.log.Error().Err(err).
				Str("notification_id", p.NotificationID).
				Int64("user_id", conn.Identity.UserID).
				Msg("mark notification read")
		}
		conn.Send(&proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.OutboundReadFailed,
			Data:  proto.ReadFailedData{NotificationID: p.NotificationID, Message: msg},
		})
		return
	}

	conn.Send(&proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.OutboundReadAck,
		Data:  proto.ReadAckData{NotificationID: p.NotificationID},
	})
}
