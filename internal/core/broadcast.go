package core

import (
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/medianest/gateway/internal/proto"
)

// Broadcaster is the process-wide push facade the rest of the
// application uses to reach live connections. It is constructed once by
// the bootstrap with the live registry; calling any method on a nil or
// unwired Broadcaster logs a warning and does nothing, never crashes.
//
// Delivery is at-most-once with no queue and no retry: a member that
// vanished between room resolution and write is silently skipped, and a
// user with no live connection receives nothing.
type Broadcaster struct {
	registry *Registry
	log      *zerolog.Logger
	now      func() time.Time
}

// NewBroadcaster wires the broadcast facade to the live registry.
func NewBroadcaster(registry *Registry, logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      logger,
		now:      time.Now,
	}
}

func (b *Broadcaster) ready() bool {
	if b == nil || b.registry == nil {
		zlog.Warn().Msg("broadcast requested before gateway initialization, dropping")
		return false
	}
	return true
}

// EmitToRoom writes the event to every live member of the room.
func (b *Broadcaster) EmitToRoom(room, event string, data any) {
	if !b.ready() {
		return
	}

	members := b.registry.MembersOf(room)
	for _, conn := range members {
		conn.Send(&proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event,
			Data:  data,
		})
	}
	b.log.Debug().
		Str("room", room).
		Str("event", event).
		Int("members", len(members)).
		Msg("room broadcast")
}

// EmitToUser writes the event to every live connection in the user's
// notification room.
func (b *Broadcaster) EmitToUser(userID int64, event string, data any) {
	if !b.ready() {
		return
	}
	b.EmitToRoom(UserRoom(userID), event, data)
}

// BroadcastStatus pushes a service status change to the status room,
// stamped with the server-side timestamp.
func (b *Broadcaster) BroadcastStatus(service, status string) {
	if !b.ready() {
		return
	}
	b.EmitToRoom(StatusRoom, proto.OutboundStatusUpdate, proto.ServiceStatus{
		Service:   service,
		Status:    status,
		Timestamp: b.now().UTC().Format(time.RFC3339),
	})
}

// SendNotification pushes an opaque notification payload to the user,
// stamped with the server-side timestamp.
func (b *Broadcaster) SendNotification(userID int64, notification any) {
	if !b.ready() {
		return
	}
	b.EmitToUser(userID, proto.OutboundNewNotification, proto.NewNotificationData{
		Notification: notification,
		Timestamp:    b.now().UTC().Format(time.RFC3339),
	})
}
