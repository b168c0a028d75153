package core

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/proto"
)

// HandlerFunc processes one inbound event for one connection. Failures
// are reported back on the connection's outbound queue; a handler never
// tears the connection down.
type HandlerFunc func(ctx context.Context, conn *Connection, payload json.RawMessage)

// Dispatcher routes inbound events to the handlers registered on each
// connection, consulting the rate limiter before any handler runs.
type Dispatcher struct {
	limiter *Limiter
	log     *zerolog.Logger
}

// NewDispatcher builds a dispatcher backed by the given limiter.
func NewDispatcher(limiter *Limiter, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{limiter: limiter, log: logger}
}

// Register installs a handler for one event name on one connection.
// Registration happens during admission, before the connection's read
// loop starts serving events.
func (d *Dispatcher) Register(conn *Connection, event string, fn HandlerFunc) {
	conn.handlers[event] = fn
}

// Dispatch runs the handler registered for the event, if any. Unknown
// event names are silently ignored. Over-budget events are dropped and
// the connection is told so; the handler is never invoked for them.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *Connection, event string, payload json.RawMessage) {
	fn, ok := conn.handlers[event]
	if !ok {
		d.log.Debug().
			Str("conn_id", conn.ID).
			Str("event", event).
			Msg("unknown inbound event ignored")
		return
	}

	if !d.limiter.Allow(RateKey(conn.Identity.UserID, event)) {
		d.log.Warn().
			Str("conn_id", conn.ID).
			Int64("user_id", conn.Identity.UserID).
			Str("event", event).
			Msg("inbound event rate limited")
		conn.Send(&proto.Outbound{
			Type:  proto.OutboundTypeError,
			Event: event,
			Error: &proto.Error{Code: ErrCodeRateLimited, Msg: "too many events, slow down"},
		})
		return
	}

	fn(ctx, conn, payload)
}
