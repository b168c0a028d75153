package http

import (
	"context"
	"errors"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/auth"
	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/proto"
)

// WSHandler runs the admission handshake and bridges a WebSocket to a
// gateway connection.
type WSHandler struct {
	gateway    *core.Gateway
	dispatcher *core.Dispatcher
	handlers   *core.Handlers
	verifier   *auth.Verifier
	queueSize  int
	origins    []string
	log        *zerolog.Logger
}

// NewWSHandler builds the WebSocket handler.
func NewWSHandler(gateway *core.Gateway, dispatcher *core.Dispatcher, handlers *core.Handlers, verifier *auth.Verifier, queueSize int, origins []string, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		gateway:    gateway,
		dispatcher: dispatcher,
		handlers:   handlers,
		verifier:   verifier,
		queueSize:  queueSize,
		origins:    origins,
		log:        logger,
	}
}

// Handle verifies the credential, upgrades the transport, and serves the
// connection until it closes. Verification is a hard pre-admission gate:
// a failed credential is rejected before the upgrade, so no gateway
// Connection ever exists for it and no room is touched.
func (h *WSHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	credential := ExtractCredential(c.Request)
	identity, err := h.verifier.Verify(ctx, credential)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("ws admission rejected")
		c.JSON(rejectStatus(err), ErrorResponse{Error: "authentication required"})
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(h.origins) > 0 {
		opts.OriginPatterns = h.origins
	} else {
		opts.InsecureSkipVerify = true
	}

	wsConn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer wsConn.Close(websocket.StatusInternalError, "internal error")

	conn := core.NewConnection(uuid.NewString(), *identity, h.queueSize)
	h.handlers.Bind(h.dispatcher, conn)
	h.gateway.Admit(conn)
	defer h.gateway.Drop(conn, "transport closed")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, wsConn, conn)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, wsConn, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", conn.ID).Msg("ws connection closed with error")
		}
	}

	wsConn.Close(status, reason)
}

// readLoop decodes inbound envelopes and dispatches them in arrival
// order, one at a time per connection.
func (h *WSHandler) readLoop(ctx context.Context, wsConn *websocket.Conn, conn *core.Connection) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, wsConn, &inbound); err != nil {
			return err
		}
		h.dispatcher.Dispatch(ctx, conn, inbound.Type, inbound.Data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, wsConn *websocket.Conn, conn *core.Connection) error {
	for {
		select {
		case event := <-conn.Events():
			if err := wsjson.Write(ctx, wsConn, event); err != nil {
				h.log.Error().Err(err).Str("conn_id", conn.ID).Msg("write ws event")
				return err
			}
		case <-conn.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
