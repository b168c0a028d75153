package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/auth"
	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/proto"
)

// longPollWait caps how long an events request parks before returning an
// empty batch.
const longPollWait = 25 * time.Second

// drainLimit bounds how many queued events one poll response carries.
const drainLimit = 32

// PollManager serves the request/poll fallback transport. A poll session
// wraps the same core.Connection the WebSocket path uses, so admission,
// rooms, dispatch, and rate limits behave identically. Clients that can
// upgrade simply reconnect over /ws and let the session idle out.
type PollManager struct {
	gateway    *core.Gateway
	dispatcher *core.Dispatcher
	handlers   *core.Handlers
	verifier   *auth.Verifier
	queueSize  int
	ttl        time.Duration
	log        *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*pollSession
}

type pollSession struct {
	conn     *core.Connection
	lastSeen time.Time
}

// NewPollManager builds the fallback transport manager.
func NewPollManager(gateway *core.Gateway, dispatcher *core.Dispatcher, handlers *core.Handlers, verifier *auth.Verifier, queueSize int, ttl time.Duration, logger *zerolog.Logger) *PollManager {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PollManager{
		gateway:    gateway,
		dispatcher: dispatcher,
		handlers:   handlers,
		verifier:   verifier,
		queueSize:  queueSize,
		ttl:        ttl,
		log:        logger,
		sessions:   make(map[string]*pollSession),
	}
}

// ConnectResponse carries the session id for subsequent poll calls.
type ConnectResponse struct {
	SID string `json:"sid"`
}

// EventsResponse is one drained batch of outbound events.
type EventsResponse struct {
	Events []*proto.Outbound `json:"events"`
}

// Connect runs the admission handshake for a poll session.
// POST /poll/connect
func (m *PollManager) Connect(c *gin.Context) {
	credential := ExtractCredential(c.Request)
	identity, err := m.verifier.Verify(c.Request.Context(), credential)
	if err != nil {
		m.log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("poll admission rejected")
		c.JSON(rejectStatus(err), ErrorResponse{Error: "authentication required"})
		return
	}

	conn := core.NewConnection(uuid.NewString(), *identity, m.queueSize)
	m.handlers.Bind(m.dispatcher, conn)
	m.gateway.Admit(conn)

	m.mu.Lock()
	m.sessions[conn.ID] = &pollSession{conn: conn, lastSeen: time.Now()}
	m.mu.Unlock()

	c.JSON(http.StatusOK, ConnectResponse{SID: conn.ID})
}

// Events drains queued outbound events, parking up to longPollWait for
// the first one.
// GET /poll/events?sid=
func (m *PollManager) Events(c *gin.Context) {
	sess, ok := m.touch(c.Query("sid"))
	if !ok {
		c.JSON(http.StatusGone, ErrorResponse{Error: "unknown session"})
		return
	}
	conn := sess.conn

	events := make([]*proto.Outbound, 0, 4)

	select {
	case ev := <-conn.Events():
		events = append(events, ev)
	case <-conn.Done():
		m.remove(conn.ID)
		c.JSON(http.StatusGone, ErrorResponse{Error: "session closed"})
		return
	case <-c.Request.Context().Done():
		return
	case <-time.After(longPollWait):
	}

	// Grab whatever else is already queued, without waiting again.
	for len(events) < drainLimit {
		select {
		case ev := <-conn.Events():
			events = append(events, ev)
		default:
			c.JSON(http.StatusOK, EventsResponse{Events: events})
			return
		}
	}
	c.JSON(http.StatusOK, EventsResponse{Events: events})
}

// Send accepts one inbound envelope.
// POST /poll/send?sid=
func (m *PollManager) Send(c *gin.Context) {
	sess, ok := m.touch(c.Query("sid"))
	if !ok {
		c.JSON(http.StatusGone, ErrorResponse{Error: "unknown session"})
		return
	}

	var inbound proto.Inbound
	if err := c.ShouldBindJSON(&inbound); err != nil || inbound.Type == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid event envelope"})
		return
	}

	m.dispatcher.Dispatch(c.Request.Context(), sess.conn, inbound.Type, inbound.Data)
	c.Status(http.StatusAccepted)
}

// Disconnect tears the session down eagerly.
// POST /poll/disconnect?sid=
func (m *PollManager) Disconnect(c *gin.Context) {
	sid := c.Query("sid")

	m.mu.Lock()
	sess, ok := m.sessions[sid]
	delete(m.sessions, sid)
	m.mu.Unlock()

	if ok {
		m.gateway.Drop(sess.conn, "client disconnect")
	}
	c.Status(http.StatusNoContent)
}

// Run reaps sessions whose clients stopped polling. An expired session
// goes through the same unconditional teardown as a closed WebSocket.
func (m *PollManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reap()
		case <-ctx.Done():
			m.mu.Lock()
			sessions := m.sessions
			m.sessions = make(map[string]*pollSession)
			m.mu.Unlock()
			for _, sess := range sessions {
				m.gateway.Drop(sess.conn, "server shutdown")
			}
			return
		}
	}
}

func (m *PollManager) reap() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*pollSession
	for sid, sess := range m.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess)
			delete(m.sessions, sid)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.log.Info().Str("conn_id", sess.conn.ID).Msg("poll session expired")
		m.gateway.Drop(sess.conn, "poll session expired")
	}
}

func (m *PollManager) touch(sid string) (*pollSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sid]
	if !ok {
		return nil, false
	}
	sess.lastSeen = time.Now()
	return sess, true
}

func (m *PollManager) remove(sid string) {
	m.mu.Lock()
	delete(m.sessions, sid)
	m.mu.Unlock()
}
