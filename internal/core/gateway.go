package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Gateway owns the set of live connections. Transports hand it fully
// authenticated connections; it tracks them, and on disconnect removes
// them from every room exactly once regardless of the disconnect cause.
type Gateway struct {
	registry *Registry
	limiter  *Limiter
	log      *zerolog.Logger

	mu     sync.Mutex
	conns  map[string]*Connection
	byUser map[int64]int
}

// NewGateway builds a gateway over the given registry and limiter.
func NewGateway(registry *Registry, limiter *Limiter, logger *zerolog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		limiter:  limiter,
		log:      logger,
		conns:    make(map[string]*Connection),
		byUser:   make(map[int64]int),
	}
}

// Registry exposes the room registry the gateway coordinates.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Admit registers an authenticated connection as live.
func (g *Gateway) Admit(conn *Connection) {
	g.mu.Lock()
	g.conns[conn.ID] = conn
	g.byUser[conn.Identity.UserID]++
	total := len(g.conns)
	g.mu.Unlock()

	g.log.Info().
		Str("conn_id", conn.ID).
		Int64("user_id", conn.Identity.UserID).
		Str("role", conn.Identity.Role).
		Int("connections", total).
		Msg("connection admitted")
}

// Drop tears the connection down: room memberships go first (atomically
// across rooms), then bookkeeping, then the done signal. Safe to call
// more than once and from any goroutine; only the first call does work.
func (g *Gateway) Drop(conn *Connection, reason string) {
	g.mu.Lock()
	if _, live := g.conns[conn.ID]; !live {
		g.mu.Unlock()
		conn.close()
		return
	}
	delete(g.conns, conn.ID)
	userID := conn.Identity.UserID
	g.byUser[userID]--
	lastOfUser := g.byUser[userID] <= 0
	if lastOfUser {
		delete(g.byUser, userID)
	}
	total := len(g.conns)
	g.mu.Unlock()

	g.registry.RemoveConnection(conn)
	conn.close()

	if lastOfUser {
		g.limiter.ForgetUser(userID)
	}

	g.log.Info().
		Str("conn_id", conn.ID).
		Int64("user_id", userID).
		Str("reason", reason).
		Uint64("dropped_events", conn.Dropped()).
		Int("connections", total).
		Msg("connection closed")
}

// Connections returns the current number of live connections.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}
