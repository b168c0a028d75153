package core

import (
	"sync"

	"github.com/medianest/gateway/internal/proto"
)

// Connection is one live transport session as seen by the gateway core.
// It is created only after identity verification succeeds; Identity is
// immutable afterwards. The rooms set is guarded by the Registry's lock
// so membership stays bidirectionally consistent with room member sets.
type Connection struct {
	ID       string
	Identity Identity

	rooms    map[string]struct{}
	handlers map[string]HandlerFunc

	events chan *proto.Outbound
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	dropped uint64
}

// NewConnection constructs an admitted connection with an outbound queue
// of the given size.
func NewConnection(id string, identity Identity, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Connection{
		ID:       id,
		Identity: identity,
		rooms:    make(map[string]struct{}),
		handlers: make(map[string]HandlerFunc),
		events:   make(chan *proto.Outbound, queueSize),
		done:     make(chan struct{}),
	}
}

// Events exposes the outbound queue for the transport's write loop.
func (c *Connection) Events() <-chan *proto.Outbound {
	return c.events
}

// Done is closed exactly once when the connection is torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Send enqueues an outbound event without ever blocking the sender. When
// the queue is full the oldest pending event is dropped to make room, so
// a slow consumer only loses its own events. Sends to a closed
// connection are a no-op.
func (c *Connection) Send(ev *proto.Outbound) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.events <- ev:
		return
	default:
	}

	// Queue full: drop the oldest, then retry once.
	select {
	case <-c.events:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	default:
	}
	select {
	case c.events <- ev:
	case <-c.done:
	default:
	}
}

// Dropped returns how many outbound events were discarded due to a full
// queue.
func (c *Connection) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// close marks the connection as torn down. Idempotent; the events
// channel itself is never closed so concurrent broadcasters can't panic
// on a late send.
func (c *Connection) close() {
	c.once.Do(func() {
		close(c.done)
	})
}
